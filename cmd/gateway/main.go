package main

import "github.com/bistroline/gateway/cmd/gateway/cmd"

func main() {
	cmd.Execute()
}
