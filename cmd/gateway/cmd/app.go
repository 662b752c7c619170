package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bistroline/gateway/internal/audit"
	"github.com/bistroline/gateway/internal/auth"
	"github.com/bistroline/gateway/internal/config"
	"github.com/bistroline/gateway/internal/domain/apikeys"
	"github.com/bistroline/gateway/internal/domain/webhooks"
	"github.com/bistroline/gateway/internal/email"
	"github.com/bistroline/gateway/internal/jobs"
	"github.com/bistroline/gateway/internal/secrets"
	"github.com/bistroline/gateway/internal/storage/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/rs/zerolog"
)

// app holds the wired service graph for the serve command and the
// database-backed CLI commands.
type app struct {
	cfg         config.Config
	logger      zerolog.Logger
	pool        *pgxpool.Pool
	store       *postgres.Store
	keys        *apikeys.Service
	recorder    *apikeys.UsageRecorder
	registry    *webhooks.Registry
	dispatcher  *webhooks.Dispatcher
	riverClient *river.Client[pgx.Tx]
	audit       *audit.Logger
	jwt         *auth.JWTManager
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}

// newApp connects to the database and wires the full service graph. withJobs
// controls whether the River client is built; CLI commands that only touch
// rows directly skip it.
func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger, withJobs bool) (*app, error) {
	master := []byte(cfg.Auth.MasterSecret)
	encKey, err := secrets.DeriveWebhookEncryptionKey(master)
	if err != nil {
		return nil, fmt.Errorf("derive webhook encryption key: %w", err)
	}
	box, err := secrets.NewSecretBox(encKey)
	if err != nil {
		return nil, fmt.Errorf("init secret box: %w", err)
	}
	jwtKey, err := secrets.DeriveAdminJWTKey(master)
	if err != nil {
		return nil, fmt.Errorf("derive admin jwt key: %w", err)
	}

	poolCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(poolCtx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	store, err := postgres.NewStore(pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}
	recorder := apikeys.NewUsageRecorder(store.Keys(), logger)
	keysService := apikeys.NewService(store.Keys(), recorder, logger, apikeys.Options{
		BcryptCost:      cfg.Auth.BcryptCost,
		IssuancePerHour: cfg.RateLimit.KeyIssuancePerHour,
	})
	registry := webhooks.NewRegistry(store.Subscriptions(), box, logger, cfg.Webhooks.AllowInsecureURLs)

	enqueuer := jobs.NewRiverEnqueuer(nil)
	dispatcher := webhooks.NewDispatcher(store.Subscriptions(), store.Deliveries(), enqueuer, registry, logger, webhooks.DispatcherConfig{
		Timeout:             cfg.Webhooks.DeliveryTimeout,
		MaxAutoAttempts:     cfg.Webhooks.MaxAutoAttempts,
		MaxLifetimeAttempts: cfg.Webhooks.MaxLifetimeAttempts,
		PerSubscriptionCap:  cfg.Webhooks.PerSubscriptionCap,
	})

	a := &app{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		store:      store,
		keys:       keysService,
		recorder:   recorder,
		registry:   registry,
		dispatcher: dispatcher,
		audit:      audit.NewLogger(logger, store.Audit()),
		jwt:        auth.NewJWTManager(jwtKey, cfg.Auth.AdminJWTExpiry, cfg.Auth.Issuer),
	}

	if withJobs {
		alerter, err := email.NewAlerter(cfg.Alerts, logger)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("init alerter: %w", err)
		}
		workers := jobs.NewWorkers(dispatcher, 2*cfg.Jobs.SweepInterval, 500)
		slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
		client, err := jobs.NewClient(pool, workers, slogger, alerter.JobFailure, jobs.NewPeriodicJobs(cfg.Jobs.SweepInterval), cfg.Jobs.WorkerCount)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("init job client: %w", err)
		}
		enqueuer.Bind(client)
		a.riverClient = client
	}

	return a, nil
}

// close releases everything newApp acquired, in reverse dependency order.
func (a *app) close() {
	a.keys.Close()
	a.recorder.Stop()
	a.pool.Close()
}
