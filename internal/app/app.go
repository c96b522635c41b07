// Package app wires configuration into a running automation engine.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/pipeline-automation/internal/automation"
	"github.com/ignite/pipeline-automation/internal/config"
	"github.com/ignite/pipeline-automation/internal/dispatch"
	"github.com/ignite/pipeline-automation/internal/mailing"
	"github.com/ignite/pipeline-automation/internal/pkg/claim"
	"github.com/ignite/pipeline-automation/internal/pkg/logger"
	"github.com/ignite/pipeline-automation/internal/repository/postgres"
)

// App holds the engine and the connections it owns.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Redis   *redis.Client
	Engine  *automation.Engine
	Changes *automation.ChangeSource
}

// ConfigureLogging applies the logging section to the process logger.
func ConfigureLogging(cfg *config.Config, service string) {
	logger.SetService(service)
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.ShouldRedact())
}

// New opens the database, picks the claim backend and the dispatcher, and
// builds the engine.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url or DATABASE_URL is required")
	}
	loc, err := cfg.Automation.Location()
	if err != nil {
		return nil, fmt.Errorf("automation timezone: %w", err)
	}

	db, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.Lifetime())
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, DB: db}
	a.Redis = connectRedis(ctx, cfg)

	dispatcher, err := newDispatcher(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	claimer := claim.NewClaimer(a.Redis, db)
	a.Engine = automation.NewEngine(automation.Deps{
		Rules:      postgres.NewRuleRepo(db),
		Records:    postgres.NewRecordRepo(db),
		Templates:  postgres.NewTemplateRepo(db),
		Settings:   postgres.NewSettingsRepo(db),
		Ledger:     postgres.NewExecutionRepo(db, claimer),
		Renderer:   mailing.NewTemplateService(loc),
		Dispatcher: dispatcher,
	}, automation.Options{
		DispatchTimeout: cfg.Automation.DispatchTimeout(),
		HistoryLimit:    cfg.Automation.HistoryDefaultLimit,
		Location:        loc,
		FromName:        cfg.SES.FromName,
		FromEmail:       cfg.SES.FromEmail,
	})
	a.Changes = automation.NewChangeSource(a.Engine)
	return a, nil
}

// Close waits for in-flight evaluations, then releases the connections.
func (a *App) Close() {
	if a.Changes != nil {
		a.Changes.Wait()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// connectRedis returns nil unless claim_backend is "redis" and the server
// answers; claims then fall back to PostgreSQL.
func connectRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	if cfg.Automation.ClaimBackend != "redis" {
		return nil
	}
	if cfg.Redis.URL == "" {
		logger.Warn("claim_backend is redis but REDIS_URL is not set; using postgres claims")
		return nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Warn("invalid REDIS_URL; using postgres claims", "error", err)
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis connection failed; using postgres claims", "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected; claims stored in redis")
	return client
}

func newDispatcher(ctx context.Context, cfg *config.Config) (automation.Dispatcher, error) {
	if !cfg.SES.Enabled {
		logger.Info("SES disabled; messages are logged, not sent")
		return dispatch.LogDispatcher{}, nil
	}
	d, err := dispatch.NewSESDispatcher(ctx, dispatch.SESOptions{
		AccessKey:        cfg.SES.AccessKey,
		SecretKey:        cfg.SES.SecretKey,
		Region:           cfg.SES.Region,
		FromEmail:        cfg.SES.FromEmail,
		FromName:         cfg.SES.FromName,
		ConfigurationSet: cfg.SES.ConfigSet,
		Timeout:          cfg.SES.Timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("initialize SES: %w", err)
	}
	logger.Info("SES dispatcher initialized", "region", cfg.SES.Region)
	return d, nil
}
