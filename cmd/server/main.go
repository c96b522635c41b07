package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/pipeline-automation/internal/api"
	"github.com/ignite/pipeline-automation/internal/app"
	"github.com/ignite/pipeline-automation/internal/automation"
	"github.com/ignite/pipeline-automation/internal/config"
	"github.com/ignite/pipeline-automation/internal/pkg/logger"
	"github.com/ignite/pipeline-automation/internal/repository/postgres"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func fatal(msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	configPath := "config/config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		fatal("failed to load config", err)
	}
	app.ConfigureLogging(cfg, "pipeline-automation")

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		fatal("pre-flight check failed", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("connecting to database", "host", extractHost(cfg.Database.URL))
	a, err := app.New(ctx, cfg)
	if err != nil {
		fatal("failed to initialize automation engine", err)
	}

	// Background workers: the change listener and the date sweep.
	var scheduler *automation.Scheduler
	if cfg.Automation.Enabled {
		listener := postgres.NewTransitionListener(cfg.Database.URL, a.Changes)
		go func() {
			if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("transition listener stopped", "error", err)
			}
		}()

		scheduler = automation.NewScheduler(a.Engine, cfg.Automation.SweepInterval())
		if err := scheduler.Start(); err != nil {
			logger.Warn("failed to start date sweep scheduler", "error", err)
		}
		logger.Info("automation workers started",
			"channel", postgres.TransitionChannel,
			"sweep_interval", cfg.Automation.SweepInterval().String(),
			"timezone", a.Engine.Location().String())
	} else {
		logger.Info("automation workers disabled; HTTP triggers only")
	}

	var schedStatus api.SchedulerStatus
	if scheduler != nil {
		schedStatus = scheduler
	}
	router := api.SetupRoutes(
		api.NewHandlers(a.Engine, a.Changes),
		api.NewHealthChecker(a.DB, a.Redis, schedStatus),
		cfg.Server.AllowedOrigins,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal("server error", err)
		}
	}()

	<-done
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	cancel()
	// In-flight evaluations finish their ledger writes before the pool closes.
	a.Close()

	logger.Info("server stopped")
}
