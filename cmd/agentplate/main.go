package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/agentplate/agentplate/internal/agents"
	"github.com/agentplate/agentplate/internal/api"
	"github.com/agentplate/agentplate/internal/blob"
	"github.com/agentplate/agentplate/internal/engine"
	"github.com/agentplate/agentplate/internal/expressions"
	"github.com/agentplate/agentplate/internal/functions"
	"github.com/agentplate/agentplate/internal/logging"
	"github.com/agentplate/agentplate/internal/schedule"
	"github.com/agentplate/agentplate/internal/secrets"
	"github.com/agentplate/agentplate/internal/store"
	"github.com/agentplate/agentplate/internal/tools"
	"github.com/agentplate/agentplate/internal/validation"
)

func main() {
	if err := run(); err != nil {
		slog.Error("agentplate exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}
	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	files, err := blob.NewLocalStore(cfg.BlobRoot)
	if err != nil {
		return err
	}

	var invoker functions.Invoker
	if cfg.FunctionsURL != "" {
		invoker = functions.NewHTTPInvoker(cfg.FunctionsURL, cfg.FunctionsToken)
	} else {
		invoker = functions.NewRegistry()
		logger.Warn("no functions url configured, custom tools and agents will fail")
	}

	var vault secrets.Vault
	dispatcherOpts := []tools.Option{}
	if cfg.VaultPassphrase != "" {
		v, err := secrets.NewAESVault(st, secrets.Config{
			Passphrase: cfg.VaultPassphrase,
			Salt:       []byte(cfg.VaultSalt),
		})
		if err != nil {
			return err
		}
		vault = v
		dispatcherOpts = append(dispatcherOpts, tools.WithSecretResolver(secrets.NewResolver(v)))
	} else {
		logger.Warn("no vault passphrase configured, secret storage is disabled")
	}

	dispatcher := tools.NewDispatcher(st, st.DB(), files, invoker, dispatcherOpts...)

	cel, err := expressions.NewCELEngine()
	if err != nil {
		return err
	}

	eng := engine.New(st, dispatcher,
		engine.WithLogger(logger),
		engine.WithExpressions(cel),
		engine.WithConfig(engine.Config{EvaluateConditions: cfg.EvaluateConditions}),
	)

	toolValidator, err := validation.NewToolValidator()
	if err != nil {
		return err
	}

	scheduler := schedule.NewRunner(st, eng, logger, cfg.scheduleInterval())
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	deps := api.Deps{
		Store:     st,
		Engine:    eng,
		Agents:    agents.NewRunner(st, invoker, logger),
		Vault:     vault,
		Cron:      scheduler,
		Tools:     toolValidator,
		Workflows: validation.NewWorkflowValidator(st, cel),
		Logger:    logger,
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(deps).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("agentplate listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(handler))
}
