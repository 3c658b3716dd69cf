package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/averin/conduit/internal/config"
	"github.com/averin/conduit/internal/logger"
	"github.com/averin/conduit/internal/tracing"
	"github.com/averin/conduit/pkg/engine"
	"github.com/averin/conduit/pkg/gateway"
	"github.com/averin/conduit/pkg/janitor"
	"github.com/averin/conduit/pkg/orchestrator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
		MaxSize: cfg.Logging.MaxSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()
	zl := log.Zerolog()

	if cfg.Tracing.Enabled {
		err := tracing.Init(tracing.Config{
			ServiceName: "conduit",
			Version:     Version,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			zl.Warn().Err(err).Msg("Tracing disabled, provider init failed")
		}
	}

	eng, err := engine.New(engine.Config{
		Mode:         cfg.Engine.Mode,
		APIKey:       cfg.Engine.APIKey,
		MaxTokens:    cfg.Engine.MaxTokens,
		MockInterval: time.Duration(cfg.Engine.MockIntervalMS) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	orch := orchestrator.New(orchestrator.Config{
		Capacity:  cfg.Sessions.Capacity,
		BusBuffer: cfg.Events.Buffer,
	}, eng, zl)

	jan, err := janitor.New(janitor.Config{
		Schedule:  cfg.Janitor.Schedule,
		OrphanAge: time.Duration(cfg.Janitor.OrphanAgeMin) * time.Minute,
	}, orch, zl)
	if err != nil {
		return fmt.Errorf("failed to create janitor: %w", err)
	}

	srv, err := gateway.NewServer(gateway.Config{
		Port:         cfg.Server.Port,
		SharedSecret: cfg.Server.SharedSecret,
		Orchestrator: orch,
		Logger:       zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	// Live log-level changes; everything else needs a restart.
	watcher, err := config.NewWatcher(loader, func(fresh *config.Config) {
		log.SetLevel(fresh.Logging.Level)
	}, zl)
	if err != nil {
		zl.Warn().Err(err).Msg("Config watching disabled")
	} else {
		defer watcher.Close()
	}

	jan.Start()
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}
	zl.Info().
		Str("engine", eng.Name()).
		Int("capacity", cfg.Sessions.Capacity).
		Msg("Conduit daemon started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	zl.Info().Str("signal", sig.String()).Msg("Shutting down")

	if err := srv.Stop(); err != nil {
		zl.Error().Err(err).Msg("Gateway shutdown failed")
	}
	jan.Stop()
	orch.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		zl.Warn().Err(err).Msg("Tracer shutdown failed")
	}

	zl.Info().Msg("Conduit daemon stopped")
	return nil
}
