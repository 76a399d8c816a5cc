package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/data-augmenter/internal/janitor"
	"github.com/jonathan/data-augmenter/internal/server"
)

var (
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that accepts augmentation pipelines, runs them on a worker pool and reports their progress.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides AUGMENT_PORT and the config file)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.shutdown(30 * time.Second)

	if _, err := a.service.Redeliver(ctx); err != nil {
		logger.Warn("failed to redeliver unfinished pipelines", zap.Error(err))
	}

	j, err := janitor.New(a.service, cfg.Retention.Std(), cfg.JanitorSchedule, logger)
	if err != nil {
		return fmt.Errorf("failed to create janitor: %w", err)
	}
	j.Start()
	defer j.Stop()

	srv := server.New(server.Config{
		Port:           cfg.Port,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, a.service, a.store, logger,
		server.WithMetrics(a.metrics),
		server.WithHealthCheck(a.healthCheck),
	)

	if err := srv.Start(ctx); err != nil {
		logger.Error("server exited", zap.Error(err))
		return err
	}
	return nil
}
