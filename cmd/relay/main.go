package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "github.com/spf13/pflag"

	"github.com/wolfman30/chat-relay/internal/api/router"
	"github.com/wolfman30/chat-relay/internal/app/bootstrap"
	appconfig "github.com/wolfman30/chat-relay/internal/config"
	"github.com/wolfman30/chat-relay/internal/messaging"
	"github.com/wolfman30/chat-relay/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

type options struct {
	envFile  string
	port     string
	logLevel string
}

func parseFlags(args []string) (options, error) {
	fs := cli.NewFlagSet("relay", cli.ContinueOnError)
	var opts options
	fs.StringVarP(&opts.envFile, "env", "e", ".env", "Env file path")
	fs.StringVarP(&opts.port, "port", "p", "", "HTTP port (overrides PORT)")
	fs.StringVarP(&opts.logLevel, "log-level", "l", "", "Log level (overrides LOG_LEVEL)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// loadConfig reads the env file (if any) and environment, then applies flag overrides.
func loadConfig(opts options) (*appconfig.Config, error) {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", opts.envFile, err)
		}
	}
	cfg := appconfig.Load()
	if opts.port != "" {
		cfg.Port = opts.port
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return cfg, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	logger.Info("starting chat relay",
		"env", cfg.Env,
		"port", cfg.Port,
		"transport", cfg.Transport,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rel, err := bootstrap.BuildRelay(ctx, cfg, prometheus.DefaultRegisterer, logger)
	if err != nil {
		logger.Error("failed to build relay", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rel.Close(); err != nil {
			logger.Warn("failed to close redis client", "error", err)
		}
	}()

	messagingHandler := messaging.NewHandler(rel.Pipeline, logger)
	r := router.New(&router.Config{
		Logger:           logger,
		MessagingHandler: messagingHandler,
		MetricsHandler:   promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	bridgeDone := make(chan struct{})
	if rel.Bridge != nil {
		go func() {
			defer close(bridgeDone)
			if err := rel.Bridge.Run(ctx, rel.Pipeline); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("bridge stopped", "error", err)
			}
		}()
	} else {
		close(bridgeDone)
	}

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := messagingHandler.Drain(shutdownCtx); err != nil {
		logger.Warn("abandoning in-flight webhook exchanges", "error", err)
	}
	<-bridgeDone
	if rel.Bridge != nil {
		if err := waitWithContext(shutdownCtx, rel.Bridge.Wait); err != nil {
			logger.Warn("abandoning in-flight bridge exchanges", "error", err)
		}
	}

	logger.Info("server stopped")
}

func waitWithContext(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
