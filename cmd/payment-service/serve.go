package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Zhima-Mochi/minishop-payment/internal/config"
	obsprovider "github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the payment-status consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	logger, err := zaplogger.New(cfg.Log.Level,
		observability.F("service", cfg.Service.Name),
		observability.F("env", cfg.Service.Env),
	)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger.Zap())

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	counters, histograms := prometrics.Standard(prometrics.New("", "", reg))
	tel := obsprovider.New(oteltrace.New(cfg.Service.Name), logger, counters, histograms)
	systemLogger := logger.With(observability.F("component", "main"))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, tel, reg)
	if err != nil {
		return err
	}
	a.start(ctx)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: a.handler,
	}

	serveErr := make(chan error, 1)
	go func() {
		systemLogger.Info("http_server_start",
			observability.F("addr", server.Addr),
			observability.F("events_driver", cfg.Events.Driver),
			observability.F("store_driver", cfg.Store.Driver),
			observability.F("inventory_simulated", cfg.Inventory.Simulate),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		if runErr != nil {
			systemLogger.Error("http_server_error", observability.F("error", runErr.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	if err := a.close(shutdownCtx); err != nil {
		systemLogger.Error("app_close_error", observability.F("error", err.Error()))
	}
	return runErr
}
