package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labtrack/labtrack-client/internal/agent"
	"github.com/labtrack/labtrack-client/internal/dashboard"
	"github.com/labtrack/labtrack-client/internal/expiry"
	"github.com/labtrack/labtrack-client/internal/inventory"
	"github.com/labtrack/labtrack-client/internal/outbound"
	"github.com/labtrack/labtrack-client/internal/session"
	"github.com/labtrack/labtrack-client/internal/transport"
	"github.com/labtrack/labtrack-client/pkg/config"
	"github.com/labtrack/labtrack-client/pkg/logger"
	"github.com/labtrack/labtrack-client/pkg/messaging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("labtrack-agent")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("labtrack-agent", cfg.Client.Environment).SetLevel(cfg.Client.LogLevel)
	log.Info().Str("base_url", cfg.Client.BaseURL).Msg("starting labtrack agent")

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// API client and session
	client := transport.New(transport.Options{
		BaseURL:       cfg.Client.BaseURL,
		Timeout:       cfg.Client.Timeout,
		UploadTimeout: cfg.Client.UploadTimeout,
		Metrics:       transport.NewMetrics(registry),
	}, log)

	sess := session.NewManager(client, session.NewFileStorage(cfg.Session.Path), log,
		session.WithOnExpired(func() {
			log.Warn().Msg("session expired, run `labtrackctl login` to re-authenticate the agent")
		}))
	client.BindSession(sess)
	sess.Hydrate()
	if !sess.IsAuthenticated() {
		log.Warn().Str("session", cfg.Session.Path).Msg("no stored session, requests will be unauthenticated")
	}

	// Stores
	outboundStore := outbound.NewStore(client, nil, log)
	aggregator := dashboard.NewAggregator(client, log)
	inventoryStore := inventory.NewStore(client, outboundStore, expiry.NewClassifier(cfg.Expiry.DefaultAlertDays), nil, log,
		inventory.WithAggregate(aggregator))

	refresher := agent.NewRefresher(inventoryStore, outboundStore, aggregator, cfg.Agent.PageSize, cfg.Agent.RefreshInterval, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	routerOpts := agent.RouterOptions{
		AllowedOrigins: cfg.Agent.AllowedOrigins,
		Gatherer:       registry,
	}

	// Event-triggered refresh when a broker is configured
	if cfg.RabbitMQ.Enabled() {
		rmq, err := messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		subscriber, err := agent.NewSubscriber(rmq, &cfg.RabbitMQ, refresher, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event subscriber")
		}
		if err := subscriber.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start event subscriber")
		}
		routerOpts.Broker = rmq.Health
	}

	refresher.Start(ctx)
	defer refresher.Stop()

	handler := agent.NewHandler(inventoryStore, outboundStore, aggregator, refresher, log)
	srv := &http.Server{
		Addr:         cfg.Agent.Addr,
		Handler:      agent.NewRouter(handler, routerOpts, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Client.Timeout * 4,
	}

	// Start server
	go func() {
		log.Info().Str("addr", cfg.Agent.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down agent")

	// Cancel context to stop the refresher and consumer
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("agent stopped")
}
