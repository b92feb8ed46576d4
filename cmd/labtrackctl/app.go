package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/labtrack/labtrack-client/internal/dashboard"
	"github.com/labtrack/labtrack-client/internal/events"
	"github.com/labtrack/labtrack-client/internal/expiry"
	"github.com/labtrack/labtrack-client/internal/inventory"
	"github.com/labtrack/labtrack-client/internal/material"
	"github.com/labtrack/labtrack-client/internal/outbound"
	"github.com/labtrack/labtrack-client/internal/session"
	"github.com/labtrack/labtrack-client/internal/transport"
	"github.com/labtrack/labtrack-client/pkg/config"
	"github.com/labtrack/labtrack-client/pkg/errors"
	"github.com/labtrack/labtrack-client/pkg/logger"
	"github.com/labtrack/labtrack-client/pkg/messaging"
)

// app holds the wired stores for one CLI invocation.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	stdout io.Writer
	stderr io.Writer

	client    *transport.Client
	session   *session.Manager
	events    *events.Publisher
	dashboard *dashboard.Aggregator
	outbound  *outbound.Store
	inventory *inventory.Store
	materials *material.Store

	notified  atomic.Int32
	rmq       *messaging.RabbitMQ
	closeOnce sync.Once
}

func newApp(cfg *config.Config, storage session.Storage, log *logger.Logger, stdout, stderr io.Writer) *app {
	a := &app{cfg: cfg, log: log, stdout: stdout, stderr: stderr}

	a.client = transport.New(transport.Options{
		BaseURL:       cfg.Client.BaseURL,
		Timeout:       cfg.Client.Timeout,
		UploadTimeout: cfg.Client.UploadTimeout,
		Notifier:      transport.NotifierFunc(a.notify),
	}, log)

	a.session = session.NewManager(a.client, storage, log, session.WithOnExpired(func() {
		fmt.Fprintln(a.stderr, "session expired, run `labtrackctl login` again")
	}))
	a.client.BindSession(a.session)
	a.session.Hydrate()

	a.wireStores()
	return a
}

// wireStores (re)creates the stores so they pick up the current publisher.
func (a *app) wireStores() {
	a.dashboard = dashboard.NewAggregator(a.client, a.log)
	a.outbound = outbound.NewStore(a.client, a.events, a.log)
	a.inventory = inventory.NewStore(a.client, a.outbound, expiry.NewClassifier(a.cfg.Expiry.DefaultAlertDays), a.events, a.log,
		inventory.WithAggregate(a.dashboard))
	a.materials = material.NewStore(a.client, a.log)
}

// connectEvents publishes change notifications when a broker is
// configured. A broker outage only costs the notifications.
func (a *app) connectEvents() {
	if !a.cfg.RabbitMQ.Enabled() {
		return
	}

	rmq, err := messaging.New(&a.cfg.RabbitMQ, a.log)
	if err != nil {
		a.log.Warn().Err(err).Msg("RabbitMQ unavailable, change events disabled")
		return
	}

	pub, err := events.NewRabbitPublisher(rmq, a.cfg.RabbitMQ.Exchange, "labtrackctl", a.log)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to create event publisher")
		_ = rmq.Close()
		return
	}

	a.rmq = rmq
	a.events = pub
	a.wireStores()
}

func (a *app) notify(_ context.Context, err *errors.AppError) {
	a.notified.Add(1)
	fmt.Fprintf(a.stderr, "Error: %s\n", err.Message)
}

// surfaced reports whether the notifier printed anything.
func (a *app) surfaced() bool {
	return a.notified.Load() > 0
}

// mark and failedSince bracket a store read. Reads swallow their errors, so
// a notification in between is the only sign the read failed.
func (a *app) mark() int32 {
	return a.notified.Load()
}

func (a *app) failedSince(mark int32) error {
	if a.notified.Load() > mark {
		return errFetchFailed
	}
	return nil
}

func (a *app) close() {
	a.closeOnce.Do(func() {
		if a.rmq != nil {
			if err := a.rmq.Close(); err != nil {
				a.log.Debug().Err(err).Msg("failed to close RabbitMQ")
			}
		}
	})
}
