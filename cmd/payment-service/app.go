package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	appInventory "github.com/Zhima-Mochi/minishop-payment/internal/application/inventory"
	appPayment "github.com/Zhima-Mochi/minishop-payment/internal/application/payment"
	domoutbox "github.com/Zhima-Mochi/minishop-payment/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-payment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-payment/internal/config"
	"github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/auth"
	"github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/inventory"
	"github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/natsbus"
	"github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/paymentmethod"
	"github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/sqlstore"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability"
	httppresentation "github.com/Zhima-Mochi/minishop-payment/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-payment/internal/presentation/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// app is the wired service: HTTP handler plus the background pieces it owns.
type app struct {
	handler  http.Handler
	starters []func(context.Context)
	closers  []func(context.Context) error
}

type eventChannel interface {
	domoutbox.Publisher
	domoutbox.Subscriber
}

func newApp(ctx context.Context, cfg *config.Config, tel observability.Observability, gatherer prometheus.Gatherer) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	repo, err := a.paymentRepository(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	events, err := a.eventChannel(cfg, tel)
	if err != nil {
		return nil, err
	}

	invCfg := inventory.Config{
		Scheme:  cfg.Inventory.Scheme,
		Host:    cfg.Inventory.Host,
		Path:    cfg.Inventory.Path,
		Timeout: cfg.Inventory.Timeout,
	}
	if cfg.Inventory.Simulate && invCfg.Host == "" {
		invCfg.Host = loopbackHost(cfg.HTTP.Addr)
	}

	process := appPayment.NewProcessPaymentUseCase(
		repo,
		inventory.NewClient(invCfg, tel),
		paymentmethod.Defaults(tel),
		events,
		id.NewUUIDGenerator(),
		tel,
	)
	reconcile := appPayment.NewReconcilePaymentUseCase(repo, tel)
	workerpresentation.NewPaymentStatusWorker(events, reconcile, tel).Start()

	svc := httppresentation.Services{
		ProcessPayment: process,
		GetPayment:     appPayment.NewGetPaymentUseCase(repo, tel),
	}
	if gatherer != nil {
		svc.Metrics = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	if cfg.Inventory.Simulate {
		stock := memory.NewInventoryRepository(cfg.Inventory.SeedQuantity)
		svc.ValidateStock = appInventory.NewValidateStockUseCase(stock, tel)
		deduct := appInventory.NewDeductStockUseCase(stock, events, tel)
		workerpresentation.NewInventoryWorker(events, deduct, tel).Start()
	}

	if nb, ok := events.(*natsbus.Bus); ok {
		if err := nb.Err(); err != nil {
			return nil, err
		}
	}

	a.handler = httppresentation.NewHandler(svc, auth.NewVerifier(cfg.Auth.Secret), tel).Router()
	return a, nil
}

func (a *app) paymentRepository(ctx context.Context, cfg config.StoreConfig) (dompay.Repository, error) {
	if cfg.Driver == "memory" {
		return memory.NewPaymentRepository(), nil
	}

	db, err := sqlstore.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })

	repo, err := sqlstore.NewPaymentRepository(db, cfg.Driver)
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (a *app) eventChannel(cfg *config.Config, tel observability.Observability) (eventChannel, error) {
	switch cfg.Events.Driver {
	case "nats":
		nc, err := natsbus.Connect(cfg.Events.NATSURL, cfg.Service.Name, tel)
		if err != nil {
			return nil, err
		}
		bus := natsbus.New(nc, cfg.Events.ConsumerGroup, map[string]domoutbox.Decoder{
			dompay.TopicPaymentCompleted: dompay.DecodePaymentCompletedEvent,
			dompay.TopicPaymentStatus:    dompay.DecodePaymentStatusEvent,
		}, tel)
		a.closers = append(a.closers, func(context.Context) error {
			err := bus.Close()
			nc.Close()
			return err
		})
		return bus, nil
	case "memory":
		bus := outbox.NewBus(tel)
		a.starters = append(a.starters, bus.Start)
		a.closers = append(a.closers, func(ctx context.Context) error {
			bus.Stop(ctx)
			return nil
		})
		return bus, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Events.Driver)
	}
}

func (a *app) start(ctx context.Context) {
	for _, s := range a.starters {
		s(ctx)
	}
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// loopbackHost turns a listen address like ":8080" into a dialable "127.0.0.1:8080".
func loopbackHost(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || strings.Trim(host, "[]") == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
