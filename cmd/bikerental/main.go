// Command bikerental serves the booking API and sends booking emails.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/bikerental/api"
	"github.com/pure-golang/bikerental/config"
	"github.com/pure-golang/bikerental/dispatch"
	"github.com/pure-golang/bikerental/dispatch/inproc"
	"github.com/pure-golang/bikerental/dispatch/rabbitmq"
	"github.com/pure-golang/bikerental/httpserver/std"
	"github.com/pure-golang/bikerental/jobs"
	"github.com/pure-golang/bikerental/logger"
	"github.com/pure-golang/bikerental/mailer"
	"github.com/pure-golang/bikerental/metrics"
	"github.com/pure-golang/bikerental/notifier"
	"github.com/pure-golang/bikerental/render"
	"github.com/pure-golang/bikerental/retry"
	"github.com/pure-golang/bikerental/storage/postgres"
	"github.com/pure-golang/bikerental/tracing"
	"github.com/pure-golang/bikerental/tracing/jaeger"
)

// shutdownTimeout bounds the drain of background jobs after the server stops.
const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("failed to load config", "error", err.Error())
		os.Exit(1)
	}
	logger.InitDefault(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.WithErr(err).Error("Service stopped with error")
		os.Exit(1)
	}
}

// closers run in reverse registration order on shutdown.
type closers []func(ctx context.Context)

func (c *closers) add(name string, fn func(ctx context.Context) error) {
	*c = append(*c, func(ctx context.Context) {
		logger.FromContextWithErrIf(ctx, fn(ctx)).Error("Failed to close " + name)
	})
}

func (c *closers) addCloser(name string, cl io.Closer) {
	c.add(name, func(context.Context) error { return cl.Close() })
}

func (c closers) closeAll(ctx context.Context) {
	for i := len(c) - 1; i >= 0; i-- {
		c[i](ctx)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	var cleanup closers
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		cleanup.closeAll(ctx)
		slog.Default().Info("Shutdown complete")
	}()

	if cfg.Tracing.Enabled() {
		tp, err := tracing.Init(jaeger.NewProviderBuilder(cfg.Tracing))
		if err != nil {
			return err
		}
		cleanup.addCloser("tracing", tp)
	}

	m, err := metrics.InitDefault(cfg.Metrics)
	if err != nil {
		return err
	}
	cleanup.addCloser("metrics", m)

	db, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	cleanup.addCloser("database", db)
	rentals := postgres.NewRentals(db)

	sender, err := newSender(ctx, cfg)
	if err != nil {
		return err
	}
	ml := mailer.Disabled()
	if sender != nil {
		cleanup.addCloser("mail sender", sender)
		ml = mailer.New(sender,
			mailer.WithPolicy(retry.NewExponential(cfg.Mail.RetryBaseDelay, cfg.Mail.MaxAttempts)),
			mailer.WithFrom(senderAddress(cfg)),
			mailer.WithAuditLog(postgres.NewEmailLogs(db)),
		)
	} else {
		slog.Default().Warn("Email not configured, notifications are disabled", "provider", cfg.Mail.Provider)
	}

	ntf := notifier.New(ml, render.New(cfg.Branding),
		notifier.WithDefaultOwner(cfg.Mail.OwnerEmail),
		notifier.WithAdmin(cfg.Mail.AdminEmail),
	)

	dispatcher, err := newDispatcher(cfg, dispatch.NotifyHandler(ntf), &cleanup)
	if err != nil {
		return err
	}

	store, err := newKVStore(ctx, cfg)
	if err != nil {
		return err
	}
	cleanup.addCloser("kv store", store)

	if cfg.Jobs.RentalSweepSchedule != "" {
		scheduler := jobs.New()
		if err := scheduler.Add(jobs.RentalSweepName, cfg.Jobs.RentalSweepSchedule, jobs.RentalSweep(rentals, time.Now)); err != nil {
			return err
		}
		scheduler.Start()
		cleanup.add("jobs", scheduler.Close)
	}

	if cfg.API.AdminJWTSecret == "" {
		slog.Default().Warn("ADMIN_JWT_SECRET is empty, admin routes are not protected")
	}

	handler := api.New(cfg.API, api.Options{
		Rentals:     rentals,
		Notifier:    ntf,
		Dispatcher:  dispatcher,
		Idempotency: store,
		DB:          db,
		Port:        cfg.Server.Port,
	}).Routes()

	server := std.NewDefault(cfg.Server, handler)
	// Registered last so it closes first: no new jobs reach the dispatcher.
	cleanup.addCloser("http server", server)

	select {
	case err := <-server.Run():
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
		slog.Default().Info("Shutting down")
		return nil
	}
}

func newDispatcher(cfg config.Config, handler dispatch.Handler, cleanup *closers) (dispatch.Dispatcher, error) {
	if cfg.Dispatch.Provider != config.DispatchRabbitMQ {
		d := inproc.New(handler)
		cleanup.add("dispatcher", d.Close)
		return d, nil
	}

	rc := cfg.Dispatch.RabbitMQ
	dialer := rabbitmq.NewDialer(rc.URL, nil)
	if err := dialer.Connect(); err != nil {
		return nil, err
	}
	cleanup.addCloser("rabbitmq", dialer)

	if err := dialer.DeclareQueue(rc.Queue); err != nil {
		return nil, err
	}

	subscriber := rabbitmq.NewSubscriber(dialer, rc.Queue, rc.Prefetch)
	go subscriber.Listen(handler)
	cleanup.addCloser("rabbitmq subscriber", subscriber)

	d := rabbitmq.NewDispatcher(rabbitmq.NewPublisher(dialer, rabbitmq.PublisherConfig{
		RoutingKey: rc.Queue,
	}))
	cleanup.add("dispatcher", d.Close)
	return d, nil
}
