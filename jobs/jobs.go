// Package jobs runs periodic maintenance tasks on a cron schedule.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pure-golang/bikerental/logger"
)

var tracer = otel.Tracer("github.com/pure-golang/bikerental/jobs")

// Func is a single run of a job. ctx is cancelled on Close.
type Func func(ctx context.Context) error

// Scheduler runs jobs in UTC. A run is skipped while the previous one of
// the same job is still going, and a panic is logged instead of crashing.
type Scheduler struct {
	cron   *cron.Cron
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mx      sync.Mutex
	started bool
}

func New() *Scheduler {
	log := slog.Default().With("component", "jobs")
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers job under spec, a standard five-field cron line or a
// descriptor such as "@hourly" or "@every 10m".
func (s *Scheduler) Add(name, spec string, job Func) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.run(name, job)
	})
	if err != nil {
		return errors.Wrapf(err, "invalid schedule %q for job %s", spec, name)
	}

	s.log.Info("Job scheduled", "job", name, "schedule", spec)
	return nil
}

func (s *Scheduler) run(name string, job Func) {
	ctx, span := tracer.Start(s.ctx, "Job."+name)
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name))

	ctx = logger.NewContext(ctx, s.log.With("job", name))
	started := time.Now()

	err := job(ctx)
	runs.Add(ctx, 1)
	if err != nil {
		failures.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.FromContextWithErr(ctx, err).Error("Job failed")
		return
	}

	span.SetStatus(codes.Ok, "")
	logger.FromContext(ctx).Debug("Job finished", "duration", time.Since(started))
}

func (s *Scheduler) Start() {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
}

// Close stops scheduling, cancels running jobs and waits for them
// until ctx is done.
func (s *Scheduler) Close(ctx context.Context) error {
	stopped := s.cron.Stop()
	s.cancel()

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "jobs still running")
	}
}

// cronLogger routes the cron library's logs to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.With("error", err.Error()).Error(msg, keysAndValues...)
}
