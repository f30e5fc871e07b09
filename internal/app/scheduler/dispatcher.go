package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/charlesng35/motorlist/internal/middleware"
	"github.com/charlesng35/motorlist/pkg/logger"
	"github.com/charlesng35/motorlist/pkg/metrics"
)

const defaultJobTimeout = 2 * time.Minute

// JobOutcome records how a single dispatched job ended.
type JobOutcome struct {
	Job      JobKind
	CronID   string
	Status   int
	Duration time.Duration
	Err      error
}

// Succeeded reports whether the job returned a 2xx response without panicking.
func (o JobOutcome) Succeeded() bool {
	return o.Err == nil && o.Status >= 200 && o.Status < 300
}

// Dispatcher turns cron ticks into internal HTTP requests served by the same
// handler as external traffic.
type Dispatcher struct {
	handler   http.Handler
	token     string
	schedules Schedules
	timeout   time.Duration
	cron      *cron.Cron
	log       *zap.Logger
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.cron = c
		}
	}
}

// WithSchedules overrides the cron expressions for each job.
func WithSchedules(s Schedules) Option {
	return func(d *Dispatcher) {
		d.schedules = s.withDefaults()
	}
}

// WithJobTimeout bounds how long a single ticked job may run.
func WithJobTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDispatcher constructs a dispatcher that sends jobs to handler using token
// as the internal credential.
func NewDispatcher(handler http.Handler, token string, opts ...Option) (*Dispatcher, error) {
	if handler == nil {
		return nil, errors.New("scheduler: handler is required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("scheduler: internal token is required")
	}

	d := &Dispatcher{
		handler:   handler,
		token:     token,
		schedules: DefaultSchedules(),
		timeout:   defaultJobTimeout,
		log:       logger.WithModule("scheduler"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.cron == nil {
		d.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return d, nil
}

// Dispatch runs every job selected by cronID concurrently and waits for all of
// them. Failures are logged and reported in the outcomes, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, cronID string) []JobOutcome {
	if ctx == nil {
		ctx = context.Background()
	}

	jobs := SelectJobs(cronID, d.schedules)
	if len(jobs) == 0 {
		d.log.Warn("no job matches cron id", zap.String("cron", cronID))
		return nil
	}

	outcomes := make([]JobOutcome, len(jobs))
	var wg conc.WaitGroup
	for i, job := range jobs {
		wg.Go(func() {
			outcomes[i] = d.run(ctx, job, cronID)
		})
	}
	wg.Wait()

	return outcomes
}

// Tick is the cron entry point. It uses a fresh background context bounded by
// the job timeout, so nothing outside the dispatcher can cancel a run.
func (d *Dispatcher) Tick(cronID string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	d.Dispatch(ctx, cronID)
}

// Start registers one cron entry per distinct schedule and launches the scheduler.
func (d *Dispatcher) Start() error {
	seen := make(map[string]struct{}, 2)
	for _, spec := range []string{d.schedules.CreateBatch, d.schedules.CheckBatch} {
		spec = strings.TrimSpace(spec)
		if _, dup := seen[spec]; dup {
			continue
		}
		seen[spec] = struct{}{}

		if _, err := d.cron.AddFunc(spec, func() { d.Tick(spec) }); err != nil {
			return fmt.Errorf("scheduler: schedule %q: %w", spec, err)
		}
	}

	d.cron.Start()
	d.log.Info("scheduler started",
		zap.String("create_batch", d.schedules.CreateBatch),
		zap.String("check_batch", d.schedules.CheckBatch),
	)
	return nil
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
func (d *Dispatcher) Stop() context.Context {
	return d.cron.Stop()
}

func (d *Dispatcher) run(ctx context.Context, job JobKind, cronID string) JobOutcome {
	outcome := JobOutcome{Job: job, CronID: cronID}
	start := time.Now()

	var catcher panics.Catcher
	catcher.Try(func() {
		outcome.Status, outcome.Err = d.serve(ctx, job)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		outcome.Err = recovered.AsError()
	}
	outcome.Duration = time.Since(start)

	result := "success"
	if !outcome.Succeeded() {
		result = "failure"
		fields := []zap.Field{
			zap.String("job", job.Label()),
			zap.String("cron", cronID),
			zap.Int("status", outcome.Status),
		}
		if outcome.Err != nil {
			fields = append(fields, zap.Error(outcome.Err))
		}
		d.log.Warn("scheduled job failed", fields...)
	}
	metrics.ScheduledJobs.WithLabelValues(job.Label(), result).Inc()
	metrics.ScheduledJobDuration.WithLabelValues(job.Label()).Observe(outcome.Duration.Seconds())

	return outcome
}

func (d *Dispatcher) serve(ctx context.Context, job JobKind) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.Path(), http.NoBody)
	if err != nil {
		return 0, err
	}
	req.Header.Set(middleware.InternalTokenHeader, d.token)
	req.Header.Set("User-Agent", "motorlist-scheduler")

	rec := httptest.NewRecorder()
	d.handler.ServeHTTP(rec, req)
	if rec.Code < 200 || rec.Code >= 300 {
		return rec.Code, fmt.Errorf("%s returned %d: %s", job.Path(), rec.Code, strings.TrimSpace(rec.Body.String()))
	}
	return rec.Code, nil
}
