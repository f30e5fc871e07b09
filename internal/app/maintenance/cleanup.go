package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/motorlist/pkg/logger"
)

const defaultCleanupSpec = "@daily"

// TokenPurger removes verification tokens whose expiry has passed.
type TokenPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CachePurger removes cache rows whose expiry has passed.
type CachePurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Cleaner coordinates background garbage collection of expired verification
// tokens and database cache rows.
type Cleaner struct {
	tokens   TokenPurger
	cache    CachePurger
	cron     *cron.Cron
	now      func() time.Time
	log      *zap.Logger
	schedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for expiry comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithSchedule overrides the cron specification for cleanup.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// WithCache adds a cache backend whose expired rows are purged alongside tokens.
// Backends that expire keys on their own (redis) are simply not passed in.
func WithCache(cache CachePurger) Option {
	return func(cleaner *Cleaner) {
		cleaner.cache = cache
	}
}

// NewCleaner constructs a Cleaner. A nil token purger skips token cleanup.
func NewCleaner(tokens TokenPurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		tokens:   tokens,
		now:      func() time.Time { return time.Now().UTC() },
		schedule: defaultCleanupSpec,
		log:      logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

func (c *Cleaner) enabled() bool {
	return c.tokens != nil || c.cache != nil
}

// Start registers the cleanup job with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if !c.enabled() {
		return nil
	}

	if _, err := c.cron.AddFunc(c.schedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("maintenance: schedule %q: %w", c.schedule, err)
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured cleanup routine. One failing routine does
// not prevent the others from running.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.tokens != nil {
		removed, err := c.tokens.DeleteExpired(ctx, c.now())
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cleanup tokens: %w", err))
		} else if removed > 0 {
			c.log.Info("expired tokens removed", zap.Int64("count", removed))
		}
	}

	if c.cache != nil {
		removed, err := c.cache.DeleteExpired(ctx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cleanup cache: %w", err))
		} else if removed > 0 {
			c.log.Info("expired cache entries removed", zap.Int64("count", removed))
		}
	}

	return errs
}
