package remoteconfig

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorhill/cronexpr"
	"go.uber.org/zap"

	"github.com/cozy-crashes/crashlens/internal/telemetry"
)

// DefaultRefreshInterval matches the hourly refresh of the pastebin document.
const DefaultRefreshInterval = time.Hour

// RefreshError reports a failed fetch or parse. The previous snapshot stays current.
type RefreshError struct {
	Source string
	Err    error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh config from %s: %v", e.Source, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// Cache publishes the latest good Snapshot. Readers call Current and always
// see a complete snapshot.
type Cache struct {
	current  atomic.Pointer[Snapshot]
	source   Source
	logger   *zap.Logger
	metrics  *telemetry.Metrics
	interval time.Duration
	cronSpec string
	schedule *cronexpr.Expression
	now      func() time.Time
}

type Option func(*Cache)

func WithInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithCron schedules refreshes with a cron expression instead of a fixed interval.
func WithCron(spec string) Option {
	return func(c *Cache) { c.cronSpec = strings.TrimSpace(spec) }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// NewCache returns a cache holding Default() until Bootstrap or Refresh succeeds.
func NewCache(src Source, logger *zap.Logger, opts ...Option) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		source:   src,
		logger:   logger.Named("remoteconfig"),
		interval: DefaultRefreshInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cronSpec != "" {
		expr, err := cronexpr.Parse(c.cronSpec)
		if err != nil {
			return nil, fmt.Errorf("refresh cron %q: %w", c.cronSpec, err)
		}
		c.schedule = expr
	}
	c.current.Store(Default())
	return c, nil
}

// Current returns the latest published snapshot.
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// Bootstrap performs the start-up fetch. On failure Default() stays in place
// and the error is returned so the caller can decide whether it is fatal.
func (c *Cache) Bootstrap(ctx context.Context) error {
	return c.Refresh(ctx)
}

// Refresh fetches and parses the document, then swaps it in.
func (c *Cache) Refresh(ctx context.Context) error {
	if c.source == nil {
		return nil
	}
	data, err := c.source.Load(ctx)
	if err == nil {
		var snap *Snapshot
		snap, err = Parse(data)
		if err == nil {
			c.current.Store(snap)
			c.metrics.ConfigRefresh(telemetry.OutcomeOK)
			c.logger.Info("config refreshed",
				zap.String("source", c.source.String()),
				zap.Int("pastebins", len(snap.Pastebins)),
				zap.Int("global_predicates", len(snap.Predicates)))
			return nil
		}
	}
	rerr := &RefreshError{Source: c.source.String(), Err: err}
	c.metrics.ConfigRefresh(telemetry.OutcomeError)
	c.logger.Warn("config refresh failed, keeping previous snapshot", zap.Error(rerr))
	return rerr
}

// Run refreshes on schedule until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	for {
		timer := time.NewTimer(c.nextDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("config refresh loop stopping", zap.Error(ctx.Err()))
			return
		case <-timer.C:
			_ = c.Refresh(ctx)
		}
	}
}

func (c *Cache) nextDelay() time.Duration {
	if c.schedule != nil {
		now := c.now()
		next := c.schedule.Next(now)
		if !next.IsZero() {
			return next.Sub(now)
		}
	}
	return c.interval
}
