package cache

import (
	"log/slog"
	"time"
)

// Option configures Load.
type Option func(*config)

type config struct {
	log       *slog.Logger
	codec     ValueCodec
	metrics   Metrics
	now       func() time.Time
	noCleanup bool
}

func defaultConfig() *config {
	return &config{
		log:     slog.New(slog.DiscardHandler),
		codec:   Msgpack{},
		metrics: NopMetrics(),
		now:     time.Now,
	}
}

// WithLogger sets the logger used for diagnostics. Logs are discarded by
// default.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithCodec sets the codec stored entries are written with (default Msgpack).
func WithCodec(codec ValueCodec) Option {
	return func(c *config) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithMetrics reports lookups, Wrap calls and cleanups to m.
func WithMetrics(m Metrics) Option {
	return func(c *config) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithClock replaces time.Now for expiry computation and checks.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithoutCleanup skips the cleanup pass Load normally runs.
func WithoutCleanup() Option {
	return func(c *config) { c.noCleanup = true }
}
