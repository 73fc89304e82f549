package redisqueue

import (
	"log/slog"
	"time"
)

const (
	defaultQueue          = "default"
	defaultWorkers        = 4
	defaultMaxAttempts    = 5
	defaultDequeueTimeout = 5 * time.Second
	defaultPollInterval   = time.Second
)

type config struct {
	logger         *slog.Logger
	queue          string
	workers        int
	maxAttempts    int
	uniqueFor      time.Duration
	dequeueTimeout time.Duration
	pollInterval   time.Duration
}

func newConfig() *config {
	return &config{
		queue:          defaultQueue,
		workers:        defaultWorkers,
		maxAttempts:    defaultMaxAttempts,
		dequeueTimeout: defaultDequeueTimeout,
		pollInterval:   defaultPollInterval,
	}
}

// Option configures the client.
type Option func(*config)

// WithQueue sets the list delivery jobs are pushed to and popped from.
func WithQueue(name string) Option {
	return func(c *config) {
		if name != "" {
			c.queue = name
		}
	}
}

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithMaxAttempts sets how many times a failing job is run before it is
// left in the failed state.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithUniqueFor skips enqueueing a job whose signature was enqueued within d.
func WithUniqueFor(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.uniqueFor = d
		}
	}
}

// WithDequeueTimeout sets the timeout of the blocking pop.
func WithDequeueTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.dequeueTimeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
