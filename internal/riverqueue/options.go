package riverqueue

import (
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

const (
	defaultMaxWorkers  = 10
	defaultMaxAttempts = 5
)

// config holds client configuration.
type config struct {
	logger      *slog.Logger
	queue       string
	maxWorkers  int
	maxAttempts int
	uniqueFor   time.Duration
}

func newConfig() *config {
	return &config{
		queue:       river.QueueDefault,
		maxWorkers:  defaultMaxWorkers,
		maxAttempts: defaultMaxAttempts,
	}
}

// Option configures the client.
type Option func(*config)

// WithQueue sets the queue delivery jobs are inserted into and worked from.
func WithQueue(name string) Option {
	return func(c *config) {
		if name != "" {
			c.queue = name
		}
	}
}

// WithMaxWorkers sets how many jobs are worked concurrently.
func WithMaxWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxWorkers = n
		}
	}
}

// WithMaxAttempts sets how many times River runs a failing job before
// discarding it.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithUniqueFor skips inserting a job whose signature matches one inserted
// within d. Zero disables the check.
func WithUniqueFor(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.uniqueFor = d
		}
	}
}

// WithLogger sets the logger used by the client and worker.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
