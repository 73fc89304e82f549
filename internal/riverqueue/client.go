// Package riverqueue runs delivery jobs on River, a Postgres-backed queue.
package riverqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/shineum/ses-mailer/internal/delivery"
	"github.com/shineum/ses-mailer/internal/transport"
)

const shutdownTimeout = 30 * time.Second

// ErrHealthcheckFailed is returned by the health check function.
var ErrHealthcheckFailed = errors.New("riverqueue: healthcheck failed")

// Client enqueues delivery jobs and, once started, works them.
type Client struct {
	pool   *pgxpool.Pool
	river  *river.Client[pgx.Tx]
	cfg    *config
	logger *slog.Logger

	mu      sync.Mutex
	started bool
}

// New creates a Client. Jobs can be enqueued before Start is called.
func New(pool *pgxpool.Pool, client transport.Client, opts ...Option) (*Client, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}
	if client == nil {
		return nil, ErrTransportRequired
	}

	cfg := newConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &Worker{
		transport: client,
		store:     NewStore(pool),
		logger:    cfg.logger,
	})

	rc, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			cfg.queue: {MaxWorkers: cfg.maxWorkers},
		},
		Workers: workers,
		Logger:  cfg.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("riverqueue: create client: %w", err)
	}

	return &Client{
		pool:   pool,
		river:  rc,
		cfg:    cfg,
		logger: cfg.logger,
	}, nil
}

// Enqueue inserts job. With a unique window configured, a job whose
// signature was inserted within the window is skipped without error.
func (c *Client) Enqueue(ctx context.Context, job delivery.Job) error {
	res, err := c.river.Insert(ctx, newDeliveryArgs(job), insertOpts(c.cfg))
	if err != nil {
		return fmt.Errorf("riverqueue: enqueue: %w", err)
	}

	if res.UniqueSkippedAsDuplicate {
		c.logger.InfoContext(ctx, "duplicate delivery job skipped",
			slog.Int64("job_id", res.Job.ID),
			slog.String("title", job.Title()),
		)
	}
	return nil
}

// Start begins working jobs.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}
	if err := c.river.Start(ctx); err != nil {
		return fmt.Errorf("riverqueue: start client: %w", err)
	}

	c.started = true
	c.logger.Info("river worker started",
		slog.String("queue", c.cfg.queue),
		slog.Int("max_workers", c.cfg.maxWorkers),
	)
	return nil
}

// Stop waits for running jobs to finish and stops the client.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return ErrNotStarted
	}
	if err := c.river.Stop(ctx); err != nil {
		return fmt.Errorf("riverqueue: stop client: %w", err)
	}

	c.started = false
	c.logger.Info("river worker stopped")
	return nil
}

// Run starts the client and blocks until ctx is cancelled, then stops it,
// giving running jobs up to shutdownTimeout to finish.
func (c *Client) Run(ctx context.Context) error {
	// Cancelling the context given to River's Start aborts running jobs.
	if err := c.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return c.Stop(stopCtx)
}

// Healthcheck reports whether the client is started and Postgres answers.
func (c *Client) Healthcheck(ctx context.Context) error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	if !started {
		return errors.Join(ErrHealthcheckFailed, ErrNotStarted)
	}
	if err := c.pool.Ping(ctx); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}

// Migrate brings River's own tables up to date.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), &rivermigrate.Config{Logger: logger})
	if err != nil {
		return fmt.Errorf("riverqueue: create migrator: %w", err)
	}

	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("riverqueue: migrate: %w", err)
	}

	logger.Info("river migrations applied", slog.Int("versions", len(res.Versions)))
	return nil
}

func insertOpts(cfg *config) *river.InsertOpts {
	opts := &river.InsertOpts{
		Queue:       cfg.queue,
		MaxAttempts: cfg.maxAttempts,
	}
	if cfg.uniqueFor > 0 {
		opts.UniqueOpts = river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: cfg.uniqueFor,
		}
	}
	return opts
}
