// Package redisqueue runs delivery jobs on Redis lists.
//
// Each job is stored as a JSON record under mail:job:<id> and its id is
// pushed onto mail:queue:<name>. Workers pop ids with BRPOP, run the job and
// write the resulting record back. A failing job is pushed again until it
// has used its attempts.
package redisqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shineum/ses-mailer/internal/delivery"
	"github.com/shineum/ses-mailer/internal/metrics"
	"github.com/shineum/ses-mailer/internal/transport"
)

// Record is the stored form of a queued delivery job.
type Record struct {
	ID          string       `json:"id"`
	Queue       string       `json:"queue"`
	Job         delivery.Job `json:"job"`
	Attempts    int          `json:"attempts"`
	MaxAttempts int          `json:"max_attempts"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Client enqueues delivery jobs and works them.
type Client struct {
	backend   backend
	transport transport.Client
	cfg       *config
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a Client on rdb sending through client.
func New(rdb redis.UniversalClient, client transport.Client, opts ...Option) *Client {
	return newClient(&redisBackend{rdb: rdb}, client, opts...)
}

func newClient(b backend, client transport.Client, opts ...Option) *Client {
	cfg := newConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		backend:   b,
		transport: client,
		cfg:       cfg,
		logger:    cfg.logger,
	}
}

// Enqueue stores job and pushes it onto the queue. With a unique-for window a
// job whose signature was queued within the window is skipped. The signature
// is claimed before the push and released again when the push fails.
func (c *Client) Enqueue(ctx context.Context, job delivery.Job) error {
	var claimed string
	if c.cfg.uniqueFor > 0 {
		key := uniqueKey(job.Signature())
		fresh, err := c.backend.claim(ctx, key, c.cfg.uniqueFor)
		if err != nil {
			return fmt.Errorf("redisqueue: check signature: %w", err)
		}
		if !fresh {
			c.logger.InfoContext(ctx, "duplicate delivery job skipped",
				slog.String("title", job.Title()),
			)
			return nil
		}
		claimed = key
	}

	if err := c.push(ctx, job); err != nil {
		if claimed != "" {
			c.releaseClaim(ctx, claimed)
		}
		return err
	}
	return nil
}

func (c *Client) push(ctx context.Context, job delivery.Job) error {
	now := time.Now().UTC()
	rec := Record{
		ID:          uuid.New().String(),
		Queue:       c.cfg.queue,
		Job:         job,
		MaxAttempts: c.cfg.maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redisqueue: marshal record: %w", err)
	}
	if err := c.backend.push(ctx, jobKey(rec.ID), data, queueKey(rec.Queue), rec.ID); err != nil {
		return fmt.Errorf("redisqueue: enqueue: %w", err)
	}
	return nil
}

// releaseClaim drops an unused signature claim so the caller can enqueue the
// same job again. It runs even when ctx is already cancelled.
func (c *Client) releaseClaim(ctx context.Context, key string) {
	if err := c.backend.release(context.WithoutCancel(ctx), key); err != nil {
		c.logger.ErrorContext(ctx, "failed to release delivery signature",
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
}

// Get returns the record stored under id.
func (c *Client) Get(ctx context.Context, id string) (*Record, error) {
	data, err := c.backend.get(ctx, jobKey(id))
	if err != nil {
		return nil, fmt.Errorf("redisqueue: get job %s: %w", id, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("redisqueue: unmarshal job %s: %w", id, err)
	}
	return &rec, nil
}

// Run works jobs until ctx is cancelled, then waits for running jobs.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	c.logger.Info("redis worker started",
		slog.String("queue", c.cfg.queue),
		slog.Int("workers", c.cfg.workers),
	)

	var wg sync.WaitGroup
	for i := range c.cfg.workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.workerLoop(ctx, id)
		}(i)
	}
	wg.Wait()

	c.logger.Info("redis worker stopped")
	return nil
}

func (c *Client) workerLoop(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := c.next(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.WarnContext(ctx, "dequeue failed",
				slog.Int("worker", id),
				slog.Any("error", err),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.pollInterval):
			}
		}
	}
}

// next pops one job and works it. It reports false when the pop timed out.
func (c *Client) next(ctx context.Context) (bool, error) {
	id, err := c.backend.pop(ctx, queueKey(c.cfg.queue), c.cfg.dequeueTimeout)
	if err != nil {
		return false, err
	}
	if id == "" {
		return false, nil
	}

	rec, err := c.Get(ctx, id)
	if err != nil {
		return false, err
	}

	c.process(ctx, rec)
	return true, nil
}

func (c *Client) process(ctx context.Context, rec *Record) {
	if rec.Job.Complete() {
		c.logger.InfoContext(ctx, "delivery job already complete, skipping",
			slog.String("job_id", rec.ID),
			slog.String("title", rec.Job.Title()),
		)
		metrics.Jobs.WithLabelValues("redis", "skipped").Inc()
		return
	}

	rec.Attempts++
	next, err := rec.Job.Process(ctx, c.transport, c.logger)
	rec.Job = next
	rec.UpdatedAt = time.Now().UTC()

	if err == nil {
		if saveErr := c.save(ctx, rec); saveErr != nil {
			c.logger.ErrorContext(ctx, "failed to record delivered job",
				slog.String("job_id", rec.ID),
				slog.String("message_id", next.MessageID),
				slog.Any("error", saveErr),
			)
		}
		c.logger.InfoContext(ctx, "delivery job complete",
			slog.String("job_id", rec.ID),
			slog.String("message_id", next.MessageID),
		)
		metrics.Jobs.WithLabelValues("redis", "complete").Inc()
		return
	}

	retry := rec.Attempts < rec.MaxAttempts
	c.logger.ErrorContext(ctx, "delivery job failed",
		slog.String("job_id", rec.ID),
		slog.Int("attempt", rec.Attempts),
		slog.Bool("retry", retry),
		slog.String("title", rec.Job.Title()),
		slog.Any("error", err),
	)
	metrics.Jobs.WithLabelValues("redis", "failed").Inc()

	if retry {
		err = c.requeue(ctx, rec)
	} else {
		err = c.save(ctx, rec)
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to store failed job",
			slog.String("job_id", rec.ID),
			slog.Any("error", err),
		)
	}
}

func (c *Client) save(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redisqueue: marshal record: %w", err)
	}
	if err := c.backend.set(ctx, jobKey(rec.ID), data); err != nil {
		return fmt.Errorf("redisqueue: save job %s: %w", rec.ID, err)
	}
	return nil
}

func (c *Client) requeue(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redisqueue: marshal record: %w", err)
	}
	if err := c.backend.push(ctx, jobKey(rec.ID), data, queueKey(rec.Queue), rec.ID); err != nil {
		return fmt.Errorf("redisqueue: requeue job %s: %w", rec.ID, err)
	}
	return nil
}
