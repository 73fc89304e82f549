// Package main is the entry point for the SES mailer.
//
// With -send it delivers one raw message and exits. Without it, it works the
// configured delivery queue until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shineum/ses-mailer/internal/config"
	"github.com/shineum/ses-mailer/internal/db"
	"github.com/shineum/ses-mailer/internal/logger"
	"github.com/shineum/ses-mailer/internal/mailer"
	"github.com/shineum/ses-mailer/internal/metrics"
	"github.com/shineum/ses-mailer/internal/parser"
	"github.com/shineum/ses-mailer/internal/redisqueue"
	"github.com/shineum/ses-mailer/internal/riverqueue"
	"github.com/shineum/ses-mailer/internal/transport"
	"github.com/shineum/ses-mailer/internal/transport/ses"
	"github.com/shineum/ses-mailer/internal/transport/sesv2"
	"github.com/shineum/ses-mailer/internal/transport/stdout"
)

// errNoRecipients is returned by sendOnce when neither the message nor the
// recipient policy yields a destination.
var errNoRecipients = errors.New("message has no recipients")

// engine is a queue engine the process can enqueue into and work.
type engine interface {
	mailer.Enqueuer
	Run(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	sendPath := flag.String("send", "", "send one raw RFC 5322 message read from FILE (- for stdin) and exit")
	flag.Parse()

	if err := run(*configPath, *sendPath); err != nil {
		slog.Error("ses-mailer failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, sendPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, flush := logger.New(os.Stdout, cfg.Logging.Level, logger.SentryConfig{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
	})
	defer flush()
	slog.SetDefault(log)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, initiating shutdown", "signal", sig)
		cancel()
	}()

	client, err := selectTransport(ctx, cfg)
	if err != nil {
		return err
	}

	var (
		queue  engine
		checks = map[string]metrics.CheckFunc{}
	)
	if cfg.Queue.Enabled {
		var closeQueue func()
		queue, closeQueue, err = openQueue(ctx, cfg, client, log, checks)
		if err != nil {
			return err
		}
		defer closeQueue()
	}

	if sendPath != "" {
		return sendOnce(ctx, cfg, client, queue, log, sendPath)
	}

	if queue == nil {
		return errors.New("worker mode requires the delivery queue to be enabled")
	}

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.ListenAndServe(ctx, cfg.Metrics.Listen, metrics.NewHandler(checks)); err != nil {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	slog.Info("starting ses-mailer worker",
		"transport", client.Name(),
		"driver", cfg.Queue.Driver,
		"queue", cfg.Queue.Name,
	)

	if err := queue.Run(ctx); err != nil {
		return fmt.Errorf("queue worker: %w", err)
	}

	slog.Info("ses-mailer stopped")
	return nil
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// mailPolicy maps the global recipient settings onto the adapter policy.
func mailPolicy(cfg *config.Config) mailer.Policy {
	return mailer.Policy{
		OverrideRecipient: cfg.Mail.SendAllEmailsTo,
		GlobalCc:          cfg.Mail.CcAllEmailsTo,
		GlobalBcc:         cfg.Mail.BccAllEmailsTo,
	}
}

// selectTransport chooses the delivery backend based on configuration.
// If PROVIDER is set, it takes precedence. Otherwise SES is used when
// configured, else stdout.
func selectTransport(ctx context.Context, cfg *config.Config) (transport.Client, error) {
	switch cfg.Provider {
	case "ses":
		if !cfg.SESConfigured() {
			return nil, errors.New("SES provider selected but SES_REGION and SES_SENDER are required")
		}
		return newSES(ctx, cfg)

	case "stdout":
		slog.Info("using stdout transport")
		return stdout.New(), nil

	case "":
		if cfg.SESConfigured() {
			return newSES(ctx, cfg)
		}
		slog.Info("no provider configured, using stdout transport")
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func newSES(ctx context.Context, cfg *config.Config) (transport.Client, error) {
	sesCfg := ses.Config{
		Region:          cfg.SES.Region,
		AccessKeyID:     cfg.SES.AccessKeyID,
		SecretAccessKey: cfg.SES.SecretAccessKey,
		Sender:          cfg.SES.Sender,
		Endpoint:        cfg.SES.Endpoint,
	}

	slog.Info("using AWS SES transport",
		"api", cfg.SES.API,
		"region", cfg.SES.Region,
		"sender", cfg.SES.Sender,
	)

	if cfg.SES.API == "v2" {
		c, err := sesv2.New(ctx, sesCfg)
		if err != nil {
			return nil, fmt.Errorf("create SES v2 transport: %w", err)
		}
		return c, nil
	}

	c, err := ses.New(ctx, sesCfg)
	if err != nil {
		return nil, fmt.Errorf("create SES transport: %w", err)
	}
	return c, nil
}

// openQueue connects the configured queue engine and registers its health
// checks. The returned function releases the connection.
func openQueue(ctx context.Context, cfg *config.Config, client transport.Client, log *slog.Logger, checks map[string]metrics.CheckFunc) (engine, func(), error) {
	switch cfg.Queue.Driver {
	case "river":
		pool, err := db.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		q, err := openRiver(ctx, cfg, pool, client, log)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		checks["postgres"] = db.Healthcheck(pool)
		checks["river"] = q.Healthcheck
		return q, pool.Close, nil

	case "redis":
		rdb, err := redisqueue.Open(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		q := redisqueue.New(rdb, client,
			redisqueue.WithQueue(cfg.Queue.Name),
			redisqueue.WithWorkers(cfg.Queue.Workers),
			redisqueue.WithMaxAttempts(cfg.Queue.MaxAttempts),
			redisqueue.WithUniqueFor(cfg.Queue.UniqueFor),
			redisqueue.WithLogger(log),
		)
		checks["redis"] = redisqueue.Healthcheck(rdb)
		return q, func() { _ = rdb.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
}

func openRiver(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, client transport.Client, log *slog.Logger) (*riverqueue.Client, error) {
	if err := riverqueue.Migrate(ctx, pool, log); err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, pool, log); err != nil {
		return nil, err
	}
	return riverqueue.New(pool, client,
		riverqueue.WithQueue(cfg.Queue.Name),
		riverqueue.WithMaxWorkers(cfg.Queue.Workers),
		riverqueue.WithMaxAttempts(cfg.Queue.MaxAttempts),
		riverqueue.WithUniqueFor(cfg.Queue.UniqueFor),
		riverqueue.WithLogger(log),
	)
}

// sendOnce parses the raw message at path and hands it to the adapter.
func sendOnce(ctx context.Context, cfg *config.Config, client transport.Client, queue engine, log *slog.Logger, path string) error {
	raw, err := readMessage(path)
	if err != nil {
		return err
	}

	msg, err := parser.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse message: %w", err)
	}

	opts := []mailer.Option{mailer.WithLogger(log)}
	if queue != nil {
		opts = append(opts, mailer.WithQueue(queue))
	}
	adapter := mailer.New(client, mailPolicy(cfg), opts...)

	if len(adapter.Resolve(msg)) == 0 {
		return errNoRecipients
	}

	if !adapter.Send(ctx, msg) {
		return errors.New("message was not accepted")
	}

	if resp, ok := adapter.LastResponse(); ok {
		slog.Info("message accepted", "message_id", resp.MessageID, "status", resp.StatusCode)
	} else {
		slog.Info("message queued for delivery", "queue", cfg.Queue.Name)
	}
	return nil
}

func readMessage(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read message from stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read message file: %w", err)
	}
	return data, nil
}
