package riverqueue

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/shineum/ses-mailer/internal/delivery"
	"github.com/shineum/ses-mailer/internal/metrics"
	"github.com/shineum/ses-mailer/internal/transport"
)

// DeliveryArgs is the River job payload for one delivery job.
type DeliveryArgs struct {
	delivery.Job

	// Signature is the only field considered when unique inserts are enabled.
	Signature string `json:"signature" river:"unique"`
}

// Kind returns the River job kind.
func (DeliveryArgs) Kind() string {
	return delivery.JobType
}

// newDeliveryArgs wraps job with its signature.
func newDeliveryArgs(job delivery.Job) DeliveryArgs {
	return DeliveryArgs{Job: job, Signature: job.Signature()}
}

// CompletionStore persists the record of a delivered job.
type CompletionStore interface {
	Complete(ctx context.Context, jobID int64, args DeliveryArgs) error
}

// Worker runs delivery jobs.
type Worker struct {
	river.WorkerDefaults[DeliveryArgs]

	transport transport.Client
	store     CompletionStore
	logger    *slog.Logger
}

// Work processes the job once. Errors are returned to River, which decides
// between retrying and discarding according to the job's max attempts.
func (w *Worker) Work(ctx context.Context, job *river.Job[DeliveryArgs]) error {
	if job.Args.Complete() {
		w.logger.InfoContext(ctx, "delivery job already complete, skipping",
			slog.Int64("job_id", job.ID),
			slog.String("title", job.Args.Title()),
		)
		metrics.Jobs.WithLabelValues("river", "skipped").Inc()
		return nil
	}

	w.logger.DebugContext(ctx, "executing delivery job",
		slog.Int64("job_id", job.ID),
		slog.Int("attempt", job.Attempt),
		slog.String("title", job.Args.Title()),
	)

	next, err := job.Args.Process(ctx, w.transport, w.logger)
	if err != nil {
		w.logger.ErrorContext(ctx, "delivery job failed",
			slog.Int64("job_id", job.ID),
			slog.Int("attempt", job.Attempt),
			slog.String("title", job.Args.Title()),
			slog.Any("error", err),
		)
		metrics.Jobs.WithLabelValues("river", "failed").Inc()
		return err
	}

	metrics.Jobs.WithLabelValues("river", "complete").Inc()

	// The message is out; a store failure must not make River send it again.
	if err := w.store.Complete(ctx, job.ID, DeliveryArgs{Job: next, Signature: job.Args.Signature}); err != nil {
		w.logger.ErrorContext(ctx, "failed to record delivered job",
			slog.Int64("job_id", job.ID),
			slog.String("message_id", next.MessageID),
			slog.Any("error", err),
		)
		return nil
	}

	w.logger.InfoContext(ctx, "delivery job complete",
		slog.Int64("job_id", job.ID),
		slog.String("message_id", next.MessageID),
	)
	return nil
}
