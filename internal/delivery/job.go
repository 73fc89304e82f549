// Package delivery implements the deferred send unit executed by a queue engine.
//
// A Job is a value. Process never changes the job it is called on; it returns
// the next record, which the queue engine persists in place of the original.
package delivery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/shineum/ses-mailer/internal/transport"
)

// JobType identifies delivery jobs to queue engines.
const JobType = "mail_delivery"

// RedactedBody replaces the raw message of a delivered job.
const RedactedBody = "[message removed after successful delivery]"

// ErrCorruptJob is returned when a job lacks destinations or a raw message.
var ErrCorruptJob = errors.New("delivery: corrupt job")

// State is the lifecycle position of a job.
type State string

const (
	StatePending  State = "pending"
	StateComplete State = "complete"
	StateFailed   State = "failed"
)

// Job is a snapshot of one outbound message waiting for delivery.
type Job struct {
	Destinations []string `json:"destinations"`
	Subject      string   `json:"subject"`
	RawMessage   string   `json:"raw_message"`
	State        State    `json:"state"`
	MessageID    string   `json:"message_id,omitempty"`
	Failure      string   `json:"failure,omitempty"`
}

// NewJob captures destinations, subject and raw message in a pending job.
func NewJob(destinations []string, subject, raw string) Job {
	return Job{
		Destinations: slices.Clone(destinations),
		Subject:      subject,
		RawMessage:   raw,
		State:        StatePending,
	}
}

// Complete reports whether the job reached its terminal success state.
func (j Job) Complete() bool {
	return j.State == StateComplete
}

// Title is the human-readable description shown by queue tooling.
func (j Job) Title() string {
	return fmt.Sprintf("To: %s Subject: %s", strings.Join(j.Destinations, ", "), j.Subject)
}

// Signature identifies jobs carrying the same subject to the same
// destinations, in the same order.
func (j Job) Signature() string {
	sum := sha256.Sum256([]byte(j.Subject))
	return hex.EncodeToString(sum[:]) + ":" + strings.Join(j.Destinations, ",")
}

// JobType returns JobType.
func (j Job) JobType() string {
	return JobType
}

// Validate checks the fields required before any network attempt.
func (j Job) Validate() error {
	switch {
	case len(j.Destinations) == 0:
		return fmt.Errorf("%w: no destinations", ErrCorruptJob)
	case j.RawMessage == "":
		return fmt.Errorf("%w: empty raw message", ErrCorruptJob)
	}
	return nil
}

// Process sends the job once through client and returns the resulting record.
//
// A complete job is returned unchanged without a call. On success the record
// is complete and its raw message is RedactedBody. On failure the record is
// failed, carries a diagnostic, and the error is returned for the queue
// engine to act on. A transport retry is logged to log.
func (j Job) Process(ctx context.Context, client transport.Client, log *slog.Logger) (Job, error) {
	if j.Complete() {
		return j, nil
	}

	if err := j.Validate(); err != nil {
		return j.failed(err), err
	}

	resp, err := transport.Send(ctx, log, client, j.Destinations, j.RawMessage)
	if err != nil {
		err = fmt.Errorf("delivery: send to %s: %w", strings.Join(j.Destinations, ", "), err)
		return j.failed(err), err
	}
	if !resp.Successful() {
		err = fmt.Errorf("delivery: send to %s: %w (message id %q, status %d)",
			strings.Join(j.Destinations, ", "), transport.ErrUnsuccessfulResponse, resp.MessageID, resp.StatusCode)
		return j.failed(err), err
	}

	return j.completed(resp), nil
}

func (j Job) completed(resp transport.Response) Job {
	return Job{
		Destinations: slices.Clone(j.Destinations),
		Subject:      j.Subject,
		RawMessage:   RedactedBody,
		State:        StateComplete,
		MessageID:    resp.MessageID,
	}
}

func (j Job) failed(err error) Job {
	next := j
	next.Destinations = slices.Clone(j.Destinations)
	next.State = StateFailed
	next.Failure = err.Error()
	return next
}
