package riverqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertDeliverySQL = `
INSERT INTO mail_deliveries (river_job_id, signature, title, destinations, subject, message_id)
VALUES ($1, $2, $3, $4, $5, $6)`

const redactArgsSQL = `UPDATE river_job SET args = $2::jsonb WHERE id = $1`

// Store records delivered jobs in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store on pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Complete writes the delivery record and replaces the job's persisted
// arguments with args, whose raw message is already redacted, in one
// transaction.
func (s *Store) Complete(ctx context.Context, jobID int64, args DeliveryArgs) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("riverqueue: marshal completed args: %w", err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertDeliverySQL,
			jobID,
			args.Signature,
			args.Title(),
			args.Destinations,
			args.Subject,
			args.MessageID,
		); err != nil {
			return fmt.Errorf("insert delivery: %w", err)
		}
		if _, err := tx.Exec(ctx, redactArgsSQL, jobID, string(data)); err != nil {
			return fmt.Errorf("redact job args: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("riverqueue: complete job %d: %w", jobID, err)
	}
	return nil
}
