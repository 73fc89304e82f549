package redisqueue

import "errors"

var (
	ErrEmptyConnectionURL = errors.New("redisqueue: empty connection URL")
	ErrFailedToParseURL   = errors.New("redisqueue: failed to parse connection URL")
	ErrConnectionFailed   = errors.New("redisqueue: failed to establish connection")
	ErrHealthcheckFailed  = errors.New("redisqueue: healthcheck failed")

	// ErrNotFound is returned when a job record does not exist.
	ErrNotFound = errors.New("redisqueue: job not found")

	// ErrAlreadyRunning is returned by Run on a client that is already working jobs.
	ErrAlreadyRunning = errors.New("redisqueue: already running")
)
