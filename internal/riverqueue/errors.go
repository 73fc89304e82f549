package riverqueue

import "errors"

var (
	// ErrPoolRequired is returned when the client is created without a pool.
	ErrPoolRequired = errors.New("riverqueue: pool is required")

	// ErrTransportRequired is returned when the client is created without a transport.
	ErrTransportRequired = errors.New("riverqueue: transport is required")

	// ErrAlreadyStarted is returned by Start on a running client.
	ErrAlreadyStarted = errors.New("riverqueue: already started")

	// ErrNotStarted is returned by Stop on a client that is not running.
	ErrNotStarted = errors.New("riverqueue: not started")
)
