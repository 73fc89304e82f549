package redisqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/ses-mailer/internal/delivery"
	"github.com/shineum/ses-mailer/internal/transport"
)

type memBackend struct {
	mu     sync.Mutex
	values map[string][]byte
	lists  map[string][]string
	claims map[string]bool
	err    error
	// pushErr fails the next push only.
	pushErr error
}

func newMemBackend() *memBackend {
	return &memBackend{
		values: make(map[string][]byte),
		lists:  make(map[string][]string),
		claims: make(map[string]bool),
	}
}

func (b *memBackend) push(_ context.Context, key string, data []byte, list, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	if b.pushErr != nil {
		err := b.pushErr
		b.pushErr = nil
		return err
	}
	b.values[key] = data
	b.lists[list] = append([]string{id}, b.lists[list]...)
	return nil
}

func (b *memBackend) pop(_ context.Context, list string, _ time.Duration) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	ids := b.lists[list]
	if len(ids) == 0 {
		// Stand in for the blocking pop timing out.
		time.Sleep(time.Millisecond)
		return "", nil
	}
	id := ids[len(ids)-1]
	b.lists[list] = ids[:len(ids)-1]
	return id, nil
}

func (b *memBackend) get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (b *memBackend) set(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = data
	return nil
}

func (b *memBackend) claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.claims[key] {
		return false, nil
	}
	b.claims[key] = true
	return true, nil
}

func (b *memBackend) release(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.claims, key)
	return nil
}

func (b *memBackend) queued(list string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lists[list]...)
}

type mockClient struct {
	mu        sync.Mutex
	responses []transport.Response
	errs      []error
	calls     int
}

func (m *mockClient) SendRaw(_ context.Context, _ []string, _ string) (transport.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	var resp transport.Response
	var err error
	if i < len(m.responses) {
		resp = m.responses[i]
	}
	if i < len(m.errs) {
		err = m.errs[i]
	}
	return resp, err
}

func (m *mockClient) Name() string { return "mock" }

var accepted = transport.Response{MessageID: "msg-1", StatusCode: 200}

func onlyID(t *testing.T, b *memBackend, queue string) string {
	t.Helper()
	ids := b.queued(queueKey(queue))
	require.Len(t, ids, 1)
	return ids[0]
}

func TestEnqueue(t *testing.T) {
	t.Parallel()

	b := newMemBackend()
	c := newClient(b, &mockClient{}, WithQueue("mail"), WithMaxAttempts(3))

	job := delivery.NewJob([]string{"a@x.com"}, "Hello", "raw")
	require.NoError(t, c.Enqueue(context.Background(), job))

	id := onlyID(t, b, "mail")
	rec, err := c.Get(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "mail", rec.Queue)
	assert.Equal(t, job, rec.Job)
	assert.Equal(t, 3, rec.MaxAttempts)
	assert.Zero(t, rec.Attempts)
}

func TestEnqueue_UniqueSignature(t *testing.T) {
	t.Parallel()

	b := newMemBackend()
	c := newClient(b, &mockClient{}, WithUniqueFor(time.Minute))

	ctx := context.Background()
	require.NoError(t, c.Enqueue(ctx, delivery.NewJob([]string{"a@x.com"}, "Hello", "raw-1")))
	require.NoError(t, c.Enqueue(ctx, delivery.NewJob([]string{"a@x.com"}, "Hello", "raw-2")))
	require.NoError(t, c.Enqueue(ctx, delivery.NewJob([]string{"a@x.com"}, "Other", "raw-3")))

	assert.Len(t, b.queued(queueKey(defaultQueue)), 2)
}

func TestEnqueue_BackendError(t *testing.T) {
	t.Parallel()

	b := newMemBackend()
	b.err = errors.New("connection refused")
	c := newClient(b, &mockClient{})

	err := c.Enqueue(context.Background(), delivery.NewJob([]string{"a@x.com"}, "Hello", "raw"))
	require.ErrorIs(t, err, b.err)
}

func TestEnqueue_FailedPushReleasesSignature(t *testing.T) {
	t.Parallel()

	refused := errors.New("connection refused")
	b := newMemBackend()
	b.pushErr = refused
	c := newClient(b, &mockClient{}, WithUniqueFor(time.Minute))

	ctx := context.Background()
	job := delivery.NewJob([]string{"a@x.com"}, "Hello", "raw")

	require.ErrorIs(t, c.Enqueue(ctx, job), refused)
	assert.Empty(t, b.queued(queueKey(defaultQueue)))

	require.NoError(t, c.Enqueue(ctx, job))
	assert.Len(t, b.queued(queueKey(defaultQueue)), 1, "job is queued on the second call")

	require.NoError(t, c.Enqueue(ctx, job))
	assert.Len(t, b.queued(queueKey(defaultQueue)), 1, "signature is held again after a successful push")
}

func TestNext_Success(t *testing.T) {
	t.Parallel()

	b := newMemBackend()
	client := &mockClient{responses: []transport.Response{accepted}}
	c := newClient(b, client)
	ctx := context.Background()

	require.NoError(t, c.Enqueue(ctx, delivery.NewJob([]string{"a@x.com"}, "Hello", "secret body")))
	id := onlyID(t, b, defaultQueue)

	worked, err := c.next(ctx)
	require.NoError(t, err)
	assert.True(t, worked)

	rec, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, rec.Job.Complete())
	assert.Equal(t, delivery.RedactedBody, rec.Job.RawMessage)
	assert.Equal(t, "msg-1", rec.Job.MessageID)
	assert.Equal(t, 1, rec.Attempts)
	assert.Empty(t, b.queued(queueKey(defaultQueue)))
}

func TestNext_EmptyQueue(t *testing.T) {
	t.Parallel()

	c := newClient(newMemBackend(), &mockClient{})

	worked, err := c.next(context.Background())
	require.NoError(t, err)
	assert.False(t, worked)
}

func TestNext_RetryThenFail(t *testing.T) {
	t.Parallel()

	b := newMemBackend()
	client := &mockClient{errs: []error{
		errors.New("Throttling"),
		errors.New("Throttling"),
	}}
	c := newClient(b, client, WithMaxAttempts(2))
	ctx := context.Background()

	require.NoError(t, c.Enqueue(ctx, delivery.NewJob([]string{"a@x.com"}, "Hello", "raw")))
	id := onlyID(t, b, defaultQueue)

	_, err := c.next(ctx)
	require.NoError(t, err)

	rec, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, delivery.StateFailed, rec.Job.State)
	assert.Equal(t, "raw", rec.Job.RawMessage)
	assert.Equal(t, []string{id}, b.queued(queueKey(defaultQueue)), "job is pushed back for another attempt")

	_, err = c.next(ctx)
	require.NoError(t, err)

	rec, err = c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, delivery.StateFailed, rec.Job.State)
	assert.Equal(t, 2, rec.Attempts)
	assert.Contains(t, rec.Job.Failure, "Throttling")
	assert.Empty(t, b.queued(queueKey(defaultQueue)), "attempts exhausted")
	assert.Equal(t, 2, client.calls)
}

func TestNext_RetryThenSucceed(t *testing.T) {
	t.Parallel()

	b := newMemBackend()
	client := &mockClient{
		responses: []transport.Response{{}, accepted},
		errs:      []error{errors.New("Throttling")},
	}
	c := newClient(b, client)
	ctx := context.Background()

	require.NoError(t, c.Enqueue(ctx, delivery.NewJob([]string{"a@x.com"}, "Hello", "raw")))
	id := onlyID(t, b, defaultQueue)

	for range 2 {
		_, err := c.next(ctx)
		require.NoError(t, err)
	}

	rec, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, rec.Job.Complete())
	assert.Empty(t, rec.Job.Failure)
}

func TestNext_CompleteRecordSkipped(t *testing.T) {
	t.Parallel()

	b := newMemBackend()
	client := &mockClient{responses: []transport.Response{accepted, accepted}}
	c := newClient(b, client)
	ctx := context.Background()

	require.NoError(t, c.Enqueue(ctx, delivery.NewJob([]string{"a@x.com"}, "Hello", "raw")))
	id := onlyID(t, b, defaultQueue)
	_, err := c.next(ctx)
	require.NoError(t, err)

	// A stray copy of the id must not send the message again.
	b.mu.Lock()
	b.lists[queueKey(defaultQueue)] = []string{id}
	b.mu.Unlock()

	_, err = c.next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestNext_MissingRecord(t *testing.T) {
	t.Parallel()

	b := newMemBackend()
	b.lists[queueKey(defaultQueue)] = []string{"missing"}
	c := newClient(b, &mockClient{})

	_, err := c.next(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	b := newMemBackend()
	client := &mockClient{responses: []transport.Response{accepted}}
	c := newClient(b, client, WithWorkers(2))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Enqueue(ctx, delivery.NewJob([]string{"a@x.com"}, "Hello", "raw")))

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(b.queued(queueKey(defaultQueue))) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestOpen_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want error
	}{
		{name: "empty", url: "", want: ErrEmptyConnectionURL},
		{name: "http scheme", url: "http://localhost:6379", want: ErrFailedToParseURL},
		{name: "no scheme", url: "localhost:6379", want: ErrFailedToParseURL},
		{name: "invalid database", url: "redis://localhost:6379/notanumber", want: ErrFailedToParseURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, err := Open(context.Background(), tt.url)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, client)
		})
	}
}

func TestHealthcheck_NilClient(t *testing.T) {
	t.Parallel()

	err := Healthcheck(nil)(context.Background())
	require.ErrorIs(t, err, ErrHealthcheckFailed)
}
