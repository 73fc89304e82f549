package ses

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/ses-mailer/internal/transport"
)

// mockSESClient implements SendRawEmailAPI for testing.
type mockSESClient struct {
	sendFn    func(ctx context.Context, params *ses.SendRawEmailInput) (*ses.SendRawEmailOutput, error)
	callCount int
	lastInput *ses.SendRawEmailInput
}

func (m *mockSESClient) SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, _ ...func(*ses.Options)) (*ses.SendRawEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendFn != nil {
		return m.sendFn(ctx, params)
	}
	return &ses.SendRawEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

func TestName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ses", NewWithClient("", &mockSESClient{}).Name())
}

func TestSendRaw_BuildsInput(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	c := NewWithClient("bounce@example.com", mock)

	resp, err := c.SendRaw(context.Background(), []string{"a@x.com", "b@x.com"}, "Subject: hi\r\n\r\nbody")
	require.NoError(t, err)

	assert.Equal(t, 1, mock.callCount)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, mock.lastInput.Destinations)
	assert.Equal(t, "Subject: hi\r\n\r\nbody", string(mock.lastInput.RawMessage.Data))
	assert.Equal(t, "bounce@example.com", aws.ToString(mock.lastInput.Source))
	assert.Equal(t, "test-message-id", resp.MessageID)
	// No raw HTTP response is recorded by the mock.
	assert.Equal(t, 0, resp.StatusCode)
}

func TestSendRaw_NoSender(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	c := NewWithClient("", mock)

	_, err := c.SendRaw(context.Background(), []string{"a@x.com"}, "raw")
	require.NoError(t, err)
	assert.Nil(t, mock.lastInput.Source)
}

func TestSendRaw_WrapsError(t *testing.T) {
	t.Parallel()

	apiErr := errors.New("cURL error 56: recv failure")
	mock := &mockSESClient{
		sendFn: func(context.Context, *ses.SendRawEmailInput) (*ses.SendRawEmailOutput, error) {
			return nil, apiErr
		},
	}
	c := NewWithClient("", mock)

	_, err := c.SendRaw(context.Background(), []string{"a@x.com"}, "raw")
	require.ErrorIs(t, err, transport.ErrSendFailed)
	require.ErrorIs(t, err, apiErr)
	assert.True(t, transport.IsTransient(err))
}

func newWireClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	api := ses.New(ses.Options{
		Region:           "us-east-1",
		BaseEndpoint:     aws.String(srv.URL),
		Credentials:      aws.AnonymousCredentials{},
		HTTPClient:       srv.Client(),
		RetryMaxAttempts: 1,
	})
	return NewWithClient("", api)
}

func TestSendRaw_Wire(t *testing.T) {
	t.Parallel()

	var form map[string][]string
	c := newWireClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		form = r.PostForm
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(`<SendRawEmailResponse xmlns="http://ses.amazonaws.com/doc/2010-12-01/">
  <SendRawEmailResult>
    <MessageId>0100018e-wire-id</MessageId>
  </SendRawEmailResult>
  <ResponseMetadata>
    <RequestId>req-1</RequestId>
  </ResponseMetadata>
</SendRawEmailResponse>`))
	})

	resp, err := c.SendRaw(context.Background(), []string{"a@x.com", "b@x.com"}, "Subject: wire\r\n\r\nbody")
	require.NoError(t, err)

	assert.Equal(t, "0100018e-wire-id", resp.MessageID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.Successful())

	assert.Equal(t, "SendRawEmail", form["Action"][0])
	assert.Equal(t, "a@x.com", form["Destinations.member.1"][0])
	assert.Equal(t, "b@x.com", form["Destinations.member.2"][0])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("Subject: wire\r\n\r\nbody")), form["RawMessage.Data"][0])
}

func TestSendRaw_WireError(t *testing.T) {
	t.Parallel()

	c := newWireClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<ErrorResponse>
  <Error>
    <Type>Sender</Type>
    <Code>MessageRejected</Code>
    <Message>Email address is not verified.</Message>
  </Error>
  <RequestId>req-2</RequestId>
</ErrorResponse>`))
	})

	_, err := c.SendRaw(context.Background(), []string{"a@x.com"}, "raw")
	require.ErrorIs(t, err, transport.ErrSendFailed)
	assert.Contains(t, err.Error(), "MessageRejected")
	assert.False(t, transport.IsTransient(err))
}
