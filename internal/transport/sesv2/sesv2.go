// Package sesv2 implements a transport.Client on the AWS SES v2 SendEmail API
// using raw content.
package sesv2

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/ses-mailer/internal/transport"
	"github.com/shineum/ses-mailer/internal/transport/ses"
)

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Client sends raw messages via the AWS SES v2 API.
type Client struct {
	sender string
	api    SendEmailAPI
}

// New creates a new Client with the given configuration.
func New(ctx context.Context, cfg ses.Config) (*Client, error) {
	awsCfg, err := ses.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithClient(cfg.Sender, sesv2.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a Client with a custom API, used for testing.
func NewWithClient(sender string, api SendEmailAPI) *Client {
	return &Client{sender: sender, api: api}
}

// SendRaw delivers raw to destinations. SES v2 takes the envelope
// recipients from the destination's To list when content is raw.
func (c *Client) SendRaw(ctx context.Context, destinations []string, raw string) (transport.Response, error) {
	input := &sesv2.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: destinations,
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{
				Data: []byte(raw),
			},
		},
	}
	if c.sender != "" {
		input.FromEmailAddress = aws.String(c.sender)
	}

	out, err := c.api.SendEmail(ctx, input)
	if err != nil {
		return transport.Response{}, fmt.Errorf("%w: sesv2: %w", transport.ErrSendFailed, err)
	}

	return transport.Response{
		MessageID:  aws.ToString(out.MessageId),
		StatusCode: transport.HTTPStatus(out.ResultMetadata),
	}, nil
}

// Name returns the client name.
func (c *Client) Name() string {
	return "sesv2"
}
