// Package ses implements a transport.Client on the AWS SES v1 SendRawEmail API.
package ses

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/shineum/ses-mailer/internal/transport"
)

// Config holds the settings shared by the SES clients.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// Sender overrides the envelope source. When empty SES uses the From header.
	Sender string

	// Endpoint points the client at a custom base URL (local stacks, tests).
	Endpoint string
}

// LoadAWSConfig resolves AWS settings for cfg. Static credentials are used
// only when both key parts are set; otherwise the default chain applies.
func LoadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return awsCfg, nil
}

// SendRawEmailAPI is the subset of the SES v1 client used by Client.
type SendRawEmailAPI interface {
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

// Client sends raw messages through SES v1.
type Client struct {
	sender string
	api    SendRawEmailAPI
}

// New creates a Client from cfg.
func New(ctx context.Context, cfg Config) (*Client, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithClient(cfg.Sender, ses.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a Client around an existing API implementation.
func NewWithClient(sender string, api SendRawEmailAPI) *Client {
	return &Client{sender: sender, api: api}
}

// SendRaw delivers raw to destinations with a single SendRawEmail call.
func (c *Client) SendRaw(ctx context.Context, destinations []string, raw string) (transport.Response, error) {
	input := &ses.SendRawEmailInput{
		Destinations: destinations,
		RawMessage:   &types.RawMessage{Data: []byte(raw)},
	}
	if c.sender != "" {
		input.Source = aws.String(c.sender)
	}

	out, err := c.api.SendRawEmail(ctx, input)
	if err != nil {
		return transport.Response{}, fmt.Errorf("%w: ses: %w", transport.ErrSendFailed, err)
	}

	return transport.Response{
		MessageID:  aws.ToString(out.MessageId),
		StatusCode: transport.HTTPStatus(out.ResultMetadata),
	}, nil
}

// Name returns the client name.
func (c *Client) Name() string {
	return "ses"
}
