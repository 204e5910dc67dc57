package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"alphagate/internal/pkg/redact"
)

// SESConfig holds the settings for the SES sender.
// Empty keys fall back to the default AWS credential chain.
type SESConfig struct {
	Region    string
	AccessKey string
	SecretKey string
	From      string
	Endpoint  string // optional; overrides the regional endpoint
}

// SESSender sends emails via AWS SES v2.
type SESSender struct {
	client *sesv2.Client
	from   string
}

// NewSESSender loads AWS configuration and creates an SES sender.
// PRE: cfg.From is a verified SES identity
// POST: Returns a sender or an error if AWS configuration cannot be loaded
func NewSESSender(ctx context.Context, cfg SESConfig) (*SESSender, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &SESSender{client: client, from: cfg.From}, nil
}

// Send delivers a single email through SES.
// PRE: req has at least one recipient and a subject
// POST: Email is accepted by SES; returns the SES message ID
func (s *SESSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	from := req.From
	if from == "" {
		from = s.from
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: req.To},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(req.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(req.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if req.Text != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(req.Text), Charset: aws.String("UTF-8")}
	}
	if req.ReplyTo != "" {
		input.ReplyToAddresses = []string{req.ReplyTo}
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		slog.Error("ses_send_failed", "error", err, "to", redact.Emails(req.To))
		return SendResult{}, fmt.Errorf("ses send failed: %w", err)
	}

	messageID := aws.ToString(out.MessageId)
	slog.Info("ses_sent", "message_id", messageID, "to", redact.Emails(req.To))
	return SendResult{MessageID: messageID, SentAt: time.Now()}, nil
}

// SendBatch sends each message in turn. SES has no untemplated bulk call,
// so the batch stops at the first failure.
// POST: Returns results for the messages sent before any error
func (s *SESSender) SendBatch(ctx context.Context, reqs []SendRequest) ([]SendResult, error) {
	results := make([]SendResult, 0, len(reqs))
	for _, req := range reqs {
		res, err := s.Send(ctx, req)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}
