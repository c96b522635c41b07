// Package dispatch delivers rendered automation messages.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/pipeline-automation/internal/domain"
	"github.com/ignite/pipeline-automation/internal/pkg/logger"
)

// ErrNotConfigured is returned when the SES client could not be built.
var ErrNotConfigured = errors.New("SES client not initialized - check credentials")

// sesAPI is the subset of the SES v2 client the dispatcher uses.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESOptions configures an SESDispatcher.
type SESOptions struct {
	AccessKey        string
	SecretKey        string
	Region           string
	FromEmail        string
	FromName         string
	ConfigurationSet string
	// Timeout bounds each SES HTTP request. Zero keeps the SDK default.
	Timeout time.Duration
}

// SESDispatcher sends automation messages via AWS SES using the SDK v2.
type SESDispatcher struct {
	client    sesAPI
	fromEmail string
	fromName  string
	configSet string
}

// NewSESDispatcher creates an SES dispatcher. Static credentials are used
// when provided; otherwise the default AWS credential chain applies.
func NewSESDispatcher(ctx context.Context, opts SESOptions) (*SESDispatcher, error) {
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	if opts.Timeout > 0 {
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(httpClient(opts.Timeout)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSESDispatcher(sesv2.NewFromConfig(cfg), opts), nil
}

func httpClient(timeout time.Duration) *awshttp.BuildableClient {
	return awshttp.NewBuildableClient().WithTimeout(timeout)
}

func newSESDispatcher(client sesAPI, opts SESOptions) *SESDispatcher {
	return &SESDispatcher{
		client:    client,
		fromEmail: opts.FromEmail,
		fromName:  opts.FromName,
		configSet: opts.ConfigurationSet,
	}
}

// Send delivers one message. A transport failure is returned as an error;
// the caller classifies it.
func (s *SESDispatcher) Send(ctx context.Context, msg domain.Message) error {
	if s.client == nil {
		return ErrNotConfigured
	}

	fromName, fromEmail := s.fromName, s.fromEmail
	if msg.FromEmail != "" {
		fromName, fromEmail = msg.FromName, msg.FromEmail
	}
	from := fromEmail
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromEmail)
	}

	dest := &types.Destination{ToAddresses: []string{msg.To}}
	if msg.CC != "" {
		dest.CcAddresses = []string{msg.CC}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      dest,
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if s.configSet != "" {
		input.ConfigurationSetName = aws.String(s.configSet)
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}

	messageID := ""
	if result != nil && result.MessageId != nil {
		messageID = *result.MessageId
	}
	logger.Info("automation email sent", "to", msg.To, "message_id", messageID)
	return nil
}
