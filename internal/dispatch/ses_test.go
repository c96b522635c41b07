package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/pipeline-automation/internal/domain"
)

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESDispatcherSend(t *testing.T) {
	fake := &fakeSES{}
	d := newSESDispatcher(fake, SESOptions{FromEmail: "closings@example.com", FromName: "Closing Desk", ConfigurationSet: "automations"})

	err := d.Send(context.Background(), domain.Message{
		To:      "dana@example.com",
		CC:      "sam@agency.com",
		Subject: "Clear to close",
		Body:    "<p>Congrats</p>",
	})
	require.NoError(t, err)

	require.NotNil(t, fake.input)
	assert.Equal(t, "Closing Desk <closings@example.com>", aws.ToString(fake.input.FromEmailAddress))
	assert.Equal(t, []string{"dana@example.com"}, fake.input.Destination.ToAddresses)
	assert.Equal(t, []string{"sam@agency.com"}, fake.input.Destination.CcAddresses)
	assert.Equal(t, "Clear to close", aws.ToString(fake.input.Content.Simple.Subject.Data))
	assert.Equal(t, "<p>Congrats</p>", aws.ToString(fake.input.Content.Simple.Body.Html.Data))
	assert.Equal(t, "automations", aws.ToString(fake.input.ConfigurationSetName))
}

func TestSESDispatcherNoCC(t *testing.T) {
	fake := &fakeSES{}
	d := newSESDispatcher(fake, SESOptions{FromEmail: "closings@example.com"})

	require.NoError(t, d.Send(context.Background(), domain.Message{To: "dana@example.com"}))
	assert.Empty(t, fake.input.Destination.CcAddresses)
	assert.Equal(t, "closings@example.com", aws.ToString(fake.input.FromEmailAddress))
	assert.Nil(t, fake.input.ConfigurationSetName)
}

func TestSESDispatcherTransportError(t *testing.T) {
	fake := &fakeSES{err: errors.New("throttled")}
	d := newSESDispatcher(fake, SESOptions{FromEmail: "closings@example.com"})

	err := d.Send(context.Background(), domain.Message{To: "dana@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestSESDispatcherNotConfigured(t *testing.T) {
	d := &SESDispatcher{}
	err := d.Send(context.Background(), domain.Message{To: "dana@example.com"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSESHTTPClientTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, httpClient(30*time.Second).GetTimeout())
}

func TestLogDispatcher(t *testing.T) {
	assert.NoError(t, LogDispatcher{}.Send(context.Background(), domain.Message{To: "a@b.com"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, LogDispatcher{}.Send(ctx, domain.Message{To: "a@b.com"}), context.Canceled)
}
