package dispatch

import (
	"context"

	"github.com/ignite/pipeline-automation/internal/domain"
	"github.com/ignite/pipeline-automation/internal/pkg/logger"
)

// LogDispatcher writes messages to the structured log instead of sending
// them. Used when SES is disabled.
type LogDispatcher struct{}

// Send logs the message and reports success.
func (LogDispatcher) Send(ctx context.Context, msg domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Info("automation email (log only)", "to", msg.To, "cc", msg.CC, "subject", msg.Subject)
	return nil
}
