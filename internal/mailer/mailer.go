// Package mailer composes and delivers the platform's HTML emails.
package mailer

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message is one outbound email. EventID/SubmissionID tie it to the email log.
type Message struct {
	Type         string     `json:"type"`
	To           string     `json:"to"`
	Subject      string     `json:"subject"`
	HTML         string     `json:"html"`
	EventID      *uuid.UUID `json:"event_id,omitempty"`
	SubmissionID *uuid.UUID `json:"submission_id,omitempty"`
}

// Sender delivers a message. Implementations must honour ctx cancellation.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender logs messages instead of delivering them; used when SMTP is not configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a sender that only logs.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("email (smtp disabled)",
		zap.String("type", msg.Type),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// Notifier hands a message off for asynchronous delivery.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}
