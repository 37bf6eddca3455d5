// Package notify hands outbound email to the background worker through the Redis job queue.
package notify

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/seminar-hub/backend/internal/mailer"
	"github.com/seminar-hub/backend/pkg/queue"
)

var enqueued = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "seminar_emails_enqueued_total",
	Help: "Emails handed to the delivery queue.",
}, []string{"type"})

// Enqueuer is the subset of *queue.Queue used here.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// QueueNotifier implements mailer.Notifier on top of the job queue.
type QueueNotifier struct {
	q Enqueuer
}

// NewQueueNotifier creates a notifier backed by q.
func NewQueueNotifier(q Enqueuer) *QueueNotifier {
	return &QueueNotifier{q: q}
}

// Notify implements mailer.Notifier.
func (n *QueueNotifier) Notify(ctx context.Context, msg mailer.Message) error {
	if err := n.q.EnqueueEmail(ctx, ToPayload(msg)); err != nil {
		return fmt.Errorf("enqueue %s email: %w", msg.Type, err)
	}
	enqueued.WithLabelValues(msg.Type).Inc()
	return nil
}

// ToPayload converts a message to its queued form.
func ToPayload(msg mailer.Message) queue.EmailPayload {
	return queue.EmailPayload{
		EmailType:      msg.Type,
		EventID:        msg.EventID,
		SubmissionID:   msg.SubmissionID,
		RecipientEmail: msg.To,
		Subject:        msg.Subject,
		BodyHTML:       msg.HTML,
	}
}

// FromPayload converts a queued payload back to a message.
func FromPayload(p queue.EmailPayload) mailer.Message {
	return mailer.Message{
		Type:         p.EmailType,
		To:           p.RecipientEmail,
		Subject:      p.Subject,
		HTML:         p.BodyHTML,
		EventID:      p.EventID,
		SubmissionID: p.SubmissionID,
	}
}
