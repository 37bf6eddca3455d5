package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/seminar-hub/backend/internal/mailer"
	"github.com/seminar-hub/backend/internal/notify"
	"github.com/seminar-hub/backend/pkg/queue"
)

var delivered = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "seminar_emails_delivered_total",
	Help: "Queued email delivery attempts by outcome.",
}, []string{"type", "outcome"})

// JobQueue is the subset of *queue.Queue the processor needs.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// DeliveryRecorder persists the outcome of each attempt.
type DeliveryRecorder interface {
	Record(ctx context.Context, msg mailer.Message, sendErr error) error
}

// EmailProcessor delivers queued emails: dequeue, send with a timeout, log, retry on error.
type EmailProcessor struct {
	queue       JobQueue
	sender      mailer.Sender
	recorder    DeliveryRecorder
	sendTimeout time.Duration
	backoff     time.Duration
	logger      *zap.Logger
}

// NewEmailProcessor creates an email processor.
func NewEmailProcessor(q JobQueue, sender mailer.Sender, recorder DeliveryRecorder, sendTimeout time.Duration, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &EmailProcessor{queue: q, sender: sender, recorder: recorder, sendTimeout: sendTimeout, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one email job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	msg := notify.FromPayload(payload)

	sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	err := p.sender.Send(sendCtx, msg)
	cancel()

	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	delivered.WithLabelValues(msg.Type, outcome).Inc()
	if recErr := p.recorder.Record(ctx, msg, err); recErr != nil {
		p.logger.Warn("record email log failed", zap.Error(recErr), zap.String("job_id", job.ID))
	}
	if err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Type, msg.To, err)
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
