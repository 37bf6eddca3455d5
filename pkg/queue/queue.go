package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueEmails is the Redis list key for email jobs.
	QueueEmails = "worker:emails"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
	// dequeueTimeout bounds each BLPOP so shutdown is noticed.
	dequeueTimeout = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeEmail JobType = "email"
)

// EmailPayload is the payload for email jobs.
type EmailPayload struct {
	EmailType      string     `json:"email_type"`
	EventID        *uuid.UUID `json:"event_id,omitempty"`
	SubmissionID   *uuid.UUID `json:"submission_id,omitempty"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject"`
	BodyHTML       string     `json:"body_html"`
}

// Job is the envelope stored in the Redis lists.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue is a Redis list of email jobs with a dead-letter list for jobs that keep failing.
type Queue struct {
	client redis.Cmdable
	logger *zap.Logger
	now    func() time.Time
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client redis.Cmdable, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger, now: time.Now}
}

// EnqueueEmail wraps payload in a fresh job and appends it to the email list.
func (q *Queue) EnqueueEmail(ctx context.Context, payload EmailPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}
	job := &Job{ID: uuid.NewString(), Type: JobTypeEmail, Payload: body, CreatedAt: q.now().UTC()}
	if err := q.push(ctx, QueueEmails, job); err != nil {
		return err
	}
	q.logger.Debug("email queued", zap.String("job_id", job.ID), zap.String("email_type", payload.EmailType))
	return nil
}

func (q *Queue) push(ctx context.Context, key string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("push %s: %w", key, err)
	}
	return nil
}

// Depths reports how many jobs wait in the email list and the dead-letter list.
type Depths struct {
	Pending      int64 `json:"pending"`
	DeadLettered int64 `json:"dead_lettered"`
}

// Depths returns the current list lengths.
func (q *Queue) Depths(ctx context.Context) (Depths, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, QueueEmails)
	dead := pipe.LLen(ctx, QueueDLQ)
	if _, err := pipe.Exec(ctx); err != nil {
		return Depths{}, fmt.Errorf("queue depths: %w", err)
	}
	return Depths{Pending: pending.Val(), DeadLettered: dead.Val()}, nil
}

// Dequeue waits up to a few seconds for a job. A nil job with nil error means nothing was available.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, dequeueTimeout, QueueEmails).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		// Undecodable jobs are dropped; requeueing them would loop forever.
		q.logger.Warn("dropping undecodable job", zap.Int("bytes", len(result[1])), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry puts job back on the email list with its attempt count bumped.
// From MaxRetries attempts on it goes to the dead-letter list instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	if job.Attempt >= MaxRetries {
		if err := q.push(ctx, QueueDLQ, job); err != nil {
			q.logger.Error("dead-letter push failed", zap.String("job_id", job.ID), zap.Error(err))
			return err
		}
		q.logger.Warn("email job dead-lettered", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.push(ctx, QueueEmails, job); err != nil {
		return err
	}
	q.logger.Info("email job requeued", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
