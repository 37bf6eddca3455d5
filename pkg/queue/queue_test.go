package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQueue(client, nil), mr
}

func TestEnqueueDequeueEmail(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnqueueEmail(ctx, EmailPayload{
		EmailType:      "submission_received",
		RecipientEmail: "author@example.com",
		Subject:        "Thanks",
		BodyHTML:       "<p>hi</p>",
	}))

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobTypeEmail, job.Type)

	var p EmailPayload
	require.NoError(t, json.Unmarshal(job.Payload, &p))
	assert.Equal(t, "author@example.com", p.RecipientEmail)
}

func TestRetryMovesToDLQAfterMaxRetries(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	job := &Job{ID: "j1", Type: JobTypeEmail, Attempt: MaxRetries - 2}
	require.NoError(t, q.Retry(ctx, job))
	list, err := mr.List(QueueEmails)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, q.Retry(ctx, job))
	dlq, err := mr.List(QueueDLQ)
	require.NoError(t, err)
	assert.Len(t, dlq, 1)
}

func TestDepths(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	d, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, Depths{}, d)

	require.NoError(t, q.EnqueueEmail(ctx, EmailPayload{EmailType: "status_update", RecipientEmail: "a@example.com"}))
	require.NoError(t, q.EnqueueEmail(ctx, EmailPayload{EmailType: "status_update", RecipientEmail: "b@example.com"}))
	require.NoError(t, q.Retry(ctx, &Job{ID: "dead", Type: JobTypeEmail, Attempt: MaxRetries}))

	d, err = q.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, Depths{Pending: 2, DeadLettered: 1}, d)
}

func TestDequeueDropsUndecodableJob(t *testing.T) {
	q, mr := newTestQueue(t)
	_, err := mr.Push(QueueEmails, "not json")
	require.NoError(t, err)

	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.False(t, mr.Exists(QueueEmails))
}
