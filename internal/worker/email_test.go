package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamspace/backend/internal/memstore"
	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/pkg/queue"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}

func (m *fakeMailer) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

type fakeQueue struct {
	mu      sync.Mutex
	jobs    []*queue.Job
	retried []*queue.Job
}

func (q *fakeQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
		return nil, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, nil
}

func (q *fakeQueue) Retry(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	q.retried = append(q.retried, job)
	return nil
}

func (q *fakeQueue) Retried() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.retried)
}

func emailJob(t *testing.T, to string) *queue.Job {
	t.Helper()
	body, err := json.Marshal(queue.EmailPayload{
		EmailType:      models.EmailTypePasswordReset,
		RecipientEmail: to,
		Subject:        "Reset your password",
		BodyText:       "link",
	})
	require.NoError(t, err)
	return &queue.Job{ID: "job-" + to, Type: queue.JobTypeEmail, Payload: body}
}

func TestProcessRecordsSentEmail(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	mailer := &fakeMailer{}
	p := NewEmailProcessor(&fakeQueue{}, mailer, store, nil)

	require.NoError(t, p.Process(context.Background(), emailJob(t, "ann@example.com")))

	assert.Equal(t, []string{"ann@example.com"}, mailer.Sent())
	logs := store.EmailLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.EmailLogStatusSent, logs[0].Status)
	assert.NotNil(t, logs[0].SentAt)
	assert.Equal(t, "job-ann@example.com", logs[0].JobID)
}

func TestProcessRecordsFailure(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	p := NewEmailProcessor(&fakeQueue{}, &fakeMailer{err: errors.New("relay down")}, store, nil)

	err := p.Process(context.Background(), emailJob(t, "ann@example.com"))
	require.Error(t, err)

	logs := store.EmailLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.EmailLogStatusFailed, logs[0].Status)
	assert.Equal(t, "relay down", logs[0].ErrorMessage)
	assert.Nil(t, logs[0].SentAt)
}

func TestProcessRejectsBadJobs(t *testing.T) {
	t.Parallel()
	p := NewEmailProcessor(&fakeQueue{}, &fakeMailer{}, memstore.New(), nil)
	ctx := context.Background()

	assert.Error(t, p.Process(ctx, &queue.Job{ID: "x", Type: "other"}))
	assert.Error(t, p.Process(ctx, &queue.Job{ID: "x", Type: queue.JobTypeEmail, Payload: []byte("{")}))
	assert.Error(t, p.Process(ctx, &queue.Job{ID: "x", Type: queue.JobTypeEmail, Payload: []byte(`{}`)}))
}

func TestRunRetriesFailedJobs(t *testing.T) {
	t.Parallel()
	q := &fakeQueue{jobs: []*queue.Job{emailJob(t, "ann@example.com")}}
	p := NewEmailProcessor(q, &fakeMailer{err: errors.New("relay down")}, memstore.New(), nil)
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool { return q.Retried() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRunDeliversQueuedJobs(t *testing.T) {
	t.Parallel()
	q := &fakeQueue{jobs: []*queue.Job{emailJob(t, "ann@example.com"), emailJob(t, "bob@example.com")}}
	mailer := &fakeMailer{}
	p := NewEmailProcessor(q, mailer, memstore.New(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool { return len(mailer.Sent()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Zero(t, q.Retried())
}
