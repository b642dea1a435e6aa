package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"crusty-reader/internal/model"
	"crusty-reader/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockIngester struct {
	MockTitle  string
	ShouldFail bool
}

// Save simulates a pipeline run
func (m *MockIngester) Save(_ context.Context, url string) (*model.Article, bool, error) {
	if m.ShouldFail {
		return nil, false, fmt.Errorf("simulated 404 error")
	}
	return &model.Article{ID: 42, URL: url, Title: m.MockTitle}, true, nil
}

func newQueue(t *testing.T) *store.JobQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := store.NewJobQueue(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(q.Close)
	return q
}

// runOnce starts the worker, waits until job leaves the pending state and
// stops the worker.
func runOnce(t *testing.T, q *store.JobQueue, ing Ingester, job *model.Job) *model.Job {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewWorker(q, ing, zap.NewNop()).Start(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	var got *model.Job
	require.Eventually(t, func() bool {
		j, err := q.Get(context.Background(), job.ID)
		if err != nil || j.Status == model.JobPending {
			return false
		}
		got = j
		return true
	}, 3*time.Second, 20*time.Millisecond)
	return got
}

// TestWorker_ProcessJob tests that the worker runs the pipeline for a queued
// job and records the article it produced
func TestWorker_ProcessJob(t *testing.T) {
	q := newQueue(t)
	job := model.NewJob("http://fake-url.com/")
	require.NoError(t, q.Enqueue(context.Background(), &job))

	got := runOnce(t, q, &MockIngester{MockTitle: "Mocked Title"}, &job)

	assert.Equal(t, model.JobArchived, got.Status)
	assert.Equal(t, int64(42), got.ArticleID)
	assert.Empty(t, got.ErrorMessage)
	assert.NotNil(t, got.FinishedAt)
}

// TestWorker_HandlesIngestFailure tests that a failed pipeline run marks the
// job as failed with the error message
func TestWorker_HandlesIngestFailure(t *testing.T) {
	q := newQueue(t)
	job := model.NewJob("http://bad-url.com/")
	require.NoError(t, q.Enqueue(context.Background(), &job))

	got := runOnce(t, q, &MockIngester{ShouldFail: true}, &job)

	assert.Equal(t, model.JobFailed, got.Status)
	assert.Equal(t, "simulated 404 error", got.ErrorMessage)
	assert.Zero(t, got.ArticleID)
}

func TestWorker_StopsOnCancel(t *testing.T) {
	q := newQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewWorker(q, &MockIngester{}, zap.NewNop()).Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop")
	}
}
