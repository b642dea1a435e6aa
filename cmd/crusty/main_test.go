package main

import (
	"context"
	"testing"
	"time"

	"crusty-reader/internal/store"
	"crusty-reader/internal/urlnorm"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueue(t *testing.T) (*store.JobQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := store.NewJobQueue(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(q.Close)
	return q, mr
}

func TestQueueURL_Normalizes(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	job, err := queueURL(ctx, q, "  HTTPS://Example.com/a?utm_source=x#top ")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", job.URL)

	got, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "https://example.com/a", got.URL)
}

func TestQueueURL_RejectsInvalid(t *testing.T) {
	q, mr := newQueue(t)

	for _, in := range []string{"", "example.com/a", "javascript:alert(1)"} {
		_, err := queueURL(context.Background(), q, in)
		assert.ErrorIs(t, err, urlnorm.ErrInvalidURL, in)
	}
	assert.False(t, mr.Exists("queue:ingest"), "nothing is queued")
}
