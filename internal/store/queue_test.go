package store

import (
	"context"
	"testing"
	"time"

	"crusty-reader/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobQueue_EnqueueAndPop(t *testing.T) {
	s, mr := newTestStore(t)
	q := s.Jobs()
	ctx := context.Background()

	first := model.NewJob("https://example.com/1")
	second := model.NewJob("https://example.com/2")
	require.NoError(t, q.Enqueue(ctx, &first))
	require.NoError(t, q.Enqueue(ctx, &second))

	ids, err := mr.List("queue:ingest")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.True(t, mr.TTL("job:"+first.ID.String()) > 0)

	got, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID, "jobs are processed in submission order")
	assert.Equal(t, model.JobPending, got.Status)

	got.Status = model.JobArchived
	got.ArticleID = 5
	require.NoError(t, q.Save(ctx, got))

	stored, err := q.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobArchived, stored.Status)
	assert.Equal(t, int64(5), stored.ArticleID)
}

func TestJobQueue_PopTimesOut(t *testing.T) {
	s, _ := newTestStore(t)

	got, err := s.Jobs().Pop(context.Background(), 100*time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestJobQueue_GetMissing(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Jobs().Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
