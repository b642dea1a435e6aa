package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crusty-reader/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyQueue = "queue:ingest"
	// JobTTL is how long a job record stays readable after its last update.
	JobTTL = 24 * time.Hour
)

func jobKey(id uuid.UUID) string { return "job:" + id.String() }

// JobQueue is the Redis list feeding the ingestion worker. Job records are
// kept next to it so clients can poll their status.
type JobQueue struct {
	rdb *redis.Client
}

// NewJobQueue connects to Redis for queue-only use.
func NewJobQueue(redisAddr string) (*JobQueue, error) {
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &JobQueue{rdb: rdb}, nil
}

func (q *JobQueue) Close() {
	q.rdb.Close()
}

// Enqueue stores job and pushes it onto the queue.
func (q *JobQueue) Enqueue(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, JobTTL)
	pipe.LPush(ctx, keyQueue, job.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Pop waits up to timeout for the next job. It returns nil, nil when the
// wait times out.
func (q *JobQueue) Pop(ctx context.Context, timeout time.Duration) (*model.Job, error) {
	result, err := q.rdb.BRPop(ctx, timeout, keyQueue).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(result[1])
	if err != nil {
		return nil, fmt.Errorf("malformed job id %q: %w", result[1], err)
	}
	job, err := q.Get(ctx, id)
	if err == ErrNotFound {
		// record expired while queued; the url is lost with it
		return nil, fmt.Errorf("job %s expired before processing", id)
	}
	return job, err
}

// Save overwrites the job record and resets its TTL.
func (q *JobQueue) Save(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.Set(ctx, jobKey(job.ID), data, JobTTL).Err()
}

func (q *JobQueue) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	val, err := q.rdb.Get(ctx, jobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	var job model.Job
	if err := json.Unmarshal(val, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
