/**
 * Redis Result Store for OCR Verify Worker
 *
 * Mirrors job state into Redis for API-side polling and streaming:
 * - <queue>:processing / :completed / :failed status sets
 * - <queue>:results / :errors hashes keyed by job id
 * - job events published on <queue>:events
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResultStore writes job state to Redis
type ResultStore struct {
	client    *redis.Client
	queueName string
}

// JobEvent is published on the events channel for every status change
type JobEvent struct {
	Event     string `json:"event"`
	JobID     string `json:"jobId"`
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp"`
}

// NewResultStore connects to Redis
func NewResultStore(ctx context.Context, redisURL string, queueName string) (*ResultStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if queueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &ResultStore{client: client, queueName: queueName}, nil
}

func (s *ResultStore) key(suffix string) string {
	return keyFor(s.queueName, suffix)
}

func keyFor(queueName, suffix string) string {
	return fmt.Sprintf("%s:%s", queueName, suffix)
}

// MarkProcessing adds the job to the processing set
func (s *ResultStore) MarkProcessing(ctx context.Context, jobID, kind string) error {
	if err := s.client.SAdd(ctx, s.key("processing"), jobID).Err(); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	return s.publish(ctx, jobID, kind, "processing")
}

// MarkCompleted moves the job to the completed set and stores its result
func (s *ResultStore) MarkCompleted(ctx context.Context, jobID, kind string, result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, s.key("processing"), jobID)
	pipe.SAdd(ctx, s.key("completed"), jobID)
	pipe.HSet(ctx, s.key("results"), jobID, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	return s.publish(ctx, jobID, kind, "completed")
}

// MarkFailed moves the job to the failed set and stores the error details
func (s *ResultStore) MarkFailed(ctx context.Context, jobID, kind string, details map[string]interface{}) error {
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal error details: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, s.key("processing"), jobID)
	pipe.SAdd(ctx, s.key("failed"), jobID)
	pipe.HSet(ctx, s.key("errors"), jobID, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return s.publish(ctx, jobID, kind, "failed")
}

// GetResult returns the stored result JSON for a completed job
func (s *ResultStore) GetResult(ctx context.Context, jobID string) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.key("results"), jobID).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("no result for job %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return data, nil
}

func (s *ResultStore) publish(ctx context.Context, jobID, kind, status string) error {
	eventData, err := json.Marshal(newJobEvent(jobID, kind, status, time.Now()))
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, s.key("events"), eventData).Err(); err != nil {
		return fmt.Errorf("failed to publish job event: %w", err)
	}
	return nil
}

func newJobEvent(jobID, kind, status string, at time.Time) JobEvent {
	return JobEvent{
		Event:     fmt.Sprintf("job:%s", status),
		JobID:     jobID,
		Kind:      kind,
		Timestamp: at.Format(time.RFC3339),
	}
}

// GetStats returns job counts per status set
func (s *ResultStore) GetStats(ctx context.Context) (map[string]int64, error) {
	pipe := s.client.Pipeline()
	processing := pipe.SCard(ctx, s.key("processing"))
	completed := pipe.SCard(ctx, s.key("completed"))
	failed := pipe.SCard(ctx, s.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}

// Close closes the Redis connection
func (s *ResultStore) Close() error {
	return s.client.Close()
}
