package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Producer enqueues OCR jobs
type Producer struct {
	client    *asynq.Client
	queueName string
	timeout   time.Duration
	maxRetry  int
}

// NewProducer creates a producer for queueName. Tasks get timeout plus a
// minute of slack so the worker's own deadline fires first.
func NewProducer(redisURL, queueName string, timeout time.Duration) (*Producer, error) {
	if queueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultProcessingTimeout
	}
	return &Producer{
		client:    asynq.NewClient(redisOpt),
		queueName: queueName,
		timeout:   timeout,
		maxRetry:  3,
	}, nil
}

func (p *Producer) options() []asynq.Option {
	return []asynq.Option{
		asynq.Queue(p.queueName),
		asynq.MaxRetry(p.maxRetry),
		asynq.Timeout(p.timeout + time.Minute),
	}
}

// EnqueueExtract submits an extraction job and returns its job id
func (p *Producer) EnqueueExtract(ctx context.Context, payload *ExtractPayload) (string, error) {
	task, err := NewExtractTask(payload, p.options()...)
	if err != nil {
		return "", err
	}
	if _, err := p.client.EnqueueContext(ctx, task, asynq.TaskID(payload.JobID)); err != nil {
		return "", fmt.Errorf("failed to enqueue extract job %s: %w", payload.JobID, err)
	}
	return payload.JobID, nil
}

// EnqueueVerify submits a verification job and returns its job id
func (p *Producer) EnqueueVerify(ctx context.Context, payload *VerifyPayload) (string, error) {
	task, err := NewVerifyTask(payload, p.options()...)
	if err != nil {
		return "", err
	}
	if _, err := p.client.EnqueueContext(ctx, task, asynq.TaskID(payload.JobID)); err != nil {
		return "", fmt.Errorf("failed to enqueue verify job %s: %w", payload.JobID, err)
	}
	return payload.JobID, nil
}

// Close closes the underlying client
func (p *Producer) Close() error {
	return p.client.Close()
}
