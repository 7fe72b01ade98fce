/**
 * Queue Consumer for OCR Verify Worker
 *
 * Consumes ocr:extract and ocr:verify tasks with Asynq, runs them through the
 * document processor under a per-job timeout and records job state in
 * PostgreSQL and Redis.
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/ocrverify-worker/internal/errors"
	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
	"github.com/adverant/nexus/ocrverify-worker/internal/processor"
	"github.com/adverant/nexus/ocrverify-worker/internal/storage"
)

// DefaultProcessingTimeout applies when ConsumerConfig leaves it unset
const DefaultProcessingTimeout = 5 * time.Minute

// JobStore persists job status and results
type JobStore interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
	StoreExtraction(ctx context.Context, jobID string, fused ocr.FusedResult, payload interface{}) error
	StoreVerificationReport(ctx context.Context, jobID string, report ocr.Report) error
}

// StatusSink mirrors job state for clients polling the queue
type StatusSink interface {
	MarkProcessing(ctx context.Context, jobID, kind string) error
	MarkCompleted(ctx context.Context, jobID, kind string, result interface{}) error
	MarkFailed(ctx context.Context, jobID, kind string, details map[string]interface{}) error
}

// Consumer handles job consumption from Redis queue
type Consumer struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	handler *jobHandler
	config  *ConsumerConfig
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	Store             JobStore
	Results           StatusSink
	ProcessingTimeout time.Duration
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10, // Priority 10 for main queue
				"default":     1,  // Priority 1 for fallback
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task processing error: type=%s, error=%v", task.Type(), err)
			}),
		},
	)

	handler := newJobHandler(cfg)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeExtract, handler.handleExtract)
	mux.HandleFunc(TypeVerify, handler.handleVerify)

	return &Consumer{
		server:  server,
		mux:     mux,
		handler: handler,
		config:  cfg,
	}, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	log.Printf("Starting queue consumer (concurrency=%d, queue=%s, timeout=%v)...",
		c.config.Concurrency, c.config.QueueName, c.handler.timeout)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	log.Printf("Stopping queue consumer...")
	c.server.Shutdown()
	log.Printf("Queue consumer stopped")
	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
		"timeout":     c.handler.timeout.String(),
	}
}

// jobHandler runs tasks; it holds no asynq server state so it can be
// exercised directly
type jobHandler struct {
	processor processor.DocumentProcessorInterface
	store     JobStore
	results   StatusSink
	timeout   time.Duration
}

func newJobHandler(cfg *ConsumerConfig) *jobHandler {
	timeout := cfg.ProcessingTimeout
	if timeout <= 0 {
		timeout = DefaultProcessingTimeout
	}
	return &jobHandler{
		processor: cfg.Processor,
		store:     cfg.Store,
		results:   cfg.Results,
		timeout:   timeout,
	}
}

func (h *jobHandler) handleExtract(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var payload ExtractPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal extract payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("extract payload has no jobId: %w", asynq.SkipRetry)
	}

	log.Printf("[Job %s] Extracting document: pages=%d, language=%q", payload.JobID, len(payload.Pages), payload.Language)
	h.begin(ctx, payload.JobID, TypeExtract, payload.Metadata)

	processCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	result, err := h.processor.Extract(processCtx, payload.Document())
	if err != nil {
		return h.fail(ctx, processCtx, payload.JobID, TypeExtract, startTime, err)
	}

	if h.store != nil {
		if err := h.store.StoreExtraction(ctx, payload.JobID, result.Fused, result); err != nil {
			log.Printf("[Job %s] Warning: Failed to store extraction: %v", payload.JobID, err)
		}
	}
	h.complete(ctx, payload.JobID, TypeExtract, result.Fused.Confidence, result.PageCount, startTime, result)
	return nil
}

func (h *jobHandler) handleVerify(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var payload VerifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal verify payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("verify payload has no jobId: %w", asynq.SkipRetry)
	}

	fields := payload.FieldRecords()
	log.Printf("[Job %s] Verifying document: pages=%d, fields=%d", payload.JobID, len(payload.Pages), len(fields))
	h.begin(ctx, payload.JobID, TypeVerify, payload.Metadata)

	processCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	result, err := h.processor.Verify(processCtx, payload.Document(), fields)
	if err != nil {
		return h.fail(ctx, processCtx, payload.JobID, TypeVerify, startTime, err)
	}

	if h.store != nil {
		if err := h.store.StoreExtraction(ctx, payload.JobID, result.Extraction.Fused, result.Extraction); err != nil {
			log.Printf("[Job %s] Warning: Failed to store extraction: %v", payload.JobID, err)
		}
		if err := h.store.StoreVerificationReport(ctx, payload.JobID, result.Report); err != nil {
			log.Printf("[Job %s] Warning: Failed to store verification report: %v", payload.JobID, err)
		}
	}
	h.complete(ctx, payload.JobID, TypeVerify, result.Report.Summary.OverallConfidence, result.Extraction.PageCount, startTime, result)
	return nil
}

func (h *jobHandler) begin(ctx context.Context, jobID, kind string, metadata map[string]interface{}) {
	if h.store != nil {
		if err := h.store.UpdateJobStatus(ctx, &storage.JobUpdate{
			JobID:    jobID,
			Kind:     kind,
			Status:   storage.JobStatusProcessing,
			Metadata: metadata,
		}); err != nil {
			log.Printf("[Job %s] Warning: Failed to update status to processing: %v", jobID, err)
		}
	}
	if h.results != nil {
		if err := h.results.MarkProcessing(ctx, jobID, kind); err != nil {
			log.Printf("[Job %s] Warning: Failed to mark processing in Redis: %v", jobID, err)
		}
	}
}

func (h *jobHandler) complete(ctx context.Context, jobID, kind string, confidence float64, pages int, startTime time.Time, result interface{}) {
	duration := time.Since(startTime)
	log.Printf("[Job %s] %s completed in %v: confidence=%.2f, pages=%d", jobID, kind, duration, confidence, pages)

	if h.store != nil {
		if err := h.store.UpdateJobStatus(ctx, &storage.JobUpdate{
			JobID:            jobID,
			Kind:             kind,
			Status:           storage.JobStatusCompleted,
			Confidence:       confidence,
			ProcessingTimeMs: duration.Milliseconds(),
			PageCount:        pages,
		}); err != nil {
			log.Printf("[Job %s] Warning: Failed to update status to completed: %v", jobID, err)
		}
	}
	if h.results != nil {
		if err := h.results.MarkCompleted(ctx, jobID, kind, result); err != nil {
			log.Printf("[Job %s] Warning: Failed to mark completed in Redis: %v", jobID, err)
		}
	}
}

// fail records the failure and returns the error for asynq. Timeouts keep
// asynq's retry policy; input errors that cannot succeed on retry skip it.
func (h *jobHandler) fail(ctx, processCtx context.Context, jobID, kind string, startTime time.Time, err error) error {
	duration := time.Since(startTime)

	if stderrors.Is(processCtx.Err(), context.DeadlineExceeded) {
		log.Printf("[Job %s] Processing timed out after %v (timeout: %v)", jobID, duration, h.timeout)
		err = errors.NewProcessingTimeoutError(jobID, h.timeout, err)
	} else {
		log.Printf("[Job %s] Processing failed after %v: %v", jobID, duration, err)
	}

	details, code := failureDetails(err)
	details["processingTime"] = duration.Milliseconds()

	if h.store != nil {
		if updateErr := h.store.UpdateJobStatus(ctx, &storage.JobUpdate{
			JobID:            jobID,
			Kind:             kind,
			Status:           storage.JobStatusFailed,
			ProcessingTimeMs: duration.Milliseconds(),
			ErrorCode:        string(code),
			ErrorMessage:     err.Error(),
		}); updateErr != nil {
			log.Printf("[Job %s] Warning: Failed to update status to failed: %v", jobID, updateErr)
		}
	}
	if h.results != nil {
		if markErr := h.results.MarkFailed(ctx, jobID, kind, details); markErr != nil {
			log.Printf("[Job %s] Warning: Failed to mark failed in Redis: %v", jobID, markErr)
		}
	}

	if !retryable(code) {
		return fmt.Errorf("%s failed: %v: %w", kind, err, asynq.SkipRetry)
	}
	return fmt.Errorf("%s failed: %w", kind, err)
}

// failureDetails returns the structured error map and code for err
func failureDetails(err error) (map[string]interface{}, errors.ErrorCode) {
	var perr *errors.ProcessingError
	if stderrors.As(err, &perr) {
		return perr.ToMap(), perr.Code
	}
	return map[string]interface{}{"error": err.Error()}, ""
}

func retryable(code errors.ErrorCode) bool {
	switch code {
	case errors.ErrorUnsupportedFormat, errors.ErrorInvalidFieldInput, errors.ErrorInvalidConfig:
		return false
	}
	return true
}
