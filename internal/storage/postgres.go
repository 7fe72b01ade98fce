/**
 * PostgreSQL Client for OCR Verify Worker
 *
 * Handles job status persistence, extraction and verification results, and
 * the reference vocabulary table.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
)

// Job statuses
const (
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	Kind             string
	Status           string
	Confidence       float64
	ProcessingTimeMs int64
	PageCount        int
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// schema is applied by EnsureSchema; every statement is idempotent
var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS ocrverify`,
	`CREATE TABLE IF NOT EXISTS ocrverify.jobs (
		id UUID PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		confidence NUMERIC(5,4),
		processing_time_ms BIGINT,
		page_count INTEGER,
		error_code TEXT,
		error_message TEXT,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ocrverify.results (
		job_id UUID PRIMARY KEY REFERENCES ocrverify.jobs(id) ON DELETE CASCADE,
		fused_text TEXT NOT NULL,
		fused_confidence NUMERIC(5,4) NOT NULL,
		source_models TEXT[] NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ocrverify.verification_reports (
		job_id UUID PRIMARY KEY REFERENCES ocrverify.jobs(id) ON DELETE CASCADE,
		total_fields INTEGER NOT NULL,
		matches INTEGER NOT NULL,
		partial_matches INTEGER NOT NULL,
		mismatches INTEGER NOT NULL,
		match_rate NUMERIC(5,4) NOT NULL,
		overall_confidence NUMERIC(5,4) NOT NULL,
		report JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ocrverify.vocabulary (
		language TEXT NOT NULL,
		word TEXT NOT NULL,
		PRIMARY KEY (language, word)
	)`,
}

// sanitizeConfidence rounds confidence to 4 decimal places and clamps it to
// [0.0, 1.0] so it always fits NUMERIC(5,4)
func sanitizeConfidence(confidence float64) float64 {
	confidence = ocr.ClampConfidence(confidence)
	// Formula: round(x * 10^n) / 10^n where n=4
	return float64(int(confidence*10000+0.5)) / 10000
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(ctx context.Context, databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the worker's schema and tables if missing
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// UpdateJobStatus creates or updates a job row
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	sanitizedConfidence := sanitizeConfidence(update.Confidence)

	metadataJSON, err := marshalJSONB(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	// UPSERT so the first status update creates the job
	query := `
		INSERT INTO ocrverify.jobs (
			id, kind, status, confidence, processing_time_ms, page_count,
			error_code, error_message, metadata, created_at, updated_at
		) VALUES (
			$1::uuid, COALESCE(NULLIF($2, ''), 'extract'), $3,
			NULLIF($4::NUMERIC(5,4), 0), NULLIF($5, 0), NULLIF($6, 0),
			NULLIF($7, ''), NULLIF($8, ''),
			COALESCE($9::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			confidence = COALESCE(EXCLUDED.confidence, ocrverify.jobs.confidence),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, ocrverify.jobs.processing_time_ms),
			page_count = COALESCE(EXCLUDED.page_count, ocrverify.jobs.page_count),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = ocrverify.jobs.metadata || EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,            // $1 - job_id
		update.Kind,             // $2 - kind
		update.Status,           // $3 - status
		sanitizedConfidence,     // $4 - confidence (sanitized to 4 decimals)
		update.ProcessingTimeMs, // $5 - processing_time_ms
		update.PageCount,        // $6 - page_count
		update.ErrorCode,        // $7 - error_code
		update.ErrorMessage,     // $8 - error_message
		metadataJSON,            // $9 - metadata
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s, confidence=%.4f): %w",
			update.JobID, update.Status, sanitizedConfidence, err)
	}

	return nil
}

// StoreFusedResult saves the document-level fused result plus the full
// extraction payload
func (p *PostgresClient) StoreFusedResult(ctx context.Context, jobID string, fused ocr.FusedResult, payload interface{}) error {
	payloadJSON, err := marshalJSONB(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal extraction payload: %w", err)
	}

	query := `
		INSERT INTO ocrverify.results (job_id, fused_text, fused_confidence, source_models, payload)
		VALUES ($1::uuid, $2, $3::NUMERIC(5,4), $4, $5::jsonb)
		ON CONFLICT (job_id) DO UPDATE SET
			fused_text = EXCLUDED.fused_text,
			fused_confidence = EXCLUDED.fused_confidence,
			source_models = EXCLUDED.source_models,
			payload = EXCLUDED.payload,
			created_at = NOW()
	`

	_, err = p.db.ExecContext(ctx, query,
		jobID,
		sanitizeText(fused.Text),
		sanitizeConfidence(fused.Confidence),
		pq.Array(fused.ContributingSources),
		payloadJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to store fused result (job=%s): %w", jobID, err)
	}
	return nil
}

// StoreVerificationReport saves a verification report and its summary columns
func (p *PostgresClient) StoreVerificationReport(ctx context.Context, jobID string, report ocr.Report) error {
	reportJSON, err := marshalJSONB(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `
		INSERT INTO ocrverify.verification_reports (
			job_id, total_fields, matches, partial_matches, mismatches,
			match_rate, overall_confidence, report
		) VALUES ($1::uuid, $2, $3, $4, $5, $6::NUMERIC(5,4), $7::NUMERIC(5,4), $8::jsonb)
		ON CONFLICT (job_id) DO UPDATE SET
			total_fields = EXCLUDED.total_fields,
			matches = EXCLUDED.matches,
			partial_matches = EXCLUDED.partial_matches,
			mismatches = EXCLUDED.mismatches,
			match_rate = EXCLUDED.match_rate,
			overall_confidence = EXCLUDED.overall_confidence,
			report = EXCLUDED.report,
			created_at = NOW()
	`

	s := report.Summary
	_, err = p.db.ExecContext(ctx, query,
		jobID,
		s.Total,
		s.Matches,
		s.PartialMatches,
		s.Mismatches,
		sanitizeConfidence(s.MatchRate),
		sanitizeConfidence(s.OverallConfidence),
		reportJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to store verification report (job=%s): %w", jobID, err)
	}
	return nil
}

// LoadVocabulary returns the vocabulary table as language -> words
func (p *PostgresClient) LoadVocabulary(ctx context.Context) (map[string][]string, error) {
	query := `
		SELECT language, array_agg(word ORDER BY word)
		FROM ocrverify.vocabulary
		GROUP BY language
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load vocabulary: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var language string
		var words pq.StringArray
		if err := rows.Scan(&language, &words); err != nil {
			return nil, fmt.Errorf("failed to scan vocabulary row: %w", err)
		}
		out[language] = []string(words)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	return out, nil
}

// GetJobByID retrieves a job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, kind, status, confidence, processing_time_ms, page_count,
			error_code, error_message, metadata, created_at, updated_at
		FROM ocrverify.jobs
		WHERE id = $1::uuid
	`

	var (
		id, kind, status        string
		confidence              sql.NullFloat64
		processingTimeMs        sql.NullInt64
		pageCount               sql.NullInt64
		errorCode, errorMessage sql.NullString
		metadataJSON            []byte
		createdAt, updatedAt    time.Time
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&id, &kind, &status, &confidence, &processingTimeMs, &pageCount,
		&errorCode, &errorMessage, &metadataJSON, &createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var metadata map[string]interface{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	result := map[string]interface{}{
		"id":        id,
		"kind":      kind,
		"status":    status,
		"createdAt": createdAt,
		"updatedAt": updatedAt,
		"metadata":  metadata,
	}

	if confidence.Valid {
		result["confidence"] = confidence.Float64
	}
	if processingTimeMs.Valid {
		result["processingTimeMs"] = processingTimeMs.Int64
	}
	if pageCount.Valid {
		result["pageCount"] = pageCount.Int64
	}
	if errorCode.Valid {
		result["errorCode"] = errorCode.String
	}
	if errorMessage.Valid {
		result["errorMessage"] = errorMessage.String
	}

	return result, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
