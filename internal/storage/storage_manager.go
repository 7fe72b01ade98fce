/**
 * Storage Manager for OCR Verify Worker
 *
 * Coordinates PostgreSQL (jobs, results, reports, vocabulary table) and the
 * optional Qdrant vocabulary index.
 */

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/adverant/nexus/ocrverify-worker/internal/dictionary"
	"github.com/adverant/nexus/ocrverify-worker/internal/errors"
	"github.com/adverant/nexus/ocrverify-worker/internal/logging"
	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
)

var (
	nullEscapePattern    = regexp.MustCompile(`\\u0000`)
	controlEscapePattern = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// StorageManager coordinates PostgreSQL and Qdrant operations
type StorageManager struct {
	postgres *PostgresClient
	index    *VocabularyIndex
	logger   *logging.Logger
}

// ManagerConfig configures NewStorageManager
type ManagerConfig struct {
	DatabaseURL      string
	QdrantAddress    string
	QdrantCollection string
	IndexVocabulary  bool
	Logger           *logging.Logger
}

// NewStorageManager connects to PostgreSQL, applies the schema and, when
// enabled, connects the Qdrant vocabulary index
func NewStorageManager(ctx context.Context, cfg ManagerConfig) (*StorageManager, error) {
	postgres, err := NewPostgresClient(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}

	if err := postgres.EnsureSchema(ctx); err != nil {
		postgres.Close()
		return nil, err
	}

	sm := &StorageManager{postgres: postgres, logger: cfg.Logger}
	if !cfg.IndexVocabulary {
		return sm, nil
	}

	index, err := NewVocabularyIndex(ctx, cfg.QdrantAddress, cfg.QdrantCollection, cfg.Logger)
	if err != nil {
		postgres.Close() // Cleanup on failure
		return nil, fmt.Errorf("failed to initialize Qdrant client: %w", err)
	}
	sm.index = index
	return sm, nil
}

// CandidateIndex returns the vocabulary index, or nil when it is disabled
func (sm *StorageManager) CandidateIndex() dictionary.CandidateIndex {
	if sm.index == nil {
		return nil
	}
	return sm.index
}

// LoadVocabularies merges the vocabulary table into base. Languages only in
// the table are added; words for existing languages are appended.
func (sm *StorageManager) LoadVocabularies(ctx context.Context, base dictionary.Vocabularies) (dictionary.Vocabularies, error) {
	stored, err := sm.postgres.LoadVocabulary(ctx)
	if err != nil {
		return nil, err
	}
	return MergeVocabularies(base, stored), nil
}

// MergeVocabularies returns base extended with extra words per language
func MergeVocabularies(base dictionary.Vocabularies, extra map[string][]string) dictionary.Vocabularies {
	merged := make(dictionary.Vocabularies, len(base)+len(extra))
	for lang, vocab := range base {
		merged[lang] = vocab
	}
	for lang, words := range extra {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if len(words) == 0 {
			continue
		}
		merged[lang] = dictionary.NewVocabulary(append(merged[lang].Words(), words...))
	}
	return merged
}

// IndexVocabularies pushes every language into the Qdrant index. It is a
// no-op when the index is disabled.
func (sm *StorageManager) IndexVocabularies(ctx context.Context, vocabs dictionary.Vocabularies) error {
	if sm.index == nil {
		return nil
	}
	for _, lang := range vocabs.Languages() {
		if err := sm.index.IndexVocabulary(ctx, lang, vocabs[lang].Words()); err != nil {
			return err
		}
	}
	return nil
}

// UpdateJobStatus updates job status in PostgreSQL
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if err := sm.postgres.UpdateJobStatus(ctx, update); err != nil {
		return errors.NewStorageFailedError(update.JobID, err)
	}
	return nil
}

// StoreExtraction persists the fused result and the full extraction payload
func (sm *StorageManager) StoreExtraction(ctx context.Context, jobID string, fused ocr.FusedResult, payload interface{}) error {
	if err := sm.postgres.StoreFusedResult(ctx, jobID, fused, payload); err != nil {
		return errors.NewStorageFailedError(jobID, err)
	}
	return nil
}

// StoreVerificationReport persists a verification report
func (sm *StorageManager) StoreVerificationReport(ctx context.Context, jobID string, report ocr.Report) error {
	if err := sm.postgres.StoreVerificationReport(ctx, jobID, report); err != nil {
		return errors.NewStorageFailedError(jobID, err)
	}
	return nil
}

// GetJobByID retrieves job by ID
func (sm *StorageManager) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	return sm.postgres.GetJobByID(ctx, jobID)
}

// GetStats returns statistics from both systems
func (sm *StorageManager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	pgStats := sm.postgres.GetStats()

	stats := map[string]interface{}{
		"postgres": map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		},
	}

	if sm.index != nil {
		qdrantStats, err := sm.index.GetCollectionInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get Qdrant stats: %w", err)
		}
		stats["qdrant"] = qdrantStats
	}

	return stats, nil
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	var pgErr, qdErr error

	if sm.postgres != nil {
		pgErr = sm.postgres.Close()
	}

	if sm.index != nil {
		qdErr = sm.index.Close()
	}

	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}

	if qdErr != nil {
		return fmt.Errorf("failed to close Qdrant: %w", qdErr)
	}

	return nil
}

// marshalJSONB encodes v for a JSONB column
func marshalJSONB(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return sanitizeJSONForPostgres(b), nil
}

// sanitizeJSONForPostgres removes escape sequences PostgreSQL JSONB rejects:
// \u0000 is dropped, other control character escapes become a space
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscapePattern.ReplaceAll(jsonBytes, []byte{})
	return controlEscapePattern.ReplaceAll(result, []byte(" "))
}

// sanitizeText drops NUL characters, which TEXT columns reject
func sanitizeText(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
