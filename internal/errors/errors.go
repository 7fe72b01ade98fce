package errors

import (
	"fmt"
	"time"
)

/**
 * Error taxonomy for the OCR verify worker
 *
 * The fusion and verification engines never return these for a single bad
 * input element; degradation is encoded in the returned data. These errors
 * exist for the edges: recognizer transport, configuration, storage, jobs.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Recognition errors
	ErrorSourceFailure     ErrorCode = "SOURCE_FAILURE"
	ErrorAllSourcesFailed  ErrorCode = "ALL_SOURCES_FAILED"
	ErrorMalformedBox      ErrorCode = "MALFORMED_BOX"
	ErrorInvalidFieldInput ErrorCode = "INVALID_FIELD_INPUT"

	// Processing errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrorInvalidConfig     ErrorCode = "INVALID_CONFIG"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Is matches on error code so callers can test with errors.Is against a
// bare &ProcessingError{Code: ...}.
func (e *ProcessingError) Is(target error) bool {
	t, ok := target.(*ProcessingError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Factory functions for common errors

func NewSourceFailureError(jobID string, sourceID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorSourceFailure,
		Message:   fmt.Sprintf("Recognizer %s failed", sourceID),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"source_id": sourceID,
		},
		Cause: cause,
	}
}

func NewAllSourcesFailedError(jobID string, pageNumber int, attempted []string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorAllSourcesFailed,
		Message:   fmt.Sprintf("No recognizer produced text for page %d", pageNumber),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"page_number":       pageNumber,
			"attempted_sources": attempted,
		},
	}
}

func NewMalformedBoxError(sourceID string, index int, coordinates int) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorMalformedBox,
		Message:   fmt.Sprintf("Box %d from %s has %d coordinates, want 4", index, sourceID, coordinates),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"source_id":   sourceID,
			"box_index":   index,
			"coordinates": coordinates,
		},
	}
}

func NewInvalidFieldInputError(jobID string, fieldIndex int, reason string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidFieldInput,
		Message:   fmt.Sprintf("Invalid form field %d: %s", fieldIndex, reason),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"field_index": fieldIndex,
		},
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewUnsupportedFormatError(jobID string, mimeType string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnsupportedFormat,
		Message:   fmt.Sprintf("Unsupported file format: %s", mimeType),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"mime_type": mimeType,
		},
	}
}

func NewInvalidConfigError(field string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidConfig,
		Message:   fmt.Sprintf("Invalid configuration value: %s", field),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"field": field,
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store processing results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
