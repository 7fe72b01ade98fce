package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessingErrorMessage(t *testing.T) {
	cause := fmt.Errorf("tesseract: no image")
	err := NewSourceFailureError("job-1", "tesseract", cause)

	assert.Equal(t, "SOURCE_FAILURE: Recognizer tesseract failed (caused by: tesseract: no image)", err.Error())
	assert.ErrorIs(t, err, cause)

	plain := NewUnsupportedFormatError("job-1", "application/zip")
	assert.Equal(t, "UNSUPPORTED_FORMAT: Unsupported file format: application/zip", plain.Error())
}

func TestProcessingErrorIsMatchesCode(t *testing.T) {
	wrapped := fmt.Errorf("processing timeout: %w", NewProcessingTimeoutError("job-2", time.Second, nil))

	assert.True(t, stderrors.Is(wrapped, &ProcessingError{Code: ErrorProcessingTimeout}))
	assert.False(t, stderrors.Is(wrapped, &ProcessingError{Code: ErrorStorageFailed}))

	var pe *ProcessingError
	require.True(t, stderrors.As(wrapped, &pe))
	assert.Equal(t, "job-2", pe.JobID)
}

func TestToMap(t *testing.T) {
	err := NewAllSourcesFailedError("job-3", 2, []string{"tesseract", "paddleocr"})
	m := err.ToMap()

	assert.Equal(t, "ALL_SOURCES_FAILED", m["error_code"])
	assert.Equal(t, 2, m["page_number"])
	assert.Equal(t, []string{"tesseract", "paddleocr"}, m["attempted_sources"])
	_, hasCause := m["cause"]
	assert.False(t, hasCause)

	withCause := NewStorageFailedError("job-3", fmt.Errorf("conn refused")).ToMap()
	assert.Equal(t, "conn refused", withCause["cause"])
}

func TestEdgeInputErrors(t *testing.T) {
	box := NewMalformedBoxError("paddleocr", 3, 2)
	assert.Equal(t, ErrorMalformedBox, box.Code)
	assert.Equal(t, "MALFORMED_BOX: Box 3 from paddleocr has 2 coordinates, want 4", box.Error())

	field := NewInvalidFieldInputError("job-4", 1, "field name is empty")
	assert.Equal(t, 1, field.ToMap()["field_index"])
	assert.True(t, stderrors.Is(field, &ProcessingError{Code: ErrorInvalidFieldInput}))
}
