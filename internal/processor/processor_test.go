package processor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/ocrverify-worker/internal/errors"
	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
	"github.com/adverant/nexus/ocrverify-worker/internal/verification"
)

func newTestProcessor(t *testing.T, ensemble *Ensemble) *DocumentProcessor {
	t.Helper()
	verifier, err := verification.NewVerifier(verification.DefaultConfig(), nil)
	require.NoError(t, err)
	p, err := NewDocumentProcessor(&ProcessorConfig{Ensemble: ensemble, Verifier: verifier, Loader: testLoader()})
	require.NoError(t, err)
	return p
}

func TestNewDocumentProcessorValidates(t *testing.T) {
	_, err := NewDocumentProcessor(&ProcessorConfig{})
	assert.ErrorIs(t, err, &errors.ProcessingError{Code: errors.ErrorInvalidConfig})
}

func TestExtractMultiPage(t *testing.T) {
	e := newTestEnsemble(t, nil, DefaultEnsembleConfig(),
		textRecognizer("tesseract", "John Doe", 0.9),
		textRecognizer("vision", "John Doe", 0.7))
	p := newTestProcessor(t, e)

	result, err := p.Extract(context.Background(), &Document{
		ID:    "doc-1",
		Pages: []PageSource{{Image: pngHeader}, {Image: pngHeader}},
	})
	require.NoError(t, err)

	assert.Equal(t, "doc-1", result.DocumentID)
	assert.Equal(t, 2, result.PageCount)
	assert.Equal(t, "John Doe"+PageBreak+"John Doe", result.Fused.Text)
	assert.Equal(t, []string{"tesseract", "vision"}, result.Fused.ContributingSources)
	require.Len(t, result.Fused.Boxes, 2)
	assert.Equal(t, 1, result.Fused.Boxes[0].PageNumber)
	assert.Equal(t, 2, result.Fused.Boxes[1].PageNumber)

	require.Len(t, result.Sources, 2)
	assert.Equal(t, "tesseract", result.Sources[0].SourceID)
	assert.Len(t, result.Sources[0].Pages, 2)
}

func TestExtractAllSourcesFailedIsNotAnError(t *testing.T) {
	failing := &stubRecognizer{id: "broken", fn: func(context.Context, []byte, string) (ocr.SourceResult, error) {
		return ocr.SourceResult{}, assert.AnError
	}}
	p := newTestProcessor(t, newTestEnsemble(t, nil, DefaultEnsembleConfig(), failing))

	result, err := p.Extract(context.Background(), &Document{ID: "doc-2", Pages: []PageSource{{Image: pngHeader}}})
	require.NoError(t, err)
	assert.Empty(t, result.Fused.Text)
	assert.Zero(t, result.Fused.Confidence)
	assert.Empty(t, result.Fused.ContributingSources)
	assert.Equal(t, []string{"broken"}, result.Fused.AttemptedSources)
}

func TestExtractRejectsPDF(t *testing.T) {
	p := newTestProcessor(t, newTestEnsemble(t, nil, DefaultEnsembleConfig(), textRecognizer("a", "x", 1)))

	_, err := p.Extract(context.Background(), &Document{ID: "doc-3", Pages: []PageSource{{Image: []byte("%PDF-1.5")}}})
	assert.ErrorIs(t, err, &errors.ProcessingError{Code: errors.ErrorUnsupportedFormat})
}

func TestExtractStopsWhenContextExpires(t *testing.T) {
	p := newTestProcessor(t, newTestEnsemble(t, nil, DefaultEnsembleConfig(), textRecognizer("a", "x", 1)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := p.Extract(ctx, &Document{ID: "doc-4", Pages: []PageSource{{Image: pngHeader}}})
	assert.ErrorIs(t, err, &errors.ProcessingError{Code: errors.ErrorProcessingTimeout})
}

func TestVerifyDocument(t *testing.T) {
	e := newTestEnsemble(t, nil, DefaultEnsembleConfig(),
		textRecognizer("tesseract", "John Doe", 0.9),
		textRecognizer("vision", "John Doe", 0.8))
	p := newTestProcessor(t, e)

	out, err := p.Verify(context.Background(), &Document{ID: "doc-5", Pages: []PageSource{{Image: pngHeader}}},
		[]ocr.FieldRecord{
			{FieldName: "Name", UserValue: "john doe"},
			{FieldName: "City", UserValue: "Springfield"},
		})
	require.NoError(t, err)

	require.Len(t, out.Report.Results, 2)
	assert.Equal(t, ocr.Match, out.Report.Results[0].MatchStatus)
	assert.Equal(t, ocr.Mismatch, out.Report.Results[1].MatchStatus)
	assert.Equal(t, 2, out.Report.Summary.Total)
	assert.Equal(t, 1, out.Report.Summary.Matches)
	assert.Equal(t, 0.5, out.Report.Summary.MatchRate)
	assert.Equal(t, len([]rune(out.Extraction.Fused.Text)), out.Report.OCRMetadata.TextLength)
}

func TestVerifyRejectsBlankFieldName(t *testing.T) {
	p := newTestProcessor(t, newTestEnsemble(t, nil, DefaultEnsembleConfig(), textRecognizer("a", "x", 1)))

	_, err := p.Verify(context.Background(), &Document{ID: "doc-6", Pages: []PageSource{{Image: pngHeader}}},
		[]ocr.FieldRecord{{FieldName: "Name", UserValue: "x"}, {FieldName: "  ", UserValue: "y"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.ProcessingError{Code: errors.ErrorInvalidFieldInput})
	assert.True(t, strings.Contains(err.Error(), "field 1"))
}
