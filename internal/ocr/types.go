/**
 * OCR Types - Shared data structures for recognition, fusion and verification
 *
 * Every stage produces one of these values and hands it to the next by value.
 */

package ocr

import (
	"math"
	"strings"
)

// SourceStatus reports how a recognizer invocation ended
type SourceStatus string

const (
	StatusSuccess     SourceStatus = "success"
	StatusEmptyOutput SourceStatus = "empty_output"
	StatusFailed      SourceStatus = "failed"
)

// FusionMethod names the strategy that produced a FusedResult
type FusionMethod string

const (
	MethodPassThrough        FusionMethod = "pass_through"
	MethodConfidenceWeighted FusionMethod = "confidence_weighted"
	MethodVoting             FusionMethod = "voting"
	MethodEditDistance       FusionMethod = "edit_distance"
)

// ParseFusionMethod accepts the configured method name; unknown names fall
// back to confidence weighting.
func ParseFusionMethod(s string) FusionMethod {
	switch FusionMethod(strings.ToLower(strings.TrimSpace(s))) {
	case MethodVoting:
		return MethodVoting
	case MethodEditDistance:
		return MethodEditDistance
	default:
		return MethodConfidenceWeighted
	}
}

// MatchStatus classifies one verified field
type MatchStatus string

const (
	Match        MatchStatus = "MATCH"
	PartialMatch MatchStatus = "PARTIAL_MATCH"
	Mismatch     MatchStatus = "MISMATCH"
)

// BBox is an axis-aligned rectangle (x1,y1) top-left, (x2,y2) bottom-right
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Valid reports finite coordinates with x1<x2 and y1<y2
func (b BBox) Valid() bool {
	for _, v := range [4]float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

// Area is zero for invalid boxes
func (b BBox) Area() float64 {
	if !b.Valid() {
		return 0
	}
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

// BBoxFromSlice builds a box from [x1,y1,x2,y2]; fewer than four values
// yields ok=false.
func BBoxFromSlice(v []float64) (BBox, bool) {
	if len(v) < 4 {
		return BBox{}, false
	}
	return BBox{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, true
}

// TextBox represents a single spatial text detection
type TextBox struct {
	Text       string  `json:"text"`
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
	SourceID   string  `json:"source_id"`
	PageNumber int     `json:"page_num"`
}

// SourceResult is one recognizer's output for one image region
type SourceResult struct {
	SourceID   string       `json:"source_id"`
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	Boxes      []TextBox    `json:"boxes"`
	Status     SourceStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
}

// NewSourceResult builds a non-failed result. Status is success when text is
// non-blank and empty_output otherwise; confidence is clamped to [0,1].
// Boxes without a source or page get this result's source and page 1.
func NewSourceResult(sourceID, text string, confidence float64, boxes []TextBox) SourceResult {
	status := StatusSuccess
	if strings.TrimSpace(text) == "" {
		status = StatusEmptyOutput
	}
	stamped := make([]TextBox, len(boxes))
	for i, b := range boxes {
		if b.SourceID == "" {
			b.SourceID = sourceID
		}
		if b.PageNumber < 1 {
			b.PageNumber = 1
		}
		b.Confidence = ClampConfidence(b.Confidence)
		stamped[i] = b
	}
	return SourceResult{
		SourceID:   sourceID,
		Text:       text,
		Confidence: ClampConfidence(confidence),
		Boxes:      stamped,
		Status:     status,
	}
}

// FailedSourceResult records a recognizer failure. Text is empty and
// confidence zero so the failure can never outvote a working source.
func FailedSourceResult(sourceID string, err error) SourceResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return SourceResult{
		SourceID: sourceID,
		Boxes:    []TextBox{},
		Status:   StatusFailed,
		Error:    msg,
	}
}

// Usable reports status success with non-empty text
func (r SourceResult) Usable() bool {
	return r.Status == StatusSuccess && r.Text != ""
}

// WithPage returns a copy whose boxes carry the given page number
func (r SourceResult) WithPage(page int) SourceResult {
	boxes := make([]TextBox, len(r.Boxes))
	for i, b := range r.Boxes {
		b.PageNumber = page
		boxes[i] = b
	}
	r.Boxes = boxes
	return r
}

// FusedResult is the reconciled output for one region
type FusedResult struct {
	Text                string       `json:"text"`
	Confidence          float64      `json:"confidence"`
	Boxes               []TextBox    `json:"boxes"`
	ContributingSources []string     `json:"source_models"`
	AttemptedSources    []string     `json:"attempted_sources"`
	Method              FusionMethod `json:"fusion_method"`
}

// ZeroFusedResult is the degraded result returned when no usable text exists
func ZeroFusedResult(method FusionMethod, attempted []string) FusedResult {
	if attempted == nil {
		attempted = []string{}
	}
	return FusedResult{
		Boxes:               []TextBox{},
		ContributingSources: []string{},
		AttemptedSources:    attempted,
		Method:              method,
	}
}

// FieldRecord is one form field to verify
type FieldRecord struct {
	FieldName string `json:"field_name"`
	UserValue string `json:"user_value"`
}

// VerificationResult is the outcome of comparing one FieldRecord to fused text
type VerificationResult struct {
	FieldName        string             `json:"field_name"`
	UserValue        string             `json:"field_value"`
	ExtractedText    string             `json:"ocr_value"`
	MatchStatus      MatchStatus        `json:"match_status"`
	Similarity       float64            `json:"similarity"`
	SimilarityScores map[string]float64 `json:"similarity_scores"`
	Confidence       float64            `json:"confidence"`
	SourceConfidence float64            `json:"ocr_confidence"`
	ExactMatch       bool               `json:"exact_match"`
	PartialMatch     bool               `json:"partial_match"`
}

// Summary aggregates a verified form
type Summary struct {
	Total             int     `json:"total_fields"`
	Matches           int     `json:"matches"`
	PartialMatches    int     `json:"partial_matches"`
	Mismatches        int     `json:"mismatches"`
	MatchRate         float64 `json:"match_rate"`
	OverallConfidence float64 `json:"overall_confidence"`
}

// OCRMetadata describes the fused text a form was verified against
type OCRMetadata struct {
	OCRConfidence float64 `json:"ocr_confidence"`
	TextLength    int     `json:"text_length"`
	BoxCount      int     `json:"boxes_count"`
}

// Report is the complete verification of one form
type Report struct {
	Results     []VerificationResult `json:"verification_results"`
	Summary     Summary              `json:"summary"`
	OCRMetadata OCRMetadata          `json:"ocr_metadata"`
}

// ClampConfidence maps NaN to 0 and clamps to [0,1]
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
