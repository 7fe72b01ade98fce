package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
)

const twoPages = `[
  [
    {"source_id": "tesseract", "text": "Name: John Doe", "confidence": 0.9,
     "boxes": [{"text": "John Doe", "bbox": {"x1": 0, "y1": 0, "x2": 80, "y2": 12}, "confidence": 0.9}]}
  ],
  [
    {"source_id": "tesseract", "text": "City: Springfield", "confidence": 0.7, "status": "success"}
  ]
]`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParsePagesNested(t *testing.T) {
	pages, err := parsePages([]byte(twoPages))
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, ocr.StatusSuccess, pages[0][0].Status)
	assert.Equal(t, 1, pages[0][0].Boxes[0].PageNumber)
	assert.Equal(t, "tesseract", pages[0][0].Boxes[0].SourceID)
	assert.Equal(t, 0.7, pages[1][0].Confidence)
}

func TestParsePagesSinglePage(t *testing.T) {
	pages, err := parsePages([]byte(`[
		{"source_id": "a", "text": "", "confidence": 1.5},
		{"source_id": "b", "text": "x", "confidence": 2, "status": "success"}
	]`))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, ocr.StatusEmptyOutput, pages[0][0].Status)
	assert.Equal(t, 1.0, pages[0][0].Confidence)
	assert.Equal(t, 1.0, pages[0][1].Confidence)
}

func TestParsePagesErrors(t *testing.T) {
	for _, data := range []string{
		`{}`,
		`[]`,
		`[{"text": "no id"}]`,
		`[[{"source_id": 3}]]`,
	} {
		_, err := parsePages([]byte(data))
		assert.Error(t, err, data)
	}
}

func TestParseFields(t *testing.T) {
	records, err := parseFields([]byte(`{"zip": "12345", "city": "Springfield"}`))
	require.NoError(t, err)
	assert.Equal(t, []ocr.FieldRecord{
		{FieldName: "city", UserValue: "Springfield"},
		{FieldName: "zip", UserValue: "12345"},
	}, records)

	records, err = parseFields([]byte(`[{"field_name": "zip", "user_value": "1"}, {"field_name": "city", "user_value": "2"}]`))
	require.NoError(t, err)
	assert.Equal(t, "zip", records[0].FieldName)
	assert.Equal(t, "city", records[1].FieldName)

	_, err = parseFields([]byte(`[{"user_value": "1"}]`))
	assert.Error(t, err)
	_, err = parseFields([]byte(`{"zip": 12345}`))
	assert.Error(t, err)
}

func TestRunJSON(t *testing.T) {
	opts := options{
		resultsFile: writeFile(t, "pages.json", twoPages),
		fieldsFile:  writeFile(t, "form.json", `{"name": "John Doe", "zip": "12345"}`),
		jsonOutput:  true,
	}

	var stdout bytes.Buffer
	require.NoError(t, run(opts, &stdout, io.Discard))

	var out output
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	require.Len(t, out.Pages, 2)
	assert.Equal(t, ocr.MethodPassThrough, out.Pages[0].Fused.Method)
	assert.Equal(t, "Name: John Doe\n\n--- Page Break ---\n\nCity: Springfield", out.Fused.Text)
	assert.InDelta(t, 0.8, out.Fused.Confidence, 1e-9)

	require.NotNil(t, out.Report)
	require.Len(t, out.Report.Results, 2)
	assert.Equal(t, ocr.Match, out.Report.Results[0].MatchStatus)
	assert.Equal(t, "John Doe", out.Report.Results[0].ExtractedText)
	assert.Equal(t, ocr.Mismatch, out.Report.Results[1].MatchStatus)
	assert.Equal(t, 2, out.Report.Summary.Total)
}

func TestRunText(t *testing.T) {
	color.NoColor = true
	opts := options{
		resultsFile: writeFile(t, "pages.json", twoPages),
		fieldsFile:  writeFile(t, "form.json", `{"name": "John Doe"}`),
	}

	var stdout bytes.Buffer
	require.NoError(t, run(opts, &stdout, io.Discard))

	text := stdout.String()
	assert.Contains(t, text, "Page 1  method=pass_through confidence=0.900 sources=tesseract")
	assert.Contains(t, text, "[MATCH        ] name")
	assert.Contains(t, text, "1 fields: 1 match, 0 partial, 0 mismatch")
}

func TestRunWithoutFields(t *testing.T) {
	opts := options{resultsFile: writeFile(t, "pages.json", twoPages), jsonOutput: true}

	var stdout bytes.Buffer
	require.NoError(t, run(opts, &stdout, io.Discard))
	assert.NotContains(t, stdout.String(), "verification_report")
}

func TestRunMissingFile(t *testing.T) {
	err := run(options{resultsFile: filepath.Join(t.TempDir(), "missing.json")}, io.Discard, io.Discard)
	assert.Error(t, err)
}

func TestBuildSubmissionExtract(t *testing.T) {
	img := writeFile(t, "p1.png", "\x89PNG")
	extract, verify, err := buildSubmission(options{images: img + ", ,https://example.com/p2.png", language: "hi"})
	require.NoError(t, err)
	require.Nil(t, verify)
	require.Len(t, extract.Pages, 2)
	assert.Equal(t, 1, extract.Pages[0].Number)
	assert.Equal(t, []byte("\x89PNG"), extract.Pages[0].Image)
	assert.Equal(t, 2, extract.Pages[1].Number)
	assert.Equal(t, "https://example.com/p2.png", extract.Pages[1].URL)
	assert.Equal(t, "hi", extract.Language)
}

func TestBuildSubmissionVerify(t *testing.T) {
	opts := options{
		images:     writeFile(t, "p1.png", "\x89PNG"),
		fieldsFile: writeFile(t, "form.json", `{"name": "John Doe"}`),
	}
	extract, verify, err := buildSubmission(opts)
	require.NoError(t, err)
	require.Nil(t, extract)
	require.Len(t, verify.Pages, 1)
	assert.Equal(t, []ocr.FieldRecord{{FieldName: "name", UserValue: "John Doe"}}, verify.Fields)
}

func TestBuildSubmissionErrors(t *testing.T) {
	_, _, err := buildSubmission(options{images: " , "})
	assert.Error(t, err)

	_, _, err = buildSubmission(options{images: filepath.Join(t.TempDir(), "missing.png")})
	assert.Error(t, err)
}
