package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
)

// parsePages accepts a list of pages, each a list of source results, or a
// bare list of source results for a single page
func parsePages(data []byte) ([][]ocr.SourceResult, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("results must be a JSON array: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("results contain no pages")
	}

	var pages [][]ocr.SourceResult
	if bytes.HasPrefix(bytes.TrimSpace(raw[0]), []byte("[")) {
		if err := json.Unmarshal(data, &pages); err != nil {
			return nil, fmt.Errorf("failed to parse pages: %w", err)
		}
	} else {
		var single []ocr.SourceResult
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("failed to parse source results: %w", err)
		}
		pages = [][]ocr.SourceResult{single}
	}

	for i, sources := range pages {
		for j, s := range sources {
			if s.SourceID == "" {
				return nil, fmt.Errorf("page %d result %d has no source_id", i+1, j)
			}
			pages[i][j] = withStatus(s)
		}
	}
	return pages, nil
}

// withStatus fills a missing status from the text, as a live recognizer would
func withStatus(s ocr.SourceResult) ocr.SourceResult {
	if s.Status != "" {
		s.Confidence = ocr.ClampConfidence(s.Confidence)
		return s
	}
	return ocr.NewSourceResult(s.SourceID, s.Text, s.Confidence, s.Boxes)
}

// parseFields accepts {"name": "value", ...} in sorted key order or a list
// of field records in the given order
func parseFields(data []byte) ([]ocr.FieldRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		var records []ocr.FieldRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("failed to parse field list: %w", err)
		}
		for i, r := range records {
			if strings.TrimSpace(r.FieldName) == "" {
				return nil, fmt.Errorf("field %d has no field_name", i)
			}
		}
		return records, nil
	}

	var form map[string]string
	if err := json.Unmarshal(trimmed, &form); err != nil {
		return nil, fmt.Errorf("fields must be a JSON object of strings or a list: %w", err)
	}
	names := make([]string, 0, len(form))
	for name := range form {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]ocr.FieldRecord, len(names))
	for i, name := range names {
		records[i] = ocr.FieldRecord{FieldName: name, UserValue: form[name]}
	}
	return records, nil
}
