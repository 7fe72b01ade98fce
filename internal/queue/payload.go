package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
	"github.com/adverant/nexus/ocrverify-worker/internal/processor"
)

// Task types
const (
	TypeExtract = "ocr:extract"
	TypeVerify  = "ocr:verify"
)

// PagePayload is one page image: inline bytes or a URL
type PagePayload struct {
	Number int    `json:"pageNumber,omitempty"`
	URL    string `json:"url,omitempty"`
	Image  []byte `json:"-"`
}

// UnmarshalJSON accepts the image as a base64 string or a Node.js Buffer
// object ({"type":"Buffer","data":[...]})
func (p *PagePayload) UnmarshalJSON(data []byte) error {
	type Alias PagePayload
	aux := &struct {
		Image interface{} `json:"image,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal page: %w", err)
	}

	image, err := decodeBuffer(aux.Image)
	if err != nil {
		return err
	}
	p.Image = image
	return nil
}

// MarshalJSON writes the image as base64
func (p PagePayload) MarshalJSON() ([]byte, error) {
	type Alias PagePayload
	aux := struct {
		Image string `json:"image,omitempty"`
		Alias
	}{
		Alias: Alias(p),
	}
	if len(p.Image) > 0 {
		aux.Image = base64.StdEncoding.EncodeToString(p.Image)
	}
	return json.Marshal(aux)
}

func decodeBuffer(v interface{}) ([]byte, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil

	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 image: %w", err)
		}
		return decoded, nil

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return nil, fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("Buffer object missing 'data' array")
		}
		out := make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 {
				return nil, fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			out[i] = byte(byteVal)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("image must be either base64 string or Buffer object, got %T", v)
	}
}

// ExtractPayload is the body of an ocr:extract task
type ExtractPayload struct {
	JobID    string                 `json:"jobId"`
	Pages    []PagePayload          `json:"pages"`
	Language string                 `json:"language,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// VerifyPayload is the body of an ocr:verify task. Fields keeps the
// caller's order; FormData is accepted for callers sending a plain object
// and is verified in sorted key order after Fields.
type VerifyPayload struct {
	ExtractPayload
	Fields   []ocr.FieldRecord `json:"fields,omitempty"`
	FormData map[string]string `json:"formData,omitempty"`
}

// Document converts the payload for the document processor
func (p *ExtractPayload) Document() *processor.Document {
	pages := make([]processor.PageSource, len(p.Pages))
	for i, page := range p.Pages {
		pages[i] = processor.PageSource{Number: page.Number, Image: page.Image, URL: page.URL}
	}
	return &processor.Document{ID: p.JobID, Pages: pages, Language: p.Language}
}

// FieldRecords returns Fields followed by FormData entries
func (p *VerifyPayload) FieldRecords() []ocr.FieldRecord {
	records := make([]ocr.FieldRecord, 0, len(p.Fields)+len(p.FormData))
	records = append(records, p.Fields...)

	keys := make([]string, 0, len(p.FormData))
	for k := range p.FormData {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		records = append(records, ocr.FieldRecord{FieldName: k, UserValue: p.FormData[k]})
	}
	return records
}

// NewExtractTask builds an ocr:extract task, assigning a job id if missing
func NewExtractTask(payload *ExtractPayload, opts ...asynq.Option) (*asynq.Task, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extract payload: %w", err)
	}
	return asynq.NewTask(TypeExtract, data, opts...), nil
}

// NewVerifyTask builds an ocr:verify task, assigning a job id if missing
func NewVerifyTask(payload *VerifyPayload, opts ...asynq.Option) (*asynq.Task, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verify payload: %w", err)
	}
	return asynq.NewTask(TypeVerify, data, opts...), nil
}
