/**
 * Remote recognizer - HTTP vision/OCR services
 *
 * Speaks the vision extract-text protocol: the page image goes out base64
 * encoded in a JSON body, text, confidence and optional word boxes come
 * back. The same client serves the vision model gateway and the PaddleOCR
 * and EasyOCR sidecars, which differ only in base URL and source id.
 */

package recognizer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/ocrverify-worker/internal/errors"
	"github.com/adverant/nexus/ocrverify-worker/internal/logging"
	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
)

// DefaultExtractPath is the extract-text endpoint path
const DefaultExtractPath = "/api/internal/vision/extract-text"

// RemoteConfig holds remote recognizer configuration
type RemoteConfig struct {
	ID             string
	BaseURL        string
	Path           string
	Timeout        time.Duration
	PreferAccuracy bool
	Logger         *logging.Logger
}

// Remote calls an HTTP recognition service
type Remote struct {
	id             string
	baseURL        string
	path           string
	preferAccuracy bool
	httpClient     *http.Client
	logger         *logging.Logger
}

// ExtractRequest represents a request to extract text from an image
type ExtractRequest struct {
	Image          string                 `json:"image"`          // Base64 encoded image
	Format         string                 `json:"format"`         // "base64"
	PreferAccuracy bool                   `json:"preferAccuracy"` // true = highest accuracy models
	Language       string                 `json:"language"`       // Optional: "en", "hi", etc.
	Metadata       map[string]interface{} `json:"metadata"`
}

// ExtractResponse represents the service response
type ExtractResponse struct {
	Success bool        `json:"success"`
	Data    ExtractData `json:"data"`
	Message string      `json:"message"`
}

// ExtractData contains the extracted text and metadata
type ExtractData struct {
	Text           string       `json:"text"`
	Confidence     float64      `json:"confidence"`
	ModelUsed      string       `json:"modelUsed"`
	ProcessingTime int64        `json:"processingTime"` // milliseconds
	Boxes          []ExtractBox `json:"boxes,omitempty"`
}

// ExtractBox is one detection; bbox is [x1, y1, x2, y2]
type ExtractBox struct {
	Text       string    `json:"text"`
	BBox       []float64 `json:"bbox"`
	Confidence float64   `json:"confidence"`
}

// NewRemote creates a remote recognizer
func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.Path == "" {
		cfg.Path = DefaultExtractPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second // Vision tasks can take time
	}
	if cfg.ID == "" {
		cfg.ID = "vision"
	}
	return &Remote{
		id:             cfg.ID,
		baseURL:        cfg.BaseURL,
		path:           cfg.Path,
		preferAccuracy: cfg.PreferAccuracy,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		logger:         cfg.Logger,
	}
}

func (r *Remote) ID() string { return r.id }

// Recognize posts the image and converts the response. Boxes with fewer
// than four coordinates are dropped.
func (r *Remote) Recognize(ctx context.Context, image []byte, language string) (ocr.SourceResult, error) {
	req := &ExtractRequest{
		Image:          base64.StdEncoding.EncodeToString(image),
		Format:         "base64",
		PreferAccuracy: r.preferAccuracy,
		Language:       language,
		Metadata: map[string]interface{}{
			"source":    "ocrverify-worker",
			"imageSize": len(image),
		},
	}

	resp, err := r.extract(ctx, req)
	if err != nil {
		return ocr.SourceResult{}, err
	}

	boxes := make([]ocr.TextBox, 0, len(resp.Data.Boxes))
	for i, b := range resp.Data.Boxes {
		bbox, ok := ocr.BBoxFromSlice(b.BBox)
		if !ok {
			r.logger.Warn("Dropping box", "error", errors.NewMalformedBoxError(r.id, i, len(b.BBox)))
			continue
		}
		boxes = append(boxes, ocr.TextBox{Text: b.Text, BBox: bbox, Confidence: normalizeConfidence(b.Confidence)})
	}

	r.logger.Info("Text extraction complete",
		"source", r.id,
		"modelUsed", resp.Data.ModelUsed,
		"confidence", resp.Data.Confidence,
		"processingTime", resp.Data.ProcessingTime,
		"textLength", len(resp.Data.Text))

	return ocr.NewSourceResult(r.id, resp.Data.Text, normalizeConfidence(resp.Data.Confidence), boxes), nil
}

func (r *Remote) extract(ctx context.Context, req *ExtractRequest) (*ExtractResponse, error) {
	endpoint := fmt.Sprintf("%s%s", r.baseURL, r.path)

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Source", "ocrverify-worker")
	httpReq.Header.Set("X-Request-ID", "ocr-"+uuid.New().String())

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", r.id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned error status %d: %s", r.id, resp.StatusCode, string(body))
	}

	var extractResp ExtractResponse
	if err := json.Unmarshal(body, &extractResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if !extractResp.Success {
		return nil, fmt.Errorf("%s operation failed: %s", r.id, extractResp.Message)
	}
	return &extractResp, nil
}

// HealthCheck checks if the service is healthy
func (r *Remote) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/api/health", r.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// normalizeConfidence accepts 0-1 or percentage scales
func normalizeConfidence(c float64) float64 {
	if c > 1 {
		c /= 100
	}
	return ocr.ClampConfidence(c)
}
