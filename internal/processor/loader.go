package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/adverant/nexus/ocrverify-worker/internal/errors"
)

// PageSource locates one page image: inline bytes or a URL to download
type PageSource struct {
	Number int    `json:"page_number"`
	Image  []byte `json:"image,omitempty"`
	URL    string `json:"url,omitempty"`
}

// LoaderConfig holds page download configuration
type LoaderConfig struct {
	MaxPageSize     int64
	MaxRetries      int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	DownloadTimeout time.Duration
}

// DefaultLoaderConfig returns the production defaults
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		MaxPageSize:     50 * 1024 * 1024,
		MaxRetries:      5,
		InitialBackoff:  time.Second,
		MaxBackoff:      32 * time.Second,
		DownloadTimeout: 10 * time.Minute,
	}
}

// PageLoader resolves PageSources to raster page images
type PageLoader struct {
	cfg    LoaderConfig
	client *http.Client
}

// NewPageLoader creates a page loader
func NewPageLoader(cfg LoaderConfig) *PageLoader {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &PageLoader{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.DownloadTimeout},
	}
}

// Load returns the pages in input order. Pages without a number are
// numbered by position. Anything that is not a raster image is rejected;
// PDFs must be rendered to images before they reach the worker.
func (l *PageLoader) Load(ctx context.Context, jobID string, sources []PageSource) ([]Page, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("document has no pages")
	}

	pages := make([]Page, 0, len(sources))
	for i, src := range sources {
		number := src.Number
		if number < 1 {
			number = i + 1
		}

		data := src.Image
		if len(data) == 0 {
			if src.URL == "" {
				return nil, fmt.Errorf("page %d has no image source (bytes or URL)", number)
			}
			log.Printf("[Job %s] Downloading page %d from URL: %s", jobID, number, src.URL)
			downloaded, err := l.download(ctx, jobID, src.URL)
			if err != nil {
				return nil, fmt.Errorf("failed to download page %d: %w", number, err)
			}
			data = downloaded
		}

		mimeType := detectImageType(data)
		if mimeType == "" || mimeType == "application/pdf" {
			if mimeType == "" {
				mimeType = http.DetectContentType(data)
			}
			return nil, errors.NewUnsupportedFormatError(jobID, mimeType)
		}
		pages = append(pages, Page{Number: number, Image: data})
	}
	return pages, nil
}

// download fetches a URL with exponential backoff between attempts
func (l *PageLoader) download(ctx context.Context, jobID string, url string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= l.cfg.MaxRetries; attempt++ {
		data, err := l.fetch(ctx, url)
		if err == nil {
			log.Printf("[Job %s] Download successful on attempt %d: %d bytes", jobID, attempt, len(data))
			return data, nil
		}
		lastErr = err
		log.Printf("[Job %s] Download attempt %d/%d failed: %v", jobID, attempt, l.cfg.MaxRetries, err)

		if attempt == l.cfg.MaxRetries {
			break
		}
		backoff := l.backoff(attempt)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("failed to download after %d attempts: %w", l.cfg.MaxRetries, lastErr)
}

func (l *PageLoader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	if l.cfg.MaxPageSize > 0 && resp.ContentLength > l.cfg.MaxPageSize {
		return nil, fmt.Errorf("page size exceeds maximum: %d > %d bytes", resp.ContentLength, l.cfg.MaxPageSize)
	}

	limit := l.cfg.MaxPageSize
	if limit <= 0 {
		limit = math.MaxInt64
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}

func (l *PageLoader) backoff(attempt int) time.Duration {
	backoff := time.Duration(float64(l.cfg.InitialBackoff) * math.Pow(2, float64(attempt-1)))
	if l.cfg.MaxBackoff > 0 && backoff > l.cfg.MaxBackoff {
		backoff = l.cfg.MaxBackoff
	}
	return backoff
}

// detectImageType identifies page formats from magic bytes. PDF is
// recognized so it can be rejected explicitly.
func detectImageType(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	// PDF: %PDF-
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return "application/pdf"
	}

	// PNG: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	if len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return "image/png"
	}

	// JPEG: 0xFF 0xD8 0xFF
	if bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) {
		return "image/jpeg"
	}

	// GIF: 'G' 'I' 'F' '8' ('7' or '9') 'a'
	if bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")) {
		return "image/gif"
	}

	// WebP: 'R' 'I' 'F' 'F' .... 'W' 'E' 'B' 'P'
	if len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}

	// TIFF: little-endian or big-endian
	if bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}) {
		return "image/tiff"
	}

	// BMP: 'B' 'M'
	if bytes.HasPrefix(data, []byte("BM")) {
		return "image/bmp"
	}

	return ""
}
