// Package recognizer adapts text-recognition engines to SourceResults.
//
// Engines are black boxes here: a local Tesseract through gosseract and
// remote HTTP services speaking the vision extract-text protocol.
package recognizer

import (
	"context"
	"strings"

	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
)

// Recognizer extracts text from one page image. Implementations must be
// safe for concurrent use and honour ctx cancellation where they can.
// A non-nil error means the invocation failed; the ensemble records it as
// a failed SourceResult.
type Recognizer interface {
	ID() string
	Recognize(ctx context.Context, image []byte, language string) (ocr.SourceResult, error)
}

// tesseractLanguages maps ISO 639-1 codes to Tesseract traineddata names
var tesseractLanguages = map[string]string{
	"hi": "hin",
	"en": "eng",
	"ar": "ara",
	"zh": "chi_sim",
	"ja": "jpn",
	"ko": "kor",
	"fr": "fra",
	"de": "deu",
	"es": "spa",
}

// TesseractLanguage resolves a language hint to a Tesseract language. ISO
// codes are mapped, known Tesseract names pass through and anything else
// yields fallback.
func TesseractLanguage(hint, fallback string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return fallback
	}
	if lang, ok := tesseractLanguages[hint]; ok {
		return lang
	}
	for _, lang := range tesseractLanguages {
		if lang == hint {
			return lang
		}
	}
	return fallback
}
