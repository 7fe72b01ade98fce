/**
 * Box Merger
 *
 * Clusters overlapping text boxes reported by different recognizers into one
 * region per cluster. Greedy single pass: every box is compared only with
 * its cluster's seed, never with the other members, so clusters are not
 * transitive.
 */

package layout

import (
	"github.com/adverant/nexus/ocrverify-worker/internal/logging"
	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
)

// DefaultIoUThreshold is the overlap a box must exceed to join a cluster
const DefaultIoUThreshold = 0.3

// IoU is the intersection-over-union of two axis-aligned boxes. Invalid
// boxes and empty unions score zero.
func IoU(a, b ocr.BBox) float64 {
	if !a.Valid() || !b.Valid() {
		return 0
	}
	overlapX := max(0, min(a.X2, b.X2)-max(a.X1, b.X1))
	overlapY := max(0, min(a.Y2, b.Y2)-max(a.Y1, b.Y1))
	overlap := overlapX * overlapY

	union := a.Area() + b.Area() - overlap
	if union <= 0 {
		return 0
	}
	return overlap / union
}

// Merger clusters boxes by IoU against the cluster seed
type Merger struct {
	threshold float64
	logger    *logging.Logger
}

// NewMerger returns a merger; a non-positive threshold takes the default
func NewMerger(threshold float64, logger *logging.Logger) *Merger {
	if threshold <= 0 {
		threshold = DefaultIoUThreshold
	}
	return &Merger{threshold: threshold, logger: logger}
}

// Threshold returns the IoU a box must exceed to join a cluster
func (m *Merger) Threshold() float64 {
	return m.threshold
}

// Merge returns one box per cluster, in seed order. Each cluster is
// represented by its highest-confidence member, the earliest on ties.
// Boxes with malformed coordinates are dropped and only boxes on the same
// page are clustered together.
func (m *Merger) Merge(boxes []ocr.TextBox) []ocr.TextBox {
	merged := make([]ocr.TextBox, 0, len(boxes))
	used := make([]bool, len(boxes))
	skipped := 0

	for i, seed := range boxes {
		if used[i] {
			continue
		}
		used[i] = true
		if !seed.BBox.Valid() {
			skipped++
			continue
		}

		best := seed
		for j := i + 1; j < len(boxes); j++ {
			if used[j] {
				continue
			}
			candidate := boxes[j]
			if !candidate.BBox.Valid() || candidate.PageNumber != seed.PageNumber {
				continue
			}
			if IoU(seed.BBox, candidate.BBox) > m.threshold {
				used[j] = true
				if candidate.Confidence > best.Confidence {
					best = candidate
				}
			}
		}
		merged = append(merged, best)
	}

	if skipped > 0 {
		m.logger.Debug("Skipped malformed boxes", "count", skipped, "total", len(boxes))
	}
	return merged
}
