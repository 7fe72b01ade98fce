package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/adverant/nexus/ocrverify-worker/internal/ocr"
)

type formatter struct {
	colors map[string]*color.Color
}

func newFormatter() *formatter {
	return &formatter{
		colors: map[string]*color.Color{
			"green":  color.New(color.FgGreen),
			"yellow": color.New(color.FgYellow),
			"red":    color.New(color.FgRed),
			"cyan":   color.New(color.FgCyan),
			"white":  color.New(color.FgWhite, color.Bold),
		},
	}
}

func (f *formatter) write(w io.Writer, out output) {
	for _, page := range out.Pages {
		fused := page.Fused
		f.colors["cyan"].Fprintf(w, "Page %d", page.PageNumber)
		fmt.Fprintf(w, "  method=%s confidence=%.3f sources=%s\n",
			fused.Method, fused.Confidence, strings.Join(fused.ContributingSources, ","))
		for _, s := range page.Sources {
			if s.Status == ocr.StatusFailed {
				f.colors["red"].Fprintf(w, "  ! %s failed: %s\n", s.SourceID, s.Error)
			}
		}
	}

	fmt.Fprintln(w)
	f.colors["white"].Fprintln(w, "Fused text")
	fmt.Fprintln(w, out.Fused.Text)

	if out.Report == nil {
		return
	}

	fmt.Fprintln(w)
	f.colors["white"].Fprintln(w, "Verification")
	for _, r := range out.Report.Results {
		f.statusColor(r.MatchStatus).Fprintf(w, "[%-13s]", r.MatchStatus)
		fmt.Fprintf(w, " %s: %q vs %q (similarity %.3f, confidence %.3f)\n",
			r.FieldName, r.UserValue, r.ExtractedText, r.Similarity, r.Confidence)
	}

	s := out.Report.Summary
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d fields: ", s.Total)
	f.colors["green"].Fprintf(w, "%d match", s.Matches)
	fmt.Fprint(w, ", ")
	f.colors["yellow"].Fprintf(w, "%d partial", s.PartialMatches)
	fmt.Fprint(w, ", ")
	f.colors["red"].Fprintf(w, "%d mismatch", s.Mismatches)
	fmt.Fprintf(w, "  match rate %.1f%%, overall confidence %.3f\n", s.MatchRate*100, s.OverallConfidence)
}

func (f *formatter) statusColor(status ocr.MatchStatus) *color.Color {
	switch status {
	case ocr.Match:
		return f.colors["green"]
	case ocr.PartialMatch:
		return f.colors["yellow"]
	default:
		return f.colors["red"]
	}
}
