package secrets

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/af-corp/querysmith/internal/config"
	"github.com/af-corp/querysmith/internal/filter"
	"github.com/af-corp/querysmith/internal/types"
)

// Detection represents a detected secret in text.
type Detection struct {
	PatternName string // e.g. "AWS Access Key"
	Start       int    // byte offset
	End         int    // byte offset
}

// Scanner scans text for secrets using pre-compiled regex patterns. Any hit
// blocks the request so the text never reaches an external model.
type Scanner struct {
	patterns []Pattern
	cfg      func() config.SecretsFilterConfig
}

// NewScanner creates a scanner with the default secret patterns.
func NewScanner(cfg func() config.SecretsFilterConfig) *Scanner {
	return &Scanner{patterns: DefaultPatterns(), cfg: cfg}
}

func (s *Scanner) Name() string  { return "secrets" }
func (s *Scanner) Enabled() bool { return s.cfg().Enabled }

// Scan checks a single text string for secrets and returns all detections.
func (s *Scanner) Scan(text string) []Detection {
	var detections []Detection
	for _, p := range s.patterns {
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			if p.Confirm != nil && !p.Confirm(text[loc[0]:loc[1]]) {
				continue
			}
			detections = append(detections, Detection{
				PatternName: p.Name,
				Start:       loc[0],
				End:         loc[1],
			})
		}
	}
	return detections
}

// ScanRequest implements filter.Filter.
func (s *Scanner) ScanRequest(_ context.Context, req *types.Request) filter.Result {
	detections := s.Scan(req.Input())
	if len(detections) == 0 {
		return filter.Result{Action: filter.ActionPass, FilterName: "secrets"}
	}
	return filter.Result{
		Action:     filter.ActionBlock,
		FilterName: "secrets",
		Message:    fmt.Sprintf("%s detected in request", strings.Join(patternNames(detections), ", ")),
		Detections: len(detections),
	}
}

// patternNames lists each matched pattern once, in detection order.
func patternNames(detections []Detection) []string {
	var names []string
	for _, d := range detections {
		if !slices.Contains(names, d.PatternName) {
			names = append(names, d.PatternName)
		}
	}
	return names
}
