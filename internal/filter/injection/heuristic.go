package injection

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/af-corp/querysmith/internal/config"
	"github.com/af-corp/querysmith/internal/filter"
	"github.com/af-corp/querysmith/internal/types"
)

// Each distinct category beyond the first raises the score by this much.
const categoryBonus = 0.05

// Detection records a matched injection pattern. Start and End are byte
// offsets into the normalized text.
type Detection struct {
	RuleName string
	Severity float64
	Category string
	Start    int
	End      int
}

// Scanner scans request text for prompt injection patterns.
type Scanner struct {
	rules []Rule
	cfg   func() config.InjectionFilterConfig
}

func NewScanner(cfg func() config.InjectionFilterConfig) *Scanner {
	return &Scanner{rules: DefaultRules(), cfg: cfg}
}

func (s *Scanner) Name() string  { return "injection" }
func (s *Scanner) Enabled() bool { return s.cfg().Enabled }

// normalize drops invisible format characters (zero-width spaces, joiners,
// bidi marks) that would otherwise split a phrase past the patterns.
func normalize(text string) string {
	if !strings.ContainsFunc(text, isFormat) {
		return text
	}
	return strings.Map(func(r rune) rune {
		if isFormat(r) {
			return -1
		}
		return r
	}, text)
}

func isFormat(r rune) bool { return unicode.Is(unicode.Cf, r) }

// Scan returns every rule match in text.
func (s *Scanner) Scan(text string) []Detection {
	text = normalize(text)
	var detections []Detection
	for _, r := range s.rules {
		for _, loc := range r.Regex.FindAllStringIndex(text, -1) {
			detections = append(detections, Detection{
				RuleName: r.Name,
				Severity: r.Severity,
				Category: r.Category,
				Start:    loc[0],
				End:      loc[1],
			})
		}
	}
	return detections
}

// Score returns the detections in text and a score in [0, 1]: the highest
// severity found, raised slightly for every additional category matched.
func (s *Scanner) Score(text string) ([]Detection, float64) {
	detections := s.Scan(text)
	return detections, score(detections)
}

func score(detections []Detection) float64 {
	highest := 0.0
	for _, d := range detections {
		highest = max(highest, d.Severity)
	}
	if n := len(categories(detections)); n > 1 {
		highest += categoryBonus * float64(n-1)
	}
	return min(highest, 1.0)
}

func categories(detections []Detection) []string {
	var out []string
	for _, d := range detections {
		if !slices.Contains(out, d.Category) {
			out = append(out, d.Category)
		}
	}
	slices.Sort(out)
	return out
}

// ScanRequest implements filter.Filter. Generate requests are scanned on the
// prompt, the SQL modes on the submitted statement.
func (s *Scanner) ScanRequest(_ context.Context, req *types.Request) filter.Result {
	detections, sc := s.Score(req.Input())
	cfg := s.cfg()

	action := filter.ActionPass
	switch {
	case sc >= cfg.BlockThreshold:
		action = filter.ActionBlock
	case sc >= cfg.FlagThreshold:
		action = filter.ActionFlag
	}

	result := filter.Result{Action: action, FilterName: "injection", Score: sc}
	if action == filter.ActionPass {
		return result
	}
	result.Detections = len(detections)
	if action == filter.ActionBlock {
		result.Message = fmt.Sprintf("prompt injection detected (score %.2f; %s)",
			sc, strings.Join(categories(detections), ", "))
	}
	return result
}
