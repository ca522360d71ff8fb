package types

import "strings"

// Mode selects what the pipeline does with a request.
type Mode string

const (
	ModeGenerate Mode = "generate"
	ModeOptimize Mode = "optimize"
	ModeValidate Mode = "validate"
	ModeExplain  Mode = "explain"
	ModeFormat   Mode = "format"
)

// Modes lists every supported mode in display order.
func Modes() []Mode {
	return []Mode{ModeGenerate, ModeOptimize, ModeValidate, ModeExplain, ModeFormat}
}

// ParseMode returns the mode for s. Matching ignores case and surrounding space.
func ParseMode(s string) (Mode, bool) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeGenerate, ModeOptimize, ModeValidate, ModeExplain, ModeFormat:
		return m, true
	default:
		return "", false
	}
}

// TakesPrompt reports whether the mode reads the natural-language prompt
// instead of candidate SQL.
func (m Mode) TakesPrompt() bool { return m == ModeGenerate }

// ProducesSQL reports whether the mode's final artifact is SQL text.
func (m Mode) ProducesSQL() bool { return m != ModeExplain }

// CallsModel reports whether the mode needs the language model at all.
func (m Mode) CallsModel() bool { return m != ModeFormat }

// Shape is the structured payload shape a mode expects from the model.
func (m Mode) Shape() Shape {
	if m == ModeExplain {
		return ShapeExplanation
	}
	return ShapeSQL
}
