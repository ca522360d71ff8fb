package pipeline

import (
	"strings"

	"github.com/af-corp/querysmith/internal/types"
)

// Prompt is the instruction pair sent to the model for one mode.
type Prompt struct {
	System string
	User   string
	Shape  types.Shape
}

// Validate checks the envelope before anything external is touched: the mode
// must be known and the field it reads must be non-blank.
func Validate(req *types.Request) error {
	if req.Mode == "" {
		return newError(KindInvalidMode, "mode is required")
	}
	mode, ok := types.ParseMode(string(req.Mode))
	if !ok {
		return newError(KindInvalidMode, "unknown mode "+string(req.Mode))
	}
	req.Mode = mode

	if strings.TrimSpace(req.Input()) == "" {
		if mode.TakesPrompt() {
			return newError(KindMissingInput, "prompt is required for "+string(mode))
		}
		return newError(KindMissingInput, "sql is required for "+string(mode))
	}
	return nil
}

// BuildPrompt selects the mode's fixed system instruction and assembles the
// user prompt with the schema in its own delimited block. It performs no I/O.
func BuildPrompt(req *types.Request, schema string) (*Prompt, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	if !req.Mode.CallsModel() {
		return nil, newError(KindInvalidMode, "mode "+string(req.Mode)+" has no model prompt")
	}
	if req.Mode == types.ModeGenerate && strings.TrimSpace(schema) == "" {
		return nil, newError(KindSchemaRequired, "generate requires schema context")
	}

	var payload string
	if req.Mode.TakesPrompt() {
		payload = block("REQUEST", req.Prompt)
	} else {
		payload = block("SQL", req.SQL)
	}

	return &Prompt{
		System: systemPrompts[string(req.Mode)],
		User:   joinBlocks(schemaBlock(schema), payload),
		Shape:  req.Mode.Shape(),
	}, nil
}
