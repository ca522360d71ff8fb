package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/af-corp/querysmith/internal/types"
)

var (
	errNoObject   = errors.New("no json object found")
	errMissingSQL = errors.New(`payload has no "sql" field`)
	errEmptyPlan  = errors.New("explanation has neither summary nor steps")
)

// StripFences removes a surrounding markdown code fence, including any
// language tag on the opening line.
func StripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[i+1:]
	} else {
		t = strings.TrimPrefix(t, "```")
	}
	t = strings.TrimSpace(t)
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

// FirstObject returns the first balanced {...} span in s. Braces inside JSON
// string literals do not count toward the balance.
func FirstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// decodeWith tries the whole text first and then its first embedded object.
func decodeWith[T any](text string, decode func([]byte) (T, error)) (T, error) {
	cleaned := StripFences(text)
	v, err := decode([]byte(cleaned))
	if err == nil {
		return v, nil
	}
	span, ok := FirstObject(cleaned)
	if !ok || span == cleaned {
		var zero T
		if !ok {
			return zero, fmt.Errorf("%w: %w", errNoObject, err)
		}
		return zero, err
	}
	return decode([]byte(span))
}

// DecodeSQL parses an SQL-shaped payload. An explicit empty string is valid
// and means the model found the request unsatisfiable.
func DecodeSQL(text string) (*types.Payload, error) {
	return decodeWith(text, func(b []byte) (*types.Payload, error) {
		var env struct {
			SQL *string `json:"sql"`
		}
		if err := json.Unmarshal(b, &env); err != nil {
			return nil, fmt.Errorf("decode sql payload: %w", err)
		}
		if env.SQL == nil {
			return nil, errMissingSQL
		}
		return &types.Payload{Shape: types.ShapeSQL, SQL: StripFences(*env.SQL)}, nil
	})
}

// DecodeExplanation parses an explanation-shaped payload.
func DecodeExplanation(text string) (*types.Payload, error) {
	return decodeWith(text, func(b []byte) (*types.Payload, error) {
		var exp types.Explanation
		if err := json.Unmarshal(b, &exp); err != nil {
			return nil, fmt.Errorf("decode explanation payload: %w", err)
		}
		exp.Summary = strings.TrimSpace(exp.Summary)
		if exp.Summary == "" && len(exp.Steps) == 0 {
			return nil, errEmptyPlan
		}
		return &types.Payload{Shape: types.ShapeExplanation, Explanation: &exp}, nil
	})
}

func decoderFor(shape types.Shape) func(string) (*types.Payload, error) {
	if shape == types.ShapeExplanation {
		return DecodeExplanation
	}
	return DecodeSQL
}

func repairSystemFor(shape types.Shape) string {
	if shape == types.ShapeExplanation {
		return repairExplainSystem
	}
	return repairSQLSystem
}
