package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is the normalised interpretation of a model response.
// SQL modes fill SQL; explain fills Explanation.
type Payload struct {
	Shape       Shape
	SQL         string
	Explanation *Explanation
}

// Explanation is the structured answer for explain mode.
type Explanation struct {
	Summary          string   `json:"summary"`
	Steps            TextList `json:"steps"`
	OutputColumns    TextList `json:"output_columns"`
	PerformanceNotes TextList `json:"performance_notes"`
	Risks            TextList `json:"risks"`
}

// TextList decodes a JSON string, an array of strings, or an array of
// objects into a flat list of strings. Models are inconsistent about which
// of these they emit for list-like fields.
type TextList []string

func (l *TextList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s = strings.TrimSpace(s); s != "" {
			*l = TextList{s}
		}
		return nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		out := make(TextList, 0, len(items))
		for _, item := range items {
			s, err := flattenItem(item)
			if err != nil {
				return err
			}
			if s != "" {
				out = append(out, s)
			}
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("text list: unexpected JSON %q", truncate(string(data), 32))
	}
}

// flattenItem renders one list element as text. Objects become
// "name: description" when they carry those keys, otherwise key=value pairs.
func flattenItem(item json.RawMessage) (string, error) {
	item = bytes.TrimSpace(item)
	if len(item) == 0 {
		return "", nil
	}
	switch item[0] {
	case '"':
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	case '{':
		var obj map[string]any
		if err := json.Unmarshal(item, &obj); err != nil {
			return "", err
		}
		name := firstString(obj, "name", "column", "step", "title")
		desc := firstString(obj, "description", "detail", "details", "note", "type")
		switch {
		case name != "" && desc != "":
			return name + ": " + desc, nil
		case name != "":
			return name, nil
		case desc != "":
			return desc, nil
		}
		compact, err := json.Marshal(obj)
		if err != nil {
			return "", err
		}
		return string(compact), nil
	default:
		return strings.TrimSpace(string(item)), nil
	}
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := obj[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
