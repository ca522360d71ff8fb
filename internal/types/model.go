package types

// Purpose labels why the pipeline is calling the model.
type Purpose string

const (
	PurposeGenerate Purpose = "generate"
	PurposeRepair   Purpose = "repair"
	PurposeReview   Purpose = "review"
	PurposeContinue Purpose = "continue"
)

// Shape is the structured output the caller expects back.
type Shape string

const (
	ShapeNone        Shape = ""
	ShapeSQL         Shape = "sql"
	ShapeExplanation Shape = "explanation"
)

// Finish reasons, normalised across providers.
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// ModelRequest is one call to a language model.
type ModelRequest struct {
	Purpose         Purpose `json:"purpose"`
	Model           string  `json:"model"`
	System          string  `json:"system"`
	Prompt          string  `json:"prompt"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`
	Shape           Shape   `json:"shape,omitempty"`
}

// ModelResponse is the raw text a model returned. It is never persisted.
type ModelResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Usage        Usage  `json:"usage"`
}

// Truncated reports whether the provider stopped because of the output limit.
func (r *ModelResponse) Truncated() bool { return r.FinishReason == FinishLength }

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
