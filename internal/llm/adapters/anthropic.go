package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/af-corp/querysmith/internal/config"
	"github.com/af-corp/querysmith/internal/types"
)

const defaultAnthropicVersion = "2023-06-01"

// jsonPrefill is placed in the assistant turn of structured calls so the
// reply continues a JSON object instead of opening with prose.
const jsonPrefill = "{"

// AnthropicAdapter talks to the Anthropic Messages API.
type AnthropicAdapter struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func NewAnthropicAdapter(cfg config.ProviderConfig, client *http.Client) *AnthropicAdapter {
	return &AnthropicAdapter{cfg: cfg, client: client}
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) Complete(ctx context.Context, req *types.ModelRequest) (*types.ModelResponse, error) {
	httpReq, err := a.TransformRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	out, err := a.TransformResponse(resp)
	if err != nil {
		return nil, err
	}
	if a.prefills(req) {
		out.Text = jsonPrefill + out.Text
	}
	return out, nil
}

func (a *AnthropicAdapter) prefills(req *types.ModelRequest) bool {
	return req.Shape != types.ShapeNone && a.cfg.WantsJSONMode()
}

func (a *AnthropicAdapter) TransformRequest(ctx context.Context, req *types.ModelRequest) (*http.Request, error) {
	temp := req.Temperature
	body := anthropicRequestBody{
		Model:       req.Model,
		System:      req.System,
		MaxTokens:   maxTokens(req),
		Temperature: &temp,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
	}
	if a.prefills(req) {
		body.Messages = append(body.Messages, anthropicMessage{Role: "assistant", Content: jsonPrefill})
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}

	version := a.cfg.APIVersion
	if version == "" {
		version = defaultAnthropicVersion
	}
	h := httpReq.Header
	h.Set("Content-Type", "application/json")
	h.Set("x-api-key", a.cfg.APIKey)
	h.Set("anthropic-version", version)
	for k, v := range a.cfg.Headers {
		if v != "" {
			h.Set(k, v)
		}
	}
	return httpReq, nil
}

func (a *AnthropicAdapter) TransformResponse(resp *http.Response) (*types.ModelResponse, error) {
	body, err := readResponse(a.Name(), resp)
	if err != nil {
		return nil, err
	}

	var parsed anthropicResponseBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal anthropic response: %w", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	in, out := parsed.Usage.InputTokens, parsed.Usage.OutputTokens
	return &types.ModelResponse{
		Text:         text.String(),
		FinishReason: mapStopReason(parsed.StopReason),
		Provider:     a.Name(),
		Model:        parsed.Model,
		Usage:        types.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
	}, nil
}

// mapStopReason folds Anthropic stop reasons onto the shared finish reasons.
// Anything unrecognised passes through unchanged.
func mapStopReason(reason string) string {
	switch reason {
	case "max_tokens":
		return types.FinishLength
	case "end_turn", "stop_sequence", "":
		return types.FinishStop
	}
	return reason
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequestBody struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicResponseBody struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
