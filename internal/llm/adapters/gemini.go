package adapters

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/af-corp/querysmith/internal/config"
	"github.com/af-corp/querysmith/internal/types"
)

// GeminiAdapter calls the Gemini API through the genai SDK.
type GeminiAdapter struct {
	client *genai.Client
}

// NewGeminiAdapter builds a genai client. BaseURL and APIVersion from the
// provider config override the SDK defaults when set.
func NewGeminiAdapter(ctx context.Context, cfg config.ProviderConfig, httpClient *http.Client) (*GeminiAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    cfg.BaseURL,
			APIVersion: cfg.APIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiAdapter{client: client}, nil
}

func (a *GeminiAdapter) Name() string { return "gemini" }

func (a *GeminiAdapter) Complete(ctx context.Context, req *types.ModelRequest) (*types.ModelResponse, error) {
	resp, err := a.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), generateConfig(req))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini response has no candidates")
	}

	out := &types.ModelResponse{
		Text:         resp.Text(),
		FinishReason: mapGeminiFinish(resp.Candidates[0].FinishReason),
		Provider:     a.Name(),
		Model:        req.Model,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = types.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func generateConfig(req *types.ModelRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(maxTokens(req)),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Shape != types.ShapeNone {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

func mapGeminiFinish(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonMaxTokens:
		return types.FinishLength
	case genai.FinishReasonStop, genai.FinishReasonUnspecified, "":
		return types.FinishStop
	default:
		return string(reason)
	}
}
