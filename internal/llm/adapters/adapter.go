package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/af-corp/querysmith/internal/types"
)

// Adapter sends one model request to a provider and normalises the reply.
type Adapter interface {
	Name() string
	Complete(ctx context.Context, req *types.ModelRequest) (*types.ModelResponse, error)
}

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, truncateBody(e.Body))
}

// Retryable reports whether another route may succeed where this one failed.
// Client errors other than throttling are caused by the request itself.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func truncateBody(s string) string {
	const max = 512
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// defaultMaxTokens applies when a request does not cap output itself.
const defaultMaxTokens = 4096

func maxTokens(req *types.ModelRequest) int {
	if req.MaxOutputTokens > 0 {
		return req.MaxOutputTokens
	}
	return defaultMaxTokens
}

// maxResponseBytes caps how much of a provider reply is read.
const maxResponseBytes = 8 << 20

// readResponse drains and closes resp.Body. Non-200 replies become a
// *StatusError carrying the body.
func readResponse(provider string, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
