package openai

import (
	"errors"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/tradematch/internal/domain"
)

// parseAPIError extracts a human-readable error from the API response and
// classifies it: 401/403 become ErrAIAuthFailed, 429 ErrRateLimited,
// everything else ErrAICallFailed.
func (b *Backend) parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return domain.NewAIError(b.name, fmt.Errorf("API error %d: %s: %w",
			reqErr.HTTPStatusCode, detail, classify(reqErr.HTTPStatusCode)))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewAIError(b.name, fmt.Errorf("API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, classify(apiErr.HTTPStatusCode)))
	}

	return domain.NewAIError(b.name, fmt.Errorf("request failed: %w: %w", domain.ErrAICallFailed, err))
}

func classify(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrAIAuthFailed
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	default:
		return domain.ErrAICallFailed
	}
}

// extractDetail extracts the "detail" field from a JSON error body
// (FastAPI-style servers such as vLLM or Nebius).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
