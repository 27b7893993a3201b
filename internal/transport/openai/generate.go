package openai

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tradematch/internal/domain"
	"github.com/kailas-cloud/tradematch/internal/metrics"
)

const (
	opGenerate = "generate"

	priceTemperature = 0.2
	priceMaxTokens   = 64
)

const pricePrompt = `You appraise second-hand goods for a peer-to-peer exchange.
Estimate a fair resale price in %s for the item below.
Reply with a JSON object of the form {"price": <integer>} and nothing else.

Item:
%s`

// GenerateText implements domain.TextGenerator via chat completions.
// ResponseFormatJSON asks the server for a JSON object reply.
func (b *Backend) GenerateText(ctx context.Context, prompt string, cfg domain.GenerationConfig) (string, error) {
	ctx, cancel, err := b.begin(ctx)
	if err != nil {
		b.countError("rate_limited")
		return "", err
	}
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: b.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		User:        b.user,
	}
	if cfg.Format == domain.ResponseFormatJSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()

	resp, err := b.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(b.name, b.chatModel, opGenerate, "error").Inc()
		b.countError("api_error")
		return "", b.parseAPIError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		metrics.EmbeddingRequestsTotal.WithLabelValues(b.name, b.chatModel, opGenerate, "error").Inc()
		b.countError("empty_response")
		return "", domain.NewAIError(b.name,
			fmt.Errorf("empty completion: %w", domain.ErrAIResponseParseFailed))
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(b.name, b.chatModel, opGenerate, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(b.name, b.chatModel, opGenerate).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(b.name, b.chatModel, "total").Add(float64(resp.Usage.TotalTokens))
	}

	b.logger.Debug("Generation call completed",
		zap.Duration("duration", duration),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	return resp.Choices[0].Message.Content, nil
}

// PredictPrice implements domain.PricePredictor on top of GenerateText.
func (b *Backend) PredictPrice(ctx context.Context, text string) (int64, error) {
	out, err := b.GenerateText(ctx, fmt.Sprintf(pricePrompt, b.currency, text), domain.GenerationConfig{
		Temperature: priceTemperature,
		MaxTokens:   priceMaxTokens,
		Format:      domain.ResponseFormatJSON,
	})
	if err != nil {
		return 0, err
	}

	price, err := ParsePrice(out)
	if err != nil {
		b.countError("parse_error")
		return 0, domain.NewAIError(b.name, err)
	}
	return price, nil
}

// ParsePrice extracts the "price" field from a JSON reply. Code fences are
// tolerated; a missing, non-numeric or negative price is a parse failure.
func ParsePrice(reply string) (int64, error) {
	body := strings.TrimSpace(reply)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")

	var parsed struct {
		Price *float64 `json:"price"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &parsed); err != nil {
		return 0, fmt.Errorf("decode price reply: %w: %w", domain.ErrAIResponseParseFailed, err)
	}
	if parsed.Price == nil {
		return 0, fmt.Errorf("price field missing: %w", domain.ErrAIResponseParseFailed)
	}
	p := *parsed.Price
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > math.MaxInt64/2 {
		return 0, fmt.Errorf("price %v out of range: %w", p, domain.ErrAIResponseParseFailed)
	}
	return int64(math.Round(p)), nil
}
