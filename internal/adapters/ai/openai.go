package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/selivandex/market-pulse/internal/errs"
	"github.com/selivandex/market-pulse/pkg/logger"
	"github.com/selivandex/market-pulse/pkg/metrics"
	"github.com/selivandex/market-pulse/pkg/models"
)

const (
	providerName      = "openai"
	defaultMaxRetries = 3
	maxInputRunes     = 4000
)

const systemPrompt = `You score the sentiment of retail investor posts about stocks.
Reply with a single JSON object and nothing else:
{"positive": <0..1>, "negative": <0..1>, "neutral": <0..1>, "compound": <-1..1>}
positive, negative and neutral are proportions that sum to 1.
compound is the overall polarity from -1 (very bearish) to 1 (very bullish).`

// OpenAIScorer scores text with a chat completion model
type OpenAIScorer struct {
	client     *openai.Client
	model      string
	maxRetries int
	backoff    time.Duration
}

// NewOpenAIScorer creates new OpenAI scorer
func NewOpenAIScorer(apiKey, model string) *OpenAIScorer {
	return NewOpenAIScorerWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewOpenAIScorerWithConfig creates a scorer from a client config (custom
// base URL, proxies)
func NewOpenAIScorerWithConfig(cfg openai.ClientConfig, model string) *OpenAIScorer {
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIScorer{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		maxRetries: defaultMaxRetries,
		backoff:    time.Second,
	}
}

// Score implements sentiment.Scorer
func (o *OpenAIScorer) Score(ctx context.Context, text string) (models.SentimentScores, error) {
	if strings.TrimSpace(text) == "" {
		return models.SentimentScores{Neutral: 1}, nil
	}

	content, err := o.completeWithRetry(ctx, truncateRunes(text, maxInputRunes))
	metrics.RecordUpstreamCall(providerName, err)
	if err != nil {
		return models.SentimentScores{}, errs.Mark(err, errs.ErrScoring)
	}

	scores, err := parseScores(content)
	if err != nil {
		logger.Debug("unparseable OpenAI sentiment response",
			zap.String("response", content),
			zap.Error(err),
		)
		return models.SentimentScores{}, errs.Mark(err, errs.ErrScoring)
	}

	return scores, nil
}

func (o *OpenAIScorer) completeWithRetry(ctx context.Context, text string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < o.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s
			backoffDuration := time.Duration(math.Pow(2, float64(attempt-1))) * o.backoff
			logger.Debug("retrying OpenAI sentiment request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoffDuration),
			)

			select {
			case <-time.After(backoffDuration):
			case <-ctx.Done():
				return "", fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			}
		}

		resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: o.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: text},
			},
			Temperature:    0,
			MaxTokens:      100,
			ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		})
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("no choices in response")
			}
			return resp.Choices[0].Message.Content, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return "", err
		}

		logger.Warn("retryable OpenAI error encountered",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
		)
	}

	return "", fmt.Errorf("max retries (%d) exceeded: %w", o.maxRetries, lastErr)
}

// isRetryableError checks if error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode >= 500
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests ||
			reqErr.HTTPStatusCode >= 500
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset")
}

// parseScores reads the model's JSON reply, tolerating markdown fences, and
// clamps every score into its range.
func parseScores(content string) (models.SentimentScores, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var raw struct {
		Positive *float64 `json:"positive"`
		Negative *float64 `json:"negative"`
		Neutral  *float64 `json:"neutral"`
		Compound *float64 `json:"compound"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &raw); err != nil {
		return models.SentimentScores{}, fmt.Errorf("failed to parse scores: %w", err)
	}
	if raw.Compound == nil {
		return models.SentimentScores{}, fmt.Errorf("response has no compound score")
	}

	scores := models.SentimentScores{
		Positive: clamp(deref(raw.Positive), 0, 1),
		Negative: clamp(deref(raw.Negative), 0, 1),
		Neutral:  clamp(deref(raw.Neutral), 0, 1),
		Compound: clamp(*raw.Compound, -1, 1),
	}

	if total := scores.Positive + scores.Negative + scores.Neutral; total > 0 {
		scores.Positive /= total
		scores.Negative /= total
		scores.Neutral /= total
	} else {
		scores.Neutral = 1
	}

	return scores, nil
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
