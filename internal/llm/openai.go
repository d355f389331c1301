package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/ratchet/internal/cache"
	"github.com/ppiankov/ratchet/internal/model"
	"github.com/ppiankov/ratchet/internal/util"
	"github.com/ppiankov/ratchet/internal/worker"
)

// OpenAIClassifier labels texts through an OpenAI-compatible chat API
type OpenAIClassifier struct {
	client  *openai.Client
	config  Config
	cache   *cache.LabelCache
	limiter *worker.Limiter
	key     string
	// sleep waits between retries (injectable for tests)
	sleep func(ctx context.Context, d time.Duration) error
	// baseBackoff doubles per retry
	baseBackoff time.Duration
}

// NewOpenAIClassifier creates a classifier. The cache and limiter are owned
// by the caller and may be shared; nil disables either.
func NewOpenAIClassifier(config Config, labels *cache.LabelCache, limiter *worker.Limiter) (*OpenAIClassifier, error) {
	if config.APIKey == "" && strings.Contains(config.BaseURL, "api.openai.com") {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	httpClient, err := util.NewHTTPClient(config.Timeout, config.Proxy)
	if err != nil {
		return nil, err
	}
	clientConfig.HTTPClient = httpClient

	return &OpenAIClassifier{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  config,
		cache:   labels,
		limiter: limiter,
		key:     worker.EndpointKey(clientConfig.BaseURL),
		sleep:   sleepContext,

		baseBackoff: time.Second,
	}, nil
}

// CacheStats reports label cache activity; zero without a cache
func (c *OpenAIClassifier) CacheStats() cache.Stats {
	if c.cache == nil {
		return cache.Stats{}
	}
	return c.cache.Stats()
}

// Classify returns a label from the closed frame set
func (c *OpenAIClassifier) Classify(ctx context.Context, text string) (*model.Classification, error) {
	if c.cache != nil {
		if hit, ok := c.cache.Get(text); ok {
			return hit, nil
		}
	}
	resp, err := c.completeWithRetry(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("classifier API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	out, err := ParseResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.Set(text, out); err != nil {
			slog.Warn("label cache write failed", "error", err)
		}
	}
	return out, nil
}

// completeWithRetry retries transient failures with exponential backoff.
// Every attempt waits on the rate limiter.
func (c *OpenAIClassifier) completeWithRetry(ctx context.Context, text string) (openai.ChatCompletionResponse, error) {
	maxTokens := c.config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 200
	}
	req := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(text)},
		},
		MaxTokens:   maxTokens,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var lastErr error
	for attempt := 0; attempt < classifyMaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, c.key); err != nil {
				return openai.ChatCompletionResponse{}, err
			}
		}
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(ctx, err) || attempt == classifyMaxRetries-1 {
			break
		}
		backoff := c.baseBackoff << uint(attempt)
		// other workers hold off too while the endpoint is throttling
		if c.limiter != nil && isRateLimited(err) {
			c.limiter.Pause(c.key, backoff)
		}
		slog.Debug("retrying classification", "attempt", attempt+1, "backoff", backoff, "error", err)
		if err := c.sleep(ctx, backoff); err != nil {
			return openai.ChatCompletionResponse{}, err
		}
	}
	return openai.ChatCompletionResponse{}, lastErr
}
