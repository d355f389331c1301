package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/ratchet/internal/model"
)

var ErrMalformedResponse = errors.New("malformed classifier response")

// Config holds classifier endpoint settings
type Config struct {
	// Model name as understood by the endpoint
	Model string

	// APIKey for the endpoint; local OpenAI-compatible servers accept any value
	APIKey string

	// BaseURL of an OpenAI-compatible API (OpenAI, Ollama /v1, vLLM)
	BaseURL string

	// Timeout per request
	Timeout time.Duration

	// Proxy URL for outgoing requests; empty uses the environment
	Proxy string

	// RequestsPerSecond and Burst bound the request rate per endpoint host
	RequestsPerSecond float64
	Burst             int

	// CacheDir holds labels across runs; empty keeps them in memory only
	CacheDir string
	CacheTTL time.Duration

	MaxTokens int
}

// DefaultConfig returns settings for gpt-4o-mini on the public API
func DefaultConfig() Config {
	return Config{
		Model:             "gpt-4o-mini",
		BaseURL:           "https://api.openai.com/v1",
		Timeout:           60 * time.Second,
		RequestsPerSecond: 2,
		Burst:             2,
		CacheTTL:          30 * 24 * time.Hour,
		MaxTokens:         200,
	}
}

// ConfigFromModel converts the configured LLM section
func ConfigFromModel(c model.LLMConfig) Config {
	cfg := DefaultConfig()
	if c.Model != "" {
		cfg.Model = c.Model
	}
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	if c.CacheTTL > 0 {
		cfg.CacheTTL = c.CacheTTL
	}
	cfg.APIKey = c.APIKey
	cfg.Proxy = c.Proxy
	cfg.RequestsPerSecond = c.RequestsPerSecond
	if c.Burst > 0 {
		cfg.Burst = c.Burst
	}
	cfg.CacheDir = c.CacheDir
	return cfg
}

const systemPrompt = "You label short texts about international relations. " +
	"Answer with a JSON object only."

// BuildPrompt asks for one label from the closed set
func BuildPrompt(text string) string {
	names := make([]string, len(model.Frames))
	for i, f := range model.Frames {
		names[i] = string(f)
	}
	return fmt.Sprintf(`Classify the dominant framing of the text into exactly one category: %s.

Respond as {"label": "<CATEGORY>", "confidence": <0..1>, "reason": "<one sentence>"}.

Text:
%s`, strings.Join(names, ", "), text)
}

type rawClassification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// ParseResponse extracts a classification from model output. Markdown code
// fences around the JSON are tolerated; labels outside the closed set are not.
func ParseResponse(content string) (*model.Classification, error) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i >= 0 && j > i {
		s = s[i : j+1]
	}

	var raw rawClassification
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	label, err := model.ParseFrame(raw.Label)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	conf := raw.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return &model.Classification{Label: label, Confidence: conf, Reason: raw.Reason}, nil
}
