package llm

import (
	"log/slog"

	"github.com/ppiankov/ratchet/internal/cache"
	"github.com/ppiankov/ratchet/internal/model"
	"github.com/ppiankov/ratchet/internal/worker"
)

// NewClassifier wires the configured endpoint with a label cache and a
// per-host rate limiter. Stale disk entries are pruned on the way.
func NewClassifier(c model.LLMConfig) (*OpenAIClassifier, error) {
	cfg := ConfigFromModel(c)
	labels := cache.New(cache.Options{Model: cfg.Model, TTL: cfg.CacheTTL, Dir: cfg.CacheDir})
	if n, err := labels.Prune(); err != nil {
		slog.Warn("label cache prune failed", "dir", cfg.CacheDir, "error", err)
	} else if n > 0 {
		slog.Debug("pruned label cache", "removed", n)
	}
	limiter := worker.NewLimiter(cfg.RequestsPerSecond, cfg.Burst)
	return NewOpenAIClassifier(cfg, labels, limiter)
}
