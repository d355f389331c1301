// Package cache keeps classifier labels so that a text is sent to the
// model at most once per model name.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ppiankov/ratchet/internal/model"
)

// Entry is one cached classification
type Entry struct {
	Model     string               `json:"model"`
	Result    model.Classification `json:"result"`
	StoredAt  time.Time            `json:"stored_at"`
	ExpiresAt time.Time            `json:"expires_at,omitempty"`
}

// Expired reports whether the entry is past its expiry at now.
// A zero ExpiresAt never expires.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// valid rejects entries whose label fell out of the closed frame set
func (e Entry) valid() bool {
	_, err := model.ParseFrame(string(e.Result.Label))
	return err == nil
}

// Tier is one storage level of a LabelCache
type Tier interface {
	Load(key string) (Entry, bool)
	Store(key string, e Entry) error
	Remove(key string) error
	Reset() error
}

// Key derives the lookup key for text under a classifier model. Surrounding
// whitespace is not significant; a model change always yields a new key.
func Key(modelName, text string) string {
	h := sha256.New()
	h.Write([]byte(modelName))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(h.Sum(nil))
}
