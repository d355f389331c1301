package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/ratchet/internal/model"
)

var summit = &model.Classification{Label: model.FrameDiplomacy, Confidence: 0.9, Reason: "summit"}

func TestKey(t *testing.T) {
	a := Key("gpt-4o-mini", "summit")
	if a != Key("gpt-4o-mini", "  summit\n") {
		t.Error("expected surrounding whitespace to be ignored")
	}
	if a == Key("gpt-4o", "summit") {
		t.Error("expected model to change the key")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got %q", a)
	}
}

func TestEntryExpired(t *testing.T) {
	now := time.Now()
	if (Entry{}).Expired(now) {
		t.Error("zero expiry must never expire")
	}
	if !(Entry{ExpiresAt: now.Add(-time.Second)}).Expired(now) {
		t.Error("expected past deadline to be expired")
	}
}

func TestMemoryTier(t *testing.T) {
	m := NewMemoryTier(time.Minute)
	e := Entry{Model: "m", Result: *summit}
	if err := m.Store("k", e); err != nil {
		t.Fatal(err)
	}
	got, ok := m.Load("k")
	if !ok || got.Result != *summit {
		t.Fatalf("expected hit, got %+v %v", got, ok)
	}

	// already expired entries are not stored
	_ = m.Store("old", Entry{ExpiresAt: time.Now().Add(-time.Minute)})
	if m.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", m.Len())
	}
	_ = m.Remove("k")
	if _, ok := m.Load("k"); ok {
		t.Error("expected miss after remove")
	}
}

func TestDiskTierShardsAndRemoves(t *testing.T) {
	root := t.TempDir()
	d := NewDiskTier(root)
	key := Key("m", "text")

	if err := d.Store(key, Entry{Model: "m", Result: *summit}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, key[:2], key+".json")); err != nil {
		t.Errorf("expected sharded file: %v", err)
	}
	got, ok := d.Load(key)
	if !ok || got.Result.Label != model.FrameDiplomacy {
		t.Fatalf("expected hit, got %+v %v", got, ok)
	}

	if err := d.Remove(key); err != nil {
		t.Errorf("Remove failed: %v", err)
	}
	if err := d.Remove(key); err != nil {
		t.Errorf("Remove of a missing key should not fail: %v", err)
	}
}

func TestDiskTierExpiry(t *testing.T) {
	d := NewDiskTier(t.TempDir())
	_ = d.Store("abc", Entry{Result: *summit, ExpiresAt: time.Now().Add(-time.Second)})
	if _, ok := d.Load("abc"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestDiskTierPrune(t *testing.T) {
	root := t.TempDir()
	d := NewDiskTier(root)
	now := time.Now()

	_ = d.Store("aa1", Entry{Result: *summit})
	_ = d.Store("aa2", Entry{Result: *summit, ExpiresAt: now.Add(-time.Hour)})
	_ = d.Store("bb1", Entry{Result: model.Classification{Label: "SARCASM"}})
	if err := os.WriteFile(filepath.Join(root, "aa", "broken.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}

	n, err := d.Prune(now)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 pruned entries, got %d", n)
	}
	if _, ok := d.Load("aa1"); !ok {
		t.Error("expected live entry to survive")
	}

	if n, err := NewDiskTier(filepath.Join(root, "missing")).Prune(now); err != nil || n != 0 {
		t.Errorf("missing root: got %d, %v", n, err)
	}
}

func TestLabelCachePromotesDiskHits(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "labels")

	first := New(Options{Model: "gpt-4o-mini", TTL: time.Hour, Dir: dir})
	if err := first.Set("talks", summit); err != nil {
		t.Fatal(err)
	}

	// a fresh process sees the disk entry
	second := New(Options{Model: "gpt-4o-mini", TTL: time.Hour, Dir: dir})
	got, ok := second.Get("talks")
	if !ok || *got != *summit {
		t.Fatalf("expected disk hit, got %+v %v", got, ok)
	}
	if _, ok := second.tiers[0].Load(Key("gpt-4o-mini", "talks")); !ok {
		t.Error("expected disk hit to be promoted to memory")
	}

	st := second.Stats()
	if st.Hits != 1 || st.Promoted != 1 || st.Misses != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestLabelCacheMemoryOnly(t *testing.T) {
	lc := New(Options{Model: "gpt-4o-mini"})

	if _, ok := lc.Get("talks"); ok {
		t.Fatal("expected miss on empty cache")
	}
	if err := lc.Set("talks", summit); err != nil {
		t.Fatal(err)
	}
	if _, ok := lc.Get("talks"); !ok {
		t.Error("expected hit")
	}
	if n, err := lc.Prune(); err != nil || n != 0 {
		t.Errorf("memory-only prune: %d, %v", n, err)
	}
	if err := lc.Forget("talks"); err != nil {
		t.Fatal(err)
	}
	if _, ok := lc.Get("talks"); ok {
		t.Error("expected miss after forget")
	}

	st := lc.Stats()
	if st.Hits != 1 || st.Misses != 2 || st.Writes != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestLabelCacheRejectsInvalidEntries(t *testing.T) {
	lc := New(Options{Model: "gpt-4o-mini"})

	_ = lc.tiers[0].Store(Key("gpt-4o-mini", "odd"), Entry{Model: "gpt-4o-mini", Result: model.Classification{Label: "SARCASM"}})
	if _, ok := lc.Get("odd"); ok {
		t.Error("expected label outside the frame set to miss")
	}

	_ = lc.tiers[0].Store(Key("gpt-4o-mini", "other"), Entry{Model: "gpt-4o", Result: *summit})
	if _, ok := lc.Get("other"); ok {
		t.Error("expected entry from another model to miss")
	}
}

func TestLabelCacheExpiry(t *testing.T) {
	lc := New(Options{Model: "m", TTL: time.Minute, Dir: t.TempDir()})
	base := time.Now().Add(-time.Hour)
	lc.now = func() time.Time { return base }

	if err := lc.Set("talks", summit); err != nil {
		t.Fatal(err)
	}
	if _, ok := lc.Get("talks"); ok {
		t.Error("expected entry written an hour ago with a minute TTL to miss")
	}
}
