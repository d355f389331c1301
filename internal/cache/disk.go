package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const entryExt = ".json"

// DiskTier stores one JSON document per entry under root, sharded by the
// first two key characters so large corpora do not crowd one directory.
type DiskTier struct {
	root string
}

func NewDiskTier(root string) *DiskTier {
	return &DiskTier{root: root}
}

func (d *DiskTier) Load(key string) (Entry, bool) {
	path := d.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false
	}
	if e.Expired(time.Now()) {
		_ = os.Remove(path)
		return Entry{}, false
	}
	return e, true
}

// Store writes a temp file and renames it into place, so a concurrent
// reader sees the old document or the new one.
func (d *DiskTier) Store(key string, e Entry) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("encode label entry: %w", err)
	}
	path := d.path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create shard dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp entry: %w", err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write label entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("commit label entry: %w", err)
	}
	return nil
}

func (d *DiskTier) Remove(key string) error {
	if err := os.Remove(d.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (d *DiskTier) Reset() error {
	return os.RemoveAll(d.root)
}

// Prune deletes expired and unreadable entries and returns how many it
// removed. A missing root is not an error.
func (d *DiskTier) Prune(now time.Time) (int, error) {
	removed := 0
	err := filepath.WalkDir(d.root, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if de.IsDir() || !strings.HasSuffix(path, entryExt) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var e Entry
		if json.Unmarshal(data, &e) == nil && !e.Expired(now) && e.valid() {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	return removed, err
}

func (d *DiskTier) path(key string) string {
	shard := "__"
	if len(key) >= 2 {
		shard = key[:2]
	}
	return filepath.Join(d.root, shard, key+entryExt)
}
