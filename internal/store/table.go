// Package store persists the SLA tracking and assignment tables, either as
// JSON files or as Postgres jsonb rows.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Table is a key to JSON-object map kept in one file. The in-memory map is
// authoritative for the owning process and every write goes through to disk.
// Readers in other processes call Reload or Watch to pick up changes.
type Table[T any] struct {
	path    string
	mu      sync.RWMutex
	rows    map[string]T
	modTime time.Time
}

// OpenTable loads the table at path. A missing file starts an empty table. A
// corrupt file is moved aside and the table starts empty.
func OpenTable[T any](path string) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create table dir: %w", err)
	}
	t := &Table[T]{path: path, rows: map[string]T{}}
	rows, mod, err := t.read()
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		log.Error().Err(err).Str("path", path).Str("moved_to", aside).Msg("table unreadable, starting empty")
		if rerr := os.Rename(path, aside); rerr != nil {
			log.Error().Err(rerr).Str("path", path).Msg("move corrupt table aside")
		}
	default:
		t.rows = rows
		t.modTime = mod
	}
	return t, nil
}

func (t *Table[T]) read() (map[string]T, time.Time, error) {
	fi, err := os.Stat(t.path)
	if err != nil {
		return nil, time.Time{}, err
	}
	b, err := os.ReadFile(t.path)
	if err != nil {
		return nil, time.Time{}, err
	}
	rows := map[string]T{}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &rows); err != nil {
			return nil, time.Time{}, err
		}
	}
	return rows, fi.ModTime(), nil
}

// Reload re-reads the file if it changed on disk. An unreadable file leaves
// the current rows in place.
func (t *Table[T]) Reload() error {
	fi, err := os.Stat(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	t.mu.RLock()
	same := fi.ModTime().Equal(t.modTime)
	t.mu.RUnlock()
	if same {
		return nil
	}
	rows, mod, err := t.read()
	if err != nil {
		return fmt.Errorf("reload %s: %w", t.path, err)
	}
	t.mu.Lock()
	t.rows = rows
	t.modTime = mod
	t.mu.Unlock()
	return nil
}

// Watch reloads the table every interval until ctx is done.
func (t *Table[T]) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Reload(); err != nil {
				log.Error().Err(err).Str("path", t.path).Msg("table reload")
			}
		}
	}
}

// Get returns the row for key.
func (t *Table[T]) Get(key string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.rows[key]
	return v, ok
}

// Put stores v under key. The row stays in memory even if the file write
// fails, so the next successful write persists it.
func (t *Table[T]) Put(key string, v T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[key] = v
	return t.saveLocked()
}

// Delete removes key. Deleting an absent key does not touch the file.
func (t *Table[T]) Delete(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[key]; !ok {
		return nil
	}
	delete(t.rows, key)
	return t.saveLocked()
}

// Values returns all rows ordered by key.
func (t *Table[T]) Values() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.rows))
	for k := range t.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, t.rows[k])
	}
	return out
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

func (t *Table[T]) saveLocked() error {
	b, err := json.MarshalIndent(t.rows, "", "  ")
	if err != nil {
		return err
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", t.path, err)
	}
	if fi, err := os.Stat(t.path); err == nil {
		t.modTime = fi.ModTime()
	}
	return nil
}
