// Package file provides the durable JSON-document market tracker used by
// the resolution bot to guarantee at-most-one settlement per market across
// process restarts.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/polycross/relaybot/internal/domain"
)

// Tracker implements domain.MarketTracker on a single JSON file mapping
// market ID to its resolution record. Every MarkResolved rewrites the file
// atomically (temp file + rename) before returning, so a crash after
// MarkResolved can never lose a recorded settlement.
type Tracker struct {
	path string

	mu      sync.Mutex
	records map[string]domain.TrackedMarket
}

// NewTracker opens (or creates) the tracker document at path and loads the
// full resolved set. A missing file starts empty; an unreadable or corrupt
// file is an error, since running without the dedup record risks double
// settlement.
func NewTracker(path string) (*Tracker, error) {
	t := &Tracker{
		path:    path,
		records: make(map[string]domain.TrackedMarket),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file: read tracker %s: %w", path, err)
	}
	if len(data) == 0 {
		return t, nil
	}

	if err := json.Unmarshal(data, &t.records); err != nil {
		return nil, fmt.Errorf("file: parse tracker %s: %w", path, err)
	}
	return t, nil
}

// Load returns every tracked record, resolved markets first is not
// guaranteed; output is sorted by market ID for stable iteration.
func (t *Tracker) Load(_ context.Context) ([]domain.TrackedMarket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.TrackedMarket, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

// IsResolved reports whether marketID has a recorded resolution.
func (t *Tracker) IsResolved(_ context.Context, marketID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[marketID]
	return ok && rec.Resolved, nil
}

// MarkResolved records a settlement and persists the document before
// returning. Re-recording an already-resolved market keeps the original
// record untouched.
func (t *Tracker) MarkResolved(_ context.Context, res domain.Resolution) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.records[res.MarketID]; ok && rec.Resolved {
		return nil
	}

	outcome := res.Outcome
	at := res.ResolvedAt
	t.records[res.MarketID] = domain.TrackedMarket{
		MarketID:   res.MarketID,
		Resolved:   true,
		Outcome:    &outcome,
		ResolvedAt: &at,
	}

	if err := t.persistLocked(); err != nil {
		// Roll back the in-memory record so a retry next cycle re-persists.
		delete(t.records, res.MarketID)
		return err
	}
	return nil
}

func (t *Tracker) persistLocked() error {
	data, err := json.MarshalIndent(t.records, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode tracker: %w", err)
	}

	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, ".tracker-*.json")
	if err != nil {
		return fmt.Errorf("file: create temp tracker: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file: write tracker: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file: sync tracker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: close tracker: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: replace tracker %s: %w", t.path, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketTracker = (*Tracker)(nil)
