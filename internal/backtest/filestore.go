package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Store persists backtest runs.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// DefaultMaxRuns caps the file store. The least recently accessed
// records and their files are evicted past the cap.
const DefaultMaxRuns = 100

// indexEntry is what the store keeps in memory and in index.json per
// record; the record body lives in its own file.
type indexEntry struct {
	Summary      Summary   `json:"summary"`
	LastAccessAt time.Time `json:"last_access_at"`
}

// FileStore keeps one JSON file per run plus an index file in a
// directory.
type FileStore struct {
	dir     string
	maxRuns int

	mu    sync.Mutex
	index map[uuid.UUID]*indexEntry
}

// NewFileStore opens (or creates) a store directory and loads its
// index.
func NewFileStore(dir string, maxRuns int) (*FileStore, error) {
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating backtest store directory: %w", err)
	}
	s := &FileStore{
		dir:     dir,
		maxRuns: maxRuns,
		index:   make(map[uuid.UUID]*indexEntry),
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.dir, "index.json")
}

func (s *FileStore) recordPath(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+".json")
}

func (s *FileStore) loadIndex() error {
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading backtest index: %w", err)
	}
	var entries []*indexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parsing backtest index: %w", err)
	}
	for _, e := range entries {
		s.index[e.Summary.ID] = e
	}
	return nil
}

// persistIndex writes the index atomically. Callers hold the lock.
func (s *FileStore) persistIndex() error {
	entries := make([]*indexEntry, 0, len(s.index))
	for _, e := range s.index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Summary.CreatedAt.After(entries[j].Summary.CreatedAt)
	})
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding backtest index: %w", err)
	}
	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing backtest index: %w", err)
	}
	return os.Rename(tmp, s.indexPath())
}

// Save writes or replaces a record, evicting the least recently
// accessed records past the cap.
func (s *FileStore) Save(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.SchemaVersion = SchemaVersion
	if rec.LastAccessAt.IsZero() {
		rec.LastAccessAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding backtest record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.recordPath(rec.ID), data, 0o600); err != nil {
		return fmt.Errorf("writing backtest record: %w", err)
	}
	s.index[rec.ID] = &indexEntry{Summary: rec.Summarize(), LastAccessAt: rec.LastAccessAt}
	s.evictLocked()
	return s.persistIndex()
}

// evictLocked removes least-recently-accessed records over the cap.
func (s *FileStore) evictLocked() {
	for len(s.index) > s.maxRuns {
		var victim uuid.UUID
		var oldest time.Time
		for id, e := range s.index {
			if oldest.IsZero() || e.LastAccessAt.Before(oldest) {
				victim = id
				oldest = e.LastAccessAt
			}
		}
		delete(s.index, victim)
		if err := os.Remove(s.recordPath(victim)); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("run_id", victim.String()).Msg("Failed to remove evicted backtest record")
		}
		log.Debug().Str("run_id", victim.String()).Msg("Evicted backtest record past store cap")
	}
}

// Get loads the full record and refreshes its access time.
func (s *FileStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.index[id]
	if !ok {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.recordPath(id))
	if os.IsNotExist(err) {
		delete(s.index, id)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading backtest record: %w", err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}

	entry.LastAccessAt = time.Now().UTC()
	rec.LastAccessAt = entry.LastAccessAt
	if err := s.persistIndex(); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns summaries newest first.
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := make([]Summary, 0, len(s.index))
	for _, e := range s.index {
		summaries = append(summaries, e.Summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// Delete removes a record and its file.
func (s *FileStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; !ok {
		return ErrNotFound
	}
	delete(s.index, id)
	if err := os.Remove(s.recordPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing backtest record: %w", err)
	}
	return s.persistIndex()
}
