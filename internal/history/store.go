// Package history persists recent analysis reports in a BoltDB file.
//
// Entries are kept newest first. Adding a report for a (url, title) pair that
// is already stored replaces the older entry, and the list is capped at the
// configured number of items.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/PentesterFlow/pagescope/internal/report"
)

// DefaultMaxItems is the history cap when none is configured.
const DefaultMaxItems = 20

var (
	bucketHistory = []byte("history")
	keyReports    = []byte("reports")
)

// ErrNotFound is returned for an index outside the stored history.
var ErrNotFound = errors.New("history entry not found")

// Entry is one stored report.
type Entry struct {
	SavedAt time.Time                  `json:"savedAt"`
	Report  *report.PageAnalysisReport `json:"report"`
}

// Store is a BoltDB-backed report history.
type Store struct {
	mu       sync.Mutex
	db       *bolt.DB
	path     string
	maxItems int

	now func() time.Time
}

// Open opens (creating if needed) the history database at path.
func Open(path string, maxItems int) (*Store, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketHistory)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Store{db: db, path: path, maxItems: maxItems, now: time.Now}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Add stores r at the front of the history.
func (s *Store) Add(r *report.PageAnalysisReport) error {
	if r == nil {
		return errors.New("nil report")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		entries, err := load(tx)
		if err != nil {
			return err
		}

		kept := make([]Entry, 0, len(entries)+1)
		kept = append(kept, Entry{SavedAt: s.now().UTC(), Report: r})
		for _, e := range entries {
			if e.Report != nil && e.Report.URL == r.URL && e.Report.Title == r.Title {
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) > s.maxItems {
			kept = kept[:s.maxItems]
		}

		return save(tx, kept)
	})
}

// List returns all entries, newest first.
func (s *Store) List() ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		entries, err = load(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Get returns the entry at index i (0 is the newest).
func (s *Store) Get(i int) (*Entry, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(entries) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrNotFound, i, len(entries))
	}
	return &entries[i], nil
}

// Remove deletes the entry at index i.
func (s *Store) Remove(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		entries, err := load(tx)
		if err != nil {
			return err
		}
		if i < 0 || i >= len(entries) {
			return fmt.Errorf("%w: index %d of %d", ErrNotFound, i, len(entries))
		}
		return save(tx, append(entries[:i], entries[i+1:]...))
	})
}

// Clear deletes every entry.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Delete(keyReports)
	})
}

// Len returns the number of stored entries.
func (s *Store) Len() (int, error) {
	entries, err := s.List()
	return len(entries), err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func load(tx *bolt.Tx) ([]Entry, error) {
	b := tx.Bucket(bucketHistory)
	if b == nil {
		return nil, fmt.Errorf("bucket not found")
	}

	data := b.Get(keyReports)
	if data == nil {
		return []Entry{}, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return entries, nil
}

func save(tx *bolt.Tx, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	return tx.Bucket(bucketHistory).Put(keyReports, data)
}
