// Package statefile persists incremental-build records as a YAML file.
// The whole table is rewritten atomically on every Put, so a crash leaves
// either the previous or the new table on disk, never a torn one.
package statefile

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/alnah/go-docconv/internal/fileutil"
	"github.com/alnah/go-docconv/internal/yamlutil"
)

// Version is the on-disk schema version.
const Version = 1

// Sentinel errors.
var (
	ErrCorrupt            = errors.New("state file is corrupt")
	ErrUnsupportedVersion = errors.New("unsupported state file version")
)

// Entry is one persisted record, keyed by source path.
type Entry struct {
	Source      string    `yaml:"-"`
	Fingerprint string    `yaml:"fingerprint"`
	Output      string    `yaml:"output"`
	Size        int64     `yaml:"size"`
	ModTime     time.Time `yaml:"-"`
	UpdatedAt   time.Time `yaml:"-"`

	// Text forms of the timestamps; kept as strings so the file stays
	// stable across YAML library versions.
	ModTimeText   string `yaml:"mod_time,omitempty"`
	UpdatedAtText string `yaml:"updated_at,omitempty"`
}

type document struct {
	Version int              `yaml:"version"`
	Records map[string]Entry `yaml:"records"`
}

// Store is a file-backed record table. Safe for concurrent use.
type Store struct {
	path    string
	mu      sync.Mutex
	records map[string]Entry
}

// Open loads the state file at path. A missing file yields an empty store;
// the file is created on the first Put.
func Open(path string) (*Store, error) {
	s := &Store{path: path, records: make(map[string]Entry)}

	data, err := os.ReadFile(path) // #nosec G304 -- state path derived from job output
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}

	var doc document
	if err := yamlutil.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if doc.Version != Version {
		return nil, fmt.Errorf("%w: %d (want %d)", ErrUnsupportedVersion, doc.Version, Version)
	}
	for src, e := range doc.Records {
		e.Source = src
		e.ModTime = parseTime(e.ModTimeText)
		e.UpdatedAt = parseTime(e.UpdatedAtText)
		s.records[src] = e
	}
	return s, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Get returns the entry recorded for source.
func (s *Store) Get(source string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[source]
	return e, ok
}

// Put records e and rewrites the state file.
func (s *Store) Put(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.records[e.Source]
	s.records[e.Source] = e
	if err := s.flushLocked(); err != nil {
		if had {
			s.records[e.Source] = prev
		} else {
			delete(s.records, e.Source)
		}
		return err
	}
	return nil
}

// Sources lists the tracked source paths in sorted order.
func (s *Store) Sources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for src := range s.records {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

func (s *Store) flushLocked() error {
	doc := document{Version: Version, Records: make(map[string]Entry, len(s.records))}
	for src, e := range s.records {
		e.ModTimeText = formatTime(e.ModTime)
		e.UpdatedAtText = formatTime(e.UpdatedAt)
		doc.Records[src] = e
	}

	data, err := yamlutil.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
