package docconv

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/alnah/go-docconv/internal/fileutil"
	"github.com/alnah/go-docconv/internal/statefile"
)

// Record is what the tracker remembers about the last successful
// conversion of a source.
type Record struct {
	Source      string
	Fingerprint string
	Output      string
	Size        int64
	ModTime     time.Time
	UpdatedAt   time.Time
}

// StateStore persists records between runs.
type StateStore interface {
	Get(source string) (Record, bool, error)
	Put(rec Record) error
}

// Fingerprinter identifies the content of a source file.
type Fingerprinter interface {
	Fingerprint(path string) (Fingerprint, error)
}

// Fingerprint is a content identity plus the file facts it was taken from.
type Fingerprint struct {
	Value   string
	Size    int64
	ModTime time.Time
}

// HashFingerprinter hashes file content with SHA-256. Robust to clock skew
// and touch, at the cost of reading every source.
type HashFingerprinter struct{}

// Fingerprint implements Fingerprinter.
func (HashFingerprinter) Fingerprint(path string) (Fingerprint, error) {
	f, err := os.Open(path) // #nosec G304 -- source document from the job
	if err != nil {
		return Fingerprint{}, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return Fingerprint{}, err
	}
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{
		Value:   "sha256:" + hex.EncodeToString(h.Sum(nil)) + ":" + strconv.FormatInt(n, 10),
		Size:    n,
		ModTime: info.ModTime(),
	}, nil
}

// ModTimeFingerprinter identifies a file by modification time and size.
// Cheaper than hashing; a touched file counts as changed.
type ModTimeFingerprinter struct{}

// Fingerprint implements Fingerprinter.
func (ModTimeFingerprinter) Fingerprint(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{
		Value:   "mtime:" + strconv.FormatInt(info.ModTime().UnixNano(), 10) + ":" + strconv.FormatInt(info.Size(), 10),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Tracker decides whether a source needs reconversion and records
// successful conversions. Commits are serialized.
type Tracker struct {
	store   StateStore
	enabled bool
	fp      Fingerprinter
	now     func() time.Time
	mu      sync.Mutex
}

// NewTracker creates a tracker. A disabled tracker reports every source as
// stale and never writes. A nil fingerprinter hashes content.
func NewTracker(store StateStore, enabled bool, fp Fingerprinter) *Tracker {
	if fp == nil {
		fp = HashFingerprinter{}
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{store: store, enabled: enabled, fp: fp, now: time.Now}
}

// Enabled reports whether incremental decisions are made.
func (t *Tracker) Enabled() bool { return t.enabled }

// IsStale reports whether source must be converted again for the given
// output: true when tracking is off, when there is no record, when the
// fingerprint or output changed, or when the recorded output is gone.
// The current fingerprint is returned for a later Commit.
func (t *Tracker) IsStale(source, output string) (bool, Fingerprint, error) {
	if !t.enabled {
		return true, Fingerprint{}, nil
	}

	cur, err := t.fp.Fingerprint(source)
	if err != nil {
		// Conversion will report the unreadable source.
		return true, Fingerprint{}, nil
	}

	rec, ok, err := t.store.Get(source)
	if err != nil {
		return true, cur, fmt.Errorf("%w: %v", ErrStateStore, err)
	}
	if !ok || rec.Fingerprint != cur.Value || rec.Output != output {
		return true, cur, nil
	}
	if !fileutil.FileExists(rec.Output) {
		return true, cur, nil
	}
	return false, cur, nil
}

// Commit records a successful conversion of source to output.
func (t *Tracker) Commit(source string, fp Fingerprint, output string) error {
	if !t.enabled {
		return nil
	}
	if fp.Value == "" {
		var err error
		if fp, err = t.fp.Fingerprint(source); err != nil {
			return fmt.Errorf("%w: fingerprinting %s: %v", ErrStateStore, source, err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.store.Put(Record{
		Source:      source,
		Fingerprint: fp.Value,
		Output:      output,
		Size:        fp.Size,
		ModTime:     fp.ModTime,
		UpdatedAt:   t.now(),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateStore, err)
	}
	return nil
}

// Lookup returns the prior record for source.
func (t *Tracker) Lookup(source string) (Record, bool, error) {
	return t.store.Get(source)
}

// MemoryStore is an in-memory StateStore.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Get implements StateStore.
func (s *MemoryStore) Get(source string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[source]
	return r, ok, nil
}

// Put implements StateStore.
func (s *MemoryStore) Put(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Source] = rec
	return nil
}

// FileStore is a StateStore backed by a YAML state file.
type FileStore struct {
	file *statefile.Store
}

// OpenFileStore loads the state file at path; a missing file is an empty
// store.
func OpenFileStore(path string) (*FileStore, error) {
	s, err := statefile.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStateStore, err)
	}
	return &FileStore{file: s}, nil
}

// Path returns the state file location.
func (s *FileStore) Path() string { return s.file.Path() }

// Get implements StateStore.
func (s *FileStore) Get(source string) (Record, bool, error) {
	e, ok := s.file.Get(source)
	if !ok {
		return Record{}, false, nil
	}
	return Record{
		Source:      e.Source,
		Fingerprint: e.Fingerprint,
		Output:      e.Output,
		Size:        e.Size,
		ModTime:     e.ModTime,
		UpdatedAt:   e.UpdatedAt,
	}, true, nil
}

// Put implements StateStore.
func (s *FileStore) Put(rec Record) error {
	return s.file.Put(statefile.Entry{
		Source:      rec.Source,
		Fingerprint: rec.Fingerprint,
		Output:      rec.Output,
		Size:        rec.Size,
		ModTime:     rec.ModTime,
		UpdatedAt:   rec.UpdatedAt,
	})
}

// Compile-time interface checks
var (
	_ StateStore    = (*MemoryStore)(nil)
	_ StateStore    = (*FileStore)(nil)
	_ Fingerprinter = HashFingerprinter{}
	_ Fingerprinter = ModTimeFingerprinter{}
)
