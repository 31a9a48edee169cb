package dedup

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/MimeLyc/jobrelay/internal/archive"
	"github.com/MimeLyc/jobrelay/internal/persistence"
	"github.com/MimeLyc/jobrelay/pkg/log"
)

const (
	ActiveFileName = "posted_jobs.json"
	ArchiveDirName = "archive"
	LockFileName   = ".lock"
)

// Store is the active working set plus its archive partitions.
type Store struct {
	dir        string
	activePath string
	archive    *archive.Store
	policy     ArchivalPolicy
	lookback   int
	now        func() time.Time
	onArchive  func(ArchivalEvent)

	mu     sync.Mutex
	active map[string]struct{}
}

type Option func(*Store)

// WithClock overrides the wall clock used for month keys and reopening.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithArchiveThreshold sets the active-set size above which Save archives.
// Non-positive values keep the default.
func WithArchiveThreshold(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.policy.Threshold = n
		}
	}
}

// WithLookbackMonths sets how many of the newest partitions Check searches.
func WithLookbackMonths(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.lookback = n
		}
	}
}

// WithArchivalHook registers a callback invoked after every archival attempt,
// successful or not.
func WithArchivalHook(fn func(ArchivalEvent)) Option {
	return func(s *Store) {
		s.onArchive = fn
	}
}

// New builds a store rooted at dir. It does not touch the filesystem; call
// Load before use.
func New(dir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("store directory is required")
	}
	arch, err := archive.NewStore(filepath.Join(dir, ArchiveDirName))
	if err != nil {
		return nil, err
	}
	s := &Store{
		dir:        dir,
		activePath: filepath.Join(dir, ActiveFileName),
		archive:    arch,
		policy:     DefaultArchivalPolicy(),
		lookback:   archive.DefaultMonthsBack,
		now:        time.Now,
		active:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) ActivePath() string {
	return s.activePath
}

func (s *Store) LockPath() string {
	return filepath.Join(s.dir, LockFileName)
}

func (s *Store) Archive() *archive.Store {
	return s.archive
}

func (s *Store) Policy() ArchivalPolicy {
	return s.policy
}

// Load replaces the in-memory set with the active file's contents. A missing
// or unreadable file starts an empty set; Load never fails.
func (s *Store) Load() {
	ids, err := persistence.ReadIDs(s.activePath)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = make(map[string]struct{}, len(ids))
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("No active store at %s, starting empty", s.activePath)
		} else {
			log.Warn("Active store %s is unreadable, starting empty: %v", s.activePath, err)
		}
		return
	}
	for _, id := range ids {
		if id != "" {
			s.active[id] = struct{}{}
		}
	}
	log.Info("Loaded %d posted job ids from %s", len(s.active), s.activePath)
}

// Contains tests membership in the active set only.
func (s *Store) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[id]
	return ok
}

// Insert adds id to the active set without persisting. It reports whether id
// was new.
func (s *Store) Insert(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[id]; ok {
		return false
	}
	s.active[id] = struct{}{}
	return true
}

// MarkPosted records a successful publication of id. Call Save to persist.
func (s *Store) MarkPosted(id string) bool {
	return s.Insert(id)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// IDs returns the active set in lexicographic order.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *Store) sortedLocked() []string {
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SaveReport summarises one Save.
type SaveReport struct {
	Archived   int
	ArchiveErr error
	Trimmed    int
	Written    int
}

// Save runs the archival policy, applies the hard cap and writes the active
// file. Archival failures are logged and reported in SaveReport.ArchiveErr but
// do not fail the save. A read-back mismatch is returned as a fatal error.
func (s *Store) Save() (SaveReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report SaveReport
	if n := s.policy.BatchSize(len(s.active), s.archive.HasPartitions()); n > 0 {
		event := s.archiveOldestLocked(n)
		report.Archived = event.Count
		report.ArchiveErr = event.Err
		if s.onArchive != nil {
			s.onArchive(event)
		}
	}
	report.Trimmed = s.enforceHardCapLocked()

	written, err := persistence.WriteIDs(s.activePath, s.sortedLocked())
	if err != nil {
		return report, markIfFatal(errors.Wrap(err, "save active store"))
	}
	report.Written = written
	log.Info("Saved %d posted job ids to %s", written, s.activePath)
	return report, nil
}
