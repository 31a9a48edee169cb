package archive

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/golang-lru/simplelru"

	"github.com/MimeLyc/jobrelay/internal/persistence"
	"github.com/MimeLyc/jobrelay/pkg/log"
)

const (
	// DefaultMonthsBack is how many of the newest partitions a lookup scans.
	DefaultMonthsBack = 2

	filePrefix = "posted_jobs_"
	fileSuffix = ".json"

	cacheSize = 24
)

// Store manages the monthly partition files under a single directory.
//
// Partitions are loaded lazily into an LRU cache; every successful MergeInto
// purges the whole cache and the cached directory listing so later lookups
// see the merged file.
type Store struct {
	dir    string
	cache  *simplelru.LRU
	months []string
	listed bool
}

func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("archive directory is required")
	}
	cache, err := simplelru.NewLRU(cacheSize, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create partition cache")
	}
	return &Store{dir: dir, cache: cache}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// PartitionPath returns the file that holds month's partition.
func (s *Store) PartitionPath(month string) string {
	return filepath.Join(s.dir, filePrefix+month+fileSuffix)
}

// Months lists the existing partition keys in ascending order. A missing
// archive directory yields an empty list.
func (s *Store) Months() ([]string, error) {
	if s.listed {
		return slices.Clone(s.months), nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.months, s.listed = nil, true
			return nil, nil
		}
		return nil, errors.Wrapf(err, "list archive directory %s", s.dir)
	}

	months := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		month, ok := monthFromFilename(entry.Name())
		if !ok {
			continue
		}
		months = append(months, month)
	}
	slices.Sort(months)
	s.months, s.listed = months, true
	return slices.Clone(months), nil
}

// HasPartitions reports whether at least one partition file exists. Listing
// failures count as "no partitions".
func (s *Store) HasPartitions() bool {
	months, err := s.Months()
	if err != nil {
		log.Warn("Failed to list archive partitions: %v", err)
		return false
	}
	return len(months) > 0
}

// Partition returns month's partition, loading it on first use. Missing or
// corrupted files yield an empty partition.
func (s *Store) Partition(month string) *Partition {
	if cached, ok := s.cache.Get(month); ok {
		return cached.(*Partition)
	}
	p := s.load(month)
	s.cache.Add(month, p)
	return p
}

func (s *Store) load(month string) *Partition {
	path := s.PartitionPath(month)
	ids, err := persistence.ReadIDs(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("Ignoring corrupted archive partition %s: %v", path, err)
		}
		return newPartition(month, nil)
	}
	return newPartition(month, persistence.NormalizeIDs(ids))
}

// FindAcrossRecentMonths searches the monthsBack newest partitions, newest
// first, and returns the key of the month holding id. monthsBack <= 0 means
// DefaultMonthsBack.
func (s *Store) FindAcrossRecentMonths(id string, monthsBack int) (string, bool) {
	if monthsBack <= 0 {
		monthsBack = DefaultMonthsBack
	}
	months, err := s.Months()
	if err != nil {
		log.Warn("Failed to list archive partitions, skipping archive lookup: %v", err)
		return "", false
	}
	for i := len(months) - 1; i >= 0 && len(months)-i <= monthsBack; i-- {
		if s.Partition(months[i]).Contains(id) {
			return months[i], true
		}
	}
	return "", false
}

// MergeInto unions ids into month's partition and rewrites it atomically.
// It returns how many identifiers were new to the partition.
func (s *Store) MergeInto(month string, ids []string) (int, error) {
	if _, err := ParseMonthKey(month); err != nil {
		return 0, err
	}
	existing := s.load(month)
	merged := make([]string, 0, existing.Len()+len(ids))
	merged = append(merged, existing.ids...)
	merged = append(merged, ids...)

	n, err := persistence.WriteIDs(s.PartitionPath(month), merged)
	if err != nil {
		return 0, errors.Wrapf(err, "merge into partition %s", month)
	}
	s.invalidate()
	return n - existing.Len(), nil
}

func (s *Store) invalidate() {
	s.cache.Purge()
	s.months, s.listed = nil, false
}

func monthFromFilename(name string) (string, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return "", false
	}
	month := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	if _, err := ParseMonthKey(month); err != nil {
		return "", false
	}
	return month, true
}
