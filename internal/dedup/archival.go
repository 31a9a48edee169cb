package dedup

import (
	"github.com/MimeLyc/jobrelay/internal/archive"
	"github.com/MimeLyc/jobrelay/pkg/log"
)

const (
	DefaultArchiveThreshold = 4500
	BootstrapArchiveBatch   = 1500
	SteadyArchiveBatch      = 1000
	MaxActiveSize           = 5000
)

// ArchivalPolicy decides how many identifiers leave the active set on Save.
type ArchivalPolicy struct {
	Threshold      int
	BootstrapBatch int
	SteadyBatch    int
	HardCap        int
}

func DefaultArchivalPolicy() ArchivalPolicy {
	return ArchivalPolicy{
		Threshold:      DefaultArchiveThreshold,
		BootstrapBatch: BootstrapArchiveBatch,
		SteadyBatch:    SteadyArchiveBatch,
		HardCap:        MaxActiveSize,
	}
}

// BatchSize returns how many of the oldest identifiers to archive, or 0 when
// activeSize has not passed the threshold. The first archival, with no
// partitions on disk yet, takes the larger bootstrap batch.
func (p ArchivalPolicy) BatchSize(activeSize int, hasPartitions bool) int {
	if activeSize <= p.Threshold {
		return 0
	}
	n := p.SteadyBatch
	if !hasPartitions {
		n = p.BootstrapBatch
	}
	return min(n, activeSize)
}

// ArchivalEvent describes one archival attempt.
type ArchivalEvent struct {
	Month        string
	Count        int
	Added        int
	Bootstrap    bool
	ActiveBefore int
	ActiveAfter  int
	Err          error
}

// archiveOldestLocked moves the n lexicographically smallest identifiers into
// the current month's partition. On failure nothing is removed from the
// active set. The caller holds s.mu.
func (s *Store) archiveOldestLocked(n int) ArchivalEvent {
	event := ArchivalEvent{
		Month:        archive.MonthKey(s.now()),
		Bootstrap:    !s.archive.HasPartitions(),
		ActiveBefore: len(s.active),
	}
	oldest := s.sortedLocked()[:n]

	added, err := s.archive.MergeInto(event.Month, oldest)
	if err != nil {
		log.Error("Archival of %d ids into %s failed, keeping them active until the next run: %v",
			n, event.Month, err)
		event.Err = err
		event.ActiveAfter = len(s.active)
		return event
	}

	for _, id := range oldest {
		delete(s.active, id)
	}
	event.Count = n
	event.Added = added
	event.ActiveAfter = len(s.active)
	log.Info("Archived %d ids into %s (bootstrap=%t, active %d -> %d)",
		n, event.Month, event.Bootstrap, event.ActiveBefore, event.ActiveAfter)
	return event
}

// enforceHardCapLocked drops the smallest identifiers beyond the hard cap.
// Dropped identifiers are not archived; this only fires when archival failed.
func (s *Store) enforceHardCapLocked() int {
	excess := len(s.active) - s.policy.HardCap
	if s.policy.HardCap <= 0 || excess <= 0 {
		return 0
	}
	for _, id := range s.sortedLocked()[:excess] {
		delete(s.active, id)
	}
	log.Error("EMERGENCY: active store exceeded %d ids, dropped the %d oldest without archiving",
		s.policy.HardCap, excess)
	return excess
}
