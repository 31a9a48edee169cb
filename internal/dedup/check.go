package dedup

import (
	"time"

	"github.com/MimeLyc/jobrelay/pkg/log"
)

type Verdict string

const (
	VerdictNew               Verdict = "new"
	VerdictActiveDuplicate   Verdict = "duplicate"
	VerdictArchivedDuplicate Verdict = "archived_duplicate"
	VerdictReopened          Verdict = "reopened"
)

// Metadata is what the source reported about a candidate posting. A zero
// PostedAt means no usable posting date.
type Metadata struct {
	PostedAt time.Time
}

// Result is the answer to "has this id been posted?".
type Result struct {
	ID           string
	Posted       bool
	Verdict      Verdict
	ArchiveMonth string
	Reopen       *ReopenDecision
}

// Check consults the active set, then the newest archive partitions, then the
// reopening policy. Result.Posted is true when the candidate must not be
// published.
func (s *Store) Check(id string, meta Metadata) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret := Result{ID: id, Verdict: VerdictNew}
	if _, ok := s.active[id]; ok {
		ret.Posted = true
		ret.Verdict = VerdictActiveDuplicate
		return ret
	}

	month, found := s.archive.FindAcrossRecentMonths(id, s.lookback)
	if !found {
		return ret
	}
	ret.ArchiveMonth = month

	facts, err := FactsFor(month, meta.PostedAt, s.now())
	if err != nil {
		log.Warn("Cannot evaluate reopening of %s archived in %s, treating as duplicate: %v", id, month, err)
		ret.Posted = true
		ret.Verdict = VerdictArchivedDuplicate
		return ret
	}
	decision := DecideReopen(facts)
	ret.Reopen = &decision
	if !decision.Allow {
		ret.Posted = true
		ret.Verdict = VerdictArchivedDuplicate
		log.Debug("Blocked archived id %s (rule %d): %s", id, decision.Rule, decision.Reason)
		return ret
	}

	ret.Verdict = VerdictReopened
	if decision.Rule == 3 {
		log.Info("Assuming reopening of %s without a posting date: %s", id, decision.Reason)
	} else {
		log.Info("Reopening %s (rule %d): %s", id, decision.Rule, decision.Reason)
	}
	return ret
}

// HasBeenPosted is the boolean form of Check.
func (s *Store) HasBeenPosted(id string, meta Metadata) bool {
	return s.Check(id, meta).Posted
}

// PartitionStat is the size of one archive partition.
type PartitionStat struct {
	Month string
	Count int
}

// Stats is a snapshot for status reporting.
type Stats struct {
	Active     int
	Threshold  int
	HardCap    int
	Partitions []PartitionStat
}

func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret := Stats{
		Active:    len(s.active),
		Threshold: s.policy.Threshold,
		HardCap:   s.policy.HardCap,
	}
	months, err := s.archive.Months()
	if err != nil {
		return ret, err
	}
	for _, month := range months {
		ret.Partitions = append(ret.Partitions, PartitionStat{
			Month: month,
			Count: s.archive.Partition(month).Len(),
		})
	}
	return ret, nil
}
