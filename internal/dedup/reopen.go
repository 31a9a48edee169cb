package dedup

import (
	"fmt"
	"time"

	"github.com/MimeLyc/jobrelay/internal/archive"
)

const (
	// Archived less than this many calendar months ago: always a duplicate.
	MinReopenMonths = 2
	// Archived at least this long ago with no posting date: assume reopened.
	UndatedReopenMonths = 3
	// A source posting date at most this many days old signals a reopening.
	FreshPostingDays = 30
)

// ReopenFacts are the inputs of the reopening policy.
type ReopenFacts struct {
	MonthsSinceArchived int
	DaysSincePosted     float64
	HasPostedDate       bool
}

// ReopenDecision is the policy outcome and the rule (1-4) that produced it.
type ReopenDecision struct {
	Allow  bool
	Rule   int
	Reason string
}

// DecideReopen applies the reopening rules in order; the first match wins.
// Ambiguous cases block.
func DecideReopen(f ReopenFacts) ReopenDecision {
	if f.MonthsSinceArchived < MinReopenMonths {
		return ReopenDecision{
			Allow:  false,
			Rule:   1,
			Reason: fmt.Sprintf("archived %d month(s) ago, too recent to be a reopening", f.MonthsSinceArchived),
		}
	}
	if f.HasPostedDate && f.DaysSincePosted <= FreshPostingDays {
		return ReopenDecision{
			Allow:  true,
			Rule:   2,
			Reason: fmt.Sprintf("source posting date is %.1f day(s) old", f.DaysSincePosted),
		}
	}
	if f.MonthsSinceArchived >= UndatedReopenMonths && !f.HasPostedDate {
		return ReopenDecision{
			Allow:  true,
			Rule:   3,
			Reason: fmt.Sprintf("archived %d month(s) ago with no posting date, assuming reopened", f.MonthsSinceArchived),
		}
	}
	return ReopenDecision{
		Allow:  false,
		Rule:   4,
		Reason: "no evidence of a reopening",
	}
}

// FactsFor derives the policy inputs for an id archived in archiveMonth.
// A zero postedAt means the source reported no usable date.
func FactsFor(archiveMonth string, postedAt, now time.Time) (ReopenFacts, error) {
	archived, err := archive.ParseMonthKey(archiveMonth)
	if err != nil {
		return ReopenFacts{}, err
	}
	facts := ReopenFacts{
		MonthsSinceArchived: archive.MonthsBetween(archived, now),
	}
	if !postedAt.IsZero() {
		facts.HasPostedDate = true
		facts.DaysSincePosted = now.Sub(postedAt).Hours() / 24
	}
	return facts, nil
}
