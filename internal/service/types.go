package service

import (
	"context"
	"time"

	"github.com/MimeLyc/jobrelay/internal/jobs"
	"github.com/MimeLyc/jobrelay/internal/persistence"
)

// Fetcher produces the candidate postings for one run.
type Fetcher interface {
	Fetch(ctx context.Context) ([]jobs.Posting, error)
}

// Publisher delivers one posting downstream.
type Publisher interface {
	Publish(ctx context.Context, posting jobs.Posting) error
}

// Ledger is the audit sink of a run. persistence.SQLiteStore implements it.
type Ledger interface {
	StartRun(ctx context.Context, trigger string, startedAt time.Time) (string, error)
	FinishRun(ctx context.Context, run persistence.RunRecord) error
	RecordDecision(ctx context.Context, d persistence.DecisionRecord) error
	RecordArchival(ctx context.Context, a persistence.ArchivalRecord) error
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
)

// RunSummary counts what one run did.
type RunSummary struct {
	RunID      string
	Trigger    string
	Fetched    int
	Published  int
	Duplicates int
	Reopened   int
	Failed     int
	Archived   int
	Trimmed    int
	ActiveSize int
	ArchiveErr error
	StartedAt  time.Time
	Duration   time.Duration
}
