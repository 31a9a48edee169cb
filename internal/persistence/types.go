package persistence

import "time"

type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// RunRecord is one pipeline run as kept in the ledger.
type RunRecord struct {
	ID         string
	Trigger    string
	Status     RunStatus
	Fetched    int
	Published  int
	Duplicates int
	Reopened   int
	Failed     int
	Archived   int
	ActiveSize int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// DecisionRecord is the dedup verdict for one candidate in one run.
type DecisionRecord struct {
	RunID        string
	JobID        string
	Verdict      string
	Rule         int
	ArchiveMonth string
	Reason       string
	DecidedAt    time.Time
}

// ArchivalRecord is one archival attempt.
type ArchivalRecord struct {
	RunID      string
	Month      string
	Count      int
	Added      int
	Bootstrap  bool
	Error      string
	ArchivedAt time.Time
}
