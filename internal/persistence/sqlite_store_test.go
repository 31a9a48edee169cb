package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "jobrelay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	t.Parallel()

	store := newTestLedger(t)
	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Second)

	id, err := store.StartRun(ctx, "manual", started)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunRunning, runs[0].Status)
	assert.True(t, runs[0].FinishedAt.IsZero())

	require.NoError(t, store.FinishRun(ctx, RunRecord{
		ID:         id,
		Status:     RunSuccess,
		Fetched:    5,
		Published:  3,
		Duplicates: 2,
		Archived:   1500,
		ActiveSize: 3001,
		FinishedAt: started.Add(time.Minute),
	}))

	runs, err = store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	got := runs[0]
	assert.Equal(t, "manual", got.Trigger)
	assert.Equal(t, RunSuccess, got.Status)
	assert.Equal(t, 5, got.Fetched)
	assert.Equal(t, 3, got.Published)
	assert.Equal(t, 2, got.Duplicates)
	assert.Equal(t, 1500, got.Archived)
	assert.Equal(t, 3001, got.ActiveSize)
	assert.False(t, got.FinishedAt.IsZero())
}

func TestSQLiteStore_FinishUnknownRun(t *testing.T) {
	t.Parallel()

	store := newTestLedger(t)
	err := store.FinishRun(context.Background(), RunRecord{ID: "missing", Status: RunFailed})
	assert.Error(t, err)
}

func TestSQLiteStore_ListRunsNewestFirstWithLimit(t *testing.T) {
	t.Parallel()

	store := newTestLedger(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := store.StartRun(ctx, "schedule", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
}

func TestSQLiteStore_DecisionsUpsertPerRun(t *testing.T) {
	t.Parallel()

	store := newTestLedger(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	first, err := store.StartRun(ctx, "manual", base)
	require.NoError(t, err)
	second, err := store.StartRun(ctx, "manual", base.Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, store.RecordDecision(ctx, DecisionRecord{RunID: first, JobID: "job-a", Verdict: "new", DecidedAt: base}))
	require.NoError(t, store.RecordDecision(ctx, DecisionRecord{RunID: first, JobID: "job-a", Verdict: "duplicate", DecidedAt: base}))
	require.NoError(t, store.RecordDecision(ctx, DecisionRecord{
		RunID:        second,
		JobID:        "job-a",
		Verdict:      "reopened",
		Rule:         2,
		ArchiveMonth: "2026-08",
		Reason:       "fresh posting",
		DecidedAt:    base.Add(time.Hour),
	}))
	require.NoError(t, store.RecordDecision(ctx, DecisionRecord{RunID: second, JobID: "job-b", Verdict: "new"}))

	decisions, err := store.ListDecisions(ctx, "job-a")
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, first, decisions[0].RunID)
	assert.Equal(t, "duplicate", decisions[0].Verdict)
	assert.Equal(t, "reopened", decisions[1].Verdict)
	assert.Equal(t, 2, decisions[1].Rule)
	assert.Equal(t, "2026-08", decisions[1].ArchiveMonth)
}

func TestSQLiteStore_ArchivalsAndPrune(t *testing.T) {
	t.Parallel()

	store := newTestLedger(t)
	ctx := context.Background()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	oldRun, err := store.StartRun(ctx, "schedule", old)
	require.NoError(t, err)
	newRun, err := store.StartRun(ctx, "schedule", recent)
	require.NoError(t, err)

	require.NoError(t, store.RecordArchival(ctx, ArchivalRecord{RunID: oldRun, Month: "2026-01", Count: 1500, Added: 1500, Bootstrap: true, ArchivedAt: old}))
	require.NoError(t, store.RecordArchival(ctx, ArchivalRecord{RunID: newRun, Month: "2026-10", Count: 1000, Error: "disk full", ArchivedAt: recent}))
	require.NoError(t, store.RecordDecision(ctx, DecisionRecord{RunID: oldRun, JobID: "job-a", Verdict: "new", DecidedAt: old}))

	archivals, err := store.ListArchivals(ctx, oldRun)
	require.NoError(t, err)
	require.Len(t, archivals, 1)
	assert.True(t, archivals[0].Bootstrap)
	assert.Equal(t, 1500, archivals[0].Added)

	n, err := store.DeleteRunsBefore(ctx, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, newRun, runs[0].ID)

	archivals, err = store.ListArchivals(ctx, oldRun)
	require.NoError(t, err)
	assert.Empty(t, archivals)
	decisions, err := store.ListDecisions(ctx, "job-a")
	require.NoError(t, err)
	assert.Empty(t, decisions)

	archivals, err = store.ListArchivals(ctx, newRun)
	require.NoError(t, err)
	require.Len(t, archivals, 1)
	assert.Equal(t, "disk full", archivals[0].Error)
	assert.False(t, archivals[0].Bootstrap)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "jobrelay.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	id, err := store.StartRun(context.Background(), "manual", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	runs, err := reopened.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
}

func TestMigrationVersion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, migrationVersion("001_init.sql"))
	assert.Equal(t, 12, migrationVersion("012_more.sql"))
	assert.Equal(t, 0, migrationVersion("init.sql"))
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	t.Parallel()

	_, err := NewSQLiteStore(" ")
	assert.Error(t, err)
}
