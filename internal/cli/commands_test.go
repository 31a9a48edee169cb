package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	crdb "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/jobrelay/internal/archive"
	"github.com/MimeLyc/jobrelay/internal/config"
	"github.com/MimeLyc/jobrelay/internal/dedup"
	"github.com/MimeLyc/jobrelay/internal/jobs"
	"github.com/MimeLyc/jobrelay/internal/persistence"
)

func TestMarkThenCheck(t *testing.T) {
	dir := testEnv(t)

	out, err := execute(t, "mark", "job-1", "job-2", "job-1")
	require.NoError(t, err)
	assert.Contains(t, out, "marked 2, already posted 1, active 2")

	ids, err := persistence.ReadIDs(filepath.Join(dir, "store", dedup.ActiveFileName))
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1", "job-2"}, ids)

	out, err = execute(t, "check", "job-1", "--format", "json")
	require.NoError(t, err)
	var got CheckOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Posted)
	assert.Equal(t, string(dedup.VerdictActiveDuplicate), got.Verdict)

	out, err = execute(t, "check", "job-3")
	require.NoError(t, err)
	assert.Contains(t, out, "job-3: not posted (new)")
}

func TestCheckArchivedWithPostedDate(t *testing.T) {
	dir := testEnv(t)
	arch, err := archive.NewStore(filepath.Join(dir, "store", dedup.ArchiveDirName))
	require.NoError(t, err)
	now := time.Now()
	lastMonth := archive.MonthKey(time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, time.UTC))
	_, err = arch.MergeInto(lastMonth, []string{"recent"})
	require.NoError(t, err)

	out, err := execute(t, "check", "recent", "--posted-date", now.Format(time.DateOnly), "--format", "json")
	require.NoError(t, err)
	var got CheckOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Posted)
	assert.Equal(t, lastMonth, got.ArchiveMonth)
	assert.Equal(t, 1, got.Rule)

	_, err = execute(t, "check", "recent", "--posted-date", "someday")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunPublishesFeedAndRecordsHistory(t *testing.T) {
	dir := testEnv(t)
	feed := `[{"id":"a","title":"Engineer"},{"id":"b","title":"Designer"},{"id":"a"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "feed.json"), []byte(feed), 0o644))

	out, err := execute(t, "run", "--format", "json")
	require.NoError(t, err)
	var summary RunOutput
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 3, summary.Fetched)
	assert.Equal(t, 2, summary.Published)
	assert.Equal(t, 1, summary.Duplicates)
	assert.NotEmpty(t, summary.RunID)

	outbox, err := os.ReadFile(filepath.Join(dir, "outbox.jsonl"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(outbox)), "\n"), 2)

	out, err = execute(t, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "published 0")

	out, err = execute(t, "history", "--format", "json")
	require.NoError(t, err)
	var runs []RunEntry
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "manual", runs[0].Trigger)

	out, err = execute(t, "history", "--job", "b")
	require.NoError(t, err)
	assert.Contains(t, out, "new")
	assert.Contains(t, out, "duplicate")

	_, err = execute(t, "history", "--limit", "0")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStatus(t *testing.T) {
	dir := testEnv(t)
	arch, err := archive.NewStore(filepath.Join(dir, "store", dedup.ArchiveDirName))
	require.NoError(t, err)
	_, err = arch.MergeInto("2026-09", []string{"x", "y"})
	require.NoError(t, err)
	_, err = execute(t, "mark", "z")
	require.NoError(t, err)

	out, err := execute(t, "status", "--format", "json")
	require.NoError(t, err)
	var got StatusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 1, got.Active)
	assert.Equal(t, dedup.DefaultArchiveThreshold, got.Threshold)
	assert.Equal(t, []PartitionEntry{{Month: "2026-09", Count: 2}}, got.Partitions)
	assert.Equal(t, config.DefaultCronExpr, got.CronExpr)
	assert.True(t, got.NextRun.After(time.Now().Add(-time.Minute)))

	out, err = execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "2026-09  2")
}

func TestStoreFlagOverridesConfig(t *testing.T) {
	testEnv(t)
	other := filepath.Join(t.TempDir(), "elsewhere")

	_, err := execute(t, "mark", "--store", other, "job-9")
	require.NoError(t, err)

	ids, err := persistence.ReadIDs(filepath.Join(other, dedup.ActiveFileName))
	require.NoError(t, err)
	assert.Equal(t, []string{"job-9"}, ids)
}

func TestIDCommand(t *testing.T) {
	out, err := execute(t, "id", "--company", "Acme", "--title", "Go  Engineer", "--url", "https://acme.test/1")
	require.NoError(t, err)
	want := jobs.DeriveID("acme", "go engineer", "", "https://acme.test/1")
	assert.Equal(t, want+"\n", out)

	_, err = execute(t, "id")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSettingsShowAndSet(t *testing.T) {
	dir := testEnv(t)

	out, err := execute(t, "settings", "set", "--cron", "0 * * * *", "--threshold", "4000")
	require.NoError(t, err)
	assert.Contains(t, out, "archive_threshold: 4000")

	saved, err := config.LoadRuntimeSettingsFile(filepath.Join(dir, "settings.json"))
	require.NoError(t, err)
	assert.Equal(t, "0 * * * *", saved.CronExpr)
	assert.Equal(t, 4000, saved.ArchiveThreshold)
	assert.Equal(t, filepath.Join(dir, "feed.json"), saved.FeedFile)

	out, err = execute(t, "settings", "show", "--format", "json")
	require.NoError(t, err)
	var shown config.RuntimeSettings
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, saved, shown)

	_, err = execute(t, "settings", "set", "--threshold", "6000")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("x")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))

	fatal := crdb.Mark(crdb.New("mismatch"), dedup.ErrFatalState)
	assert.Equal(t, ExitFatal, GetExitCode(WrapExitError(ExitFailure, "save", fatal)))
}
