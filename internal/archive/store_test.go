package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/jobrelay/internal/persistence"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "archive"))
	require.NoError(t, err)
	return s
}

func TestNewStore_RequiresDir(t *testing.T) {
	_, err := NewStore("  ")
	assert.Error(t, err)
}

func TestStore_MissingDirectoryHasNoPartitions(t *testing.T) {
	s := newTestStore(t)

	months, err := s.Months()
	require.NoError(t, err)
	assert.Empty(t, months)
	assert.False(t, s.HasPartitions())

	_, found := s.FindAcrossRecentMonths("anything", 0)
	assert.False(t, found)
}

func TestStore_MergeIntoCreatesAndUnions(t *testing.T) {
	s := newTestStore(t)

	added, err := s.MergeInto("2026-09", []string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = s.MergeInto("2026-09", []string{"c", "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	ids, err := persistence.ReadIDs(s.PartitionPath("2026-09"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, []string{"a", "b", "c"}, s.Partition("2026-09").IDs())
	assert.True(t, s.HasPartitions())
}

func TestStore_MergeIntoRejectsBadMonth(t *testing.T) {
	s := newTestStore(t)
	_, err := s.MergeInto("2026-9", []string{"a"})
	assert.Error(t, err)
}

func TestStore_MergeInvalidatesCache(t *testing.T) {
	s := newTestStore(t)
	_, err := s.MergeInto("2026-10", []string{"a"})
	require.NoError(t, err)

	_, found := s.FindAcrossRecentMonths("b", 2)
	require.False(t, found)

	_, err = s.MergeInto("2026-10", []string{"b"})
	require.NoError(t, err)

	month, found := s.FindAcrossRecentMonths("b", 2)
	require.True(t, found)
	assert.Equal(t, "2026-10", month)
}

func TestStore_FindAcrossRecentMonthsHonoursDepth(t *testing.T) {
	s := newTestStore(t)
	_, err := s.MergeInto("2026-06", []string{"old"})
	require.NoError(t, err)
	_, err = s.MergeInto("2026-08", []string{"mid"})
	require.NoError(t, err)
	_, err = s.MergeInto("2026-10", []string{"new", "mid"})
	require.NoError(t, err)

	month, found := s.FindAcrossRecentMonths("mid", 2)
	require.True(t, found)
	assert.Equal(t, "2026-10", month, "newest partition wins")

	_, found = s.FindAcrossRecentMonths("old", 2)
	assert.False(t, found, "third newest partition is outside the default window")

	month, found = s.FindAcrossRecentMonths("old", 3)
	require.True(t, found)
	assert.Equal(t, "2026-06", month)
}

func TestStore_CorruptedPartitionIsEmpty(t *testing.T) {
	s := newTestStore(t)
	_, err := s.MergeInto("2026-09", []string{"a"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.PartitionPath("2026-10"), []byte("{broken"), 0o644))

	p := s.Partition("2026-10")
	assert.Zero(t, p.Len())

	month, found := s.FindAcrossRecentMonths("a", 2)
	require.True(t, found)
	assert.Equal(t, "2026-09", month)
}

func TestStore_MonthsIgnoresForeignFiles(t *testing.T) {
	s := newTestStore(t)
	_, err := s.MergeInto("2026-10", []string{"a"})
	require.NoError(t, err)
	for _, name := range []string{"notes.txt", "posted_jobs_latest.json", "posted_jobs_2026-11.json.tmp"} {
		require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), name), []byte("[]"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "posted_jobs_2026-12.json"), 0o755))

	s.invalidate()
	months, err := s.Months()
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-10"}, months)
}

func TestMonthHelpers(t *testing.T) {
	assert.Equal(t, "2026-03", MonthKey(time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)))

	parsed, err := ParseMonthKey("2025-12")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), parsed)

	_, err = ParseMonthKey("December")
	assert.Error(t, err)

	tests := []struct {
		name     string
		from, to time.Time
		want     int
	}{
		{"same month", date(2026, 10, 1), date(2026, 10, 31), 0},
		{"end to start of next", date(2026, 9, 30), date(2026, 10, 1), 1},
		{"across year", date(2025, 11, 15), date(2026, 2, 1), 3},
		{"negative", date(2026, 5, 1), date(2026, 3, 1), -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MonthsBetween(tt.from, tt.to))
		})
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}
