package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTriggerInfo(t *testing.T) {
	ref := time.Date(2026, 10, 18, 9, 40, 0, 0, time.UTC)

	info, err := GetTriggerInfo("*/30 * * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC), info.Next)
	assert.Equal(t, time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC), info.Last)
	assert.Equal(t, 20*time.Minute, info.TimeUntilNext)
	assert.Equal(t, 10*time.Minute, info.TimeSinceLast)
}

func TestGetTriggerInfo_ExactTriggerCountsAsLast(t *testing.T) {
	ref := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	info, err := GetTriggerInfo("0 0 * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, ref, info.Last)
	assert.Equal(t, ref.Add(24*time.Hour), info.Next)
}

func TestGetTriggerInfo_RareScheduleHasNoLast(t *testing.T) {
	ref := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	info, err := GetTriggerInfo("0 0 1 1 *", ref)
	require.NoError(t, err)
	assert.True(t, info.Last.IsZero())
	assert.Zero(t, info.TimeSinceLast)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), info.Next)
}

func TestGetTriggerInfo_InvalidExpression(t *testing.T) {
	_, err := GetTriggerInfo("0 0 0 * * *", time.Now())
	assert.Error(t, err, "six-field expressions are not standard")
}

func TestNextN(t *testing.T) {
	ref := time.Date(2026, 10, 18, 9, 40, 0, 0, time.UTC)

	got, err := NextN("@hourly", ref, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC), got[0])
	assert.Equal(t, time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC), got[2])
}
