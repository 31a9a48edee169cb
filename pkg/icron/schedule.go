package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// lookbehind bounds the search for the previous trigger.
const lookbehind = 31 * 24 * time.Hour

type TriggerInfo struct {
	Next       time.Time
	Last       time.Time
	Expression string

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

// Parse accepts standard 5-field expressions and descriptors such as @hourly.
func Parse(cronExpr string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// GetTriggerInfo reports the triggers around refTime. Last stays zero when
// the schedule did not fire within the previous 31 days.
func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := Parse(cronExpr)
	if err != nil {
		return nil, err
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       schedule.Next(refTime),
	}
	info.TimeUntilNext = info.Next.Sub(refTime)

	// Walk forward from the lookbehind horizon; the last trigger not after
	// refTime is the previous one.
	var prev time.Time
	for t := schedule.Next(refTime.Add(-lookbehind)); !t.IsZero() && !t.After(refTime); t = schedule.Next(t) {
		prev = t
	}
	if !prev.IsZero() {
		info.Last = prev
		info.TimeSinceLast = refTime.Sub(prev)
	}
	return info, nil
}

// NextN returns the next n trigger times after refTime.
func NextN(cronExpr string, refTime time.Time, n int) ([]time.Time, error) {
	schedule, err := Parse(cronExpr)
	if err != nil {
		return nil, err
	}
	ret := make([]time.Time, 0, n)
	t := refTime
	for i := 0; i < n; i++ {
		t = schedule.Next(t)
		if t.IsZero() {
			break
		}
		ret = append(ret, t)
	}
	return ret, nil
}
