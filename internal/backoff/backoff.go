// Package backoff maps consecutive restart attempts to wait durations.
package backoff

import "time"

// Schedule is an ordered list of restart delays. Attempt i waits
// schedule[min(i, len-1)], so the last entry is the saturation point.
type Schedule []time.Duration

// Default returns the stock schedule: 0s, 1s, 2s, 5s, 10s, 15s.
func Default() Schedule {
	return Schedule{
		0,
		time.Second,
		2 * time.Second,
		5 * time.Second,
		10 * time.Second,
		15 * time.Second,
	}
}

// Delay returns the wait for the given attempt index. Negative indices are
// treated as zero and an empty schedule never waits.
func (s Schedule) Delay(attempt int) time.Duration {
	if len(s) == 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	d := s[s.Clamp(attempt)]
	if d < 0 {
		return 0
	}
	return d
}

// Next advances an attempt index, saturating at the last entry.
func (s Schedule) Next(attempt int) int {
	return s.Clamp(attempt + 1)
}

// Clamp bounds an attempt index to the schedule.
func (s Schedule) Clamp(attempt int) int {
	if attempt < 0 || len(s) == 0 {
		return 0
	}
	if last := len(s) - 1; attempt > last {
		return last
	}
	return attempt
}
