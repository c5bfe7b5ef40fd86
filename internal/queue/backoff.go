package queue

import "time"

// BackoffPolicy spaces retry attempts so a flapping provider is not hammered
// on every poll tick.
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff doubles from two seconds up to five minutes.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{Base: 2 * time.Second, Max: 5 * time.Minute}
}

// Delay returns the wait before the given attempt number runs again.
// Attempt counts completed failures: attempt 1 waits Base, attempt 2 waits
// 2*Base, doubling until Max.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = 2 * time.Second
	}
	max := p.Max
	if max <= 0 {
		max = 5 * time.Minute
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// NextRun anchors the delay on now.
func (p BackoffPolicy) NextRun(now time.Time, attempt int) time.Time {
	return now.Add(p.Delay(attempt))
}
