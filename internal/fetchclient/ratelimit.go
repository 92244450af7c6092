package fetchclient

import "time"

// slidingWindowLimiter enforces two request ceilings over rolling windows: a
// short burst window and a longer sustained window. It keeps the timestamps
// of recent calls and prunes anything older than the largest window.
//
// This differs from a token bucket in that the caller gets an exact
// retry-after: the moment the oldest counted call ages out of the violated
// window. Not safe for concurrent use; FetchChannel serializes access.
type slidingWindowLimiter struct {
	burstLimit  int
	burstWindow time.Duration

	sustainedLimit  int
	sustainedWindow time.Duration

	calls []time.Time
	now   func() time.Time
}

func newSlidingWindowLimiter(burstLimit int, burstWindow time.Duration, sustainedLimit int, sustainedWindow time.Duration) *slidingWindowLimiter {
	return &slidingWindowLimiter{
		burstLimit:      burstLimit,
		burstWindow:     burstWindow,
		sustainedLimit:  sustainedLimit,
		sustainedWindow: sustainedWindow,
		now:             time.Now,
	}
}

// allow reports whether another call fits under both ceilings right now.
// When it does not, retryAfter is how long until it would.
func (l *slidingWindowLimiter) allow() (retryAfter time.Duration, ok bool) {
	now := l.now()
	l.prune(now)

	if wait, violated := l.check(now, l.burstLimit, l.burstWindow); violated {
		return wait, false
	}
	if wait, violated := l.check(now, l.sustainedLimit, l.sustainedWindow); violated {
		return wait, false
	}
	return 0, true
}

// record counts a call against both windows. Called for every request that
// actually goes out, including forced ones.
func (l *slidingWindowLimiter) record() {
	now := l.now()
	l.prune(now)
	l.calls = append(l.calls, now)
}

func (l *slidingWindowLimiter) check(now time.Time, limit int, window time.Duration) (time.Duration, bool) {
	cutoff := now.Add(-window)
	count := 0
	oldest := time.Time{}
	for _, t := range l.calls {
		if t.After(cutoff) {
			count++
			if oldest.IsZero() {
				oldest = t
			}
		}
	}
	if count < limit {
		return 0, false
	}
	// Admissible once the oldest counted call leaves the window.
	wait := oldest.Add(window).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

func (l *slidingWindowLimiter) prune(now time.Time) {
	window := l.burstWindow
	if l.sustainedWindow > window {
		window = l.sustainedWindow
	}
	cutoff := now.Add(-window)
	kept := l.calls[:0]
	for _, t := range l.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.calls = kept
}
