package tempaudio

import "time"

// RetryPolicy controls how many times a temp file delete is attempted and how
// long to wait after each failed attempt (1-based).
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// LinearBackoff waits step×attempt.
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// DefaultRetryPolicy gives the player 5 chances to drop its file lock,
// waiting 100ms, 200ms, 300ms and 400ms in between.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Backoff: LinearBackoff(100 * time.Millisecond)}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Backoff == nil {
		p.Backoff = func(int) time.Duration { return 0 }
	}
	return p
}
