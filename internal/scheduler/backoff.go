package scheduler

import "time"

// Backoff returns the delay before retry attempt n (1-based): base doubled
// per attempt, capped. Monotonically non-decreasing in n.
func Backoff(base, cap time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = time.Minute
	}
	if cap < base {
		cap = base
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cap || d <= 0 {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}
