package util

import (
	"math/rand/v2"
	"time"
)

// CalculateBackoff returns exponential backoff with jitter.
// The base delay doubles each attempt and is capped at 30s, then shifted
// by up to ±25%, so the result lies in [0.75*backoff, 1.25*backoff].
// The jitter range is drawn as [0, backoff/2] inclusive, which keeps
// rand.Int64N away from a zero bound for tiny delays.
func CalculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || baseDelay <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := baseDelay * time.Duration(1<<uint(attempt))
	if backoff > 30*time.Second || backoff <= 0 {
		backoff = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(backoff)/2+1)) - backoff/4
	return backoff + jitter
}
