package queue

import (
	"math"
	"time"
)

// backoffDelay computes the wait before an operation becomes eligible again
// after its nth failed attempt: min(initial * factor^(n-1), max).
func backoffDelay(attempt int, settings Settings) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(settings.InitialBackoff) * math.Pow(settings.BackoffFactor, float64(attempt-1))
	if max := float64(settings.MaxBackoff); delay > max || math.IsInf(delay, 1) {
		return settings.MaxBackoff
	}
	return time.Duration(delay)
}
