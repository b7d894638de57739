package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateBackoff_ZeroAttempt(t *testing.T) {
	assert.Zero(t, CalculateBackoff(time.Second, 0))
	assert.Zero(t, CalculateBackoff(time.Second, -5))
	assert.Zero(t, CalculateBackoff(0, 3))
}

func TestCalculateBackoff_ExponentialGrowth(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt := 1; attempt <= 5; attempt++ {
		expected := base * time.Duration(1<<uint(attempt))
		got := CalculateBackoff(base, attempt)
		assert.GreaterOrEqual(t, got, expected*3/4, "attempt %d", attempt)
		assert.LessOrEqual(t, got, expected*5/4+1, "attempt %d", attempt)
	}
}

func TestCalculateBackoff_Capped(t *testing.T) {
	for _, attempt := range []int{10, 31, 100} {
		got := CalculateBackoff(time.Second, attempt)
		assert.LessOrEqual(t, got, 37500*time.Millisecond+1)
		assert.Positive(t, got)
	}
}

func TestCalculateBackoff_TinyBaseDelay(t *testing.T) {
	got := CalculateBackoff(time.Nanosecond, 1)
	assert.GreaterOrEqual(t, got, time.Duration(1))
	assert.LessOrEqual(t, got, 3*time.Nanosecond)
}
