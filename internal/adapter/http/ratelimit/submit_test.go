package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubmitLimiter_Burst(t *testing.T) {
	l := NewSubmitLimiter(1, 3)
	defer l.Close()

	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("10.0.0.1")
		assert.True(t, ok, "request %d within burst", i)
	}
	ok, wait := l.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))

	ok, _ = l.Allow("10.0.0.2")
	assert.True(t, ok, "clients are limited independently")

	fixed = fixed.Add(time.Second)
	ok, _ = l.Allow("10.0.0.1")
	assert.True(t, ok, "tokens refill over time")
}

func TestSubmitLimiter_Disabled(t *testing.T) {
	l := NewSubmitLimiter(0, 1)
	defer l.Close()

	for i := 0; i < 100; i++ {
		ok, _ := l.Allow("c")
		assert.True(t, ok)
	}
}

func TestSubmitLimiter_Sweep(t *testing.T) {
	l := NewSubmitLimiter(1, 1)
	defer l.Close()

	now := time.Now()
	l.now = func() time.Time { return now }
	l.Allow("old")

	now = now.Add(time.Hour)
	l.sweep()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.clients)
}
