package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a controllable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSlidingWindow_AdmitsUpToMax(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	limiter := New(50*time.Second, 3).WithClock(clock.Now)

	for i := 0; i < 3; i++ {
		admitted, wait := limiter.Acquire()
		assert.True(t, admitted, "request %d should be admitted", i)
		assert.Zero(t, wait)
	}

	admitted, wait := limiter.Acquire()
	assert.False(t, admitted)
	assert.Equal(t, 50*time.Second, wait)
}

func TestSlidingWindow_WaitShrinksAsTimePasses(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	limiter := New(50*time.Second, 1).WithClock(clock.Now)

	admitted, _ := limiter.Acquire()
	require.True(t, admitted)

	clock.Advance(20 * time.Second)
	admitted, wait := limiter.Acquire()
	assert.False(t, admitted)
	assert.Equal(t, 30*time.Second, wait)
}

func TestSlidingWindow_AdmitsAfterWindowSlides(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	limiter := New(50*time.Second, 2).WithClock(clock.Now)

	limiter.Acquire()
	limiter.Acquire()

	clock.Advance(51 * time.Second)
	admitted, wait := limiter.Acquire()
	assert.True(t, admitted)
	assert.Zero(t, wait)
}

func TestSlidingWindow_PartialExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	limiter := New(50*time.Second, 2).WithClock(clock.Now)

	limiter.Acquire()
	clock.Advance(30 * time.Second)
	limiter.Acquire()

	// First timestamp expires at t+50; at t+51 one slot is free.
	clock.Advance(21 * time.Second)
	admitted, _ := limiter.Acquire()
	assert.True(t, admitted)

	// Second and third timestamps still in window.
	admitted, wait := limiter.Acquire()
	assert.False(t, admitted)
	assert.Greater(t, wait, time.Duration(0))
}

func TestSlidingWindow_ConcurrentAccess(t *testing.T) {
	limiter := New(time.Minute, 100)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admittedCount := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if admitted, _ := limiter.Acquire(); admitted {
				mu.Lock()
				admittedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, admittedCount)
}
