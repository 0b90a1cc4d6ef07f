package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestStoreAllowPerKey(t *testing.T) {
	s := NewStore(rate.Limit(1), 2, time.Minute)

	assert.True(t, s.Allow("a"))
	assert.True(t, s.Allow("a"))
	assert.False(t, s.Allow("a"), "burst exhausted")
	assert.True(t, s.Allow("b"), "keys are independent")
	assert.Equal(t, 2, s.Len())

	s.Forget("a")
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Allow("a"))
}

func TestStoreCleanup(t *testing.T) {
	s := NewStore(rate.Inf, 1, time.Second)
	s.Allow("old")
	s.cleanup(time.Now().Add(2 * time.Second))
	assert.Equal(t, 0, s.Len())
}

func TestStoreWaitHonoursContext(t *testing.T) {
	s := NewStore(rate.Every(time.Hour), 1, time.Minute)
	require.NoError(t, s.Wait(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Wait(ctx, "k"))
}

func TestManagerTripsAfterConsecutiveFailures(t *testing.T) {
	m := NewManager(Rule{TripConsecutiveFailures: 3, Timeout: time.Hour}, nil)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, m.Execute("redis:set", func() error { return boom }), boom)
	}
	err := m.Execute("redis:set", func() error { return nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Same(t, m.Get("redis:set"), m.Get("redis:set"))

	// 取消不计失败
	c := NewManager(Rule{TripConsecutiveFailures: 1, Timeout: time.Hour}, nil)
	_ = c.Execute("x", func() error { return context.Canceled })
	assert.NoError(t, c.Execute("x", func() error { return nil }))
}
