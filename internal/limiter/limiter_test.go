package limiter

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 7, 4, 21, 0, 0, 0, time.UTC)

func TestAdmit_FreshBucketAllowsCapacity(t *testing.T) {
	cfg := DefaultConfig()

	var s State
	var ok bool
	for i := 0; i < 120; i++ {
		s, ok = cfg.Admit(s, epoch)
		require.True(t, ok, "message %d should be admitted", i+1)
	}

	s, ok = cfg.Admit(s, epoch)
	assert.False(t, ok)
	assert.InDelta(t, 0, s.Tokens, 1e-9)

	// a denied call consumes nothing
	s, ok = cfg.Admit(s, epoch)
	assert.False(t, ok)
	assert.InDelta(t, 0, s.Tokens, 1e-9)
}

func TestAdmit_RefillsLinearly(t *testing.T) {
	cfg := DefaultConfig()
	s := State{Tokens: 0, LastRefill: epoch}

	s, ok := cfg.Admit(s, epoch.Add(499*time.Millisecond))
	assert.False(t, ok)

	s, ok = cfg.Admit(s, epoch.Add(600*time.Millisecond))
	assert.True(t, ok)
	assert.InDelta(t, 0.2, s.Tokens, 1e-9)
	assert.Equal(t, epoch.Add(600*time.Millisecond), s.LastRefill)

	_, ok = cfg.Admit(s, epoch.Add(600*time.Millisecond))
	assert.False(t, ok)
}

func TestAdmit_LookbackIsCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity = 100000

	s := State{Tokens: 0, LastRefill: epoch}
	s, ok := cfg.Admit(s, epoch.Add(3*time.Hour))
	require.True(t, ok)

	// ten minutes at 2 tokens per second, minus the one just taken
	assert.InDelta(t, 1199, s.Tokens, 1e-6)
}

func TestAdmit_ClockGoingBackwards(t *testing.T) {
	cfg := DefaultConfig()
	s := State{Tokens: 3, LastRefill: epoch}

	s, ok := cfg.Admit(s, epoch.Add(-time.Minute))
	require.True(t, ok)
	assert.InDelta(t, 2, s.Tokens, 1e-9)
	assert.Equal(t, epoch, s.LastRefill)
}

func TestAdmit_BucketLaw(t *testing.T) {
	cfg := DefaultConfig()

	var admitted []time.Time
	var s State
	for now := epoch; now.Before(epoch.Add(5 * time.Minute)); now = now.Add(10 * time.Millisecond) {
		var ok bool
		s, ok = cfg.Admit(s, now)
		if ok {
			admitted = append(admitted, now)
		}
	}

	window := time.Minute
	limit := int(cfg.Capacity + float64(window/time.Millisecond)*cfg.RefillPerMillisecond)
	for i, end := range admitted {
		n := 0
		for j := i; j >= 0 && end.Sub(admitted[j]) < window; j-- {
			n++
		}
		require.LessOrEqual(t, n, limit)
	}

	// once the initial burst is spent the steady rate is 120 per minute
	n := 0
	for _, at := range admitted {
		if !at.Before(epoch.Add(4 * time.Minute)) {
			n++
		}
	}
	assert.LessOrEqual(t, n, 121)
	assert.GreaterOrEqual(t, n, 119)
}

func TestAdmitLaunch_BurstOfFive(t *testing.T) {
	cfg := DefaultConfig()

	var s State
	var ok bool
	for i := 0; i < 5; i++ {
		s, ok = cfg.AdmitLaunch(s, epoch.Add(time.Duration(i)*time.Millisecond))
		require.True(t, ok)
	}
	assert.Equal(t, 5, s.LaunchBurstCount)
	assert.Equal(t, epoch.Add(4*time.Millisecond), s.LastLaunch)

	s, ok = cfg.AdmitLaunch(s, epoch.Add(5*time.Millisecond))
	assert.False(t, ok)
	assert.Equal(t, 6, s.LaunchBurstCount)

	// the first launch ages out of the window exactly one second later
	s, ok = cfg.AdmitLaunch(s, epoch.Add(time.Second))
	assert.True(t, ok)
	assert.Equal(t, 5, s.LaunchBurstCount)
}

func TestAdmitLaunch_DecidesFromRecentLaunches(t *testing.T) {
	cfg := DefaultConfig()

	// stale summary fields do not deny a launch
	s := State{LastLaunch: epoch, LaunchBurstCount: 100}
	s, ok := cfg.AdmitLaunch(s, epoch)
	assert.True(t, ok)
	assert.Equal(t, 1, s.LaunchBurstCount)

	// and cleared summary fields do not admit one
	full := State{RecentLaunches: []time.Time{epoch, epoch, epoch, epoch, epoch}}
	_, ok = cfg.AdmitLaunch(full, epoch.Add(time.Millisecond))
	assert.False(t, ok)
}

func TestAdmitLaunch_WindowIsRolling(t *testing.T) {
	cfg := DefaultConfig()

	var s State
	s, ok := cfg.AdmitLaunch(s, epoch)
	require.True(t, ok)
	for i := 0; i < 4; i++ {
		s, ok = cfg.AdmitLaunch(s, epoch.Add(900*time.Millisecond))
		require.True(t, ok)
	}

	s, ok = cfg.AdmitLaunch(s, epoch.Add(1000*time.Millisecond))
	require.True(t, ok)

	// five launches inside (1ms, 1001ms]
	_, ok = cfg.AdmitLaunch(s, epoch.Add(1001*time.Millisecond))
	assert.False(t, ok)
}

func TestAdmitLaunch_NeverMoreThanBurstPerWindow(t *testing.T) {
	cfg := DefaultConfig()
	rng := rand.New(rand.NewSource(7))

	var admitted []time.Time
	var s State
	now := epoch
	for i := 0; i < 2000; i++ {
		now = now.Add(time.Duration(rng.Intn(400)) * time.Millisecond)
		var ok bool
		s, ok = cfg.AdmitLaunch(s, now)
		if ok {
			admitted = append(admitted, now)
		}
	}
	require.NotEmpty(t, admitted)

	for i, end := range admitted {
		n := 0
		for j := i; j >= 0 && end.Sub(admitted[j]) < cfg.LaunchWindow; j-- {
			n++
		}
		require.LessOrEqual(t, n, cfg.LaunchBurst, "window ending at %s", end)
	}
}

func TestAdmitLaunch_DoesNotAliasInput(t *testing.T) {
	cfg := DefaultConfig()

	s, _ := cfg.AdmitLaunch(State{}, epoch)
	before := s
	beforeLen := len(s.RecentLaunches)

	after, ok := cfg.AdmitLaunch(s, epoch.Add(time.Millisecond))
	require.True(t, ok)

	assert.Len(t, before.RecentLaunches, beforeLen)
	assert.Len(t, after.RecentLaunches, 2)
}

func TestSanitizedConfig(t *testing.T) {
	cfg := Config{}.sanitized()
	assert.Equal(t, DefaultConfig(), cfg)
}
