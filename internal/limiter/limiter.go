// Package limiter implements the per-connection token bucket and the launch
// burst window used to throttle relay clients.
//
// The limiter holds no state of its own. Callers pass the previous State and
// the current time and store the returned State wherever the connection keeps
// its metadata, so a limiter decision can be reproduced by anyone holding the
// same State.
package limiter

import (
	"math"
	"time"
)

// Config defines the bucket and burst parameters.
type Config struct {
	// Capacity is the maximum number of tokens in the bucket.
	Capacity float64
	// RefillPerMillisecond is the number of tokens added per elapsed millisecond.
	RefillPerMillisecond float64
	// MaxLookback bounds how much idle time is credited on a single refill.
	MaxLookback time.Duration
	// LaunchBurst is the maximum number of launches admitted per LaunchWindow.
	LaunchBurst int
	// LaunchWindow is the rolling window the launch burst is counted over.
	LaunchWindow time.Duration
}

// DefaultConfig returns 120 tokens refilled at 2 per second, a 10 minute
// refill lookback, and at most 5 launches per rolling second.
func DefaultConfig() Config {
	return Config{
		Capacity:             120,
		RefillPerMillisecond: 2.0 / 1000.0,
		MaxLookback:          10 * time.Minute,
		LaunchBurst:          5,
		LaunchWindow:         time.Second,
	}
}

// State is the limiter state carried by a connection. The zero value is a
// connection that has not sent anything yet and starts with a full bucket.
//
// Burst decisions are made from RecentLaunches alone. LastLaunch and
// LaunchBurstCount are kept for logging and inspection: the time of the last
// admitted launch and the number of launches in the trailing window,
// including a denied one.
type State struct {
	Tokens           float64     `json:"tokens"`
	LastRefill       time.Time   `json:"lastRefill"`
	LastLaunch       time.Time   `json:"lastLaunch"`
	LaunchBurstCount int         `json:"launchBurstCount"`
	RecentLaunches   []time.Time `json:"recentLaunches,omitempty"`
}

// IsZero reports whether the state has never been through Admit.
func (s State) IsZero() bool {
	return s.LastRefill.IsZero()
}

func (c Config) sanitized() Config {
	def := DefaultConfig()
	if c.Capacity < 1 {
		c.Capacity = def.Capacity
	}
	if c.RefillPerMillisecond <= 0 {
		c.RefillPerMillisecond = def.RefillPerMillisecond
	}
	if c.MaxLookback <= 0 {
		c.MaxLookback = def.MaxLookback
	}
	if c.LaunchBurst <= 0 {
		c.LaunchBurst = def.LaunchBurst
	}
	if c.LaunchWindow <= 0 {
		c.LaunchWindow = def.LaunchWindow
	}
	return c
}

// Admit refills the bucket for the time elapsed since the last refill and
// tries to take one token. A denied call consumes nothing.
func (c Config) Admit(s State, now time.Time) (State, bool) {
	c = c.sanitized()

	if s.IsZero() {
		s.Tokens = c.Capacity
		s.LastRefill = now
	}

	elapsed := now.Sub(s.LastRefill)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > c.MaxLookback {
		elapsed = c.MaxLookback
	}

	ms := float64(elapsed) / float64(time.Millisecond)
	s.Tokens = math.Min(c.Capacity, s.Tokens+ms*c.RefillPerMillisecond)
	if now.After(s.LastRefill) {
		s.LastRefill = now
	}

	if s.Tokens < 1 {
		return s, false
	}

	s.Tokens--
	return s, true
}

// AdmitLaunch applies the launch burst window: a launch is admitted only if
// fewer than LaunchBurst launches were admitted within the trailing
// LaunchWindow. The returned State never shares memory with s.
func (c Config) AdmitLaunch(s State, now time.Time) (State, bool) {
	c = c.sanitized()

	recent := make([]time.Time, 0, c.LaunchBurst)
	for _, t := range s.RecentLaunches {
		if now.Sub(t) < c.LaunchWindow {
			recent = append(recent, t)
		}
	}
	s.RecentLaunches = recent

	if len(recent) >= c.LaunchBurst {
		s.LaunchBurstCount = len(recent) + 1
		return s, false
	}

	s.RecentLaunches = append(recent, now)
	s.LaunchBurstCount = len(s.RecentLaunches)
	s.LastLaunch = now
	return s, true
}
