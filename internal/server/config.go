// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay service.
package server

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/fireworks/internal/limiter"
	"github.com/Tyrowin/fireworks/internal/room"
)

// RateLimitConfig defines the per-connection token bucket and launch burst.
type RateLimitConfig struct {
	Capacity        int
	RefillPerMinute int
	MaxLookback     time.Duration
	LaunchBurst     int
	LaunchWindow    time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	RateLimit       RateLimitConfig
	RoomIdleTimeout time.Duration
	LogLevel        string
}

var (
	configMu     sync.RWMutex
	activeConfig Config
	activePolicy originPolicy
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port:           ":8080",
		AllowedOrigins: []string{"*"},
		MaxMessageSize: 512,
		RateLimit: RateLimitConfig{
			Capacity:        120,
			RefillPerMinute: 120,
			MaxLookback:     10 * time.Minute,
			LaunchBurst:     5,
			LaunchWindow:    time.Second,
		},
		RoomIdleTimeout: 30 * time.Second,
		LogLevel:        "info",
	}
}

func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = def.Port
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}

	if cfg.RateLimit.Capacity <= 0 {
		cfg.RateLimit.Capacity = def.RateLimit.Capacity
	}

	if cfg.RateLimit.RefillPerMinute <= 0 {
		cfg.RateLimit.RefillPerMinute = def.RateLimit.RefillPerMinute
	}

	if cfg.RateLimit.MaxLookback <= 0 {
		cfg.RateLimit.MaxLookback = def.RateLimit.MaxLookback
	}

	if cfg.RateLimit.LaunchBurst <= 0 {
		cfg.RateLimit.LaunchBurst = def.RateLimit.LaunchBurst
	}

	if cfg.RateLimit.LaunchWindow <= 0 {
		cfg.RateLimit.LaunchWindow = def.RateLimit.LaunchWindow
	}

	if cfg.RoomIdleTimeout <= 0 {
		cfg.RoomIdleTimeout = def.RoomIdleTimeout
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}

	policy := newOriginPolicy(cfg.AllowedOrigins)
	cfg.AllowedOrigins = policy.list()

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	activePolicy = policy
	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		sanitizeConfig(defaultConfig())
		return
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// CurrentConfig returns a copy of the active configuration.
func CurrentConfig() Config {
	return currentConfig()
}

// RoomConfig converts the configuration into the settings shared by rooms.
func (c Config) RoomConfig() room.Config {
	cfg := room.DefaultConfig()
	cfg.Limits = limiter.Config{
		Capacity:             float64(c.RateLimit.Capacity),
		RefillPerMillisecond: float64(c.RateLimit.RefillPerMinute) / float64(time.Minute/time.Millisecond),
		MaxLookback:          c.RateLimit.MaxLookback,
		LaunchBurst:          c.RateLimit.LaunchBurst,
		LaunchWindow:         c.RateLimit.LaunchWindow,
	}
	if c.RoomIdleTimeout > 0 {
		cfg.IdleTimeout = c.RoomIdleTimeout
	}
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if capacity := os.Getenv("RATE_LIMIT_CAPACITY"); capacity != "" {
		cfg.RateLimit.Capacity = parseIntValue(capacity, cfg.RateLimit.Capacity)
	}

	if refill := os.Getenv("RATE_LIMIT_REFILL_PER_MINUTE"); refill != "" {
		cfg.RateLimit.RefillPerMinute = parseIntValue(refill, cfg.RateLimit.RefillPerMinute)
	}

	if lookback := os.Getenv("RATE_LIMIT_MAX_LOOKBACK"); lookback != "" {
		cfg.RateLimit.MaxLookback = parseDuration(lookback, cfg.RateLimit.MaxLookback)
	}

	if burst := os.Getenv("LAUNCH_BURST"); burst != "" {
		cfg.RateLimit.LaunchBurst = parseIntValue(burst, cfg.RateLimit.LaunchBurst)
	}

	if window := os.Getenv("LAUNCH_BURST_WINDOW"); window != "" {
		cfg.RateLimit.LaunchWindow = parseDuration(window, cfg.RateLimit.LaunchWindow)
	}

	if idle := os.Getenv("ROOM_IDLE_TIMEOUT"); idle != "" {
		cfg.RoomIdleTimeout = parseDuration(idle, cfg.RoomIdleTimeout)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	return &cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts Go duration strings ("90s", "1m30s") or a bare
// number of seconds.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
