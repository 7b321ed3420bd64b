package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderAuto    = "auto"
	ProviderAnam    = "anam"
	ProviderBackend = "backend"
	ProviderMock    = "mock"
)

// Config contains all runtime settings for the avatar tour service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool
	RedactErrors   bool

	AvatarProvider string

	AnamAPIKey      string
	AnamAPIBaseURL  string
	AnamRealtimeURL string

	BackendURL       string
	BackendAvatarID  string
	BackendContextID string

	PersonaFile string

	VideoSinkID         string
	IdleSeconds         float64
	IdleFollowUpMessage string
	DemoConfirmation    string
	DemoNavigateDelay   time.Duration
	StopGrace           time.Duration
	ConnectTimeout      time.Duration
	KeepAliveInterval   time.Duration
}

// LoadDotEnv loads the given env files in order. Variables already set win, so
// earlier files take precedence over later ones. Missing files are skipped.
func LoadDotEnv(paths ...string) ([]string, error) {
	var loaded []string
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("load %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}

// Load reads environment variables and applies safe defaults. Missing provider
// credentials are not an error here; they surface when a session starts.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "avatar_tour"),
		AvatarProvider:           strings.ToLower(envOrDefault("AVATAR_PROVIDER", ProviderAuto)),
		AnamAPIKey:               stringsTrimSpace("ANAM_API_KEY"),
		AnamAPIBaseURL:           envOrDefault("ANAM_API_BASE_URL", "https://api.anam.ai"),
		AnamRealtimeURL:          stringsTrimSpace("ANAM_REALTIME_URL"),
		BackendURL:               stringsTrimSpace("AVATAR_BACKEND_URL"),
		BackendAvatarID:          stringsTrimSpace("AVATAR_BACKEND_AVATAR_ID"),
		BackendContextID:         stringsTrimSpace("AVATAR_BACKEND_CONTEXT_ID"),
		PersonaFile:              stringsTrimSpace("PERSONA_FILE"),
		VideoSinkID:              envOrDefault("AVATAR_VIDEO_SINK_ID", "anam-avatar-video"),
		IdleFollowUpMessage:      stringsTrimSpace("AVATAR_IDLE_FOLLOW_UP_MESSAGE"),
		DemoConfirmation:         envOrDefault("AVATAR_DEMO_CONFIRMATION", "OK sure, let's see our demo!"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 10 * time.Minute,
		IdleSeconds:              10,
		DemoNavigateDelay:        3500 * time.Millisecond,
		StopGrace:                2 * time.Second,
		ConnectTimeout:           20 * time.Second,
		KeepAliveInterval:        5 * time.Minute,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.RedactErrors, err = boolFromEnv("APP_REDACT_ERRORS", cfg.RedactErrors)
	if err != nil {
		return Config{}, err
	}
	cfg.IdleSeconds, err = floatFromEnv("AVATAR_IDLE_SECONDS", cfg.IdleSeconds)
	if err != nil {
		return Config{}, err
	}
	cfg.DemoNavigateDelay, err = durationFromEnv("AVATAR_DEMO_NAVIGATE_DELAY", cfg.DemoNavigateDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.StopGrace, err = durationFromEnv("AVATAR_STOP_GRACE", cfg.StopGrace)
	if err != nil {
		return Config{}, err
	}
	cfg.ConnectTimeout, err = durationFromEnv("AVATAR_CONNECT_TIMEOUT", cfg.ConnectTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.KeepAliveInterval, err = durationFromEnv("AVATAR_KEEPALIVE_INTERVAL", cfg.KeepAliveInterval)
	if err != nil {
		return Config{}, err
	}

	switch cfg.AvatarProvider {
	case ProviderAuto, ProviderAnam, ProviderBackend, ProviderMock:
	default:
		return Config{}, fmt.Errorf("AVATAR_PROVIDER must be one of auto, anam, backend, mock")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.IdleSeconds < 0 {
		return Config{}, fmt.Errorf("AVATAR_IDLE_SECONDS must be >= 0")
	}
	if cfg.DemoNavigateDelay < 0 {
		return Config{}, fmt.Errorf("AVATAR_DEMO_NAVIGATE_DELAY must be >= 0")
	}
	if cfg.StopGrace <= 0 {
		return Config{}, fmt.Errorf("AVATAR_STOP_GRACE must be positive")
	}
	if cfg.ConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("AVATAR_CONNECT_TIMEOUT must be positive")
	}
	if cfg.KeepAliveInterval < time.Second {
		return Config{}, fmt.Errorf("AVATAR_KEEPALIVE_INTERVAL must be at least 1s")
	}

	return cfg, nil
}

// ResolvedProvider maps "auto" to a concrete provider: the backend when a
// backend URL is set, the provider API when a key is set, otherwise the mock.
func (c Config) ResolvedProvider() string {
	if c.AvatarProvider != ProviderAuto {
		return c.AvatarProvider
	}
	switch {
	case c.BackendURL != "":
		return ProviderBackend
	case c.AnamAPIKey != "":
		return ProviderAnam
	default:
		return ProviderMock
	}
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
