// Package config provides gateway configuration.
//
// Configuration is loaded from environment variables with sensible
// defaults. For a complete list, see Load below.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// WatchdogConfig holds heartbeat/staleness/relaunch timer configuration.
type WatchdogConfig struct {
	HeartbeatInterval time.Duration
	StalenessBound    time.Duration
	RelaunchGrace     time.Duration
}

// PolicyConfig holds the policy-layer knobs.
type PolicyConfig struct {
	RateLimit            int
	RateWindow           time.Duration
	PayloadCapBytes      int
	CanUseToolDefault    string // "allow" | "deny"
	BrainURLAllowPlainWS bool
	BrainURLAllowList    []string
}

// OTLPConfig controls the periodic metrics push.
type OTLPConfig struct {
	Endpoint string
	Interval time.Duration
}

// SandboxConfig controls the Docker-backed per-session backend host.
type SandboxConfig struct {
	Enabled        bool
	Image          string
	MemoryLimit    int64
	CPUQuota       int64
	PidsLimit      int64
	TTL            time.Duration
	ReapInterval   time.Duration
	CreateTimeout  time.Duration
}

// Config holds all gateway configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DataDir        string
	AllowedOrigins []string

	Watchdog WatchdogConfig
	Policy   PolicyConfig
	OTLP     OTLPConfig
	Sandbox  SandboxConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DataDir:        getEnv("GATEWAY_DATA_DIR", "./data"),
		AllowedOrigins: getEnvStringList("GATEWAY_CORS_ALLOWED_ORIGINS", []string{"*"}),

		Watchdog: WatchdogConfig{
			HeartbeatInterval: getEnvDuration("GATEWAY_HEARTBEAT_INTERVAL", 10*time.Second),
			StalenessBound:    getEnvDuration("GATEWAY_STALENESS_BOUND", 45*time.Second),
			RelaunchGrace:     getEnvDuration("GATEWAY_RELAUNCH_GRACE", 20*time.Second),
		},
		Policy: PolicyConfig{
			RateLimit:            getEnvInt("GATEWAY_RATE_LIMIT", 240),
			RateWindow:           getEnvDuration("GATEWAY_RATE_WINDOW", time.Minute),
			PayloadCapBytes:      getEnvInt("GATEWAY_PAYLOAD_CAP_BYTES", 512*1024),
			CanUseToolDefault:    getEnv("UNIFIED_AGENT_CAN_USE_TOOL_DEFAULT", "deny"),
			BrainURLAllowPlainWS: getEnvBool("GATEWAY_BRAIN_URL_ALLOW_PLAIN_WS", false),
			BrainURLAllowList:    getEnvStringList("GATEWAY_BRAIN_URL_ALLOWLIST", nil),
		},
		OTLP: OTLPConfig{
			Endpoint: getEnv("GATEWAY_OTLP_ENDPOINT", ""),
			Interval: getEnvDuration("GATEWAY_OTLP_INTERVAL", 15*time.Second),
		},
		Sandbox: SandboxConfig{
			Enabled:       getEnvBool("GATEWAY_SANDBOX_ENABLED", false),
			Image:         getEnv("GATEWAY_SANDBOX_IMAGE", "ghcr.io/unified-agent/backend-sandbox:latest"),
			MemoryLimit:   getEnvInt64("GATEWAY_SANDBOX_MEMORY_LIMIT", 512*1024*1024),
			CPUQuota:      getEnvInt64("GATEWAY_SANDBOX_CPU_QUOTA", 50000),
			PidsLimit:     getEnvInt64("GATEWAY_SANDBOX_PIDS_LIMIT", 256),
			TTL:           getEnvDuration("GATEWAY_SANDBOX_TTL", 60*time.Minute),
			ReapInterval:  getEnvDuration("GATEWAY_SANDBOX_REAP_INTERVAL", 5*time.Minute),
			CreateTimeout: getEnvDuration("GATEWAY_SANDBOX_CREATE_TIMEOUT", 2*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("GATEWAY_DATA_DIR cannot be empty")
	}
	if c.Policy.CanUseToolDefault != "allow" && c.Policy.CanUseToolDefault != "deny" {
		return fmt.Errorf("UNIFIED_AGENT_CAN_USE_TOOL_DEFAULT must be allow or deny, got %q", c.Policy.CanUseToolDefault)
	}
	if c.Policy.RateLimit <= 0 {
		return fmt.Errorf("GATEWAY_RATE_LIMIT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvStringList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsContainer returns true if running inside a Docker container.
func IsContainer() bool {
	if os.Getenv("CONTAINER") == "true" {
		return true
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}
