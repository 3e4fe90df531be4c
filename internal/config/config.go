// Package config defines the edge runner's configuration and how it is
// assembled from defaults, environment variables, and an optional YAML
// overlay file, mirroring the teacher's internal/config layering
// (config.go struct tags + env.go overrides).
package config

import "time"

// Config is the full set of recognised options, spec.md §6.4 plus the
// ambient/domain-stack additions listed in SPEC_FULL.md §6.4.
type Config struct {
	NodeID string `yaml:"node_id"`
	PoPID  string `yaml:"pop_id" default:"default-pop"`

	CPURL string `yaml:"cp_url" default:"http://localhost:8080"`

	ListenAddr string `yaml:"listen_addr" default:"0.0.0.0:3000"`
	AdminAddr  string `yaml:"admin_listen_addr" default:"0.0.0.0:3001"`

	CacheDir     string `yaml:"cache_dir" default:"/tmp/wasm-cache"`
	CacheSizeGB  int64  `yaml:"cache_size_gb" default:"10"`

	MaxHotInstances int           `yaml:"max_hot_instances" default:"10"`
	IdleTimeout     time.Duration `yaml:"idle_timeout_secs" default:"300s"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval_secs" default:"30s"`

	AdmissionWindow time.Duration `yaml:"admission_window_secs" default:"60s"`
	AdmissionLimit  int           `yaml:"admission_limit" default:"1000"`

	// DefaultConcurrencyCap bounds in-flight invocations per function
	// id when a deployment does not declare its own concurrency cap.
	DefaultConcurrencyCap int `yaml:"default_concurrency_cap" default:"50"`

	BreakerFailureThreshold int           `yaml:"breaker_failure_threshold" default:"3"`
	BreakerResetTimeout     time.Duration `yaml:"breaker_reset_timeout_secs" default:"30s"`

	ResponseCapBytes int `yaml:"response_cap_bytes" default:"4096"`

	LogLevel string `yaml:"log_level" default:"info"`
	LogDev   bool   `yaml:"log_dev"`

	CPClientID     string `yaml:"cp_client_id"`
	CPClientSecret string `yaml:"cp_client_secret"`
	CPTokenURL     string `yaml:"cp_token_url"`
	CPNodeSecret   string `yaml:"cp_node_secret"`

	// ConfigFile, if non-empty, is watched for hot-reloadable changes
	// (log level, admission limits, breaker threshold). Not itself
	// read from the file it names.
	ConfigFile string `yaml:"-"`
}

// Default returns a Config with every spec-mandated default applied,
// except NodeID, which is left empty here; cmd/edgerunner assigns a
// random UUID when no node id is configured.
func Default() *Config {
	return &Config{
		PoPID:                   "default-pop",
		CPURL:                   "http://localhost:8080",
		ListenAddr:              "0.0.0.0:3000",
		AdminAddr:               "0.0.0.0:3001",
		CacheDir:                "/tmp/wasm-cache",
		CacheSizeGB:             10,
		MaxHotInstances:         10,
		IdleTimeout:             300 * time.Second,
		HeartbeatInterval:       30 * time.Second,
		AdmissionWindow:         60 * time.Second,
		AdmissionLimit:          1000,
		DefaultConcurrencyCap:   50,
		BreakerFailureThreshold: 3,
		BreakerResetTimeout:     30 * time.Second,
		ResponseCapBytes:        4096,
		LogLevel:                "info",
	}
}

// CacheSizeBytes converts the configured gigabyte bound to bytes.
func (c *Config) CacheSizeBytes() int64 {
	return c.CacheSizeGB * 1024 * 1024 * 1024
}

// Mutable reports the fields the hot-reload watcher is allowed to
// apply without a restart: log level and the admission/breaker knobs.
// Structural fields (listen addr, cache dir, node identity) are
// intentionally excluded.
type Mutable struct {
	LogLevel                string
	AdmissionLimit          int
	BreakerFailureThreshold int
}

// ApplyMutable copies only the hot-reloadable fields from a freshly
// loaded Config.
func (c *Config) ApplyMutable(m Mutable) {
	c.LogLevel = m.LogLevel
	c.AdmissionLimit = m.AdmissionLimit
	c.BreakerFailureThreshold = m.BreakerFailureThreshold
}

// AsMutable extracts the hot-reloadable subset.
func (c *Config) AsMutable() Mutable {
	return Mutable{
		LogLevel:                c.LogLevel,
		AdmissionLimit:          c.AdmissionLimit,
		BreakerFailureThreshold: c.BreakerFailureThreshold,
	}
}
