package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv overlays environment variables onto cfg, following the
// teacher's env.go pattern of one conditional assignment per field.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("EDGERUNNER_NODE_ID"); v != "" {
		cfg.NodeID = v
	}
	if v := os.Getenv("EDGERUNNER_POP_ID"); v != "" {
		cfg.PoPID = v
	}
	if v := os.Getenv("EDGERUNNER_CP_URL"); v != "" {
		cfg.CPURL = v
	}
	if v := os.Getenv("EDGERUNNER_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("EDGERUNNER_ADMIN_LISTEN_ADDR"); v != "" {
		cfg.AdminAddr = v
	}
	if v := os.Getenv("EDGERUNNER_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("EDGERUNNER_CACHE_SIZE_GB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.CacheSizeGB = n
		}
	}
	if v := os.Getenv("EDGERUNNER_MAX_HOT_INSTANCES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxHotInstances = n
		}
	}
	if v := os.Getenv("EDGERUNNER_IDLE_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IdleTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("EDGERUNNER_HEARTBEAT_INTERVAL_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HeartbeatInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("EDGERUNNER_ADMISSION_WINDOW_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AdmissionWindow = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("EDGERUNNER_ADMISSION_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AdmissionLimit = n
		}
	}
	if v := os.Getenv("EDGERUNNER_BREAKER_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BreakerFailureThreshold = n
		}
	}
	if v := os.Getenv("EDGERUNNER_BREAKER_RESET_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BreakerResetTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("EDGERUNNER_RESPONSE_CAP_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ResponseCapBytes = n
		}
	}
	if v := os.Getenv("EDGERUNNER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("EDGERUNNER_LOG_DEV"); v != "" {
		cfg.LogDev = v == "1" || v == "true"
	}
	if v := os.Getenv("EDGERUNNER_CP_CLIENT_ID"); v != "" {
		cfg.CPClientID = v
	}
	if v := os.Getenv("EDGERUNNER_CP_CLIENT_SECRET"); v != "" {
		cfg.CPClientSecret = v
	}
	if v := os.Getenv("EDGERUNNER_CP_TOKEN_URL"); v != "" {
		cfg.CPTokenURL = v
	}
	if v := os.Getenv("EDGERUNNER_CP_NODE_SECRET"); v != "" {
		cfg.CPNodeSecret = v
	}
	if v := os.Getenv("EDGERUNNER_CONFIG_FILE"); v != "" {
		cfg.ConfigFile = v
	}
}

// GetEnvOrDefault returns the environment variable's value, or
// defaultValue if it is unset or empty.
func GetEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
