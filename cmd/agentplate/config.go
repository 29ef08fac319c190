package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all agentplate server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr         string `json:"listen_addr"`
	DBPath             string `json:"db_path"`
	BlobRoot           string `json:"blob_root"`
	FunctionsURL       string `json:"functions_url"`
	FunctionsToken     string `json:"functions_token"`
	LogLevel           string `json:"log_level"`
	EvaluateConditions bool   `json:"evaluate_conditions"`
	VaultPassphrase    string `json:"vault_passphrase"`
	VaultSalt          string `json:"vault_salt"`
	ScheduleIntervalS  int    `json:"schedule_interval_seconds"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:        ":4600",
		DBPath:            filepath.Join(agentplateDir(), "agentplate.db"),
		BlobRoot:          filepath.Join(agentplateDir(), "blobs"),
		LogLevel:          "info",
		ScheduleIntervalS: 60,
	}
}

func agentplateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentplate"
	}
	return filepath.Join(home, ".agentplate")
}

func settingsPath() string {
	return filepath.Join(agentplateDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("AGENTPLATE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("AGENTPLATE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("AGENTPLATE_BLOB_ROOT"); v != "" {
		cfg.BlobRoot = v
	}
	if v := os.Getenv("AGENTPLATE_FUNCTIONS_URL"); v != "" {
		cfg.FunctionsURL = v
	}
	if v := os.Getenv("AGENTPLATE_FUNCTIONS_TOKEN"); v != "" {
		cfg.FunctionsToken = v
	}
	if v := os.Getenv("AGENTPLATE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AGENTPLATE_EVALUATE_CONDITIONS"); v != "" {
		cfg.EvaluateConditions = v == "true" || v == "1"
	}
	if v := os.Getenv("AGENTPLATE_VAULT_PASSPHRASE"); v != "" {
		cfg.VaultPassphrase = v
	}
	if v := os.Getenv("AGENTPLATE_VAULT_SALT"); v != "" {
		cfg.VaultSalt = v
	}
	if v := os.Getenv("AGENTPLATE_SCHEDULE_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ScheduleIntervalS = n
		}
	}

	return cfg
}

func (cfg Config) scheduleInterval() time.Duration {
	return time.Duration(cfg.ScheduleIntervalS) * time.Second
}
