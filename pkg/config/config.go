package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnginePebble = "pebble"
	EngineSQLite = "sqlite"
)

// Defaults applied by ValidateConfig.
const (
	defaultPort           = 8080
	defaultRateRPS        = 1000
	defaultRateBurst      = 1000
	defaultMaxRequestBody = 5 * 1024 * 1024 // 5 MiB

	// gateway defaults
	defaultSendBuffer     = 256
	defaultWriteTimeout   = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 64 * 1024
	defaultEventRPS       = 50
	defaultEventBurst     = 100

	// retention defaults
	defaultRetentionLockTTL = 300 * time.Second
	defaultRetentionCron    = "0 2 * * *"
	minRetentionPeriod      = "1h"

	// sensor defaults
	defaultSensorPollInterval = 5 * time.Second
	defaultSensorDiskHighPct  = 90
	defaultSensorDiskLowPct   = 80
)

// Addr returns the HTTP server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("CHATRELAY_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// KeySet turns a key list into a lookup set.
func KeySet(keys []string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}
