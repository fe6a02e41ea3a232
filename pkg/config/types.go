package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Retention RetentionConfig `yaml:"retention"`
	Sensor    SensorConfig    `yaml:"sensor"`
}

// ServerConfig holds http and tls settings.
type ServerConfig struct {
	Address string    `yaml:"address"`
	Port    int       `yaml:"port"`
	DBPath  string    `yaml:"db_path"`
	TLS     TLSConfig `yaml:"tls"`
	// MaxRequestBody caps HTTP request bodies (e.g. "1MB").
	MaxRequestBody SizeBytes `yaml:"max_request_body"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// SecurityConfig holds security related settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit   RateConfig `yaml:"rate_limit"`
	IPWhitelist []string   `yaml:"ip_whitelist"`
	APIKeys     struct {
		Backend  []string `yaml:"backend"`
		Frontend []string `yaml:"frontend"`
		Admin    []string `yaml:"admin"`
	} `yaml:"api_keys"`
}

// RateConfig is a token bucket: sustained rate plus burst.
type RateConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// StorageConfig selects the persistence engine.
type StorageConfig struct {
	// Engine is "pebble" (default) or "sqlite".
	Engine string `yaml:"engine"`
	// SyncWrites fsyncs every committed batch. Defaults to true.
	SyncWrites *bool `yaml:"sync_writes"`
}

// Sync reports the effective sync_writes value.
func (s StorageConfig) Sync() bool {
	if s.SyncWrites == nil {
		return true
	}
	return *s.SyncWrites
}

// GatewayConfig tunes live websocket connections.
type GatewayConfig struct {
	SendBuffer     int        `yaml:"send_buffer"`
	WriteTimeout   Duration   `yaml:"write_timeout"`
	PongWait       Duration   `yaml:"pong_wait"`
	MaxMessageSize SizeBytes  `yaml:"max_message_size"`
	EventRate      RateConfig `yaml:"event_rate"`
}

// RetentionConfig holds configuration for the automatic purge runner.
type RetentionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	// Period is the max message age, e.g. "90d". Empty keeps messages forever
	// and only purges messages hidden by both parties.
	Period string `yaml:"period"`
	DryRun bool   `yaml:"dry_run"`
	// LockTTL is the lease TTL held for the duration of a run.
	LockTTL Duration `yaml:"lock_ttl"`
}

// SensorConfig holds disk sensor knobs.
type SensorConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	DiskHighPct  int      `yaml:"disk_high_pct"`
	DiskLowPct   int      `yaml:"disk_low_pct"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	v, err := parseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func (s SizeBytes) String() string { return humanize.Bytes(uint64(s)) }

func parseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = 0
		return nil
	}
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	// numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}

// ParsePeriod parses retention periods. Accepts day suffixes ("30d") on top of time.ParseDuration.
func ParsePeriod(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
