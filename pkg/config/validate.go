package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// ValidateConfig sets defaults and fails fast on critical errors.
func ValidateConfig(eff *EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("effective config is nil")
	}
	if strings.TrimSpace(eff.DBPath) == "" {
		return fmt.Errorf("database path is empty: set --db flag, CHATRELAY_DB_PATH env, or server.db_path in config")
	}

	cert := cfg.Server.TLS.CertFile
	key := cfg.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}
	if cfg.Server.MaxRequestBody <= 0 {
		cfg.Server.MaxRequestBody = defaultMaxRequestBody
	}

	switch cfg.Storage.Engine {
	case "":
		cfg.Storage.Engine = EnginePebble
	case EnginePebble, EngineSQLite:
	default:
		return fmt.Errorf("invalid storage.engine %q: want %q or %q", cfg.Storage.Engine, EnginePebble, EngineSQLite)
	}

	if cfg.Security.RateLimit.RPS <= 0 {
		cfg.Security.RateLimit.RPS = defaultRateRPS
	}
	if cfg.Security.RateLimit.Burst <= 0 {
		cfg.Security.RateLimit.Burst = defaultRateBurst
	}

	gw := &cfg.Gateway
	if gw.SendBuffer <= 0 {
		gw.SendBuffer = defaultSendBuffer
	}
	if gw.WriteTimeout <= 0 {
		gw.WriteTimeout = Duration(defaultWriteTimeout)
	}
	if gw.PongWait <= 0 {
		gw.PongWait = Duration(defaultPongWait)
	}
	if gw.MaxMessageSize <= 0 {
		gw.MaxMessageSize = defaultMaxMessageSize
	}
	if gw.EventRate.RPS <= 0 {
		gw.EventRate.RPS = defaultEventRPS
	}
	if gw.EventRate.Burst <= 0 {
		gw.EventRate.Burst = defaultEventBurst
	}

	ret := &cfg.Retention
	if ret.LockTTL <= 0 {
		ret.LockTTL = Duration(defaultRetentionLockTTL)
	}
	if ret.Cron == "" {
		ret.Cron = defaultRetentionCron
	}
	if ret.Enabled {
		if !gronx.New().IsValid(ret.Cron) {
			return fmt.Errorf("invalid retention.cron: not a valid cron expression")
		}
	}
	if ret.Period != "" {
		p, err := ParsePeriod(ret.Period)
		if err != nil {
			return fmt.Errorf("invalid retention.period: %w", err)
		}
		minP, _ := time.ParseDuration(minRetentionPeriod)
		if p < minP {
			return fmt.Errorf("retention.period %s is below the minimum %s", ret.Period, minRetentionPeriod)
		}
	}

	s := &cfg.Sensor
	if s.PollInterval <= 0 {
		s.PollInterval = Duration(defaultSensorPollInterval)
	}
	if s.DiskHighPct <= 0 {
		s.DiskHighPct = defaultSensorDiskHighPct
	}
	if s.DiskLowPct <= 0 {
		s.DiskLowPct = defaultSensorDiskLowPct
	}
	if s.DiskLowPct >= s.DiskHighPct {
		return fmt.Errorf("sensor.disk_low_pct (%d) must be below sensor.disk_high_pct (%d)", s.DiskLowPct, s.DiskHighPct)
	}

	eff.Addr = cfg.Addr()
	eff.DBPath = cfg.Server.DBPath
	return nil
}
