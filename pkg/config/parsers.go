package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

const envPrefix = "CHATRELAY_"

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Engine string
	Set    map[string]bool
}

// EnvResult reports what the environment contributed.
type EnvResult struct {
	BackendKeys map[string]struct{}
	EnvUsed     bool
}

// EffectiveConfigResult holds the result of LoadEffectiveConfig.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", or "env"
}

// ParseConfigFlags parses the process flags on the default flag set.
func ParseConfigFlags() Flags {
	return parseFlags(flag.CommandLine, os.Args[1:])
}

func parseFlags(fs *flag.FlagSet, args []string) Flags {
	addrPtr := fs.String("addr", ":8080", "HTTP listen address")
	dbPtr := fs.String("db", "./.database", "database path")
	cfgPtr := fs.String("config", "./config.yaml", "Path to config file")
	enginePtr := fs.String("engine", EnginePebble, "storage engine: pebble or sqlite")
	_ = fs.Parse(args)

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Engine: *enginePtr, Set: set}
}

// ParseConfigFile loads the config file; a missing file is not an error.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// ParseConfigEnvs reads CHATRELAY_* variables into a fresh Config.
func ParseConfigEnvs() (*Config, EnvResult) {
	cfg := &Config{}
	used := false

	// each setter runs only when its variable is non-empty
	setters := []struct {
		name string
		set  func(v string)
	}{
		{"ADDR", func(v string) {
			if h, p, err := net.SplitHostPort(v); err == nil {
				cfg.Server.Address = h
				if pi, err := strconv.Atoi(p); err == nil {
					cfg.Server.Port = pi
				}
				return
			}
			cfg.Server.Address = v
		}},
		{"SERVER_ADDRESS", func(v string) {
			if cfg.Server.Address == "" {
				cfg.Server.Address = v
			}
		}},
		{"SERVER_PORT", func(v string) {
			if pi, err := strconv.Atoi(v); err == nil && cfg.Server.Port == 0 {
				cfg.Server.Port = pi
			}
		}},
		{"DB_PATH", func(v string) { cfg.Server.DBPath = v }},
		{"TLS_CERT", func(v string) { cfg.Server.TLS.CertFile = v }},
		{"TLS_KEY", func(v string) { cfg.Server.TLS.KeyFile = v }},
		{"MAX_REQUEST_BODY", func(v string) {
			if s, err := parseSize(v); err == nil {
				cfg.Server.MaxRequestBody = s
			}
		}},

		{"CORS_ORIGINS", func(v string) { cfg.Security.CORS.AllowedOrigins = parseList(v) }},
		{"RATE_RPS", func(v string) {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				cfg.Security.RateLimit.RPS = f
			}
		}},
		{"RATE_BURST", func(v string) {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.Security.RateLimit.Burst = n
			}
		}},
		{"IP_WHITELIST", func(v string) { cfg.Security.IPWhitelist = parseList(v) }},
		{"API_BACKEND_KEYS", func(v string) { cfg.Security.APIKeys.Backend = parseList(v) }},
		{"API_FRONTEND_KEYS", func(v string) { cfg.Security.APIKeys.Frontend = parseList(v) }},
		{"API_ADMIN_KEYS", func(v string) { cfg.Security.APIKeys.Admin = parseList(v) }},

		{"LOG_LEVEL", func(v string) { cfg.Logging.Level = v }},

		{"STORAGE_ENGINE", func(v string) { cfg.Storage.Engine = strings.ToLower(v) }},
		{"STORAGE_SYNC_WRITES", func(v string) {
			b := parseBool(v)
			cfg.Storage.SyncWrites = &b
		}},

		{"GATEWAY_SEND_BUFFER", func(v string) {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.Gateway.SendBuffer = n
			}
		}},
		{"GATEWAY_WRITE_TIMEOUT", func(v string) {
			if d, err := parseDuration(v); err == nil {
				cfg.Gateway.WriteTimeout = d
			}
		}},
		{"GATEWAY_PONG_WAIT", func(v string) {
			if d, err := parseDuration(v); err == nil {
				cfg.Gateway.PongWait = d
			}
		}},
		{"GATEWAY_MAX_MESSAGE_SIZE", func(v string) {
			if s, err := parseSize(v); err == nil {
				cfg.Gateway.MaxMessageSize = s
			}
		}},
		{"GATEWAY_EVENT_RPS", func(v string) {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				cfg.Gateway.EventRate.RPS = f
			}
		}},
		{"GATEWAY_EVENT_BURST", func(v string) {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.Gateway.EventRate.Burst = n
			}
		}},

		{"RETENTION_ENABLED", func(v string) { cfg.Retention.Enabled = parseBool(v) }},
		{"RETENTION_CRON", func(v string) { cfg.Retention.Cron = v }},
		{"RETENTION_PERIOD", func(v string) { cfg.Retention.Period = v }},
		{"RETENTION_DRY_RUN", func(v string) { cfg.Retention.DryRun = parseBool(v) }},
		{"RETENTION_LOCK_TTL", func(v string) {
			if d, err := parseDuration(v); err == nil {
				cfg.Retention.LockTTL = d
			}
		}},

		{"SENSOR_POLL_INTERVAL", func(v string) {
			if d, err := parseDuration(v); err == nil {
				cfg.Sensor.PollInterval = d
			}
		}},
		{"SENSOR_DISK_HIGH_PCT", func(v string) {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.Sensor.DiskHighPct = n
			}
		}},
		{"SENSOR_DISK_LOW_PCT", func(v string) {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.Sensor.DiskLowPct = n
			}
		}},
	}

	for _, s := range setters {
		v := strings.TrimSpace(os.Getenv(envPrefix + s.name))
		if v == "" {
			continue
		}
		used = true
		s.set(v)
	}

	return cfg, EnvResult{BackendKeys: KeySet(cfg.Security.APIKeys.Backend), EnvUsed: used}
}

// LoadEffectiveConfig picks a single source: an explicit --config wins, then
// --addr/--db/--engine flags, then a config file if present, else env.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envRes EnvResult) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	if flags.Set["config"] {
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		return fromConfig(fileCfg, "config"), nil
	}

	if flags.Set["addr"] || flags.Set["db"] || flags.Set["engine"] {
		base := envCfg
		if fileExists {
			base = fileCfg
		}
		out := *base
		if flags.Set["addr"] {
			host, port := splitAddr(flags.Addr)
			out.Server.Address = host
			out.Server.Port = port
		}
		if flags.Set["db"] {
			out.Server.DBPath = flags.DB
		}
		if flags.Set["engine"] {
			out.Storage.Engine = strings.ToLower(flags.Engine)
		}
		if strings.TrimSpace(out.Server.DBPath) == "" {
			out.Server.DBPath = flags.DB
		}
		return fromConfig(&out, "flags"), nil
	}

	if fileExists {
		return fromConfig(fileCfg, "config"), nil
	}
	if !envRes.EnvUsed && strings.TrimSpace(envCfg.Server.DBPath) == "" {
		// nothing configured anywhere; run on flag defaults
		envCfg.Server.DBPath = flags.DB
	}
	return fromConfig(envCfg, "env"), nil
}

func fromConfig(cfg *Config, source string) EffectiveConfigResult {
	return EffectiveConfigResult{
		Config: cfg,
		Addr:   cfg.Addr(),
		DBPath: cfg.Server.DBPath,
		Source: source,
	}
}

func splitAddr(addr string) (string, int) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, defaultPort
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return host, defaultPort
	}
	return host, port
}
