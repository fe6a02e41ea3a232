package banner

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"chatrelay/pkg/config"
)

const banner = `
  ___ _         _   ___     _
 / __| |_  __ _| |_| _ \___| |__ _ _  _
| (__| ' \/ _' |  _|   / -_) / _' | || |
 \___|_||_\__,_|\__|_|_\___|_\__,_|\_, |
                                   |__/
`

// PrintWithEff prints the startup banner and a readiness checklist.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	src := eff.Source
	if src == "" {
		src = "flags"
	}
	cfg := eff.Config
	if cfg == nil {
		cfg = &config.Config{}
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", eff.Addr)
	fmt.Printf("DB Path:  %s (%s)\n", eff.DBPath, cfg.Storage.Engine)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)

	fmt.Println("\n== Production? =================================================")
	keyLine("Backend API keys", len(cfg.Security.APIKeys.Backend), "required for signing users")
	keyLine("Frontend API keys", len(cfg.Security.APIKeys.Frontend), "required for client access")
	keyLine("Admin API keys", len(cfg.Security.APIKeys.Admin), "required for admin tooling")

	if cfg.Server.TLS.CertFile != "" {
		fmt.Println("- TLS: enabled")
	} else {
		fmt.Println("- TLS: disabled")
	}
	if !cfg.Storage.Sync() {
		fmt.Println("- Sync writes: OFF (acknowledged messages may be lost on crash)")
	}
	fmt.Printf("- Websocket send buffer: %s events, max frame %s\n",
		humanize.Comma(int64(cfg.Gateway.SendBuffer)), cfg.Gateway.MaxMessageSize)

	if cfg.Retention.Enabled {
		period := cfg.Retention.Period
		if period == "" {
			period = "hidden-only"
		}
		fmt.Printf("- Retention: enabled (cron=%s period=%s dry_run=%t)\n", cfg.Retention.Cron, period, cfg.Retention.DryRun)
	} else {
		fmt.Println("- Retention: disabled")
	}
	fmt.Println()
}

func keyLine(name string, n int, why string) {
	if n > 0 {
		fmt.Printf("- %s: OK (%d)\n", name, n)
		return
	}
	fmt.Printf("- %s: MISSING (%s)\n", name, why)
}
