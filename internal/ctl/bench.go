package ctl

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	vegeta "github.com/tsenart/vegeta/lib"

	"chatrelay/pkg/api/routes/frontend"
	"chatrelay/pkg/models"
)

const (
	patternSend    = "send"
	patternHistory = "history"
)

type benchConfig struct {
	Host     string
	APIKey   string
	Sender   string
	Receiver string
	Pattern  string
	RPS      int
	Duration time.Duration
	Payload  int
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Load test direct sends or history reads",
	Long: `bench registers two bench users and then drives one of two patterns
at a fixed rate:

  send     POST /v1/chats/{receiver}/messages
  history  GET  /v1/chats/{receiver}/messages

It needs a backend API key, which may act for any user without a signature.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return viper.BindPFlags(cmd.Flags())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		cfg := benchConfig{
			Host:     viper.GetString(hostFlag),
			APIKey:   c.apiKey,
			Sender:   viper.GetString("sender"),
			Receiver: viper.GetString("receiver"),
			Pattern:  viper.GetString("pattern"),
			RPS:      viper.GetInt("rps"),
			Duration: viper.GetDuration("duration"),
			Payload:  viper.GetInt("payload"),
		}
		for _, id := range []string{cfg.Sender, cfg.Receiver} {
			u := models.User{ID: id, Name: id, Email: id + "@bench.local"}
			if err := c.RegisterUser(u); err != nil {
				return fmt.Errorf("register %s: %w", id, err)
			}
		}

		targets, err := benchTargets(cfg)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "bench %s against %s: %d rps for %s (key %s)\n",
			cfg.Pattern, cfg.Host, cfg.RPS, cfg.Duration, maskKey(cfg.APIKey))

		attacker := vegeta.NewAttacker(vegeta.Workers(uint64(runtime.NumCPU())))
		rate := vegeta.Rate{Freq: cfg.RPS, Per: time.Second}
		var metrics vegeta.Metrics
		for res := range attacker.Attack(vegeta.NewStaticTargeter(targets...), rate, cfg.Duration, "chatrelay-"+cfg.Pattern) {
			metrics.Add(res)
		}
		metrics.Close()
		return vegeta.NewTextReporter(&metrics).Report(out)
	},
}

// benchTargets builds the request the attacker repeats.
func benchTargets(cfg benchConfig) ([]vegeta.Target, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("X-User-ID", cfg.Sender)
	u := strings.TrimRight(cfg.Host, "/") + "/v1/chats/" + url.PathEscape(cfg.Receiver) + "/messages"

	switch cfg.Pattern {
	case patternSend:
		body, err := json.Marshal(frontend.SendRequest{Body: strings.Repeat("x", max(cfg.Payload, 1))})
		if err != nil {
			return nil, err
		}
		header.Set("Content-Type", "application/json")
		return []vegeta.Target{{Method: http.MethodPost, URL: u, Body: body, Header: header}}, nil
	case patternHistory:
		return []vegeta.Target{{Method: http.MethodGet, URL: u, Header: header}}, nil
	default:
		return nil, fmt.Errorf("unknown pattern %q: want %s or %s", cfg.Pattern, patternSend, patternHistory)
	}
}

func init() {
	fs := benchCmd.Flags()
	fs.String("pattern", patternSend, "send or history")
	fs.String("sender", "bench-alice", "acting user")
	fs.String("receiver", "bench-bob", "counterpart user")
	fs.Int("rps", 200, "requests per second")
	fs.Duration("duration", 30*time.Second, "attack duration")
	fs.Int("payload", 256, "message body size in bytes")
	rootCmd.AddCommand(benchCmd)
}
