package ctl

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// sampleConfig mirrors the server's config file with every value spelled
// the way an operator would write it.
type sampleConfig struct {
	Server struct {
		Address        string `yaml:"address"`
		Port           int    `yaml:"port"`
		DBPath         string `yaml:"db_path"`
		MaxRequestBody string `yaml:"max_request_body"`
	} `yaml:"server"`
	Security struct {
		CORS struct {
			AllowedOrigins []string `yaml:"allowed_origins"`
		} `yaml:"cors"`
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
		APIKeys struct {
			Backend  []string `yaml:"backend"`
			Frontend []string `yaml:"frontend"`
			Admin    []string `yaml:"admin"`
		} `yaml:"api_keys"`
	} `yaml:"security"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Storage struct {
		Engine     string `yaml:"engine"`
		SyncWrites bool   `yaml:"sync_writes"`
	} `yaml:"storage"`
	Gateway struct {
		SendBuffer     int    `yaml:"send_buffer"`
		WriteTimeout   string `yaml:"write_timeout"`
		PongWait       string `yaml:"pong_wait"`
		MaxMessageSize string `yaml:"max_message_size"`
	} `yaml:"gateway"`
	Retention struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
		Period  string `yaml:"period"`
		LockTTL string `yaml:"lock_ttl"`
	} `yaml:"retention"`
}

func newSampleConfig(engine string) sampleConfig {
	var c sampleConfig
	c.Server.Address = "0.0.0.0"
	c.Server.Port = 8080
	c.Server.DBPath = "./database"
	c.Server.MaxRequestBody = "5MB"
	c.Security.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	c.Security.RateLimit.RPS = 1000
	c.Security.RateLimit.Burst = 1000
	c.Security.APIKeys.Backend = []string{"bk_" + uuid.NewString()}
	c.Security.APIKeys.Frontend = []string{"fk_" + uuid.NewString()}
	c.Security.APIKeys.Admin = []string{"ak_" + uuid.NewString()}
	c.Logging.Level = "info"
	c.Storage.Engine = engine
	c.Storage.SyncWrites = true
	c.Gateway.SendBuffer = 256
	c.Gateway.WriteTimeout = "10s"
	c.Gateway.PongWait = "60s"
	c.Gateway.MaxMessageSize = "64KB"
	c.Retention.Enabled = true
	c.Retention.Cron = "0 2 * * *"
	c.Retention.Period = "90d"
	c.Retention.LockTTL = "5m"
	return c
}

func writeSampleConfig(path, engine string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s exists, pass --force to overwrite", path)
		}
	}
	data, err := yaml.Marshal(newSampleConfig(engine))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Server config helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a sample server config with fresh API keys",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		engine, _ := cmd.Flags().GetString("engine")
		force, _ := cmd.Flags().GetBool("force")
		if err := writeSampleConfig(path, engine, force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().String("engine", "pebble", "storage engine: pebble or sqlite")
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
