// Package ctl implements the chatrelayctl operator commands.
package ctl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configFlag  = "config"
	hostFlag    = "host"
	apiKeyFlag  = "api-key"
	timeoutFlag = "timeout"
)

var rootCmd = &cobra.Command{
	Use:   "chatrelayctl",
	Short: "Operator tool for a chatrelay server",
	Long: `chatrelayctl talks to a running chatrelay server. It mints user
signatures, reads and sends messages on behalf of a user, writes sample
configs and runs load tests.

Every flag can also be set as CHATRELAYCTL_<FLAG> or in the config file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(viper.GetString(configFlag))
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute(version string) {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringP(configFlag, "c", "", "config file (default $HOME/.chatrelayctl.yaml)")
	pf.String(hostFlag, "http://localhost:8080", "chatrelay server base URL")
	pf.String(apiKeyFlag, "", "API key, prompted when empty")
	pf.Duration(timeoutFlag, defaultTimeout, "per request timeout")
	for _, key := range []string{configFlag, hostFlag, apiKeyFlag, timeoutFlag} {
		bindFlag(pf, key)
	}

	viper.SetEnvPrefix("CHATRELAYCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// bindFlag makes viper answer key from the flag, env or config file.
func bindFlag(fs *pflag.FlagSet, key string) {
	if err := viper.BindPFlag(key, fs.Lookup(key)); err != nil {
		panic(fmt.Sprintf("bind flag %q: %v", key, err))
	}
}

// loadConfig reads path, or $HOME/.chatrelayctl.yaml when path is empty.
// A missing default file is fine; a missing explicit one is not.
func loadConfig(path string) error {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".chatrelayctl.yaml")
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// newClient builds a client from the resolved flags, prompting for the API
// key when none was given.
func newClient() (*Client, error) {
	key := viper.GetString(apiKeyFlag)
	if key == "" {
		var err error
		if key, err = promptSecret("API key: "); err != nil {
			return nil, err
		}
	}
	if key == "" {
		return nil, fmt.Errorf("an API key is required")
	}
	return NewClient(viper.GetString(hostFlag), key, viper.GetDuration(timeoutFlag)), nil
}
