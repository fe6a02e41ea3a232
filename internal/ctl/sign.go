package ctl

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chatrelay/pkg/api/auth"
)

const (
	userFlag       = "user"
	localFlag      = "local"
	signingKeyFlag = "signing-key"
	signatureFlag  = "signature"
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Mint a user signature for frontend clients",
	Long: `sign prints the HMAC signature a frontend sends as X-User-Signature.

By default the server mints it through /v1/_sign, which needs a backend API
key. With --local the signature is computed here from --signing-key, which
must be one of the server's backend keys.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return viper.BindPFlags(cmd.Flags())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		user := viper.GetString(userFlag)
		if user == "" {
			return fmt.Errorf("--user is required")
		}
		if viper.GetBool(localFlag) {
			key := viper.GetString(signingKeyFlag)
			if key == "" {
				var err error
				if key, err = promptSecret("Signing key: "); err != nil {
					return err
				}
			}
			if key == "" {
				return fmt.Errorf("--signing-key is required with --local")
			}
			fmt.Fprintln(cmd.OutOrStdout(), auth.CreateHMACSignature(user, key))
			return nil
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		sig, err := c.Sign(user)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sig)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signCmd)
	fs := signCmd.Flags()
	fs.String(userFlag, "", "user id to sign")
	fs.Bool(localFlag, false, "compute the signature locally")
	fs.String(signingKeyFlag, "", "backend key used with --local")
}

// identity resolves who a user scoped command acts for. A signature comes
// from --signature, or is computed from --signing-key, or is left empty for
// backend keys.
func identity() (Identity, error) {
	id := Identity{UserID: viper.GetString(userFlag), Signature: viper.GetString(signatureFlag)}
	if id.UserID == "" {
		return id, fmt.Errorf("--user is required")
	}
	if id.Signature == "" {
		if key := viper.GetString(signingKeyFlag); key != "" {
			id.Signature = auth.CreateHMACSignature(id.UserID, key)
		}
	}
	return id, nil
}
