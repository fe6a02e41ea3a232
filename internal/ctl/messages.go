package ctl

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	withFlag = "with"
	toFlag   = "to"
	bodyFlag = "body"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the direct conversation between --user and --with",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		with := viper.GetString(withFlag)
		if with == "" {
			return fmt.Errorf("--with is required")
		}
		as, err := identity()
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.History(as, with)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFROM\tSTATUS\tSENT\tBODY")
		for _, m := range res.Messages {
			sent := humanize.Time(time.Unix(0, m.CreatedTS))
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Sender.ID, m.Status, sent, m.Body)
		}
		return w.Flush()
	},
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a direct message from --user to --to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		to, body := viper.GetString(toFlag), viper.GetString(bodyFlag)
		if to == "" || body == "" {
			return fmt.Errorf("--to and --body are required")
		}
		as, err := identity()
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Send(as, to, body)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", res.Message.ID)
		return nil
	},
}

// actingFlags registers the flags every user scoped command shares.
func actingFlags(fs *pflag.FlagSet) {
	fs.String(userFlag, "", "acting user id")
	fs.String(signatureFlag, "", "user signature (frontend keys)")
	fs.String(signingKeyFlag, "", "compute the user signature from this backend key")
}

func init() {
	actingFlags(historyCmd.Flags())
	historyCmd.Flags().String(withFlag, "", "counterpart user id")
	actingFlags(sendCmd.Flags())
	sendCmd.Flags().String(toFlag, "", "receiver user id")
	sendCmd.Flags().String(bodyFlag, "", "message body")

	// flags shared between commands are bound when the command runs, so the
	// one actually parsed wins
	for _, c := range []*cobra.Command{historyCmd, sendCmd} {
		c.PreRunE = func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		}
		rootCmd.AddCommand(c)
	}
}
