package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/account-gate/accountgate/internal/fingerprint"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint [token]",
	Short: "Print the log fingerprint of a token",
	Long: `Print the non-reversible fingerprint the SDK logs in place of raw token
material. Use it to correlate a concrete token with token_fp fields in
log output.

Security note: the token will appear in shell history. Consider using an
environment variable:
  accountgate fingerprint "$MY_TOKEN"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(fingerprint.Token(args[0]))
	},
}

func init() {
	rootCmd.AddCommand(fingerprintCmd)
}
