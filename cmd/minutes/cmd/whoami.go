package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Verify the session with the server and show the user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProtected(cmd.Context())
		if err != nil {
			return err
		}
		defer p.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Email:  %s\n", p.user.Email)
		fmt.Fprintf(out, "Role:   %s\n", p.user.Role.Label())
		fmt.Fprintf(out, "ID:     %s\n", p.user.ID)
		fmt.Fprintf(out, "Server: %s\n", p.client.BaseURL())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
