package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wesm/minutes/internal/remote"
	"github.com/wesm/minutes/internal/upload"
)

var (
	actionDescription string
	actionFile        string
)

var addActionCmd = &cobra.Command{
	Use:   "add-action <commitment-id>",
	Short: "Record a follow-up action on a commitment",
	Long: `Record a follow-up action on a commitment, optionally with a file.

The file must be a PDF or JPEG of at most 5 MB; it is checked before
anything is sent.

Examples:
  minutes add-action 11 -d "Sent the budget draft"
  minutes add-action 11 -d "Signed copy" --file ./signed.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		commitmentID, err := parseID(args[0], "commitment")
		if err != nil {
			return err
		}
		description := strings.TrimSpace(actionDescription)
		if description == "" {
			return fmt.Errorf("--description is required")
		}

		in := remote.ActionInput{CommitmentID: commitmentID, Description: description}
		if actionFile != "" {
			f, err := upload.Open(actionFile)
			if err != nil {
				return userError(err)
			}
			if verr := upload.Validate(f); verr != nil {
				return userError(verr)
			}
			in.File = &f
		}

		p, err := openProtected(cmd.Context())
		if err != nil {
			return err
		}
		defer p.Close()

		action, err := p.client.CreateAction(cmd.Context(), in)
		if err != nil {
			return userError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Action %d added to commitment %d\n", action.ID, commitmentID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addActionCmd)
	addActionCmd.Flags().StringVarP(&actionDescription, "description", "d", "", "what was done (required)")
	addActionCmd.Flags().StringVar(&actionFile, "file", "", "optional PDF or JPEG to attach")
}
