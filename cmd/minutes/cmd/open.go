package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wesm/minutes/internal/attachment"
	"github.com/wesm/minutes/internal/credential"
	"github.com/wesm/minutes/internal/remote"
)

var openSave bool

var openCmd = &cobra.Command{
	Use:   "open <path-or-url>",
	Short: "Fetch a protected attachment and open it",
	Long: `Fetch a protected attachment with the stored session and open it in
the configured viewer (or the platform opener). When no viewer can be
started, for example on a headless machine, the file is saved to the
download directory instead.

The argument is a media path or URL as shown by 'minutes show', e.g.
/media/actas/2024/minutes.pdf or https://host/media/actas/2024/minutes.pdf.

Examples:
  minutes open /media/actas/2024/board-march.pdf
  minutes open --save /media/acciones/budget-draft.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		client, err := newClient(store)
		if err != nil {
			return err
		}

		var presenter attachment.Presenter
		if !openSave {
			presenter = attachment.NewSystemPresenter(cfg.Attachments.Viewer)
		}
		r, err := newRetriever(store, client, presenter)
		if err != nil {
			return err
		}
		// The fetched copy is removed after the grace delay; wait for it.
		defer r.Wait()

		res, err := r.Open(cmd.Context(), args[0])
		if err != nil {
			return userError(err)
		}
		if res.Presented {
			fmt.Fprintf(cmd.OutOrStdout(), "Opened %s\n", attachment.FileName(res.Key))
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Saved to %s\n", res.SavedPath)
		}
		return nil
	},
}

func newRetriever(store credential.Store, client *remote.Client, presenter attachment.Presenter) (*attachment.Retriever, error) {
	r, err := attachment.NewRetriever(attachment.Options{
		Store:       store,
		Fetcher:     client,
		Presenter:   presenter,
		MediaPrefix: cfg.Remote.MediaPrefix,
		DownloadDir: cfg.Attachments.DownloadDir,
		Grace:       cfg.ReleaseGrace(),
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create retriever: %w", err)
	}
	return r, nil
}

func init() {
	rootCmd.AddCommand(openCmd)
	openCmd.Flags().BoolVar(&openSave, "save", false, "save to the download directory instead of opening")
}
