package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/wesm/minutes/internal/attachment"
	"github.com/wesm/minutes/internal/fileutil"
	"github.com/wesm/minutes/internal/query"
	"github.com/wesm/minutes/internal/session"
	"github.com/wesm/minutes/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive terminal UI",
	Long: `Open an interactive terminal UI for browsing records.

The session is checked with the server on start and again before each
record is opened; when it is no longer valid the UI shows the reason and
stays locked until a retry succeeds.

Navigation:
  ↑/k, ↓/j    Move up/down
  PgUp/PgDn   Page up/down
  Enter       Open record / attachment
  Esc         Go back
  /           Filter by title (sent after a short pause)
  s           Cycle status filter
  d           Filter by date (YYYY-MM-DD)
  c           Clear filters
  o           Open the selected attachment
  e           Export all attachments of the record
  n           Add an action to a commitment
  q           Quit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !stdinIsTerminal() {
			return fmt.Errorf("tui requires an interactive terminal")
		}

		// Log lines would corrupt the alternate screen; send them to a file.
		logFile, err := fileutil.SecureOpenFile(filepath.Join(cfg.HomeDir, "tui.log"),
			os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("open tui log: %w", err)
		}
		defer logFile.Close()
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: level}))

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		client, err := newClient(store)
		if err != nil {
			return err
		}

		r, err := newRetriever(store, client, attachment.NewSystemPresenter(cfg.Attachments.Viewer))
		if err != nil {
			return err
		}
		defer r.Wait()

		ctrl := query.NewController(query.ControllerOptions{
			Engine:   client,
			Debounce: cfg.DebounceDelay(),
			Logger:   logger,
		})
		defer ctrl.Close()

		model := tui.New(tui.Options{
			Controller:        ctrl,
			Engine:            client,
			Guard:             session.NewGuard(store, client, logger),
			Opener:            r,
			Submitter:         client,
			DownloadDir:       cfg.Attachments.DownloadDir,
			ExportConcurrency: cfg.Attachments.ExportConcurrency,
			Version:           Version,
		})
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))

		if _, err := p.Run(); err != nil {
			return fmt.Errorf("run tui: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
