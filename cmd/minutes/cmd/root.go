package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/wesm/minutes/internal/apperr"
	"github.com/wesm/minutes/internal/config"
	"github.com/wesm/minutes/internal/credential"
	"github.com/wesm/minutes/internal/remote"
	"github.com/wesm/minutes/internal/session"
)

var (
	cfgFile string
	homeDir string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "minutes",
	Short: "Terminal client for meeting records",
	Long: `minutes is a terminal client for a meeting-records server.

It lists and filters records, shows their commitments and follow-up
actions, opens protected attachments and submits new actions. Every
command that touches protected data checks the stored session with the
server first.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))

		var err error
		cfg, err = config.Load(cfgFile, homeDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if err := cfg.EnsureHomeDir(); err != nil {
			return fmt.Errorf("create data directory %s: %w", cfg.HomeDir, err)
		}
		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// openStore opens the persisted credential store. Callers must Close it.
func openStore() (*credential.SQLiteStore, error) {
	store, err := credential.OpenSQLite(cfg.SessionDBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return store, nil
}

func newClient(store credential.Store) (*remote.Client, error) {
	client, err := remote.New(remote.Config{
		URL:           cfg.Remote.URL,
		AllowInsecure: cfg.Remote.AllowInsecure,
		Timeout:       cfg.Timeout(),
	}, store, logger)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return client, nil
}

// protected bundles what a protected command needs after the session check.
type protected struct {
	store  *credential.SQLiteStore
	client *remote.Client
	user   *credential.UserProfile
}

func (p *protected) Close() error {
	return p.store.Close()
}

// openProtected opens the store and client and runs one session check.
// A denied check returns an error carrying the guard's message.
func openProtected(ctx context.Context) (*protected, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	client, err := newClient(store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	guard := session.NewGuard(store, client, logger)
	res := guard.Check(ctx, nil)
	if res.State != session.Allowed {
		_ = store.Close()
		return nil, &sessionDeniedError{result: res}
	}
	return &protected{store: store, client: client, user: guard.User()}, nil
}

type sessionDeniedError struct {
	result session.Result
}

func (e *sessionDeniedError) Error() string {
	msg := e.result.Message
	if apperr.RequiresLogout(e.result.Err) && !errors.Is(e.result.Err, apperr.ErrUnauthenticated) {
		msg += " Run 'minutes login'."
	}
	return msg
}

func (e *sessionDeniedError) Unwrap() error { return e.result.Err }

// userError renders err with its display message while keeping it
// matchable with errors.Is.
func userError(err error) error {
	if err == nil {
		return nil
	}
	var denied *sessionDeniedError
	if errors.As(err, &denied) || errors.Is(err, context.Canceled) {
		return err
	}
	return &displayError{err: err}
}

type displayError struct{ err error }

func (e *displayError) Error() string { return apperr.UserMessage(e.err) }
func (e *displayError) Unwrap() error { return e.err }

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.minutes/config.toml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "home directory (overrides MINUTES_HOME)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
