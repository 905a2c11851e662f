package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	loginEmail         string
	loginPasswordStdin bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session",
	Long: `Log in to the records server and store the session token locally.

On an interactive terminal a form asks for the email and password. With
--email only the password is prompted for. For scripts, pass --email and
pipe the password with --password-stdin; the password is never accepted
as a flag so it stays out of shell history and process listings.

Examples:
  minutes login
  minutes login --email user@example.com
  echo "$PASSWORD" | minutes login --email user@example.com --password-stdin`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	email, password, err := readLoginInput(cmd)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := newClient(store)
	if err != nil {
		return err
	}

	c, err := client.Login(cmd.Context(), email, password)
	if err != nil {
		return userError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", c.Profile.Email, c.Profile.Role.Label())
	return nil
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func readLoginInput(cmd *cobra.Command) (email, password string, err error) {
	email = strings.TrimSpace(loginEmail)

	switch {
	case loginPasswordStdin:
		if email == "" {
			return "", "", fmt.Errorf("--email is required with --password-stdin")
		}
		password, err = readPasswordLine(cmd.InOrStdin())
		if err != nil {
			return "", "", err
		}

	case !stdinIsTerminal():
		return "", "", fmt.Errorf("not a terminal; use --email with --password-stdin")

	case email == "":
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(&email).
				Validate(func(s string) error {
					if !strings.Contains(s, "@") {
						return errors.New("enter an email address")
					}
					return nil
				}),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password),
		))
		if err := form.RunWithContext(cmd.Context()); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return "", "", fmt.Errorf("login cancelled")
			}
			return "", "", fmt.Errorf("login form: %w", err)
		}
		email = strings.TrimSpace(email)

	default:
		fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", email)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", "", fmt.Errorf("read password: %w", err)
		}
		password = string(raw)
	}

	if password == "" {
		return "", "", fmt.Errorf("password is required")
	}
	return email, password, nil
}

func readPasswordLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "read the password from stdin")
}
