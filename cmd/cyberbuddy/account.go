package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// NewLoginCmd creates the login command.
func NewLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the CyberBuddy backend",
		Long: `Login exchanges an email and password for a session token.

The token is stored with the other settings and attached to every later
scan. When --password is not given it is read from the terminal without
echo, or from the first line of standard input when it is not a terminal.`,
		Args: cobra.NoArgs,
		RunE: runLoginCmd,
	}

	cmd.Flags().StringP("email", "e", "", "Account email address")
	cmd.Flags().StringP("password", "p", "", "Account password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runLoginCmd(cmd *cobra.Command, _ []string) error {
	email, err := cmd.Flags().GetString("email")
	if err != nil {
		return err
	}
	password, err := cmd.Flags().GetString("password")
	if err != nil {
		return err
	}
	if password == "" {
		if password, err = readPassword(cmd); err != nil {
			return err
		}
	}

	return withRuntime(cmd, nil, func(ctx context.Context, s *session) error {
		p, port := s.runtime.OpenPanel(ctx)
		defer port.Close()

		if err := p.Login(ctx, email, password); err != nil {
			return errors.New(p.View().LoginError)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", p.View().User)
		return nil
	})
}

// readPassword prompts for a password on a terminal, or reads one line
// from a non-interactive stdin.
func readPassword(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // File descriptors fit in int
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(int(f.Fd())) //nolint:gosec // File descriptors fit in int
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("no password given")
	}
	return password, nil
}

// NewLogoutCmd creates the logout command.
func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Long:  `Logout removes the stored token and user. The backend is not contacted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, nil, func(ctx context.Context, s *session) error {
				p, port := s.runtime.OpenPanel(ctx)
				defer port.Close()

				if err := p.Logout(ctx); err != nil {
					return fmt.Errorf("failed to clear session: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}
