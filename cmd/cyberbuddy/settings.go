package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nao1215/cyberbuddy/internal/panel"
)

// Switch names accepted by "settings set".
const (
	switchWebProtection = "web-protection"
	switchNotifications = "notifications"
	switchDataSharing   = "data-sharing"
)

// NewSettingsCmd creates the settings command.
func NewSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the protection switches",
		Long: `Settings shows the three protection switches.

  web-protection  classify every page you open and block dangerous ones
  notifications   report blocked pages
  data-sharing    share anonymous threat data

Examples:
  cyberbuddy settings
  cyberbuddy settings set web-protection off`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, nil, func(ctx context.Context, s *session) error {
				p, port := s.runtime.OpenPanel(ctx)
				defer port.Close()
				printSwitches(cmd.OutOrStdout(), p.View())
				return nil
			})
		},
	}
	cmd.AddCommand(newSettingsSetCmd())
	return cmd
}

func newSettingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "set <switch> <on|off>",
		Short:     "Change one protection switch",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{switchWebProtection, switchNotifications, switchDataSharing},
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := parseSwitch(args[1])
			if err != nil {
				return err
			}
			name := strings.ToLower(args[0])

			return withRuntime(cmd, nil, func(ctx context.Context, s *session) error {
				p, port := s.runtime.OpenPanel(ctx)
				defer port.Close()

				switch name {
				case switchWebProtection:
					p.SetWebProtection(ctx, enabled)
				case switchNotifications:
					p.SetNotifications(ctx, enabled)
				case switchDataSharing:
					p.SetDataSharing(ctx, enabled)
				default:
					return fmt.Errorf("unknown switch %q (want %s, %s or %s)",
						args[0], switchWebProtection, switchNotifications, switchDataSharing)
				}
				p.Flush()

				printSwitches(cmd.OutOrStdout(), p.View())
				return nil
			})
		},
	}
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "enable", "enabled":
		return true, nil
	case "off", "disable", "disabled":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid switch value %q (want on or off)", s)
	}
	return b, nil
}

func printSwitches(w io.Writer, v panel.View) {
	fmt.Fprintf(w, "%s\n  %s\n\n", v.StatusTitle, v.StatusDetail)
	fmt.Fprintf(w, "  %-16s %s\n", switchWebProtection, onOff(v.WebProtection))
	fmt.Fprintf(w, "  %-16s %s\n", switchNotifications, onOff(v.Notifications))
	fmt.Fprintf(w, "  %-16s %s\n", switchDataSharing, onOff(v.DataSharing))
}

var (
	onColor  = color.New(color.FgGreen, color.Bold)
	offColor = color.New(color.FgRed)
)

func onOff(b bool) string {
	if b {
		return onColor.Sprint("on")
	}
	return offColor.Sprint("off")
}

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session, switches and current URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, nil, func(ctx context.Context, s *session) error {
				p, port := s.runtime.OpenPanel(ctx)
				defer port.Close()

				v := p.View()
				out := cmd.OutOrStdout()
				printSwitches(out, v)
				fmt.Fprintln(out)

				user := v.User
				if user == "" {
					user = "(not logged in)"
				}
				fmt.Fprintf(out, "  %-16s %s\n", "user", user)
				fmt.Fprintf(out, "  %-16s %s\n", "current url", v.URLDisplay)
				fmt.Fprintf(out, "  %-16s %s\n", "backend", s.runtime.Client().BaseURL())
				fmt.Fprintf(out, "  %-16s %s\n", "store", s.cfg.Store)
				return nil
			})
		},
	}
}

// NewTrackCmd creates the track command.
func NewTrackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track <url>",
		Short: "Record the URL of the active tab",
		Long: `Track records a completed navigation, the same way the browser reports a
tab that finished loading. The recorded URL is what "cyberbuddy scan" scans
when called without arguments.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tabID, err := cmd.Flags().GetInt("tab")
			if err != nil {
				return err
			}
			return withRuntime(cmd, nil, func(ctx context.Context, s *session) error {
				if !s.runtime.TrackNavigation(ctx, tabID, args[0]) {
					return fmt.Errorf("failed to record %q", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Current URL: %s\n", strings.TrimSpace(args[0]))
				return nil
			})
		},
	}
	cmd.Flags().Int("tab", 1, "Tab id the navigation belongs to")
	return cmd
}
