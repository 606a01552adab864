package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nao1215/cyberbuddy/internal/config"
	"github.com/nao1215/cyberbuddy/internal/extension"
	cblog "github.com/nao1215/cyberbuddy/internal/log"
)

// NewRootCmd creates the root command for CyberBuddy.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cyberbuddy",
		Short: "Phishing protection for links and pages",
		Long: `CyberBuddy classifies URLs as legitimate, suspicious or phishing using a
classification backend.

It scans single URLs, annotates every result link on a search page with a
verdict badge, and blocks dangerous pages behind a warning overlay.
Protection switches and the login session are kept in a local store shared
by every command.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "",
		"Configuration file path (default: .cyberbuddy in current, XDG config or home directory)")
	flags.BoolP("verbose", "v", false, "Enable verbose logging")
	flags.String("log-format", config.FormatText, "Log format: text or json")
	flags.String("backend", "", "Classification backend URL (default "+config.DefaultBackendURL+")")
	flags.String("store", "", "State store: sqlite or memory (default sqlite)")
	flags.String("data-dir", "", "Directory holding the state store (default XDG data directory)")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewObserveCmd())
	cmd.AddCommand(NewLoginCmd())
	cmd.AddCommand(NewLogoutCmd())
	cmd.AddCommand(NewSettingsCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewTrackCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// loadConfig builds the configuration from defaults, the config file and
// the persistent flags, in increasing priority.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	path, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flags.Changed("verbose") {
		if cfg.Verbose, err = flags.GetBool("verbose"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("log-format") {
		if cfg.LogFormat, err = flags.GetString("log-format"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("backend") {
		if cfg.BackendURL, err = flags.GetString("backend"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("store") {
		if cfg.Store, err = flags.GetString("store"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("data-dir") {
		if cfg.DataDir, err = flags.GetString("data-dir"); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// session is what every command needs: validated config, a logger and a
// started runtime.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	runtime *extension.Runtime
}

// withRuntime loads the configuration, starts the background context and
// runs fn. The runtime is closed when fn returns.
func withRuntime(cmd *cobra.Command, prepare func(*config.Config) error, fn func(context.Context, *session) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if prepare != nil {
		if err := prepare(cfg); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := cblog.New(cmd.ErrOrStderr(), cfg.LogFormat, cfg.Verbose)
	slog.SetDefault(logger)

	rt, err := extension.New(cfg, extension.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("failed to close state store", "error", err)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := rt.Start(ctx); err != nil {
		return err
	}

	logger.Debug("runtime started",
		"backend", cfg.BackendURL,
		"store", cfg.Store,
		"dataDir", cfg.DataDir,
	)
	return fn(ctx, &session{cfg: cfg, logger: logger, runtime: rt})
}

// openOutput returns the report destination: path when set, stdout
// otherwise. Report files are created with owner-only permissions.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // File descriptors fit in int
}
