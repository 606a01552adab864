package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/cyberbuddy/internal/config"
	"github.com/nao1215/cyberbuddy/internal/model"
	"github.com/nao1215/cyberbuddy/internal/panel"
	"github.com/nao1215/cyberbuddy/internal/report"
)

// errThreatFound is returned with --fail-on-threat when any URL is unsafe.
var errThreatFound = errors.New("one or more URLs were classified as unsafe")

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [url...]",
		Short: "Classify URLs with the backend",
		Long: `Scan sends each URL to the classification backend and prints its verdict.

Scans run through the control panel, so they are sent even when web
protection is switched off and carry the login session when there is one.
Without arguments the URL recorded by the last "cyberbuddy track" is scanned,
the same way the panel's SCAN NOW button works.

Examples:
  # Scan one URL
  cyberbuddy scan https://example.com/

  # Scan several URLs, four at a time
  cyberbuddy scan --limit 4 https://a.example/ https://b.example/

  # Write a Markdown report
  cyberbuddy scan -m -o report.md https://example.com/

  # Fail the command when a URL is unsafe
  cyberbuddy scan --fail-on-threat https://example.com/`,
		Args: cobra.ArbitraryArgs,
		RunE: runScanCmd,
	}

	cmd.Flags().IntP("limit", "l", config.DefaultScanLimit,
		"Number of concurrent scans")
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("no-color", false, "Disable colored output")
	cmd.Flags().Bool("fail-on-threat", false,
		"Exit with an error when any URL is not legitimate")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")

	return cmd
}

// applyReportFlags copies the report flags shared by scan and observe.
func applyReportFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	asJSON, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	asMarkdown, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	switch {
	case asJSON:
		cfg.Format = config.FormatJSON
	case asMarkdown:
		cfg.Format = config.FormatMarkdown
	}

	noColor, err := flags.GetBool("no-color")
	if err != nil {
		return err
	}
	if noColor {
		cfg.Color = false
	}

	cfg.ReportFile, err = flags.GetString("output")
	return err
}

// newReportWriter opens the configured report destination.
func newReportWriter(cmd *cobra.Command, cfg *config.Config) (report.Writer, func() error, error) {
	out, closeFn, err := openOutput(cmd, cfg.ReportFile)
	if err != nil {
		return nil, nil, err
	}
	w, err := report.New(cfg.Format, out, cfg.Color && isTerminal(out))
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return w, closeFn, nil
}

func runScanCmd(cmd *cobra.Command, args []string) error {
	failOnThreat, err := cmd.Flags().GetBool("fail-on-threat")
	if err != nil {
		return err
	}

	prepare := func(cfg *config.Config) error {
		if cmd.Flags().Changed("limit") {
			if cfg.ScanLimit, err = cmd.Flags().GetInt("limit"); err != nil {
				return err
			}
		}
		return applyReportFlags(cmd, cfg)
	}

	return withRuntime(cmd, prepare, func(ctx context.Context, s *session) error {
		p, port := s.runtime.OpenPanel(ctx)
		defer port.Close()

		entries, err := runScan(ctx, s, p, args)
		if err != nil {
			return err
		}

		w, closeFn, err := newReportWriter(cmd, s.cfg)
		if err != nil {
			return err
		}
		if _, err := w.WriteVerdicts(entries); err != nil {
			_ = closeFn()
			return fmt.Errorf("failed to write report: %w", err)
		}
		if err := closeFn(); err != nil {
			return err
		}

		if failOnThreat {
			for _, e := range entries {
				if !e.Result.Failed() && !e.Result.Verdict.IsSafe() {
					return errThreatFound
				}
			}
		}
		return nil
	})
}

// runScan scans urls, or the tracked current URL when urls is empty.
func runScan(ctx context.Context, s *session, p *panel.Panel, urls []string) ([]report.VerdictEntry, error) {
	if len(urls) == 0 {
		target := p.CurrentURL()
		result, err := p.ManualScan(ctx)
		if err != nil {
			if errors.Is(err, panel.ErrNoScanTarget) {
				return nil, fmt.Errorf("nothing to scan: pass a URL or record one with \"cyberbuddy track\" (current: %s)", p.View().URLDisplay)
			}
			return nil, err
		}
		return []report.VerdictEntry{newEntry(target, result, time.Now())}, nil
	}

	s.logger.Info("starting scan", "targets", len(urls), "limit", s.cfg.ScanLimit)

	results, err := p.ScanMany(ctx, urls)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	entries := make([]report.VerdictEntry, 0, len(results))
	for _, r := range results {
		entries = append(entries, newEntry(r.URL, r.Result, now))
	}
	return entries, nil
}

func newEntry(url string, result model.ScanResult, at time.Time) report.VerdictEntry {
	return report.VerdictEntry{
		URL:       url,
		Source:    model.SourceExtension,
		ScannedAt: at,
		Result:    result,
	}
}
