package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/cyberbuddy/internal/browser"
	"github.com/nao1215/cyberbuddy/internal/config"
	"github.com/nao1215/cyberbuddy/internal/observer"
	"github.com/nao1215/cyberbuddy/internal/report"
)

// observeOptions are the observe command flags.
type observeOptions struct {
	pageURL    string
	useBrowser bool
	chromePath string
	proxy      string
	appends    []string
	settle     time.Duration
	proceed    bool
	back       bool
	htmlOut    string
}

// NewObserveCmd creates the observe command.
func NewObserveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "observe <file|url|->",
		Short: "Annotate a page's links and run the page guard",
		Long: `Observe loads a page and runs the page observer over it.

Every result link matching the configured selector is scanned and receives
a Safe or Dangerous badge. When web protection is on, the page itself is
classified and a threat overlay is inserted for anything not legitimate.

The page comes from a local file, standard input ("-"), an http(s) URL
fetched directly, or a live headless Chrome with --browser.

Examples:
  # Annotate a saved search results page
  cyberbuddy observe --url https://www.google.com/search?q=paypal results.html

  # Fetch a page and write the annotated HTML
  cyberbuddy observe --html annotated.html https://example.com/

  # Render with Chrome, then go back if the page is blocked
  cyberbuddy observe --browser --back https://suspicious.example/

  # Simulate infinite scroll: append more results after the first pass
  cyberbuddy observe --append page2.html --url https://www.google.com/search?q=x results.html`,
		Args: cobra.ExactArgs(1),
		RunE: runObserveCmd,
	}

	cmd.Flags().String("url", "",
		"Page location for file or stdin input (links are resolved against it)")
	cmd.Flags().BoolP("browser", "B", false,
		"Load the page in headless Chrome")
	cmd.Flags().String("chrome-path", "",
		"Path to the Chrome binary (default: found on PATH)")
	cmd.Flags().String("proxy", "",
		"Fetch pages through a SOCKS5 proxy (host:port)")
	cmd.Flags().StringSlice("append", nil,
		"HTML fragment files appended to the page body after the first pass")
	cmd.Flags().Duration("settle", 0,
		"How long to wait for appended content to be discovered (default: twice the debounce)")
	cmd.Flags().Bool("proceed", false,
		"Dismiss the threat overlay (Proceed (Unsafe))")
	cmd.Flags().Bool("back", false,
		"Retreat from a blocked page (requires --browser)")
	cmd.Flags().String("html", "",
		"Write the annotated page to this file")
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("no-color", false, "Disable colored output")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")
	cmd.MarkFlagsMutuallyExclusive("proceed", "back")

	return cmd
}

func parseObserveOptions(cmd *cobra.Command) (observeOptions, error) {
	var (
		o   observeOptions
		err error
	)
	flags := cmd.Flags()
	if o.pageURL, err = flags.GetString("url"); err != nil {
		return o, err
	}
	if o.useBrowser, err = flags.GetBool("browser"); err != nil {
		return o, err
	}
	if o.chromePath, err = flags.GetString("chrome-path"); err != nil {
		return o, err
	}
	if o.proxy, err = flags.GetString("proxy"); err != nil {
		return o, err
	}
	if o.appends, err = flags.GetStringSlice("append"); err != nil {
		return o, err
	}
	if o.settle, err = flags.GetDuration("settle"); err != nil {
		return o, err
	}
	if o.proceed, err = flags.GetBool("proceed"); err != nil {
		return o, err
	}
	if o.back, err = flags.GetBool("back"); err != nil {
		return o, err
	}
	if o.htmlOut, err = flags.GetString("html"); err != nil {
		return o, err
	}
	if o.back && !o.useBrowser {
		return o, errors.New("--back needs a browser history (use --browser)")
	}
	return o, nil
}

func runObserveCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseObserveOptions(cmd)
	if err != nil {
		return err
	}
	source := args[0]

	prepare := func(cfg *config.Config) error {
		return applyReportFlags(cmd, cfg)
	}

	return withRuntime(cmd, prepare, func(ctx context.Context, s *session) error {
		var obsOpts []observer.Option

		var page browser.Page
		if opts.useBrowser {
			b, err := browser.NewBrowser(ctx,
				browser.WithExecPath(opts.chromePath),
				browser.WithPageTimeout(s.cfg.Timeout),
				browser.WithLogger(s.logger),
			)
			if err != nil {
				return err
			}
			defer b.Close()
			if page, err = b.Load(ctx, source); err != nil {
				return err
			}
			obsOpts = append(obsOpts, observer.WithNavigator(b))
		} else {
			if page, err = loadPage(ctx, cmd, s.cfg, opts, source); err != nil {
				return err
			}
		}

		doc, err := page.Document()
		if err != nil {
			return err
		}
		s.runtime.TrackNavigation(ctx, 1, doc.URL())

		obs, port, err := s.runtime.OpenPage(doc, obsOpts...)
		if err != nil {
			return err
		}
		defer port.Close()

		if err := observePage(ctx, s, obs, opts); err != nil {
			return err
		}
		return writeObservation(cmd, s, obs, opts)
	})
}

// loadPage reads the page from a file, stdin or plain HTTP.
func loadPage(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts observeOptions, source string) (browser.Page, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		loaderOpts := []browser.HTTPOption{
			browser.WithUserAgent(cfg.UserAgent),
			browser.WithMaxPageSize(cfg.MaxPageSize),
			browser.WithTimeout(cfg.Timeout),
		}
		if opts.proxy != "" {
			loaderOpts = append(loaderOpts, browser.WithProxy(opts.proxy))
		}
		loader, err := browser.NewHTTPLoader(loaderOpts...)
		if err != nil {
			return browser.Page{}, err
		}
		return loader.Load(ctx, source)
	}

	var (
		data []byte
		err  error
	)
	if source == "-" {
		data, err = io.ReadAll(io.LimitReader(cmd.InOrStdin(), cfg.MaxPageSize))
	} else {
		data, err = os.ReadFile(source) //nolint:gosec // User-provided page path is intentional
	}
	if err != nil {
		return browser.Page{}, fmt.Errorf("failed to read page: %w", err)
	}

	pageURL := opts.pageURL
	if pageURL == "" && source != "-" {
		if abs, err := filepath.Abs(source); err == nil {
			pageURL = "file://" + filepath.ToSlash(abs)
		}
	}
	return browser.Page{URL: pageURL, HTML: string(data)}, nil
}

// observePage runs discovery and the guard, feeds appended fragments through
// the mutation watcher and applies the overlay choice.
func observePage(ctx context.Context, s *session, obs *observer.Observer, opts observeOptions) error {
	obs.Start(ctx)
	obs.Wait()

	if len(opts.appends) > 0 {
		if err := appendFragments(ctx, s, obs, opts); err != nil {
			return err
		}
	}

	if !obs.OverlayVisible() {
		return nil
	}
	switch {
	case opts.proceed:
		obs.Proceed()
		s.logger.Warn("proceeding to a blocked page", "page", obs.Document().URL())
	case opts.back:
		if err := obs.GoBack(ctx); err != nil {
			return err
		}
	}
	return nil
}

func appendFragments(ctx context.Context, s *session, obs *observer.Observer, opts observeOptions) error {
	doc := obs.Document()
	mutations := doc.Observe()
	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		obs.Watch(watchCtx, mutations)
	}()

	for _, path := range opts.appends {
		fragment, err := os.ReadFile(path) //nolint:gosec // User-provided fragment path is intentional
		if err != nil {
			cancel()
			<-done
			return fmt.Errorf("failed to read fragment: %w", err)
		}
		if err := doc.AppendHTML("body", string(fragment)); err != nil {
			cancel()
			<-done
			return err
		}
	}

	settle := opts.settle
	if settle <= 0 {
		settle = 2*s.cfg.Debounce + 50*time.Millisecond
	}
	select {
	case <-time.After(settle):
	case <-ctx.Done():
	}
	cancel()
	<-done
	obs.Wait()
	return nil
}

// writeObservation writes the annotated HTML and the page report.
func writeObservation(cmd *cobra.Command, s *session, obs *observer.Observer, opts observeOptions) error {
	if opts.htmlOut != "" {
		out, closeFn, err := openOutput(cmd, opts.htmlOut)
		if err != nil {
			return err
		}
		if err := obs.Document().Render(out); err != nil {
			_ = closeFn()
			return fmt.Errorf("failed to write annotated page: %w", err)
		}
		if err := closeFn(); err != nil {
			return err
		}
	}

	w, closeFn, err := newReportWriter(cmd, s.cfg)
	if err != nil {
		return err
	}
	if _, err := w.WritePage(report.NewPageReport(obs.Summary(), time.Now())); err != nil {
		_ = closeFn()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return closeFn()
}
