package panel

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/cyberbuddy/internal/model"
)

// BatchResult pairs a URL with its scan result.
type BatchResult struct {
	URL    string
	Result model.ScanResult
}

// ScanMany classifies urls with at most the configured number of scans in
// flight. Results keep the input order. Individual failures come back as
// scan_failed results; the error is only set when ctx ends the batch early.
// The view is not touched.
func (p *Panel) ScanMany(ctx context.Context, urls []string) ([]BatchResult, error) {
	p.logger.Info("starting batch scan",
		"total", len(urls),
		"concurrency", p.scanLimit,
	)
	start := time.Now()

	results := make([]BatchResult, len(urls))

	g, ctx := errgroup.WithContext(ctx)
	if p.scanLimit > 0 {
		g.SetLimit(p.scanLimit)
	}

	for i, u := range urls {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				results[i] = BatchResult{URL: u, Result: model.FailedResult()}
				return ctx.Err()
			default:
			}
			results[i] = BatchResult{URL: u, Result: p.scan(ctx, u)}
			return nil
		})
	}

	err := g.Wait()

	failed := 0
	for _, r := range results {
		if r.Result.Failed() {
			failed++
		}
	}
	p.logger.Info("batch scan completed",
		"total", len(urls),
		"failed", failed,
		"duration", time.Since(start),
	)
	return results, err
}
