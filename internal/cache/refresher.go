package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/wind-widget-service/internal/models"
	"github.com/kjstillabower/wind-widget-service/internal/observability"
)

// WidgetFetcher is implemented by the service registry. Used by Refresher to
// avoid a circular dependency on the service package.
type WidgetFetcher interface {
	FetchWidget(ctx context.Context, instance string, force bool) (models.WindReading, error)
}

// Refresher runs the non-forced fetch for a set of widgets, which renews
// every cache entry older than the freshness window.
type Refresher struct {
	fetcher WidgetFetcher
	logger  *zap.Logger
}

// NewRefresher creates a Refresher that uses the given fetcher and logger.
func NewRefresher(fetcher WidgetFetcher, logger *zap.Logger) *Refresher {
	return &Refresher{fetcher: fetcher, logger: logger}
}

// Refresh fetches every instance concurrently. An instance counts as failed
// when the fetcher rejects it or it resolved to STALE or DEMO data; those are
// aggregated into the returned error.
func (r *Refresher) Refresh(ctx context.Context, instances []string) error {
	start := time.Now()
	if r.logger != nil {
		r.logger.Info("refreshing widgets", zap.Int("widgets", len(instances)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(instances))
	for _, id := range instances {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reading, err := r.fetcher.FetchWidget(ctx, id, false)
			if err != nil {
				errCh <- err
				return
			}
			switch reading.Status {
			case models.StatusStale, models.StatusDemo:
				errCh <- fmt.Errorf("widget %q: resolved to %s", id, reading.Status)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.RefreshDurationSeconds.Observe(duration)
	if r.logger != nil {
		r.logger.Info("refresh complete", zap.Int("widgets", len(instances)), zap.Int("degraded", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.RefreshRunsTotal.WithLabelValues("degraded").Inc()
		return fmt.Errorf("refresh: %w", errors.Join(errs...))
	}
	observability.RefreshRunsTotal.WithLabelValues("ok").Inc()
	return nil
}
