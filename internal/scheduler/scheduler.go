// Package scheduler triggers the periodic widget refresh.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// DefaultInterval is how often every known widget is refreshed.
const DefaultInterval = 30 * time.Minute

// Refresher refreshes a set of widgets. Implemented by cache.Refresher.
type Refresher interface {
	Refresh(ctx context.Context, instances []string) error
}

// Scheduler runs Refresher on a fixed interval over the widgets returned by
// instances at each run.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	instances func() []string
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates a Scheduler. timeout bounds a single run; zero means no bound.
func New(refresher Refresher, instances func() []string, interval, timeout time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		refresher: refresher,
		instances: instances,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start schedules the refresh job and starts the underlying scheduler. The
// first run happens immediately.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.interval).Do(s.run); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop stops the scheduler and cancels any future runs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) run() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	ids := s.instances()
	if len(ids) == 0 {
		s.logger.Debug("no widgets to refresh")
		return
	}
	if err := s.refresher.Refresh(ctx, ids); err != nil {
		s.logger.Warn("periodic refresh degraded", zap.Error(err))
	}
}
