package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/wind-widget-service/internal/client"
	"github.com/kjstillabower/wind-widget-service/internal/models"
	"github.com/kjstillabower/wind-widget-service/internal/observability"
	"github.com/kjstillabower/wind-widget-service/internal/parser"
)

const (
	// DefaultMaxAge is how long a cached reading is served without a fetch.
	DefaultMaxAge = 5 * time.Minute
	// DefaultHistoryWindow is the trailing span requested from the history endpoint.
	DefaultHistoryWindow = 3 * time.Hour
)

// CredentialSource loads the API credentials for one widget.
type CredentialSource interface {
	Load(ctx context.Context) (models.Credentials, bool, error)
}

// ReadingCache is the per-widget cache used by WindService.
type ReadingCache interface {
	Read(ctx context.Context, maxAge time.Duration) (models.WindReading, bool, error)
	ReadIgnoringAge(ctx context.Context) (models.WindReading, bool, error)
	Write(ctx context.Context, reading models.WindReading) error
}

// DemoSource produces synthetic readings.
type DemoSource interface {
	Generate() models.WindReading
}

// Config holds the fetch tunables. Zero fields take the package defaults.
type Config struct {
	MaxAge        time.Duration
	HistoryWindow time.Duration
	// Location is used for request dates and reading timestamps; nil means time.Local.
	Location *time.Location
}

func (c Config) withDefaults() Config {
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}

// WindService resolves the reading for one widget: fresh cache, then a live
// fetch, then stale cache, then demo data.
type WindService struct {
	client client.WindClient
	creds  CredentialSource
	cache  ReadingCache
	demo   DemoSource
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a WindService.
type Option func(*WindService)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *WindService) { s.now = now }
}

// WithLogger sets the logger used when the request context carries none.
func WithLogger(logger *zap.Logger) Option {
	return func(s *WindService) { s.logger = logger }
}

// NewWindService creates a WindService with the provided dependencies.
func NewWindService(c client.WindClient, creds CredentialSource, cache ReadingCache, demo DemoSource, cfg Config, opts ...Option) *WindService {
	s := &WindService{
		client: c,
		creds:  creds,
		cache:  cache,
		demo:   demo,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch returns the best reading available. It never fails: every error path
// resolves to STALE or DEMO data. With force false a reading cached within
// MaxAge is returned as CACHED without network I/O.
func (s *WindService) Fetch(ctx context.Context, force bool) models.WindReading {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx, s.logger)

	reading := s.fetch(ctx, force, logger)

	status := string(reading.Status)
	observability.WindFetchTotal.WithLabelValues(status).Inc()
	observability.WindFetchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	logger.Debug("wind reading served",
		zap.String("status", status),
		zap.Bool("force", force),
		zap.Duration("duration", time.Since(start)))
	return reading
}

func (s *WindService) fetch(ctx context.Context, force bool, logger *zap.Logger) models.WindReading {
	if !force {
		cached, ok, err := s.cache.Read(ctx, s.cfg.MaxAge)
		if err != nil {
			s.recordError(err)
			logger.Warn("cache read failed", zap.Error(err))
		} else if ok {
			logger.Debug("cache hit")
			return cached
		}
	}

	reading, err := s.fetchLive(ctx, logger)
	if err == nil {
		return reading
	}

	category := s.recordError(err)
	logger.Warn("live fetch failed, falling back",
		zap.Error(err),
		zap.String("category", string(category)))

	stale, ok, cacheErr := s.cache.ReadIgnoringAge(ctx)
	if cacheErr != nil {
		s.recordError(cacheErr)
		logger.Warn("stale cache read failed", zap.Error(cacheErr))
	} else if ok {
		logger.Info("serving stale cache", zap.Int64("last_updated_millis", stale.LastUpdatedMillis))
		return stale.WithStatus(models.StatusStale)
	}
	logger.Info("no cached reading, serving demo data")
	return s.demo.Generate()
}

// fetchLive runs the network path. Missing credentials and an unusable history
// response resolve to demo data directly; an error means the caller should
// fall back to the stale cache.
func (s *WindService) fetchLive(ctx context.Context, logger *zap.Logger) (models.WindReading, error) {
	creds, ok, err := s.creds.Load(ctx)
	if err != nil {
		return models.WindReading{}, fmt.Errorf("load credentials: %w", err)
	}
	if !ok {
		logger.Info("credentials not configured, serving demo data")
		return s.demo.Generate(), nil
	}

	now := s.now().In(s.cfg.Location)

	var (
		wg                  sync.WaitGroup
		historyBody, rtBody []byte
		historyErr, rtErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		historyBody, historyErr = s.client.History(ctx, creds, now.Add(-s.cfg.HistoryWindow), now)
	}()
	go func() {
		defer wg.Done()
		rtBody, rtErr = s.client.Realtime(ctx, creds)
	}()
	wg.Wait()

	if historyErr != nil {
		return models.WindReading{}, fmt.Errorf("fetch history: %w", historyErr)
	}
	history, ok := parser.ParseHistoryIn(historyBody, s.cfg.Location)
	if !ok {
		s.recordCategory(client.ErrorCategoryParsing)
		logger.Warn("history response has no usable data, serving demo data")
		return s.demo.Generate(), nil
	}

	var realtime *parser.RealtimeResult
	if rtErr != nil {
		s.recordError(rtErr)
		logger.Warn("real-time fetch failed, using history tail", zap.Error(rtErr))
	} else if rt, ok := parser.ParseRealtime(rtBody); ok {
		realtime = &rt
	} else {
		logger.Warn("real-time response has no usable data, using history tail")
	}

	reading := merge(creds.LocationName, history, realtime, now)
	if err := s.cache.Write(ctx, reading); err != nil {
		s.recordError(err)
		logger.Warn("cache write failed", zap.Error(err))
	}
	return reading, nil
}

// merge builds a LIVE reading. Series come from history; current values come
// from realtime when present, else the last history point, else 0.
func merge(location string, history parser.HistoryResult, realtime *parser.RealtimeResult, now time.Time) models.WindReading {
	r := models.WindReading{
		LocationName:      location,
		Times:             history.Times,
		Speeds:            history.Speeds,
		Directions:        history.Directions,
		Gusts:             history.Gusts,
		Status:            models.StatusLive,
		LastUpdatedMillis: now.UnixMilli(),
	}
	switch {
	case realtime != nil:
		r.CurrentSpeed = realtime.Speed
		r.CurrentDirection = realtime.Direction
		r.CurrentGust = realtime.Gust
	case len(history.Times) > 0:
		last := len(history.Times) - 1
		r.CurrentSpeed = history.Speeds[last]
		r.CurrentDirection = history.Directions[last]
		r.CurrentGust = history.Gusts[last]
	}
	return r
}

func (s *WindService) recordError(err error) client.ErrorCategory {
	category := client.CategorizeError(err)
	s.recordCategory(category)
	return category
}

func (s *WindService) recordCategory(category client.ErrorCategory) {
	observability.WindFetchErrorsTotal.WithLabelValues(string(category)).Inc()
}
