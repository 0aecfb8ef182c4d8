package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/wind-widget-service/internal/cache"
	"github.com/kjstillabower/wind-widget-service/internal/client"
	"github.com/kjstillabower/wind-widget-service/internal/credentials"
	"github.com/kjstillabower/wind-widget-service/internal/models"
	"github.com/kjstillabower/wind-widget-service/internal/store"
)

// Stores groups the key-value stores behind the registry. Credentials should
// come from store.OpenSecure; Cache may be the same store or a memcached one.
type Stores struct {
	Credentials store.Store
	Cache       store.Store
}

// ErrUnknownWidget is returned for an instance id that was never registered
// and has no credentials of its own in storage.
var ErrUnknownWidget = errors.New("unknown widget")

// migrationTimeout bounds legacy migration, which runs detached from the
// caller's cancellation.
const migrationTimeout = 10 * time.Second

type widget struct {
	service *WindService
	creds   *credentials.Store

	migrateMu sync.Mutex
	migrated  bool
}

// Registry owns one WindService per widget instance. The empty instance id is
// the shared default widget and always exists. Other ids must be registered,
// either explicitly or by saving credentials, or already hold credentials in
// storage from an earlier run.
type Registry struct {
	client client.WindClient
	stores Stores
	demo   DemoSource
	cfg    Config
	now    func() time.Time
	logger *zap.Logger

	mu      sync.Mutex
	widgets map[string]*widget
}

// NewRegistry creates an empty Registry. clock may be nil for time.Now.
func NewRegistry(c client.WindClient, stores Stores, demo DemoSource, cfg Config, clock func() time.Time, logger *zap.Logger) *Registry {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		client:  c,
		stores:  stores,
		demo:    demo,
		cfg:     cfg,
		now:     clock,
		logger:  logger,
		widgets: make(map[string]*widget),
	}
}

// Register adds instance to the registry, migrating legacy shared data into
// its namespace on first use. Registering an existing widget is a no-op.
func (r *Registry) Register(ctx context.Context, instance string) *WindService {
	return r.register(ctx, instance).service
}

// Service returns the WindService for a known instance, or ErrUnknownWidget.
func (r *Registry) Service(ctx context.Context, instance string) (*WindService, error) {
	w, err := r.lookup(ctx, instance)
	if err != nil {
		return nil, err
	}
	return w.service, nil
}

func (r *Registry) lookup(ctx context.Context, instance string) (*widget, error) {
	r.mu.Lock()
	w, ok := r.widgets[instance]
	r.mu.Unlock()
	if ok {
		r.ensureMigrated(ctx, w)
		return w, nil
	}
	if instance != "" {
		_, stored, err := credentials.NewStore(r.stores.Credentials, instance).Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("widget %q: %w", instance, err)
		}
		if !stored {
			return nil, fmt.Errorf("widget %q: %w", instance, ErrUnknownWidget)
		}
	}
	return r.register(ctx, instance), nil
}

func (r *Registry) register(ctx context.Context, instance string) *widget {
	r.mu.Lock()
	w, ok := r.widgets[instance]
	if !ok {
		creds := credentials.NewStore(r.stores.Credentials, instance)
		readings := cache.NewStore(r.stores.Cache, instance, cache.WithClock(r.now))
		logger := r.logger.With(zap.String("widget", instance))
		w = &widget{
			service: NewWindService(r.client, creds, readings, r.demo, r.cfg,
				WithClock(r.now), WithLogger(logger)),
			creds: creds,
		}
		r.widgets[instance] = w
		logger.Debug("widget registered")
	}
	r.mu.Unlock()

	r.ensureMigrated(ctx, w)
	return w
}

// ensureMigrated runs the legacy migration for w until it succeeds once.
// A failed run is retried on the next lookup.
func (r *Registry) ensureMigrated(ctx context.Context, w *widget) {
	w.migrateMu.Lock()
	defer w.migrateMu.Unlock()
	if w.migrated {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), migrationTimeout)
	defer cancel()
	w.migrated = r.migrate(ctx, w.creds.Instance())
}

func (r *Registry) migrate(ctx context.Context, instance string) bool {
	steps := []struct {
		migration store.Migration
		kv        store.Store
	}{
		{credentials.Migration, r.stores.Credentials},
		{cache.Migration, r.stores.Cache},
	}
	ok := true
	for _, step := range steps {
		copied, err := step.migration.Run(ctx, step.kv, instance)
		if err != nil {
			r.logger.Warn("legacy migration failed",
				zap.String("widget", instance),
				zap.String("namespace", step.migration.Namespace),
				zap.Error(err))
			ok = false
			continue
		}
		if copied {
			r.logger.Info("migrated legacy data",
				zap.String("widget", instance),
				zap.String("namespace", step.migration.Namespace))
		}
	}
	return ok
}

// FetchWidget runs Fetch for a known instance. It satisfies cache.WidgetFetcher.
func (r *Registry) FetchWidget(ctx context.Context, instance string, force bool) (models.WindReading, error) {
	svc, err := r.Service(ctx, instance)
	if err != nil {
		return models.WindReading{}, err
	}
	return svc.Fetch(ctx, force), nil
}

// SaveCredentials stores creds for instance, registering it if needed.
func (r *Registry) SaveCredentials(ctx context.Context, instance string, creds models.Credentials) error {
	if err := r.register(ctx, instance).creds.Save(ctx, creds); err != nil {
		return fmt.Errorf("widget %q: %w", instance, err)
	}
	return nil
}

// Instances returns the ids of all registered widgets in sorted order.
func (r *Registry) Instances() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.widgets))
	for id := range r.widgets {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
