// Package cache persists the last good wind reading per widget instance and
// refreshes readings for all known widgets.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/kjstillabower/wind-widget-service/internal/models"
	"github.com/kjstillabower/wind-widget-service/internal/observability"
	"github.com/kjstillabower/wind-widget-service/internal/store"
)

// FieldReading holds the JSON-encoded entry within the cache namespace.
const FieldReading = "reading"

// Migration copies a reading cached before per-widget namespacing into a
// widget instance.
var Migration = store.Migration{
	Namespace: store.NamespaceCache,
	Fields:    []string{FieldReading},
}

// entry is the persisted form: the reading and when it was written.
type entry struct {
	Reading         models.WindReading `json:"reading"`
	WrittenAtMillis int64              `json:"writtenAtMillis"`
}

// Store reads and writes the cached reading of one widget instance.
type Store struct {
	kv       store.Store
	instance string
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a cache Store for instance over kv. An empty instance uses
// the shared default namespace.
func NewStore(kv store.Store, instance string, opts ...Option) *Store {
	s := &Store{kv: kv, instance: instance, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key() store.Key {
	return store.Key{Namespace: store.NamespaceCache, Instance: s.instance, Field: FieldReading}
}

// Read returns the cached reading with status CACHED if it was written no
// more than maxAge ago. Age is compared in whole milliseconds and the bound is
// inclusive. Returns (zero, false, nil) on miss or when too old.
func (s *Store) Read(ctx context.Context, maxAge time.Duration) (models.WindReading, bool, error) {
	e, ok, err := s.load(ctx)
	if err != nil || !ok {
		return models.WindReading{}, false, err
	}
	age := s.now().UnixMilli() - e.WrittenAtMillis
	if age > maxAge.Milliseconds() {
		return models.WindReading{}, false, nil
	}
	return e.Reading.WithStatus(models.StatusCached), true, nil
}

// ReadIgnoringAge returns the cached reading as persisted (status LIVE),
// however old. Returns (zero, false, nil) if nothing was ever written.
func (s *Store) ReadIgnoringAge(ctx context.Context) (models.WindReading, bool, error) {
	e, ok, err := s.load(ctx)
	if err != nil || !ok {
		return models.WindReading{}, false, err
	}
	return e.Reading, true, nil
}

// Write stores reading with status forced to LIVE, stamped with the current
// time. Any previous entry is replaced.
func (s *Store) Write(ctx context.Context, reading models.WindReading) error {
	e := entry{
		Reading:         reading.WithStatus(models.StatusLive),
		WrittenAtMillis: s.now().UnixMilli(),
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	err = s.kv.Set(ctx, s.key(), data)
	observability.RecordStoreOp(store.NamespaceCache, "set", err)
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context) (entry, bool, error) {
	data, ok, err := s.kv.Get(ctx, s.key())
	observability.RecordStoreOp(store.NamespaceCache, "get", err)
	if err != nil {
		return entry{}, false, fmt.Errorf("read cache entry: %w", err)
	}
	if !ok {
		return entry{}, false, nil
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return entry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return e, true, nil
}
