package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kjstillabower/wind-widget-service/internal/observability"
)

// SchemaVersion is the per-widget layout version recorded after migration.
const SchemaVersion = 1

// schemaVersionField is reserved in every namespace for the migration marker.
const schemaVersionField = "schema_version"

// Migration copies the listed fields of Namespace from the shared legacy
// location into a widget instance.
type Migration struct {
	Namespace string
	Fields    []string
}

// Run migrates instance once. When the instance holds none of the fields yet,
// every field present in the legacy location is copied. The schema marker is
// written either way, so later runs are no-ops and never overwrite data.
// Returns true when anything was copied.
func (m Migration) Run(ctx context.Context, s Store, instance string) (bool, error) {
	if instance == "" {
		return false, nil
	}
	marker := Key{Namespace: m.Namespace, Instance: instance, Field: schemaVersionField}
	raw, ok, err := s.Get(ctx, marker)
	if err != nil {
		return false, fmt.Errorf("read schema marker: %w", err)
	}
	if ok {
		if v, err := strconv.Atoi(string(raw)); err == nil && v >= SchemaVersion {
			return false, nil
		}
	}

	populated, err := m.hasAny(ctx, s, instance)
	if err != nil {
		return false, err
	}

	copied := false
	if !populated {
		for _, field := range m.Fields {
			key := Key{Namespace: m.Namespace, Instance: instance, Field: field}
			value, found, err := s.Get(ctx, key.Legacy())
			if err != nil {
				return false, fmt.Errorf("read legacy %s.%s: %w", m.Namespace, field, err)
			}
			if !found {
				continue
			}
			if err := s.Set(ctx, key, value); err != nil {
				return false, fmt.Errorf("copy %s.%s: %w", m.Namespace, field, err)
			}
			copied = true
		}
	}

	if err := s.Set(ctx, marker, []byte(strconv.Itoa(SchemaVersion))); err != nil {
		return copied, fmt.Errorf("write schema marker: %w", err)
	}
	result := "skipped"
	if copied {
		result = "copied"
	}
	observability.StoreMigrationsTotal.WithLabelValues(m.Namespace, result).Inc()
	return copied, nil
}

func (m Migration) hasAny(ctx context.Context, s Store, instance string) (bool, error) {
	for _, field := range m.Fields {
		_, ok, err := s.Get(ctx, Key{Namespace: m.Namespace, Instance: instance, Field: field})
		if err != nil {
			return false, fmt.Errorf("read %s.%s: %w", m.Namespace, field, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
