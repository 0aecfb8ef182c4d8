// Package credentials persists Ecowitt API credentials per widget instance.
package credentials

import (
	"context"
	"fmt"

	"github.com/kjstillabower/wind-widget-service/internal/models"
	"github.com/kjstillabower/wind-widget-service/internal/observability"
	"github.com/kjstillabower/wind-widget-service/internal/store"
)

// Stored field names within the credentials namespace.
const (
	FieldApplicationKey = "application_key"
	FieldAPIKey         = "api_key"
	FieldMACAddress     = "mac_address"
	FieldLocationName   = "location_name"
)

// Migration copies credentials saved before per-widget namespacing into a
// widget instance.
var Migration = store.Migration{
	Namespace: store.NamespaceCredentials,
	Fields:    []string{FieldApplicationKey, FieldAPIKey, FieldMACAddress, FieldLocationName},
}

// Store reads and writes the credentials of one widget instance. An empty
// instance uses the shared default namespace.
type Store struct {
	kv       store.Store
	instance string
}

// NewStore creates a credential Store over kv, which should come from
// store.OpenSecure.
func NewStore(kv store.Store, instance string) *Store {
	return &Store{kv: kv, instance: instance}
}

// Instance returns the widget instance id this store is bound to.
func (s *Store) Instance() string {
	return s.instance
}

func (s *Store) key(field string) store.Key {
	return store.Key{Namespace: store.NamespaceCredentials, Instance: s.instance, Field: field}
}

// Save writes all four fields. Empty values are written as empty, which
// makes Load report absent until the keys are saved again.
func (s *Store) Save(ctx context.Context, c models.Credentials) error {
	fields := [...]struct{ name, value string }{
		{FieldApplicationKey, c.ApplicationKey},
		{FieldAPIKey, c.APIKey},
		{FieldMACAddress, c.MACAddress},
		{FieldLocationName, c.LocationName},
	}
	for _, f := range fields {
		err := s.kv.Set(ctx, s.key(f.name), []byte(f.value))
		observability.RecordStoreOp(store.NamespaceCredentials, "set", err)
		if err != nil {
			return fmt.Errorf("save credential %s: %w", f.name, err)
		}
	}
	return nil
}

// Load returns the saved credentials. ok is false when any of the application
// key, API key or MAC address is missing or empty. LocationName falls back to
// models.DefaultLocationName.
func (s *Store) Load(ctx context.Context) (models.Credentials, bool, error) {
	var c models.Credentials
	targets := [...]struct {
		name string
		dst  *string
	}{
		{FieldApplicationKey, &c.ApplicationKey},
		{FieldAPIKey, &c.APIKey},
		{FieldMACAddress, &c.MACAddress},
		{FieldLocationName, &c.LocationName},
	}
	for _, t := range targets {
		v, found, err := s.kv.Get(ctx, s.key(t.name))
		observability.RecordStoreOp(store.NamespaceCredentials, "get", err)
		if err != nil {
			return models.Credentials{}, false, fmt.Errorf("load credential %s: %w", t.name, err)
		}
		if found {
			*t.dst = string(v)
		}
	}
	if !c.Configured() {
		return models.Credentials{}, false, nil
	}
	if c.LocationName == "" {
		c.LocationName = models.DefaultLocationName
	}
	return c, true, nil
}

// HasCredentials reports whether Load would succeed. Storage errors count as
// not configured.
func (s *Store) HasCredentials(ctx context.Context) bool {
	_, ok, err := s.Load(ctx)
	return err == nil && ok
}
