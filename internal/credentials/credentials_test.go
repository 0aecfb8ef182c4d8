package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/kjstillabower/wind-widget-service/internal/models"
	"github.com/kjstillabower/wind-widget-service/internal/store"
)

type failingStore struct{ store.Store }

func (failingStore) Get(context.Context, store.Key) ([]byte, bool, error) {
	return nil, false, errors.New("disk error")
}

func (failingStore) Set(context.Context, store.Key, []byte) error {
	return errors.New("disk error")
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := NewStore(store.NewMemoryStore(), "5")
	want := models.Credentials{ApplicationKey: "app", APIKey: "api", MACAddress: "AA:BB:CC:DD:EE:FF", LocationName: "Pier"}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, ok, err := s.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load() = ok %v, err %v", ok, err)
	}
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
	if !s.HasCredentials(ctx) {
		t.Error("HasCredentials() = false")
	}
}

func TestStore_LoadAbsent(t *testing.T) {
	tests := []struct {
		name  string
		creds models.Credentials
	}{
		{"nothing saved", models.Credentials{}},
		{"missing application key", models.Credentials{APIKey: "api", MACAddress: "mac"}},
		{"missing api key", models.Credentials{ApplicationKey: "app", MACAddress: "mac"}},
		{"missing mac", models.Credentials{ApplicationKey: "app", APIKey: "api"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := NewStore(store.NewMemoryStore(), "")
			if tt.creds != (models.Credentials{}) {
				if err := s.Save(ctx, tt.creds); err != nil {
					t.Fatalf("Save() error = %v", err)
				}
			}
			if _, ok, err := s.Load(ctx); ok || err != nil {
				t.Errorf("Load() = ok %v, err %v; want absent", ok, err)
			}
			if s.HasCredentials(ctx) {
				t.Error("HasCredentials() = true")
			}
		})
	}
}

func TestStore_DefaultLocationName(t *testing.T) {
	ctx := context.Background()
	s := NewStore(store.NewMemoryStore(), "")
	_ = s.Save(ctx, models.Credentials{ApplicationKey: "app", APIKey: "api", MACAddress: "mac"})
	got, ok, _ := s.Load(ctx)
	if !ok || got.LocationName != models.DefaultLocationName {
		t.Errorf("LocationName = %q, want %q", got.LocationName, models.DefaultLocationName)
	}
}

func TestStore_InstancesAreIsolated(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	a := NewStore(kv, "1")
	b := NewStore(kv, "2")
	_ = a.Save(ctx, models.Credentials{ApplicationKey: "app", APIKey: "api", MACAddress: "mac"})
	if b.HasCredentials(ctx) {
		t.Error("widget 2 sees widget 1 credentials")
	}
	if NewStore(kv, "").HasCredentials(ctx) {
		t.Error("shared namespace sees widget credentials")
	}
}

func TestStore_MigrationFromShared(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	legacy := models.Credentials{ApplicationKey: "app", APIKey: "api", MACAddress: "mac", LocationName: "Harbour"}
	_ = NewStore(kv, "").Save(ctx, legacy)

	if _, err := Migration.Run(ctx, kv, "9"); err != nil {
		t.Fatalf("Migration.Run() error = %v", err)
	}
	got, ok, err := NewStore(kv, "9").Load(ctx)
	if err != nil || !ok || got != legacy {
		t.Errorf("Load() after migration = %+v, %v, %v", got, ok, err)
	}
}

func TestStore_StorageErrors(t *testing.T) {
	ctx := context.Background()
	s := NewStore(failingStore{}, "1")
	if err := s.Save(ctx, models.Credentials{ApplicationKey: "a"}); err == nil {
		t.Error("Save() error = nil, want error")
	}
	if _, _, err := s.Load(ctx); err == nil {
		t.Error("Load() error = nil, want error")
	}
	if s.HasCredentials(ctx) {
		t.Error("HasCredentials() = true on storage error")
	}
}
