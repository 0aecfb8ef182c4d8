// Package store provides the key-value layer behind the credential and cache
// stores. Keys are structured (namespace, widget instance, field) so distinct
// widgets never collide, and backends encode them without ambiguity.
package store

import (
	"context"
	"encoding/binary"
	"errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Namespaces used by this service.
const (
	NamespaceCredentials = "credentials"
	NamespaceCache       = "cache"
)

// Key addresses one value. An empty Instance is the shared default namespace,
// which is also where data written before per-widget keys lived.
type Key struct {
	Namespace string
	Instance  string
	Field     string
}

// Legacy returns the same key in the shared namespace.
func (k Key) Legacy() Key {
	return Key{Namespace: k.Namespace, Field: k.Field}
}

// Bytes encodes k as length-prefixed parts, so ("a:b", "c") and ("a", "b:c")
// produce different keys.
func (k Key) Bytes() []byte {
	buf := make([]byte, 0, len(k.Namespace)+len(k.Instance)+len(k.Field)+6)
	for _, part := range [...]string{k.Namespace, k.Instance, k.Field} {
		buf = binary.AppendUvarint(buf, uint64(len(part)))
		buf = append(buf, part...)
	}
	return buf
}

// Store is a byte-valued key-value store.
// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
type Store interface {
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	Set(ctx context.Context, key Key, value []byte) error
	Close() error
}

// Pinger is implemented by stores with a remote dependency worth health-checking.
type Pinger interface {
	Ping() error
}
