package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// encryptedIndexCacheSize is required by badger whenever encryption is on.
const encryptedIndexCacheSize = 16 << 20

// BadgerStore persists values in BadgerDB, optionally encrypted at rest.
type BadgerStore struct {
	db        *badger.DB
	encrypted bool
}

// OpenBadger opens a BadgerDB at path, or an in-memory instance when path is
// empty. A non-nil encryptionKey (16, 24 or 32 bytes) enables AES encryption.
func OpenBadger(path string, encryptionKey []byte) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	if encryptionKey != nil {
		opts = opts.WithEncryptionKey(encryptionKey).WithIndexCacheSize(encryptedIndexCacheSize)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &BadgerStore{db: db, encrypted: encryptionKey != nil}, nil
}

// Encrypted reports whether values are encrypted at rest.
func (s *BadgerStore) Encrypted() bool {
	return s.encrypted
}

func (s *BadgerStore) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key.Bytes())
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("badger get: %w", err)
	}
	return value, true, nil
}

func (s *BadgerStore) Set(ctx context.Context, key Key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key.Bytes(), value)
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
