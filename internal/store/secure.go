package store

import (
	"crypto/sha256"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"

	"github.com/kjstillabower/wind-widget-service/internal/observability"
)

const (
	// storageKeySalt binds derived keys to this service's storage.
	storageKeySalt = "wind-widget-service-storage"
	storageKeyInfo = "badger-encryption-v1"
	aesKeySize     = 32
)

// SecureOptions configures OpenSecure.
type SecureOptions struct {
	// Path is the badger directory; empty keeps data in memory.
	Path string
	// Secret enables encryption at rest. Empty means plain storage.
	Secret string
	Logger *zap.Logger
}

// opener is swapped in tests to simulate an unavailable keystore.
var opener = OpenBadger

// OpenSecure opens the store used for credentials. It tries encrypted badger
// first and falls back to plain badger when no secret is configured or the
// encrypted open fails. The choice is made once here; callers only see Store.
func OpenSecure(opts SecureOptions) (*BadgerStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if opts.Secret != "" {
		key, err := deriveKey(opts.Secret)
		if err == nil {
			s, openErr := opener(opts.Path, key)
			if openErr == nil {
				observability.StoreEncrypted.Set(1)
				logger.Info("secure storage opened", zap.Bool("encrypted", true), zap.String("path", opts.Path))
				return s, nil
			}
			err = openErr
		}
		logger.Warn("encrypted storage unavailable, falling back to plain storage", zap.Error(err))
	} else {
		logger.Warn("no storage secret configured, credentials stored unencrypted")
	}

	s, err := opener(opts.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("open plain storage: %w", err)
	}
	observability.StoreEncrypted.Set(0)
	logger.Info("secure storage opened", zap.Bool("encrypted", false), zap.String("path", opts.Path))
	return s, nil
}

// deriveKey derives a 256-bit AES key from secret using HKDF-SHA256.
func deriveKey(secret string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(secret), []byte(storageKeySalt), []byte(storageKeyInfo))
	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive storage key: %w", err)
	}
	return key, nil
}
