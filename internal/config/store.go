package config

import (
	"encoding/base64"
	"fmt"

	"github.com/aretw0/tendril/pkg/adapters/memory"
	"github.com/aretw0/tendril/pkg/adapters/redis"
	"github.com/aretw0/tendril/pkg/persistence/middleware"
	"github.com/aretw0/tendril/pkg/ports"
)

// Backend is an opened snapshot store and, for shared stores, its locker.
type Backend struct {
	Store  ports.SnapshotStore
	Locker ports.DistributedLocker
	close  func() error
}

// Close releases the backend's connections.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// OpenStore builds the configured store wrapped in the PII and encryption
// middlewares. PII masking runs before encryption.
func (c StoreConfig) OpenStore() (*Backend, error) {
	b := &Backend{}
	switch c.Type {
	case StoreRedis:
		opts := []redis.Option{redis.WithTTL(c.Redis.TTL), redis.WithPrefix(c.Redis.Prefix)}
		rs := redis.New(c.Redis.Address, c.Redis.Password, c.Redis.DB, opts...)
		b.Store = rs
		b.Locker = redis.NewLocker(rs.Client(), rs.Prefix())
		b.close = rs.Close
	case StoreMemory, "":
		b.Store = memory.NewStore()
	default:
		return nil, fmt.Errorf("unknown store type %q", c.Type)
	}

	var mws []middleware.Middleware
	if len(c.PIIPatterns) > 0 {
		mw, err := middleware.NewPIIMiddleware(c.PIIPatterns)
		if err != nil {
			b.Close()
			return nil, err
		}
		mws = append(mws, mw)
	}
	if c.EncryptionKey != "" {
		enc, err := c.encryption()
		if err != nil {
			b.Close()
			return nil, err
		}
		mw, err := middleware.NewEncryptionMiddleware(enc)
		if err != nil {
			b.Close()
			return nil, err
		}
		mws = append(mws, mw)
	}
	b.Store = middleware.Chain(b.Store, mws...)
	return b, nil
}

func (c StoreConfig) encryption() (middleware.EncryptionConfig, error) {
	active, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
	if err != nil {
		return middleware.EncryptionConfig{}, fmt.Errorf("encryption_key: %w", err)
	}
	cfg := middleware.EncryptionConfig{ActiveKey: active}
	for i, k := range c.FallbackKeys {
		key, err := base64.StdEncoding.DecodeString(k)
		if err != nil {
			return middleware.EncryptionConfig{}, fmt.Errorf("fallback_keys[%d]: %w", i, err)
		}
		cfg.FallbackKeys = append(cfg.FallbackKeys, key)
	}
	return cfg, nil
}
