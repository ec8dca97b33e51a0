package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long cached completions stay valid.
const DefaultCacheTTL = 24 * time.Hour

// CachedClient wraps a Client with a BadgerDB completion cache.
//
// Identical concurrent requests are collapsed through singleflight so
// the backend sees each cache miss exactly once. Streaming bypasses
// the cache entirely: a stream's value is its incremental delivery.
type CachedClient struct {
	inner Client
	db    *badger.DB
	ttl   time.Duration
	group singleflight.Group
}

// CacheConfig controls cache placement and retention.
type CacheConfig struct {
	// Path is the directory for cache files. Ignored when InMemory is set.
	Path string

	// InMemory keeps the cache off disk. Used by tests.
	InMemory bool

	// TTL overrides DefaultCacheTTL when positive.
	TTL time.Duration
}

// NewCachedClient opens the cache database and wraps inner.
func NewCachedClient(inner Client, cfg CacheConfig) (*CachedClient, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("cache path is required for persistent cache")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open completion cache: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedClient{inner: inner, db: db, ttl: ttl}, nil
}

func (c *CachedClient) Name() string { return c.inner.Name() }

// Close releases the cache database.
func (c *CachedClient) Close() error {
	return c.db.Close()
}

// Complete serves from cache when possible, otherwise delegates and
// stores the result.
func (c *CachedClient) Complete(ctx context.Context, req Request) (string, error) {
	key := cacheKey(req)

	if text, ok := c.lookup(key); ok {
		return text, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check inside the flight: a racing caller may have filled it.
		if text, ok := c.lookup(key); ok {
			return text, nil
		}
		text, err := c.inner.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		c.store(key, text)
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Stream always delegates to the backend.
func (c *CachedClient) Stream(ctx context.Context, req Request, onChunk func(string)) (string, error) {
	return c.inner.Stream(ctx, req, onChunk)
}

func (c *CachedClient) lookup(key string) (string, bool) {
	var text string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			text = string(val)
			return nil
		})
	})
	return text, err == nil
}

func (c *CachedClient) store(key, text string) {
	// Cache writes are best-effort; a failed write only costs a re-fetch.
	_ = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), []byte(text)).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
}

func cacheKey(req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%.3f|%d|", req.Model, req.Temperature, req.MaxTokens)
	for _, m := range req.Messages {
		fmt.Fprintf(h, "%s:%s\x00", m.Role, m.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}
