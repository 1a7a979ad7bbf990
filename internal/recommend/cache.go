// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package recommend

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const cacheKeyPrefix = "recommend:"

// ErrCacheMiss is returned when no fresh cached response exists.
var ErrCacheMiss = errors.New("recommend: cache miss")

// ResponseCache caches scored responses. Implementations must be safe
// for concurrent use.
type ResponseCache interface {
	Get(key string) (*Response, error)
	Set(key string, resp *Response) error
	Close() error
}

// BadgerCache stores responses in badger with a TTL, surviving process
// restarts so a redeploy does not stampede the scorer.
type BadgerCache struct {
	db  *badger.DB
	ttl time.Duration
}

// NewBadgerCache opens a badger-backed cache at path.
func NewBadgerCache(path string, ttl time.Duration) (*BadgerCache, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open recommendation cache: %w", err)
	}
	return &BadgerCache{db: db, ttl: ttl}, nil
}

// Get returns the cached response for key, or ErrCacheMiss.
func (c *BadgerCache) Get(key string) (*Response, error) {
	var resp Response
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cacheKeyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get cached response: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &resp)
		})
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Set stores resp under key with the cache TTL.
func (c *BadgerCache) Set(key string, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal cached response: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(cacheKeyPrefix+key), data).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
}

// Close releases the underlying badger database.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}

// noopCache disables caching when no cache path is configured.
type noopCache struct{}

func (noopCache) Get(string) (*Response, error) { return nil, ErrCacheMiss }
func (noopCache) Set(string, *Response) error   { return nil }
func (noopCache) Close() error                  { return nil }

// cacheKey derives a stable key from the user and request shape. Debug
// is excluded so debug requests reuse the same scored data.
func cacheKey(req Request) string {
	normalized := req
	normalized.Debug = false
	data, err := json.Marshal(normalized)
	if err != nil {
		// Marshal of a plain struct cannot fail; fall back to user id.
		return req.UserID.String()
	}
	sum := sha256.Sum256(data)
	return req.UserID.String() + ":" + hex.EncodeToString(sum[:8])
}
