// Package store persists fetched items in a bolt-backed ttl cache keyed by
// source URL. Staleness is computed at read time; stale entries report as a
// miss but stay on disk until overwritten so total fetch failures can still
// serve the last good value.
package store

import (
	"os"
	"path"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Cache is the persistent source-url keyed item cache.
type Cache struct {
	DB  *bolt.DB
	now func() time.Time // injectable for tests
}

// NewCache opens (and creates if needed) the bolt file backing the cache.
func NewCache(dbFile string) (*Cache, error) {
	log.Printf("[INFO] bolt (persistent) cache, %s", dbFile)
	if err := os.MkdirAll(path.Dir(dbFile), 0700); err != nil {
		return nil, errors.Wrapf(err, "can't make directory for %s", dbFile)
	}

	db, err := bolt.Open(dbFile, 0600, &bolt.Options{Timeout: 1 * time.Second}) // nolint
	if err != nil {
		return nil, errors.Wrapf(err, "can't open %s", dbFile)
	}

	return &Cache{DB: db, now: time.Now}, nil
}

// Close releases the underlying bolt file.
func (c *Cache) Close() error { return c.DB.Close() }
