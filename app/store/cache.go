package store

import (
	"encoding/json"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/Jthora/intel-feed/app/feed"
)

const bucketNameCache = "SourceCache"

// Entry is one cached acquisition result, serialized as an opaque json
// blob under the source URL key.
type Entry struct {
	Key        string      `json:"key"`
	Items      []feed.Item `json:"items"`
	FetchedAt  time.Time   `json:"fetched_at"`
	TTLSeconds int         `json:"ttl_seconds"`
}

// Stale reports whether the entry outlived its ttl at the given moment.
func (e Entry) Stale(now time.Time) bool {
	return now.Sub(e.FetchedAt) > time.Duration(e.TTLSeconds)*time.Second
}

// Get returns the fresh entry for a source URL. A stale entry is a miss,
// the stored value is kept until the next Put.
func (c *Cache) Get(url string) (Entry, bool, error) {
	entry, found, err := c.Last(url)
	if err != nil || !found {
		return Entry{}, false, err
	}
	if entry.Stale(c.now()) {
		log.Printf("[DEBUG] cache entry for %s is stale, fetched at %s", url, entry.FetchedAt.Format(time.RFC3339))
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Last returns the stored entry regardless of ttl, for the
// serve-stale-on-failure fallback.
func (c *Cache) Last(url string) (Entry, bool, error) {
	var entry Entry
	found := false
	err := c.DB.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketNameCache))
		if bucket == nil {
			return nil
		}
		data := bucket.Get([]byte(url))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			log.Printf("[WARN] failed to unmarshal cache entry for %s, %v", url, err)
			return nil
		}
		found = true
		return nil
	})
	return entry, found, err
}

// Put overwrites the entry for a source URL with fresh items.
func (c *Cache) Put(url string, items []feed.Item, ttlSeconds int) error {
	entry := Entry{Key: url, Items: items, FetchedAt: c.now(), TTLSeconds: ttlSeconds}
	err := c.DB.Update(func(tx *bolt.Tx) error {
		bucket, e := tx.CreateBucketIfNotExists([]byte(bucketNameCache))
		if e != nil {
			return e
		}
		data, e := json.Marshal(&entry)
		if e != nil {
			return e
		}
		log.Printf("[DEBUG] cache %d items for '%s'", len(items), url)
		return bucket.Put([]byte(url), data)
	})
	return errors.Wrapf(err, "can't cache items for %s", url)
}

// Invalidate drops the entry for a source URL.
func (c *Cache) Invalidate(url string) error {
	err := c.DB.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketNameCache))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(url))
	})
	return errors.Wrapf(err, "can't invalidate %s", url)
}

// Clear drops every cached entry.
func (c *Cache) Clear() error {
	err := c.DB.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(bucketNameCache)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(bucketNameCache))
	})
	return errors.Wrap(err, "can't clear cache")
}
