// Package proc runs the acquisition pipeline: cache check, handler fetch,
// parse, normalize, cache refill, with the serve-stale-on-failure policy.
// It also provides the blocking refresh loop re-acquiring all configured
// sources on an interval.
package proc

import (
	"context"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"
	"github.com/pkg/errors"

	"github.com/Jthora/intel-feed/app/feed"
	"github.com/Jthora/intel-feed/app/proto"
	"github.com/Jthora/intel-feed/app/store"
)

// ErrMalformed reports a payload no handler could parse into items.
var ErrMalformed = errors.New("malformed payload")

// Processor bundles the registry, resolver, fetcher and cache into the one
// acquisition context passed to callers. No ambient globals.
type Processor struct {
	Conf       *Conf
	Registry   *proto.Registry
	Cache      *store.Cache
	Normalizer feed.Normalizer
}

// Result is the acquisition outcome: items or a typed failure, never both
// empty unless the source has never been fetched.
type Result struct {
	Source    feed.Source `json:"source"`
	Items     []feed.Item `json:"items"`
	Stale     bool        `json:"stale"`
	FromCache bool        `json:"from_cache"`
	Err       error       `json:"-"`
	ErrReason string      `json:"error,omitempty"`
}

// Acquire returns canonical items for a source. Fresh cache wins; on a
// miss the matched handler fetches and parses, items are normalized and
// cached. Total failure falls back to the last good cached value, marked
// stale; with nothing cached the result carries empty items and the
// failure reason.
func (p *Processor) Acquire(ctx context.Context, src feed.Source) Result {
	if entry, ok, err := p.Cache.Get(src.URL); ok {
		log.Printf("[DEBUG] cache hit for %s, %d items", src.URL, len(entry.Items))
		return Result{Source: src, Items: entry.Items, FromCache: true}
	} else if err != nil {
		log.Printf("[WARN] cache read failed for %s, %v", src.URL, err)
	}

	handler := p.Registry.HandlerFor(src.URL)
	log.Printf("[INFO] fetch %s via %s handler", src.URL, handler.Name())

	raw, err := handler.Fetch(ctx, src.URL)
	if err != nil {
		log.Printf("[WARN] fetch failed for %s, %v", src.URL, err)
		return p.fallback(src, err)
	}

	items := handler.Parse(raw)
	if len(items) == 0 {
		return p.fallback(src, errors.Wrapf(ErrMalformed, "no items from %s", src.URL))
	}

	items = p.Normalizer.Normalize(items, src)
	if err := p.Cache.Put(src.URL, items, p.Conf.System.CacheTTLSeconds); err != nil {
		log.Printf("[WARN] %v", err)
	}
	return Result{Source: src, Items: items}
}

// fallback applies the serve-stale policy, keeping the dashboard populated
// through outages.
func (p *Processor) fallback(src feed.Source, cause error) Result {
	if entry, ok, err := p.Cache.Last(src.URL); ok {
		log.Printf("[INFO] serving %d stale items for %s after failure", len(entry.Items), src.URL)
		return Result{Source: src, Items: entry.Items, Stale: true, FromCache: true, Err: cause, ErrReason: cause.Error()}
	} else if err != nil {
		log.Printf("[WARN] stale lookup failed for %s, %v", src.URL, err)
	}
	return Result{Source: src, Items: []feed.Item{}, Err: cause, ErrReason: cause.Error()}
}

// Invalidate drops the cached entry for a source URL.
func (p *Processor) Invalidate(url string) error { return p.Cache.Invalidate(url) }

// Do activates the refresh loop, one goroutine per source with concurrency
// limited by Conf.System.Concurrent. Blocks until ctx is canceled.
func (p *Processor) Do(ctx context.Context) {
	log.Printf("[INFO] activate processor, %d sources", len(p.Conf.Sources))
	p.Conf.setDefaults()

	for {
		swg := syncs.NewSizedGroup(p.Conf.System.Concurrent, syncs.Preemptive)
		for _, src := range p.Conf.Sources {
			src := src
			swg.Go(func(ctx context.Context) {
				res := p.Acquire(ctx, src)
				if res.Err != nil {
					log.Printf("[WARN] refresh of %s failed, %v", src.URL, res.Err)
					return
				}
				log.Printf("[DEBUG] refreshed %s, %d items (cached=%v)", src.URL, len(res.Items), res.FromCache)
			})
		}
		swg.Wait()
		log.Printf("[DEBUG] refresh completed. Next iteration after: '%v'", p.Conf.System.UpdateInterval)

		select {
		case <-ctx.Done():
			log.Printf("[INFO] processor terminated, %v", ctx.Err())
			return
		case <-time.After(p.Conf.System.UpdateInterval):
		}
	}
}
