package proc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jthora/intel-feed/app/cors"
	"github.com/Jthora/intel-feed/app/feed"
	"github.com/Jthora/intel-feed/app/fetch"
	"github.com/Jthora/intel-feed/app/proto"
	"github.com/Jthora/intel-feed/app/store"
)

func testProcessor(t *testing.T, services map[cors.Strategy][]string) *Processor {
	cache, err := store.NewCache(filepath.Join(t.TempDir(), "test.bdb"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	client := fetch.NewClient(1, time.Millisecond, time.Second)
	resolver := cors.NewResolver(cors.RSS2JSON, services, nil)

	conf := &Conf{}
	conf.setDefaults()
	conf.System.CacheTTLSeconds = 300

	return &Processor{
		Conf:     conf,
		Registry: proto.NewRegistry(client, resolver, nil),
		Cache:    cache,
	}
}

func TestAcquireViaRelayEndToEnd(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://rss.nytimes.com/services/xml/rss/nyt/World.xml", r.URL.Query().Get("rss_url"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","feed":{"title":"NYT"},"items":[{"title":"A","link":"http://x","pubDate":"2025-01-01"}]}`))
	}))
	defer relay.Close()

	p := testProcessor(t, map[cors.Strategy][]string{cors.RSS2JSON: {relay.URL}})
	src := feed.Source{ID: "nyt", URL: "https://rss.nytimes.com/services/xml/rss/nyt/World.xml", Name: "NYT World"}

	res := p.Acquire(context.Background(), src)
	require.NoError(t, res.Err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "A", res.Items[0].Title)
	assert.Equal(t, "http://x", res.Items[0].Link)
	assert.Equal(t, "2025-01-01T00:00:00.000Z", res.Items[0].PubDate)
	assert.NotEmpty(t, res.Items[0].ID)
	assert.False(t, res.Stale)

	// second acquisition comes from cache, no relay round trip needed
	relay.Close()
	res = p.Acquire(context.Background(), src)
	require.NoError(t, res.Err)
	assert.True(t, res.FromCache)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "A", res.Items[0].Title)
}

func TestAcquireServesStaleOnTotalFailure(t *testing.T) {
	p := testProcessor(t, nil)
	src := feed.Source{ID: "dead", URL: "http://127.0.0.1:1/feed.rss"}

	// seed an instantly-stale entry, then make the fetch fail outright
	items := []feed.Item{{ID: "old", Title: "old news", Link: "http://x/old", PubDate: "2025-01-01T00:00:00.000Z", Categories: []string{}}}
	require.NoError(t, p.Cache.Put(src.URL, items, 0))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := p.Cache.Get(src.URL)
	require.NoError(t, err)
	require.False(t, ok, "entry expired")

	res := p.Acquire(context.Background(), src)
	assert.Error(t, res.Err)
	assert.True(t, res.Stale, "expired entry served, marked stale")
	require.Len(t, res.Items, 1)
	assert.Equal(t, "old news", res.Items[0].Title)
}

func TestAcquireEmptyResultWhenNothingCached(t *testing.T) {
	p := testProcessor(t, nil)
	res := p.Acquire(context.Background(), feed.Source{ID: "dead", URL: "http://127.0.0.1:1/feed.rss"})

	assert.Error(t, res.Err)
	assert.NotEmpty(t, res.ErrReason)
	assert.False(t, res.Stale)
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)
}

func TestAcquireMalformedPayloadFallsBack(t *testing.T) {
	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"nothing":"useful"}`)) // parses as json, matches no shape
	}))
	defer garbage.Close()

	p := testProcessor(t, map[cors.Strategy][]string{cors.RSS2JSON: {garbage.URL}})
	res := p.Acquire(context.Background(), feed.Source{ID: "bad", URL: "https://example.com/feed.rss"})

	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, ErrMalformed)
	assert.Empty(t, res.Items)
}

func TestDoRefreshesSourcesAndStops(t *testing.T) {
	var hits int32
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","items":[{"title":"A","link":"http://x","pubDate":"2025-01-01"}]}`))
	}))
	defer relay.Close()

	p := testProcessor(t, map[cors.Strategy][]string{cors.RSS2JSON: {relay.URL}})
	p.Conf.Sources = []feed.Source{
		{ID: "a", URL: "https://example.com/a.rss"},
		{ID: "b", URL: "https://example.com/b.rss"},
	}
	p.Conf.System.UpdateInterval = time.Hour
	p.Conf.System.Concurrent = 2

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Do(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&hits) >= 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not stop on context cancel")
	}
}

func TestConfDefaults(t *testing.T) {
	c := &Conf{}
	c.setDefaults()
	assert.Equal(t, 5*time.Minute, c.System.UpdateInterval)
	assert.Equal(t, 8, c.System.Concurrent)
	assert.Equal(t, 300, c.System.CacheTTLSeconds)
	assert.Equal(t, 3, c.System.MaxRetries)
	assert.Equal(t, 300*time.Millisecond, c.System.Backoff)
}

func TestConfServices(t *testing.T) {
	c := &Conf{}
	c.CORS.RSS2JSON = []string{"https://svc-a/convert"}
	c.CORS.Proxies = []string{"https://proxy-a/"}

	services := c.Services("http://localhost:8889/")
	assert.Equal(t, []string{"https://svc-a/convert"}, services[cors.RSS2JSON])
	assert.Equal(t, []string{"https://proxy-a/", "http://localhost:8889/"}, services[cors.ServiceWorker])
}
