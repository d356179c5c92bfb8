package proto

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ipfsHandler(gateway string) *IPFSHandler {
	rss := &RSSHandler{}
	return &IPFSHandler{Client: quickClient(), JSON: &JSONHandler{}, RSS: rss, Gateway: gateway}
}

func TestIPFSFetchRewritesScheme(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ipfs/Qm123", r.URL.Path)
		_, _ = w.Write([]byte(`{"version":"https://jsonfeed.org/version/1","items":[{"url":"https://x/1","title":"t"}]}`))
	}))
	defer ts.Close()

	h := ipfsHandler(ts.URL + "/ipfs/")
	raw, err := h.Fetch(context.Background(), "ipfs://Qm123")
	require.NoError(t, err)
	require.NotNil(t, raw.JSON, "json body recognized")

	items := h.Parse(raw)
	require.Len(t, items, 1)
	assert.Equal(t, "t", items[0].Title)
}

func TestIPFSParseDelegatesXML(t *testing.T) {
	h := ipfsHandler("")
	xml := `<rss version="2.0"><channel><item><title>x</title><link>http://x</link></item></channel></rss>`
	items := h.Parse(&Payload{Text: xml})
	require.Len(t, items, 1)
	assert.Equal(t, "x", items[0].Title)
}

func TestIPFSParseOpaqueText(t *testing.T) {
	h := ipfsHandler("")
	items := h.Parse(&Payload{Text: "just some pinned note"})
	require.Len(t, items, 1)
	assert.Equal(t, []string{"ipfs"}, items[0].Categories)
	assert.Contains(t, items[0].Content, "pinned note")
}

func TestIPFSParseEmpty(t *testing.T) {
	h := ipfsHandler("")
	assert.Nil(t, h.Parse(&Payload{Text: "   "}))
	assert.Nil(t, h.Parse(nil))
}

func TestIPFSIsSupported(t *testing.T) {
	h := ipfsHandler("")
	assert.True(t, h.IsSupported("ipfs://Qm123"))
	assert.True(t, h.IsSupported("https://ipfs.io/ipfs/Qm123"))
	assert.True(t, h.IsSupported("https://gw.example.com/ipfs/Qm123"))
	assert.False(t, h.IsSupported("https://example.com/feed.rss"))
}

func TestSSBPlaceholder(t *testing.T) {
	h := &SSBHandler{}
	assert.True(t, h.IsSupported("ssb://%abc=.sha256"))
	assert.False(t, h.IsSupported("https://example.com"))

	raw, err := h.Fetch(context.Background(), "ssb://%abc=.sha256")
	require.NoError(t, err)
	items := h.Parse(raw)
	require.Len(t, items, 1)
	assert.Equal(t, "ssb://%abc=.sha256", items[0].Link)
	assert.Equal(t, []string{"ssb"}, items[0].Categories)
}

func TestAPIHandlerAuthHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","articles":[{"title":"a","url":"https://x/1"}]}`))
	}))
	defer ts.Close()

	h := &APIHandler{JSON: &JSONHandler{}, Client: quickClient(), Credentials: map[string]string{"127.0.0.1": "secret-1"}}

	raw, err := h.Fetch(context.Background(), ts.URL+"/api/items")
	require.NoError(t, err)
	items := h.Parse(raw)
	require.Len(t, items, 1)
}

func TestAPIHandlerNoCreds(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"title":"a","url":"https://x/1"}]`))
	}))
	defer ts.Close()

	h := &APIHandler{JSON: &JSONHandler{}, Client: quickClient()}
	raw, err := h.Fetch(context.Background(), ts.URL+"/api/items")
	require.NoError(t, err)
	require.Len(t, h.Parse(raw), 1)
}

func TestAPIIsSupported(t *testing.T) {
	h := &APIHandler{}
	assert.True(t, h.IsSupported("https://newsapi.org/v2/top-headlines"))
	assert.False(t, h.IsSupported("https://example.com/api/rss/latest"), "rss endpoints excluded")
	assert.False(t, h.IsSupported("https://example.com/feed.atom"))
	assert.False(t, h.IsSupported("https://example.com/items"))
}
