package proto

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONParseJSONFeed(t *testing.T) {
	body := `{"version":"https://jsonfeed.org/version/1.1","title":"demo",
		"items":[{"id":"1","url":"https://x.com/1","title":"first","summary":"s1",
		"content_html":"<p>hi</p>","date_published":"2025-01-01T00:00:00Z","tags":["a","b"],
		"author":{"name":"alice"}}]}`

	h := &JSONHandler{}
	items := h.Parse(&Payload{JSON: []byte(body)})
	require.Len(t, items, 1)
	assert.Equal(t, "first", items[0].Title)
	assert.Equal(t, "https://x.com/1", items[0].Link)
	assert.Equal(t, "<p>hi</p>", items[0].Content)
	assert.Equal(t, "alice", items[0].Author)
	assert.Equal(t, []string{"a", "b"}, items[0].Categories)
}

func TestJSONParseNewsAPI(t *testing.T) {
	body := `{"status":"ok","totalResults":2,"articles":[
		{"source":{"name":"Reuters"},"author":"bob","title":"headline","description":"d",
		 "url":"https://x.com/n1","urlToImage":"https://x.com/n1.jpg","publishedAt":"2025-01-01T10:30:00Z"},
		{"source":{"name":"AP"},"title":"second","url":"https://x.com/n2","publishedAt":"2025-01-02T10:30:00Z"}]}`

	h := &JSONHandler{}
	items := h.Parse(&Payload{JSON: []byte(body)})
	require.Len(t, items, 2)
	assert.Equal(t, "headline", items[0].Title)
	assert.Equal(t, []string{"Reuters"}, items[0].Categories)
	assert.Equal(t, []string{"https://x.com/n1.jpg"}, items[0].Media)
	assert.Equal(t, "bob", items[0].Author)
}

func TestJSONParseBareArray(t *testing.T) {
	body := `[{"title":"a","url":"https://x.com/1","summary":"s","published":"2025-01-01"},
		{"title":"b","link":"https://x.com/2","description":"d","date":"2025-01-02"}]`

	h := &JSONHandler{}
	items := h.Parse(&Payload{JSON: []byte(body)})
	require.Len(t, items, 2)
	assert.Equal(t, "https://x.com/1", items[0].Link, "url alias accepted")
	assert.Equal(t, "s", items[0].Description, "summary alias accepted")
	assert.Equal(t, "2025-01-01", items[0].PubDate)
	assert.Equal(t, "https://x.com/2", items[1].Link)
	assert.Equal(t, "2025-01-02", items[1].PubDate)
}

func TestJSONParseShapeOrder(t *testing.T) {
	// a jsonfeed doc also has items[], must not fall through to array matcher
	body := `{"version":"https://jsonfeed.org/version/1","items":[{"url":"https://x.com/1","title":"t"}]}`
	h := &JSONHandler{}
	items := h.Parse(&Payload{JSON: []byte(body)})
	require.Len(t, items, 1)
	assert.Equal(t, "https://x.com/1", items[0].Link)
}

func TestJSONParseUnknownShape(t *testing.T) {
	h := &JSONHandler{}
	assert.Nil(t, h.Parse(&Payload{JSON: []byte(`{"foo":"bar"}`)}))
	assert.Nil(t, h.Parse(&Payload{JSON: []byte(`not json at all`)}))
	assert.Nil(t, h.Parse(&Payload{JSON: []byte(`[{"qty":1}]`)}), "array of non-items rejected")
	assert.Nil(t, h.Parse(nil))
}

func TestJSONFetchValidatesContentType(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>nope</html>"))
	}))
	defer ts.Close()

	h := &JSONHandler{Client: quickClient()}
	_, err := h.Fetch(context.Background(), ts.URL+"/feed.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported content type")
}

func TestJSONIsSupported(t *testing.T) {
	h := &JSONHandler{}
	assert.True(t, h.IsSupported("https://example.com/feed.json"))
	assert.True(t, h.IsSupported("https://example.com/json/latest"))
	assert.True(t, h.IsSupported("https://example.com/api/items"))
	assert.False(t, h.IsSupported("https://example.com/feed.atom"))
}
