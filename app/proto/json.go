package proto

import (
	"context"
	"encoding/json"
	"strings"

	log "github.com/go-pkgz/lgr"

	"github.com/Jthora/intel-feed/app/cors"
	"github.com/Jthora/intel-feed/app/feed"
	"github.com/Jthora/intel-feed/app/fetch"
)

// JSONHandler serves json feed endpoints. Parsing runs an ordered list of
// typed shape matchers instead of sniffing untyped maps: JSON Feed first,
// then the news-api articles shape, then a bare array of item-like objects.
type JSONHandler struct {
	Client   *fetch.Client
	Resolver *cors.Resolver
}

// Name returns the protocol id.
func (h *JSONHandler) Name() string { return "json" }

// IsSupported matches a .json suffix or a json/api substring. Registered
// after the more specific handlers, so this is the catch-all for json-ish
// endpoints.
func (h *JSONHandler) IsSupported(endpoint string) bool {
	e := strings.ToLower(endpoint)
	return strings.HasSuffix(strings.Split(e, "?")[0], ".json") ||
		strings.Contains(e, "json") || strings.Contains(e, "api")
}

// Fetch retrieves the endpoint body, via proxy candidates when a bypass is
// configured for the protocol, directly otherwise.
func (h *JSONHandler) Fetch(ctx context.Context, endpoint string) (*Payload, error) {
	if h.Resolver != nil && h.Resolver.StrategyFor(h.Name()) == cors.ServiceWorker {
		for _, svc := range h.Resolver.CandidatesFor(cors.ServiceWorker) {
			res, err := h.Client.Do(ctx, fetch.Request{URL: cors.Relay(cors.ServiceWorker, svc, endpoint)})
			if err != nil {
				log.Printf("[DEBUG] proxy %s failed for %s, %v", svc, endpoint, err)
				continue
			}
			return &Payload{JSON: res.Body}, nil
		}
	}
	res, err := h.Client.Do(ctx, fetch.Request{URL: endpoint, Headers: map[string]string{"Accept": "application/json"}})
	if err != nil {
		return nil, err
	}
	if err := fetch.ValidateContentType(endpoint, res.ContentType, "json"); err != nil {
		return nil, err
	}
	return &Payload{JSON: res.Body}, nil
}

// Parse tries each shape matcher in order and returns nil with a logged
// error when none of them recognizes the payload.
func (h *JSONHandler) Parse(raw *Payload) []feed.Item {
	if raw == nil {
		return nil
	}
	if raw.Items != nil {
		return raw.Items
	}
	body := raw.JSON
	if body == nil {
		body = []byte(raw.Text)
	}
	for _, m := range shapeMatchers {
		if items, ok := m.match(body); ok {
			log.Printf("[DEBUG] json payload matched %s shape, %d items", m.name, len(items))
			return items
		}
	}
	log.Printf("[WARN] json payload matched no known shape: %s", snippet(string(body)))
	return nil
}

// shapeMatchers is the ordered list of recognized json payload shapes.
var shapeMatchers = []struct {
	name  string
	match func([]byte) ([]feed.Item, bool)
}{
	{"jsonfeed", matchJSONFeed},
	{"newsapi", matchNewsAPI},
	{"array", matchBareArray},
}

// jsonFeedDoc is the jsonfeed.org document shape.
type jsonFeedDoc struct {
	Version string `json:"version"`
	Title   string `json:"title"`
	Items   []struct {
		ID            string   `json:"id"`
		URL           string   `json:"url"`
		Title         string   `json:"title"`
		Summary       string   `json:"summary"`
		ContentHTML   string   `json:"content_html"`
		ContentText   string   `json:"content_text"`
		DatePublished string   `json:"date_published"`
		Tags          []string `json:"tags"`
		Author        struct {
			Name string `json:"name"`
		} `json:"author"`
	} `json:"items"`
}

func matchJSONFeed(body []byte) ([]feed.Item, bool) {
	var doc jsonFeedDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, false
	}
	if !strings.Contains(doc.Version, "jsonfeed.org") || len(doc.Items) == 0 {
		return nil, false
	}
	items := make([]feed.Item, 0, len(doc.Items))
	for _, it := range doc.Items {
		content := it.ContentHTML
		if content == "" {
			content = it.ContentText
		}
		items = append(items, feed.Item{
			ID:          it.ID,
			Title:       it.Title,
			Link:        it.URL,
			Description: it.Summary,
			Content:     content,
			PubDate:     it.DatePublished,
			Author:      it.Author.Name,
			Categories:  it.Tags,
		})
	}
	return items, true
}

// newsAPIDoc is the news-api style articles envelope.
type newsAPIDoc struct {
	Status   string `json:"status"`
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		URLToImage  string `json:"urlToImage"`
		PublishedAt string `json:"publishedAt"`
		Content     string `json:"content"`
		Author      string `json:"author"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

func matchNewsAPI(body []byte) ([]feed.Item, bool) {
	var doc newsAPIDoc
	if err := json.Unmarshal(body, &doc); err != nil || len(doc.Articles) == 0 {
		return nil, false
	}
	items := make([]feed.Item, 0, len(doc.Articles))
	for _, a := range doc.Articles {
		item := feed.Item{
			Title:       a.Title,
			Link:        a.URL,
			Description: a.Description,
			Content:     a.Content,
			PubDate:     a.PublishedAt,
			Author:      a.Author,
		}
		if a.Source.Name != "" {
			item.Categories = []string{a.Source.Name}
		}
		if a.URLToImage != "" {
			item.Media = []string{a.URLToImage}
		}
		items = append(items, item)
	}
	return items, true
}

// genericItem covers bare arrays with loosely named fields.
type genericItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Summary     string `json:"summary"`
	Content     string `json:"content"`
	PubDate     string `json:"pubDate"`
	Date        string `json:"date"`
	Published   string `json:"published"`
	Author      string `json:"author"`
}

func matchBareArray(body []byte) ([]feed.Item, bool) {
	var arr []genericItem
	if err := json.Unmarshal(body, &arr); err != nil || len(arr) == 0 {
		return nil, false
	}
	if arr[0].Title == "" && arr[0].Link == "" && arr[0].URL == "" {
		return nil, false
	}
	items := make([]feed.Item, 0, len(arr))
	for _, g := range arr {
		link := g.Link
		if link == "" {
			link = g.URL
		}
		desc := g.Description
		if desc == "" {
			desc = g.Summary
		}
		pub := g.PubDate
		if pub == "" {
			pub = g.Published
		}
		if pub == "" {
			pub = g.Date
		}
		items = append(items, feed.Item{
			ID:          g.ID,
			Title:       g.Title,
			Link:        link,
			Description: desc,
			Content:     g.Content,
			PubDate:     pub,
			Author:      g.Author,
		})
	}
	return items, true
}
