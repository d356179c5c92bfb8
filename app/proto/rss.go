package proto

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/mmcdole/gofeed"

	"github.com/Jthora/intel-feed/app/cors"
	"github.com/Jthora/intel-feed/app/feed"
	"github.com/Jthora/intel-feed/app/fetch"
)

// RSSHandler serves classic RSS/Atom XML endpoints. Fetch walks the bypass
// chain: json relay services first, then cors proxies, then a plain fetch
// as last resort (useful server-side or for already-permissive endpoints).
type RSSHandler struct {
	Client   *fetch.Client
	Resolver *cors.Resolver
}

// Name returns the protocol id.
func (h *RSSHandler) Name() string { return "rss" }

// IsSupported matches an rss substring or an .xml suffix.
func (h *RSSHandler) IsSupported(endpoint string) bool {
	e := strings.ToLower(endpoint)
	return strings.Contains(e, "rss") || strings.HasSuffix(strings.Split(e, "?")[0], ".xml")
}

// Fetch retrieves the raw payload through the active bypass chain.
func (h *RSSHandler) Fetch(ctx context.Context, endpoint string) (*Payload, error) {
	var chain []cors.Attempt

	strategy := h.Resolver.StrategyFor(h.Name())
	if strategy == cors.RSS2JSON || strategy == cors.JSONP {
		for _, svc := range h.Resolver.CandidatesFor(strategy) {
			start := time.Now()
			relayURL := cors.Relay(strategy, svc, endpoint)
			res, err := h.Client.Do(ctx, fetch.Request{URL: relayURL, Headers: map[string]string{"Accept": "application/json"}})
			if err == nil {
				err = fetch.ValidateContentType(relayURL, res.ContentType, "json", "javascript")
			}
			if err != nil {
				chain = append(chain, cors.Attempt{Strategy: strategy, Service: svc, Elapsed: time.Since(start), Err: err.Error()})
				log.Printf("[DEBUG] relay %s failed for %s, %v", svc, endpoint, err)
				continue
			}
			body := res.Body
			if strategy == cors.JSONP {
				body = cors.StripJSONP(body)
			}
			return &Payload{JSON: body}, nil
		}
	}

	// cors proxies return the body as an opaque string
	for _, svc := range h.Resolver.CandidatesFor(cors.ServiceWorker) {
		start := time.Now()
		proxyURL := cors.Relay(cors.ServiceWorker, svc, endpoint)
		res, err := h.Client.Do(ctx, fetch.Request{URL: proxyURL})
		if err != nil {
			chain = append(chain, cors.Attempt{Strategy: cors.ServiceWorker, Service: svc, Elapsed: time.Since(start), Err: err.Error()})
			log.Printf("[DEBUG] proxy %s failed for %s, %v", svc, endpoint, err)
			continue
		}
		return &Payload{Text: string(res.Body)}, nil
	}

	// last resort, no bypass at all
	start := time.Now()
	res, err := h.Client.Do(ctx, fetch.Request{URL: endpoint})
	if err != nil {
		chain = append(chain, cors.Attempt{Strategy: cors.Direct, Elapsed: time.Since(start), Err: err.Error()})
		return nil, &cors.ExhaustedError{Strategy: strategy, Target: endpoint, Chain: chain}
	}
	if err := fetch.ValidateContentType(endpoint, res.ContentType, "xml", "rss", "text"); err != nil {
		return nil, err
	}
	return &Payload{Text: string(res.Body)}, nil
}

// Parse accepts three shapes: an already-canonical item array, the relay
// {feed, items} shape, and raw XML. Malformed input yields nil, never an
// error.
func (h *RSSHandler) Parse(raw *Payload) []feed.Item {
	if raw == nil {
		return nil
	}
	if raw.Items != nil {
		return raw.Items
	}
	if raw.JSON != nil {
		if items, ok := parseItemArray(raw.JSON); ok {
			return items
		}
		if items, ok := parseRelayFeed(raw.JSON); ok {
			return items
		}
		log.Printf("[WARN] unrecognized rss json payload: %s", snippet(string(raw.JSON)))
		return nil
	}
	if raw.Text != "" {
		return h.parseXML(raw.Text)
	}
	return nil
}

func (h *RSSHandler) parseXML(text string) []feed.Item {
	parsed, err := gofeed.NewParser().ParseString(text)
	if err != nil {
		log.Printf("[WARN] malformed feed xml, %v: %s", err, snippet(text))
		return nil
	}
	items := make([]feed.Item, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		item := feed.Item{
			ID:          it.GUID,
			Title:       it.Title,
			Link:        it.Link,
			Description: it.Description,
			Content:     it.Content,
			PubDate:     it.Published,
			Categories:  it.Categories,
		}
		if it.PublishedParsed != nil {
			item.PubDate = it.PublishedParsed.UTC().Format(feed.TimeFormat)
		}
		if it.Author != nil {
			item.Author = it.Author.Name
		}
		for _, enc := range it.Enclosures {
			if enc != nil && enc.URL != "" {
				item.Media = append(item.Media, enc.URL)
			}
		}
		items = append(items, item)
	}
	return items
}

// relayFeed is the rss2json relay response shape.
type relayFeed struct {
	Status string `json:"status"`
	Feed   struct {
		Title string `json:"title"`
		Link  string `json:"link"`
	} `json:"feed"`
	Items []relayItem `json:"items"`
}

type relayItem struct {
	GUID        string   `json:"guid"`
	Title       string   `json:"title"`
	Link        string   `json:"link"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	PubDate     string   `json:"pubDate"`
	Author      string   `json:"author"`
	Categories  []string `json:"categories"`
	Thumbnail   string   `json:"thumbnail"`
	Enclosure   struct {
		Link string `json:"link"`
	} `json:"enclosure"`
}

func parseRelayFeed(body []byte) ([]feed.Item, bool) {
	var relay relayFeed
	if err := json.Unmarshal(body, &relay); err != nil || len(relay.Items) == 0 {
		return nil, false
	}
	items := make([]feed.Item, 0, len(relay.Items))
	for _, it := range relay.Items {
		item := feed.Item{
			ID:          it.GUID,
			Title:       it.Title,
			Link:        it.Link,
			Description: it.Description,
			Content:     it.Content,
			PubDate:     it.PubDate,
			Author:      it.Author,
			Categories:  it.Categories,
		}
		if it.Enclosure.Link != "" {
			item.Media = append(item.Media, it.Enclosure.Link)
		}
		if it.Thumbnail != "" {
			item.Media = append(item.Media, it.Thumbnail)
		}
		items = append(items, item)
	}
	return items, true
}

func parseItemArray(body []byte) ([]feed.Item, bool) {
	var items []feed.Item
	if err := json.Unmarshal(body, &items); err != nil || len(items) == 0 {
		return nil, false
	}
	// an array qualifies only if it actually looks item-shaped
	if items[0].Title == "" && items[0].Link == "" {
		return nil, false
	}
	return items, true
}
