package proto

import (
	"context"
	"encoding/json"
	"strings"

	log "github.com/go-pkgz/lgr"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/Jthora/intel-feed/app/feed"
	"github.com/Jthora/intel-feed/app/fetch"
)

const mastodonTimelinePath = "/api/v1/timelines/public?limit=20"

// MastodonHandler serves mastodon instance timelines. Instances expose the
// public timeline as open json, so fetches go direct.
type MastodonHandler struct {
	Client *fetch.Client
}

// Name returns the protocol id.
func (h *MastodonHandler) Name() string { return "mastodon" }

// IsSupported matches mastodon, .social/ or timelines substrings.
func (h *MastodonHandler) IsSupported(endpoint string) bool {
	e := strings.ToLower(endpoint)
	return strings.Contains(e, "mastodon") || strings.Contains(e, ".social/") || strings.Contains(e, "timelines")
}

// Fetch normalizes an instance base URL to its public timeline endpoint and
// retrieves the statuses.
func (h *MastodonHandler) Fetch(ctx context.Context, endpoint string) (*Payload, error) {
	timelineURL := endpoint
	if !strings.Contains(endpoint, "/api/v1/timelines") {
		timelineURL = strings.TrimSuffix(endpoint, "/") + mastodonTimelinePath
	}
	res, err := h.Client.Do(ctx, fetch.Request{URL: timelineURL, Headers: map[string]string{"Accept": "application/json"}})
	if err != nil {
		return nil, err
	}
	if err := fetch.ValidateContentType(timelineURL, res.ContentType, "json"); err != nil {
		return nil, err
	}
	return &Payload{JSON: res.Body}, nil
}

// mastodonStatus is a single toot from the timeline API.
type mastodonStatus struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	URI       string `json:"uri"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	Account   struct {
		DisplayName string `json:"display_name"`
		Acct        string `json:"acct"`
	} `json:"account"`
	Tags []struct {
		Name string `json:"name"`
	} `json:"tags"`
	MediaAttachments []struct {
		URL string `json:"url"`
	} `json:"media_attachments"`
}

// Parse maps each status to a canonical item: title is the author display
// name, description the html-stripped content, categories the tag names.
func (h *MastodonHandler) Parse(raw *Payload) []feed.Item {
	if raw == nil || raw.JSON == nil {
		return nil
	}
	var statuses []mastodonStatus
	if err := json.Unmarshal(raw.JSON, &statuses); err != nil {
		log.Printf("[WARN] malformed mastodon timeline, %v: %s", err, snippet(string(raw.JSON)))
		return nil
	}

	items := make([]feed.Item, 0, len(statuses))
	for _, st := range statuses {
		title := st.Account.DisplayName
		if title == "" {
			title = st.Account.Acct
		}
		link := st.URL
		if link == "" {
			link = st.URI
		}
		item := feed.Item{
			ID:          st.ID,
			Title:       title,
			Link:        link,
			Description: stripHTML(st.Content),
			Content:     st.Content,
			PubDate:     st.CreatedAt,
			Author:      st.Account.Acct,
		}
		for _, tag := range st.Tags {
			item.Categories = append(item.Categories, tag.Name)
		}
		for _, m := range st.MediaAttachments {
			if m.URL != "" {
				item.Media = append(item.Media, m.URL)
			}
		}
		items = append(items, item)
	}
	return items
}

// stripHTML reduces toot markup to plain text.
func stripHTML(content string) string {
	text := bluemonday.StrictPolicy().Sanitize(content)
	return strings.TrimSpace(html.UnescapeString(text))
}
