package proto

import (
	"context"
	"net/url"
	"strings"

	log "github.com/go-pkgz/lgr"

	"github.com/Jthora/intel-feed/app/feed"
	"github.com/Jthora/intel-feed/app/fetch"
)

// APIHandler serves authenticated REST endpoints. It composes the json
// handler for parsing and adds a bearer token from configured credentials,
// keyed by endpoint host.
type APIHandler struct {
	JSON        *JSONHandler
	Client      *fetch.Client
	Credentials map[string]string // host -> token
}

// Name returns the protocol id.
func (h *APIHandler) Name() string { return "api" }

// IsSupported requires an api substring while excluding rss/atom endpoints.
func (h *APIHandler) IsSupported(endpoint string) bool {
	e := strings.ToLower(endpoint)
	if strings.Contains(e, "rss") || strings.Contains(e, "atom") {
		return false
	}
	return strings.Contains(e, "api")
}

// Fetch retrieves the endpoint with an Authorization header when a token is
// configured for its host.
func (h *APIHandler) Fetch(ctx context.Context, endpoint string) (*Payload, error) {
	headers := map[string]string{"Accept": "application/json"}
	if token := h.tokenFor(endpoint); token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	res, err := h.Client.Do(ctx, fetch.Request{URL: endpoint, Headers: headers})
	if err != nil {
		return nil, err
	}
	if err := fetch.ValidateContentType(endpoint, res.ContentType, "json"); err != nil {
		return nil, err
	}
	return &Payload{JSON: res.Body}, nil
}

// Parse delegates to the json shape matchers.
func (h *APIHandler) Parse(raw *Payload) []feed.Item { return h.JSON.Parse(raw) }

func (h *APIHandler) tokenFor(endpoint string) string {
	if len(h.Credentials) == 0 {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		log.Printf("[WARN] can't parse endpoint %s for credentials, %v", endpoint, err)
		return ""
	}
	return h.Credentials[u.Hostname()]
}
