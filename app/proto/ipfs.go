package proto

import (
	"context"
	"encoding/json"
	"strings"

	log "github.com/go-pkgz/lgr"

	"github.com/Jthora/intel-feed/app/feed"
	"github.com/Jthora/intel-feed/app/fetch"
)

// DefaultIPFSGateway resolves ipfs:// addresses over plain HTTP.
const DefaultIPFSGateway = "https://ipfs.io/ipfs/"

// IPFSHandler serves ipfs-addressed content. The payload kind is unknown
// until fetched, so parsing delegates by sniff: json to the json handler,
// xml-ish text to the rss handler, anything else becomes one synthetic
// item tagged ipfs.
type IPFSHandler struct {
	Client  *fetch.Client
	JSON    *JSONHandler
	RSS     *RSSHandler
	Gateway string // DefaultIPFSGateway if empty
}

// Name returns the protocol id.
func (h *IPFSHandler) Name() string { return "ipfs" }

// IsSupported matches the ipfs:// scheme or a gateway path.
func (h *IPFSHandler) IsSupported(endpoint string) bool {
	e := strings.ToLower(endpoint)
	return strings.HasPrefix(e, "ipfs://") || strings.Contains(e, "ipfs.io") || strings.Contains(e, "/ipfs/")
}

// Fetch rewrites ipfs://CID to a gateway URL and retrieves the body,
// keeping it as json when it parses and as opaque text otherwise.
func (h *IPFSHandler) Fetch(ctx context.Context, endpoint string) (*Payload, error) {
	gatewayURL := h.rewrite(endpoint)
	res, err := h.Client.Do(ctx, fetch.Request{URL: gatewayURL})
	if err != nil {
		return nil, err
	}
	if json.Valid(res.Body) {
		return &Payload{JSON: res.Body}, nil
	}
	return &Payload{Text: string(res.Body)}, nil
}

// Parse delegates by payload kind.
func (h *IPFSHandler) Parse(raw *Payload) []feed.Item {
	if raw == nil {
		return nil
	}
	if raw.Items != nil {
		return raw.Items
	}
	if raw.JSON != nil {
		return h.JSON.Parse(raw)
	}
	if fetch.LooksLikeXML([]byte(raw.Text)) {
		return h.RSS.Parse(raw)
	}
	if strings.TrimSpace(raw.Text) == "" {
		log.Printf("[WARN] empty ipfs payload")
		return nil
	}
	// opaque content, wrap as a single synthetic item
	return []feed.Item{{
		Title:       "IPFS content",
		Description: snippet(raw.Text),
		Content:     raw.Text,
		Categories:  []string{"ipfs"},
	}}
}

func (h *IPFSHandler) rewrite(endpoint string) string {
	gw := h.Gateway
	if gw == "" {
		gw = DefaultIPFSGateway
	}
	if cid, ok := strings.CutPrefix(endpoint, "ipfs://"); ok {
		return gw + cid
	}
	return endpoint
}
