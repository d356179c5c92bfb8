package proto

import (
	"context"
	"strings"

	log "github.com/go-pkgz/lgr"

	"github.com/Jthora/intel-feed/app/feed"
)

// SSBHandler recognizes ssb:// references. Resolving them needs a local
// scuttlebutt daemon which is outside this process's reach, so fetch and
// parse are stubs producing a single placeholder item. Known limitation,
// not a bug.
type SSBHandler struct{}

// Name returns the protocol id.
func (h *SSBHandler) Name() string { return "ssb" }

// IsSupported matches the ssb:// scheme.
func (h *SSBHandler) IsSupported(endpoint string) bool {
	return strings.HasPrefix(strings.ToLower(endpoint), "ssb://")
}

// Fetch keeps the reference as opaque text.
func (h *SSBHandler) Fetch(_ context.Context, endpoint string) (*Payload, error) {
	log.Printf("[DEBUG] ssb resolution not available, placeholder for %s", endpoint)
	return &Payload{Text: endpoint}, nil
}

// Parse returns the placeholder item for the reference.
func (h *SSBHandler) Parse(raw *Payload) []feed.Item {
	if raw == nil || raw.Text == "" {
		return nil
	}
	return []feed.Item{{
		Title:       "SSB reference",
		Link:        raw.Text,
		Description: "scuttlebutt content requires a local ssb daemon to resolve",
		Categories:  []string{"ssb"},
	}}
}
