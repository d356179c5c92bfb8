// Package proto implements the per-protocol feed handlers and the ordered
// registry selecting one for an endpoint. Handlers are stateless strategy
// objects: recognize an endpoint, fetch its raw payload, parse the payload
// into canonical items. Parse never fails on malformed input, it returns
// nil and logs.
package proto

import (
	"context"

	"github.com/Jthora/intel-feed/app/feed"
)

// Payload is raw fetch output before parsing. Exactly one field is set:
// Items when an upstream relay already produced canonical items, JSON for
// a JSON body, Text for XML or opaque text.
type Payload struct {
	Items []feed.Item
	JSON  []byte
	Text  string
}

// Handler is one protocol family adapter.
type Handler interface {
	Name() string
	IsSupported(endpoint string) bool
	Fetch(ctx context.Context, endpoint string) (*Payload, error)
	Parse(raw *Payload) []feed.Item
}

const snippetLen = 120

// snippet trims a payload for diagnostic logs.
func snippet(s string) string {
	if len(s) <= snippetLen {
		return s
	}
	return s[:snippetLen] + "..."
}
