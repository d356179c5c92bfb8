package proto

import (
	log "github.com/go-pkgz/lgr"

	"github.com/Jthora/intel-feed/app/cors"
	"github.com/Jthora/intel-feed/app/fetch"
)

// Registry selects the handler for an endpoint. The handler list is fixed
// and ordered: predicates overlap (an IPFS gateway URL also ends in .json),
// so distinctive shapes go first and generic JSON last.
type Registry struct {
	handlers []Handler
	def      Handler
}

// NewRegistry wires the standard handler set against the shared fetcher and
// resolver. Order: IPFS, Mastodon, SSB, RSS, API, JSON.
func NewRegistry(client *fetch.Client, resolver *cors.Resolver, creds map[string]string) *Registry {
	rss := &RSSHandler{Client: client, Resolver: resolver}
	js := &JSONHandler{Client: client, Resolver: resolver}
	return &Registry{
		handlers: []Handler{
			&IPFSHandler{Client: client, JSON: js, RSS: rss},
			&MastodonHandler{Client: client},
			&SSBHandler{},
			rss,
			&APIHandler{JSON: js, Client: client, Credentials: creds},
			js,
		},
		def: rss,
	}
}

// HandlerFor returns the first handler supporting the endpoint. Unmatched
// endpoints get the RSS handler, which fails cleanly on fetch; this is a
// warning, not an error.
func (r *Registry) HandlerFor(endpoint string) Handler {
	for _, h := range r.handlers {
		if h.IsSupported(endpoint) {
			return h
		}
	}
	log.Printf("[WARN] no handler matched %s, using %s as default", endpoint, r.def.Name())
	return r.def
}
