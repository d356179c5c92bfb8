// Package cors picks and probes cross-origin bypass strategies. Feed
// endpoints rarely serve permissive CORS headers to browser dashboards, so
// acquisition goes through relay services, proxies or a local helper; the
// resolver keeps the active strategy per protocol and the ordered candidate
// services for each strategy.
package cors

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/pkg/errors"
)

// Strategy is one cross-origin bypass technique.
type Strategy string

// Supported strategies, in default preference order.
const (
	RSS2JSON      Strategy = "RSS2JSON"       // third-party rss-to-json relay
	JSONP         Strategy = "JSONP"          // callback-padded GET
	ServiceWorker Strategy = "SERVICE_WORKER" // local relay process
	Direct        Strategy = "DIRECT"         // plain fetch, no bypass
	Extension     Strategy = "EXTENSION"      // browser-extension relay
)

// Strategies lists every known strategy in default preference order.
func Strategies() []Strategy {
	return []Strategy{RSS2JSON, JSONP, ServiceWorker, Direct, Extension}
}

// Attempt is the outcome of one strategy probe. Session-only, never
// persisted.
type Attempt struct {
	Strategy Strategy      `json:"strategy"`
	Service  string        `json:"service,omitempty"`
	OK       bool          `json:"ok"`
	Elapsed  time.Duration `json:"elapsed"`
	Err      string        `json:"error,omitempty"`
}

// Prober performs one bypass round trip, used by strategy tests.
type Prober interface {
	Probe(ctx context.Context, target string) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, target string) error

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, target string) error { return f(ctx, target) }

// Resolver holds the active strategy configuration and the mutable service
// registry. Safe for concurrent use; strategy switches are atomic.
type Resolver struct {
	mu        sync.RWMutex
	def       Strategy
	overrides map[string]Strategy // protocol -> strategy
	services  map[Strategy][]string
	prober    Prober
}

// NewResolver makes a resolver with the given default strategy and seed
// services. Unknown default falls back to RSS2JSON.
func NewResolver(def Strategy, services map[Strategy][]string, prober Prober) *Resolver {
	if def == "" {
		def = RSS2JSON
	}
	svc := map[Strategy][]string{}
	for s, urls := range services {
		svc[s] = append([]string{}, urls...)
	}
	return &Resolver{def: def, overrides: map[string]Strategy{}, services: svc, prober: prober}
}

// StrategyFor returns the active strategy for a protocol, or the default
// when no override is set.
func (r *Resolver) StrategyFor(protocol string) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.overrides[protocol]; ok {
		return s
	}
	return r.def
}

// SetDefault switches the default strategy.
func (r *Resolver) SetDefault(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	log.Printf("[INFO] default cors strategy %s -> %s", r.def, s)
	r.def = s
}

// SetOverride pins a strategy for one protocol.
func (r *Resolver) SetOverride(protocol string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[protocol] = s
}

// CandidatesFor returns the ordered service list for a strategy. Callers
// try candidates in order, moving on after each failure. DIRECT and
// EXTENSION have no services by nature.
func (r *Resolver) CandidatesFor(s Strategy) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.services[s]...)
}

// RegisterService appends a relay/proxy URL to a strategy's candidate list.
func (r *Resolver) RegisterService(s Strategy, serviceURL string) error {
	if _, err := url.ParseRequestURI(serviceURL); err != nil {
		return errors.Wrapf(err, "invalid service url %q", serviceURL)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.services[s] {
		if u == serviceURL {
			return nil // already registered
		}
	}
	r.services[s] = append(r.services[s], serviceURL)
	log.Printf("[INFO] registered %s service %s", s, serviceURL)
	return nil
}

// RemoveService drops a relay/proxy URL from a strategy's candidate list.
func (r *Resolver) RemoveService(s Strategy, serviceURL string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, u := range r.services[s] {
		if u == serviceURL {
			r.services[s] = append(r.services[s][:i], r.services[s][i+1:]...)
			log.Printf("[INFO] removed %s service %s", s, serviceURL)
			return true
		}
	}
	return false
}

// Relay builds the URL to fetch target through the given service for a
// strategy. Relay services take the target as a url query param, proxies
// take it appended to the base.
func Relay(s Strategy, serviceURL, target string) string {
	switch s {
	case RSS2JSON:
		return fmt.Sprintf("%s?rss_url=%s", serviceURL, url.QueryEscape(target))
	case JSONP:
		return fmt.Sprintf("%s?url=%s&callback=cb", serviceURL, url.QueryEscape(target))
	default:
		return serviceURL + target
	}
}

// TestStrategy performs one timed real probe of the strategy against the
// target endpoint. It never mutates resolver state, so operators can check
// strategy health without touching the active configuration.
func (r *Resolver) TestStrategy(ctx context.Context, target string, s Strategy) Attempt {
	start := time.Now()
	attempt := Attempt{Strategy: s}

	if s == Extension {
		// extension relays exist only inside a browser host
		attempt.Elapsed = time.Since(start)
		attempt.Err = "extension strategy requires a browser host"
		return attempt
	}

	if r.prober == nil {
		attempt.Elapsed = time.Since(start)
		attempt.Err = "no prober configured"
		return attempt
	}

	probeURL := target
	candidates := r.CandidatesFor(s)
	if len(candidates) > 0 {
		attempt.Service = candidates[0]
		probeURL = Relay(s, candidates[0], target)
	}

	if err := r.prober.Probe(ctx, probeURL); err != nil {
		attempt.Elapsed = time.Since(start)
		attempt.Err = err.Error()
		return attempt
	}
	attempt.Elapsed = time.Since(start)
	attempt.OK = true
	return attempt
}

// TestAll probes every known strategy against the target and returns the
// per-strategy report in preference order.
func (r *Resolver) TestAll(ctx context.Context, target string) []Attempt {
	res := make([]Attempt, 0, len(Strategies()))
	for _, s := range Strategies() {
		a := r.TestStrategy(ctx, target, s)
		log.Printf("[DEBUG] strategy %s for %s: ok=%v in %v", s, target, a.OK, a.Elapsed)
		res = append(res, a)
	}
	return res
}

// ExhaustedError reports that every candidate service of a strategy failed
// for one endpoint. Carries the per-service attempt chain.
type ExhaustedError struct {
	Strategy Strategy
	Target   string
	Chain    []Attempt
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("strategy %s exhausted %d candidates for %s", e.Strategy, len(e.Chain), e.Target)
}
