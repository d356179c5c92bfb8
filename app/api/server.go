// Package api exposes the acquisition layer over HTTP: feed retrieval,
// strategy diagnostics, cache invalidation and relay service management.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/didip/tollbooth"
	"github.com/didip/tollbooth_chi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-pkgz/lcw"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"

	"github.com/Jthora/intel-feed/app/cors"
	"github.com/Jthora/intel-feed/app/feed"
	"github.com/Jthora/intel-feed/app/proc"
)

// Server provides the rest-ish api surface over the processor.
type Server struct {
	Version  string
	Proc     *proc.Processor
	Resolver *cors.Resolver

	httpServer *http.Server
	cache      lcw.LoadingCache
}

// Run starts the http server on the given port, blocking.
func (s *Server) Run(port int) {
	log.Printf("[INFO] starting server on port %d", port)
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	err := s.httpServer.ListenAndServe()
	log.Printf("[WARN] http server terminated, %s", err)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) router() http.Handler {
	var err error
	if s.cache, err = lcw.NewExpirableCache(lcw.TTL(time.Minute), lcw.MaxKeys(1000)); err != nil {
		log.Printf("[WARN] can't make loading cache, %v", err)
		s.cache = &lcw.Nop{}
	}

	router := chi.NewRouter()
	router.Use(rest.Recoverer(log.Default()))
	router.Use(rest.AppInfo("intel-feed", "jthora", s.Version), rest.Ping)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(tollbooth_chi.LimitHandler(tollbooth.NewLimiter(10, nil)))
		r.Get("/feed", s.getFeedCtrl)
		r.Get("/strategies", s.testStrategiesCtrl)
		r.Delete("/cache", s.invalidateCacheCtrl)
		r.Post("/services", s.addServiceCtrl)
		r.Delete("/services", s.removeServiceCtrl)
	})
	return router
}

// GET /api/v1/feed?url=http://... - acquire normalized items for a source
func (s *Server) getFeedCtrl(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		renderErr(w, r, http.StatusBadRequest, "url parameter required")
		return
	}

	data, err := s.cache.Get(url, func() (interface{}, error) {
		res := s.Proc.Acquire(r.Context(), feed.Source{ID: url, URL: url, Name: r.URL.Query().Get("name")})
		return res, nil
	})
	if err != nil {
		renderErr(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	res, ok := data.(proc.Result)
	if !ok {
		renderErr(w, r, http.StatusInternalServerError, "unexpected cache value")
		return
	}
	if res.Err != nil && len(res.Items) == 0 {
		render.Status(r, http.StatusBadGateway)
	}
	render.JSON(w, r, res)
}

// GET /api/v1/strategies?url=http://... - probe every cors strategy
func (s *Server) testStrategiesCtrl(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		renderErr(w, r, http.StatusBadRequest, "url parameter required")
		return
	}
	render.JSON(w, r, s.Resolver.TestAll(r.Context(), url))
}

// DELETE /api/v1/cache?url=http://... - drop one entry, or all without url
func (s *Server) invalidateCacheCtrl(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	var err error
	if url == "" {
		err = s.Proc.Cache.Clear()
	} else {
		err = s.Proc.Invalidate(url)
	}
	if err != nil {
		renderErr(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	render.JSON(w, r, rest.JSON{"status": "ok"})
}

type serviceRequest struct {
	Strategy string `json:"strategy"`
	URL      string `json:"url"`
}

// POST /api/v1/services {"strategy": "RSS2JSON", "url": "https://..."}
func (s *Server) addServiceCtrl(w http.ResponseWriter, r *http.Request) {
	req := serviceRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErr(w, r, http.StatusBadRequest, "can't parse request")
		return
	}
	if err := s.Resolver.RegisterService(cors.Strategy(req.Strategy), req.URL); err != nil {
		renderErr(w, r, http.StatusBadRequest, err.Error())
		return
	}
	render.JSON(w, r, rest.JSON{"status": "ok"})
}

// DELETE /api/v1/services {"strategy": "RSS2JSON", "url": "https://..."}
func (s *Server) removeServiceCtrl(w http.ResponseWriter, r *http.Request) {
	req := serviceRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErr(w, r, http.StatusBadRequest, "can't parse request")
		return
	}
	if !s.Resolver.RemoveService(cors.Strategy(req.Strategy), req.URL) {
		renderErr(w, r, http.StatusNotFound, "service not registered")
		return
	}
	render.JSON(w, r, rest.JSON{"status": "ok"})
}

func renderErr(w http.ResponseWriter, r *http.Request, code int, msg string) {
	log.Printf("[WARN] %s %s: %s", r.Method, r.URL.Path, msg)
	render.Status(r, code)
	render.JSON(w, r, rest.JSON{"error": msg})
}
