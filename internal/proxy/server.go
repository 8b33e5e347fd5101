package proxy

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"respbg/internal/browser"
	"respbg/internal/htmlhost"
	"respbg/srcset"
)

const defaultIndexHTML = `<!DOCTYPE html>
<html><body>
<h1>respbg</h1>
<form action="/apply" method="get">
<h3>Pick background images for a page</h3>
URL: <input name="url" size="60"><br>
Viewport width: <input name="w" size="6"> Pixel ratio: <input name="dpr" size="4"><br>
Selector: <input name="selector" placeholder="background-image-srcset"><br>
<label><input type="checkbox" name="js" value="1"> Use headless browser</label><br>
<button type="submit">Apply</button>
</form>
<form action="/parse" method="get">
<h3>Parse a declaration</h3>
<input name="d" size="80"> w: <input name="w" size="6">
<button type="submit">Parse</button>
</form>
</body></html>`

const (
	defaultSitesDir     = "config/sites"
	defaultSessionTTL   = 30 * time.Minute
	defaultFetchTimeout = 20 * time.Second
)

// Config describes server wiring and runtime behaviour.
type Config struct {
	IndexHTML string
	SitesDir  string
	// Srcset is the base selection config; site files and query parameters
	// override it per request.
	Srcset       srcset.Config
	Viewport     htmlhost.Viewport
	SessionTTL   time.Duration
	FetchTimeout time.Duration
	// Browser enables js=1 and "js" site mode. Nil disables them.
	Browser *browser.Browser
	Client  *http.Client
	Logger  *zap.Logger
	Clock   func() time.Time
}

// DefaultConfig returns a configuration without a browser.
func DefaultConfig() Config {
	return Config{
		IndexHTML:    defaultIndexHTML,
		SitesDir:     defaultSitesDir,
		Srcset:       srcset.DefaultConfig(),
		Viewport:     htmlhost.DefaultViewport,
		SessionTTL:   defaultSessionTTL,
		FetchTimeout: defaultFetchTimeout,
		Logger:       zap.NewNop(),
		Clock:        time.Now,
	}
}

// Server exposes the HTTP handlers.
type Server struct {
	cfg       Config
	mux       *http.ServeMux
	handler   http.Handler
	log       *zap.Logger
	sessions  *sessionStore
	viewports *viewportPrefStore
	sites     *siteConfigStore
	client    *http.Client
}

// New wires a new server with the provided configuration.
func New(cfg Config) *Server {
	if cfg.IndexHTML == "" {
		cfg.IndexHTML = defaultIndexHTML
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.Viewport.Width <= 0 {
		cfg.Viewport = htmlhost.DefaultViewport
	}
	cfg.Srcset = srcset.DefaultConfig().Merge(cfg.Srcset)
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	viewports := newViewportPrefStore()
	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		log:       cfg.Logger,
		viewports: viewports,
		sessions:  newSessionStore(cfg.SessionTTL, cfg.Clock, viewports.Forget),
		sites:     newSiteConfigStore(cfg.SitesDir),
		client:    client,
	}
	s.registerRoutes()
	s.handler = withLogging(s.log, s.mux)
	return s
}

// Handler exposes the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler { return s }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/apply", s.handleApply)
	s.mux.HandleFunc("/parse", s.handleParse)
	s.mux.HandleFunc("/live", s.handleLive)
	s.mux.HandleFunc("/ping", s.handlePing)
}
