package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"respbg/internal/browser"
	"respbg/internal/htmlhost"
	"respbg/srcset"
)

var errBrowserDisabled = errors.New("browser host is disabled")

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(s.cfg.IndexHTML)))
	io.WriteString(w, s.cfg.IndexHTML)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "pong\n")
}

// applyRequest is everything one /apply pass needs.
type applyRequest struct {
	target    string
	markup    []byte
	site      *SiteConfig
	overrides srcset.Config
	viewport  htmlhost.Viewport
	useJS     bool
	loaded    *srcset.LoadedRegistry
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess := s.sessions.Get(w, r)
	q := r.URL.Query()
	req := applyRequest{loaded: sess.loaded}

	if raw := q.Get("url"); raw != "" {
		target, err := normalizeTargetURL(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.target = target
		req.site = s.sites.Find(target)
	}
	switch {
	case r.Method == http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes))
		r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.markup = body
	case req.target != "":
		body, err := s.fetchHTML(r.Context(), req.target, r.Header, req.site)
		if err != nil {
			s.log.Warn("Fetch failed", zap.String("url", req.target), zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		req.markup = body
	default:
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}

	host := ""
	if u, err := url.Parse(req.target); err == nil {
		host = u.Hostname()
	}
	vp, err := s.viewportFor(viewportPrefKey(sess.id, host), q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.viewport = vp
	req.overrides = req.site.Srcset()
	if sel := strings.TrimSpace(q.Get("selector")); sel != "" {
		req.overrides.Selector = sel
	}
	req.useJS = queryFlag(q.Get("js")) || req.site.WantsBrowser()
	if req.useJS && s.cfg.Browser == nil {
		if queryFlag(q.Get("js")) {
			http.Error(w, errBrowserDisabled.Error(), http.StatusServiceUnavailable)
			return
		}
		s.log.Warn("Site asks for browser mode but the browser is disabled, using static host", zap.String("host", host))
		req.useJS = false
	}

	var (
		out []byte
		rep *srcset.Report
	)
	if req.useJS {
		out, rep, err = s.applyBrowser(r.Context(), req)
	} else {
		out, rep, err = s.applyStatic(r.Context(), req)
	}
	if err != nil {
		s.log.Warn("Apply failed", zap.String("url", req.target), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if rep.Err != nil {
		s.log.Debug("Pass finished with skipped elements", zap.String("url", req.target), zap.Error(rep.Err))
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.Header().Set("X-Respbg-Applied", strconv.Itoa(rep.Applied))
	w.Header().Set("X-Respbg-Skipped", strconv.Itoa(rep.Skipped))
	_, _ = w.Write(out)
}

// viewportFor resolves the viewport from the query, then the remembered
// session preference, then the server default, and remembers the result.
func (s *Server) viewportFor(key string, q url.Values) (htmlhost.Viewport, error) {
	vp := s.cfg.Viewport
	s.viewports.Apply(key, &vp, q)
	width, ok, err := parsePositive("w", q.Get("w"))
	if err != nil {
		return vp, err
	}
	if ok {
		vp.Width = width
	}
	ratio, ok, err := parsePositive("dpr", q.Get("dpr"))
	if err != nil {
		return vp, err
	}
	if ok {
		vp.PixelRatio = ratio
	}
	s.viewports.Remember(key, vp)
	return vp, nil
}

func (s *Server) applyStatic(ctx context.Context, req applyRequest) ([]byte, *srcset.Report, error) {
	doc, err := htmlhost.Parse(bytes.NewReader(req.markup), req.viewport)
	if err != nil {
		return nil, nil, err
	}
	if req.target != "" {
		injectBase(doc.Root(), req.target)
	}
	a := srcset.NewApplier(doc, req.loaded, s.cfg.Srcset, s.log)
	rep, err := a.Run(ctx, &req.overrides)
	if err != nil {
		return nil, nil, err
	}
	var buf bytes.Buffer
	if err := doc.Render(&buf); err != nil {
		return nil, nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), rep, nil
}

func (s *Server) applyBrowser(ctx context.Context, req applyRequest) ([]byte, *srcset.Report, error) {
	vp := browser.Viewport{Width: int64(req.viewport.Width), PixelRatio: req.viewport.PixelRatio}
	var (
		tab *browser.Tab
		err error
	)
	if r := s.cfg.Browser; req.target != "" && len(req.markup) == 0 {
		tab, err = r.OpenURL(ctx, req.target, vp)
	} else {
		tab, err = r.OpenHTML(ctx, string(req.markup), vp)
	}
	if err != nil {
		return nil, nil, err
	}
	defer tab.Close()
	a := srcset.NewApplier(tab, req.loaded, s.cfg.Srcset, s.log)
	rep, err := a.Run(ctx, &req.overrides)
	if err != nil {
		return nil, nil, err
	}
	markup, err := tab.OuterHTML(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("serialize page: %w", err)
	}
	return []byte("<!DOCTYPE html>\n" + markup), rep, nil
}

type candidateJSON struct {
	Source string `json:"source"`
	Width  int    `json:"width"`
	Forced bool   `json:"forced,omitempty"`
}

type parseResponse struct {
	Declaration string          `json:"declaration"`
	Candidates  []candidateJSON `json:"candidates"`
	Required    float64         `json:"required,omitempty"`
	Pick        *candidateJSON  `json:"pick,omitempty"`
}

type parseError struct {
	Error string `json:"error"`
	Entry string `json:"entry,omitempty"`
	Index int    `json:"index"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	decl := q.Get("d")
	cs, err := srcset.Parse(decl)
	if err != nil {
		resp := parseError{Error: err.Error(), Index: -1}
		var mce *srcset.MalformedCandidateError
		if errors.As(err, &mce) {
			resp.Entry = strings.TrimSpace(mce.Entry)
			resp.Index = mce.Index
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	resp := parseResponse{Declaration: cs.String(), Candidates: make([]candidateJSON, 0, len(cs))}
	for _, c := range cs {
		resp.Candidates = append(resp.Candidates, candidateJSON{Source: c.Source, Width: c.Width, Forced: c.Forced})
	}
	width, ok, err := parsePositive("w", q.Get("w"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if ok {
		ratio, _, err := parsePositive("dpr", q.Get("dpr"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp.Required = srcset.RequiredWidth(width, ratio)
		if c, found := srcset.SelectCandidate(cs, resp.Required); found {
			resp.Pick = &candidateJSON{Source: c.Source, Width: c.Width, Forced: c.Forced}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
