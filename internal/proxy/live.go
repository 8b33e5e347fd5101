package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"respbg/internal/htmlhost"
	"respbg/srcset"
)

const liveWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type liveViewport struct {
	Width      float64 `json:"width"`
	PixelRatio float64 `json:"pixel_ratio"`
}

type liveElementState struct {
	ID          string  `json:"id"`
	Declaration string  `json:"declaration"`
	Width       float64 `json:"width"`
}

// liveMessage is sent by the page: "layout" registers the managed elements
// and runs a pass, "resize" updates widths and schedules a debounced pass.
type liveMessage struct {
	Type     string             `json:"type"`
	URL      string             `json:"url,omitempty"`
	Selector string             `json:"selector,omitempty"`
	Interval int                `json:"interval,omitempty"`
	Viewport *liveViewport      `json:"viewport,omitempty"`
	Elements []liveElementState `json:"elements,omitempty"`
	Widths   map[string]float64 `json:"widths,omitempty"`
}

// liveEvent is sent to the page.
type liveEvent struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Source  string `json:"source,omitempty"`
	Error   string `json:"error,omitempty"`
	Total   int    `json:"elements,omitempty"`
	Applied int    `json:"applied,omitempty"`
	Skipped int    `json:"skipped,omitempty"`
}

// liveHost is a srcset.ElementSource whose elements live in a remote page.
// Widths are reported by the page and applied images are sent back to it.
// Resize messages reach its resize listeners.
type liveHost struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	viewport  htmlhost.Viewport
	elements  []*liveElement
	listeners map[int]func()
	nextID    int
}

func newLiveHost(conn *websocket.Conn, vp htmlhost.Viewport) *liveHost {
	return &liveHost{conn: conn, viewport: vp, listeners: make(map[int]func())}
}

func (h *liveHost) OnResize(fn func()) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

func (h *liveHost) send(ev liveEvent) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	_ = h.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	return h.conn.WriteJSON(ev)
}

func (h *liveHost) Elements(context.Context, string) ([]srcset.Element, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]srcset.Element, len(h.elements))
	for i, el := range h.elements {
		out[i] = el
	}
	return out, nil
}

func (h *liveHost) DevicePixelRatio(context.Context) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.viewport.PixelRatio, nil
}

func (h *liveHost) setViewport(vp *liveViewport) {
	if vp == nil {
		return
	}
	if vp.Width > 0 {
		h.viewport.Width = vp.Width
	}
	if vp.PixelRatio > 0 {
		h.viewport.PixelRatio = vp.PixelRatio
	}
}

func (h *liveHost) layout(msg liveMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setViewport(msg.Viewport)
	h.elements = h.elements[:0]
	for _, st := range msg.Elements {
		if st.ID == "" {
			continue
		}
		h.elements = append(h.elements, &liveElement{host: h, id: st.ID, decl: st.Declaration, width: st.Width})
	}
}

func (h *liveHost) resize(msg liveMessage) {
	h.mu.Lock()
	h.setViewport(msg.Viewport)
	for _, el := range h.elements {
		if w, ok := msg.Widths[el.id]; ok {
			el.width = w
		}
	}
	fns := make([]func(), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type liveElement struct {
	host  *liveHost
	id    string
	decl  string
	width float64
}

func (e *liveElement) Declaration(context.Context) (string, bool, error) {
	return e.decl, e.decl != "", nil
}

func (e *liveElement) MeasuredWidth(context.Context) (float64, error) {
	e.host.mu.Lock()
	defer e.host.mu.Unlock()
	return e.width, nil
}

func (e *liveElement) SetBackgroundSource(_ context.Context, src string) error {
	return e.host.send(liveEvent{Type: "apply", ID: e.id, Source: src})
}

func (e *liveElement) String() string { return "#" + e.id }

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	sess, cookie := s.sessions.open(r)
	hdr := http.Header{}
	if cookie != nil {
		hdr.Add("Set-Cookie", cookie.String())
	}
	conn, err := upgrader.Upgrade(w, r, hdr)
	if err != nil {
		s.log.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	host := newLiveHost(conn, s.cfg.Viewport)
	a := srcset.NewApplier(host, sess.loaded, s.cfg.Srcset, s.log)
	a.OnPass(func(rep *srcset.Report) { s.reportLivePass(host, rep) })
	stop := func() {}
	defer func() { stop() }()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg liveMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = host.send(liveEvent{Type: "error", Error: fmt.Sprintf("bad message: %v", err)})
			continue
		}
		switch msg.Type {
		case "layout":
			stop()
			host.layout(msg)
			overrides := s.liveOverrides(msg)
			if _, err := a.Run(ctx, &overrides); err != nil {
				_ = host.send(liveEvent{Type: "error", Error: err.Error()})
			}
			// Listen with the interval the overrides settled on.
			stop = a.AddResizeListener(ctx, host)
		case "resize":
			host.resize(msg)
		default:
			_ = host.send(liveEvent{Type: "error", Error: fmt.Sprintf("unknown message type %q", msg.Type)})
		}
	}
}

func (s *Server) liveOverrides(msg liveMessage) srcset.Config {
	var site *SiteConfig
	if msg.URL != "" {
		if target, err := normalizeTargetURL(msg.URL); err == nil {
			site = s.sites.Find(target)
		}
	}
	o := site.Srcset()
	if msg.Selector != "" {
		o.Selector = msg.Selector
	}
	if msg.Interval > 0 {
		o.Interval = time.Duration(msg.Interval) * time.Millisecond
	}
	return o
}

// reportLivePass tells the page which elements were skipped and how the pass
// went. Applied images were already sent while the pass ran.
func (s *Server) reportLivePass(host *liveHost, rep *srcset.Report) {
	for _, res := range rep.Results {
		if res.Err == nil {
			continue
		}
		id := ""
		if el, ok := res.Element.(*liveElement); ok {
			id = el.id
		}
		_ = host.send(liveEvent{Type: "skip", ID: id, Error: res.Err.Error()})
	}
	if err := host.send(liveEvent{Type: "pass", Total: rep.Elements, Applied: rep.Applied, Skipped: rep.Skipped}); err != nil {
		s.log.Debug("Live client gone", zap.Error(err))
	}
}
