// Package htmlhost runs background selection over a parsed HTML document for
// a declared viewport.
package htmlhost

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"respbg/srcset"
)

// Viewport is the display the document is laid out for.
type Viewport struct {
	Width      float64
	PixelRatio float64
}

// DefaultViewport matches a common desktop window.
var DefaultViewport = Viewport{Width: 1280, PixelRatio: 1}

// Document is a srcset.ElementSource over an HTML tree. It also delivers
// resize notifications when its viewport changes.
type Document struct {
	root *html.Node

	mu        sync.RWMutex
	viewport  Viewport
	listeners map[int]func()
	nextID    int
}

// Parse reads an HTML document.
func Parse(r io.Reader, vp Viewport) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return New(root, vp), nil
}

func New(root *html.Node, vp Viewport) *Document {
	if vp.Width <= 0 {
		vp.Width = DefaultViewport.Width
	}
	return &Document{root: root, viewport: vp, listeners: make(map[int]func())}
}

func (d *Document) Root() *html.Node { return d.root }

func (d *Document) Viewport() Viewport {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.viewport
}

// Resize changes the viewport and notifies resize listeners.
func (d *Document) Resize(vp Viewport) {
	d.mu.Lock()
	if vp.Width <= 0 {
		vp.Width = d.viewport.Width
	}
	d.viewport = vp
	ids := make([]int, 0, len(d.listeners))
	for id := range d.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, d.listeners[id])
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (d *Document) OnResize(fn func()) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
	}
}

// DevicePixelRatio returns the declared ratio, zero when unknown.
func (d *Document) DevicePixelRatio(context.Context) (float64, error) {
	return d.Viewport().PixelRatio, nil
}

// Elements returns every element carrying attr, in document order.
func (d *Document) Elements(_ context.Context, attr string) ([]srcset.Element, error) {
	sel, err := cascadia.Compile("[" + attr + "]")
	if err != nil {
		return nil, fmt.Errorf("compile selector for %q: %w", attr, err)
	}
	nodes := sel.MatchAll(d.root)
	out := make([]srcset.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{doc: d, node: n, attr: attr})
	}
	return out, nil
}

// Render writes the (possibly modified) document.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

type element struct {
	doc  *Document
	node *html.Node
	attr string
}

func (e *element) Declaration(context.Context) (string, bool, error) {
	v, ok := attr(e.node, e.attr)
	return v, ok, nil
}

func (e *element) MeasuredWidth(context.Context) (float64, error) {
	w, _ := e.doc.widthOf(e.node)
	return w, nil
}

func (e *element) SetBackgroundSource(_ context.Context, src string) error {
	style, _ := attr(e.node, "style")
	setAttr(e.node, "style", srcset.SetBackgroundImage(style, src))
	return nil
}

func (e *element) String() string {
	return Describe(e.node)
}

// Describe renders n as tag#id.class for logs.
func Describe(n *html.Node) string {
	if n == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(n.Data)
	if id, ok := attr(n, "id"); ok && id != "" {
		b.WriteString("#" + id)
	}
	if cls, ok := attr(n, "class"); ok {
		for _, c := range strings.Fields(cls) {
			b.WriteString("." + c)
		}
	}
	return b.String()
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: val})
}
