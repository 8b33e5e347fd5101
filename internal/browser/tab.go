package browser

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"respbg/srcset"
)

// Tab is a srcset.ElementSource backed by a live page. Resize emulates a new
// viewport and notifies resize listeners, standing in for window resize
// events.
type Tab struct {
	ctx    context.Context
	cancel func()
	log    *zap.Logger

	mu        sync.Mutex
	viewport  Viewport
	listeners map[int]func()
	nextID    int
}

func newTab(ctx context.Context, cancel func(), vp Viewport, log *zap.Logger) *Tab {
	return &Tab{ctx: ctx, cancel: cancel, viewport: vp, log: log, listeners: make(map[int]func())}
}

// Context is the tab's own context, valid until Close.
func (t *Tab) Context() context.Context { return t.ctx }

func (t *Tab) Close() { t.cancel() }

// Viewport is the emulated viewport.
func (t *Tab) Viewport() Viewport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewport
}

func setViewport(vp Viewport) chromedp.Action {
	return emulation.SetDeviceMetricsOverride(vp.Width, vp.Height, vp.PixelRatio, false)
}

// Resize emulates vp on the tab and notifies listeners.
func (t *Tab) Resize(ctx context.Context, vp Viewport) error {
	vp = vp.normalized()
	if err := chromedp.Run(t.ctx, chromedp.ActionFunc(func(c context.Context) error {
		return setViewport(vp).Do(c)
	})); err != nil {
		return fmt.Errorf("browser: resize: %w", err)
	}
	t.mu.Lock()
	t.viewport = vp
	ids := make([]int, 0, len(t.listeners))
	for id := range t.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, t.listeners[id])
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return nil
}

func (t *Tab) OnResize(fn func()) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

func (t *Tab) DevicePixelRatio(context.Context) (float64, error) {
	var ratio float64
	if err := chromedp.Run(t.ctx, chromedp.Evaluate(`window.devicePixelRatio`, &ratio)); err != nil {
		return 0, err
	}
	return ratio, nil
}

func (t *Tab) Elements(_ context.Context, attr string) ([]srcset.Element, error) {
	var nodes []*cdp.Node
	err := chromedp.Run(t.ctx, chromedp.Nodes("["+attr+"]", &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return nil, err
	}
	out := make([]srcset.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{tab: t, node: n, attr: attr})
	}
	return out, nil
}

// OuterHTML serializes the current document.
func (t *Tab) OuterHTML(context.Context) (string, error) {
	var markup string
	if err := chromedp.Run(t.ctx, chromedp.OuterHTML("html", &markup, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return markup, nil
}

type element struct {
	tab  *Tab
	node *cdp.Node
	attr string
}

func (e *element) Declaration(context.Context) (string, bool, error) {
	v, ok := attributeValue(e.node.Attributes, e.attr)
	return v, ok, nil
}

// MeasuredWidth is the border box width. Nodes without a box (display:none)
// report zero, as offsetWidth does.
func (e *element) MeasuredWidth(context.Context) (float64, error) {
	var width float64
	err := chromedp.Run(e.tab.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		model, err := dom.GetBoxModel().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			e.tab.log.Debug("No box model, treating as zero width", zap.String("element", e.String()), zap.Error(err))
			return nil
		}
		width = float64(model.Width)
		return nil
	}))
	return width, err
}

func (e *element) SetBackgroundSource(_ context.Context, src string) error {
	return chromedp.Run(e.tab.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		attrs, err := dom.GetAttributes(e.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		style, _ := attributeValue(attrs, "style")
		return dom.SetAttributeValue(e.node.NodeID, "style", srcset.SetBackgroundImage(style, src)).Do(ctx)
	}))
}

func (e *element) String() string {
	return describeNode(e.node)
}

// attributeValue reads name from a flattened [name, value, ...] list as
// returned by the DevTools protocol.
func attributeValue(attrs []string, name string) (string, bool) {
	for i := 0; i+1 < len(attrs); i += 2 {
		if strings.EqualFold(attrs[i], name) {
			return attrs[i+1], true
		}
	}
	return "", false
}

func describeNode(n *cdp.Node) string {
	if n == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(n.LocalName))
	if b.Len() == 0 {
		b.WriteString(strings.ToLower(n.NodeName))
	}
	if id, ok := attributeValue(n.Attributes, "id"); ok && id != "" {
		b.WriteString("#" + id)
	}
	if cls, ok := attributeValue(n.Attributes, "class"); ok {
		for _, c := range strings.Fields(cls) {
			b.WriteString("." + c)
		}
	}
	return b.String()
}
