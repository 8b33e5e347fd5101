// Package browser hosts background selection inside a headless Chrome tab
// driven over the DevTools protocol.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Options controls how pages are loaded into a tab.
type Options struct {
	Timeout       time.Duration
	WaitAfterLoad time.Duration
	// WaitSelector, when set, must become visible before the tab is ready.
	WaitSelector string
}

// Browser owns a Chrome process; each Open starts a new tab in it.
type Browser struct {
	allocator context.Context
	cancel    context.CancelFunc
	opts      Options
	log       *zap.Logger
}

func New(opts Options, log *zap.Logger) *Browser {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 25 * time.Second
	}
	flags := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-extensions", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), flags...)
	return &Browser{allocator: allocCtx, cancel: cancel, opts: opts, log: log}
}

func (b *Browser) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}

// Viewport is emulated on the tab before the page loads.
type Viewport struct {
	Width      int64
	Height     int64
	PixelRatio float64
}

func (vp Viewport) normalized() Viewport {
	if vp.Width <= 0 {
		vp.Width = 1280
	}
	if vp.Height <= 0 {
		vp.Height = 800
	}
	if vp.PixelRatio <= 0 {
		vp.PixelRatio = 1
	}
	return vp
}

// OpenURL navigates a new tab to target.
func (b *Browser) OpenURL(ctx context.Context, target string, vp Viewport) (*Tab, error) {
	if strings.TrimSpace(target) == "" {
		return nil, fmt.Errorf("browser: empty target url")
	}
	return b.open(ctx, vp, chromedp.Navigate(target))
}

// OpenHTML loads markup into a new blank tab.
func (b *Browser) OpenHTML(ctx context.Context, markup string, vp Viewport) (*Tab, error) {
	return b.open(ctx, vp,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, markup).Do(ctx)
		}),
	)
}

func (b *Browser) open(ctx context.Context, vp Viewport, load ...chromedp.Action) (*Tab, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.allocator)
	// Bind the tab to the caller's lifetime.
	stopWatch := context.AfterFunc(ctx, cancelTab)

	vp = vp.normalized()
	actions := []chromedp.Action{setViewport(vp)}
	actions = append(actions, load...)
	actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	if sel := strings.TrimSpace(b.opts.WaitSelector); sel != "" {
		actions = append(actions, chromedp.WaitVisible(sel, chromedp.ByQuery))
	}
	if b.opts.WaitAfterLoad > 0 {
		actions = append(actions, chromedp.Sleep(b.opts.WaitAfterLoad))
	}

	// The first Run starts the tab and ties it to the context it is given,
	// so it must not carry the load timeout.
	if err := chromedp.Run(tabCtx); err != nil {
		stopWatch()
		cancelTab()
		return nil, fmt.Errorf("browser: start tab: %w", err)
	}
	loadCtx, cancelLoad := context.WithTimeout(tabCtx, b.opts.Timeout)
	defer cancelLoad()
	if err := chromedp.Run(loadCtx, actions...); err != nil {
		stopWatch()
		cancelTab()
		return nil, fmt.Errorf("browser: load page: %w", err)
	}
	b.log.Debug("Tab ready", zap.Int64("width", vp.Width), zap.Float64("ratio", vp.PixelRatio))
	return newTab(tabCtx, func() {
		stopWatch()
		cancelTab()
	}, vp, b.log), nil
}
