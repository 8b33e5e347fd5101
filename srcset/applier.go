package srcset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	DefaultSelector = "background-image-srcset"
	DefaultInterval = 250 * time.Millisecond
)

// Config holds the options recognised by Applier.Run. Zero fields are unset.
type Config struct {
	// Selector is the attribute name suffix, managed elements carry
	// data-<Selector>.
	Selector string
	// Interval is the resize debounce wait.
	Interval time.Duration
}

func DefaultConfig() Config {
	return Config{Selector: DefaultSelector, Interval: DefaultInterval}
}

// Merge returns c with every set field of o applied on top.
func (c Config) Merge(o Config) Config {
	if o.Selector != "" {
		c.Selector = o.Selector
	}
	if o.Interval > 0 {
		c.Interval = o.Interval
	}
	return c
}

// Attribute is the declaration attribute managed elements carry.
func (c Config) Attribute() string {
	return "data-" + c.Selector
}

// StyleSink receives the chosen background image.
type StyleSink interface {
	SetBackgroundSource(ctx context.Context, src string) error
}

// Element is a managed UI node.
type Element interface {
	StyleSink
	// Declaration returns the raw candidate list; ok is false when the
	// attribute is absent.
	Declaration(ctx context.Context) (raw string, ok bool, err error)
	// MeasuredWidth is the rendered width in CSS pixels.
	MeasuredWidth(ctx context.Context) (float64, error)
}

// ElementSource enumerates the elements that currently carry attr.
type ElementSource interface {
	Elements(ctx context.Context, attr string) ([]Element, error)
}

// PixelRatioSource is implemented by sources that know the display density.
type PixelRatioSource interface {
	DevicePixelRatio(ctx context.Context) (float64, error)
}

// ResizeNotifier delivers viewport resize signals. The returned func
// unsubscribes.
type ResizeNotifier interface {
	OnResize(fn func()) (remove func())
}

// ElementResult describes what happened to one element during a pass.
type ElementResult struct {
	Element       Element
	RequiredWidth float64
	Choice        Choice
	Applied       bool
	Err           error
}

// Report summarises one pass.
type Report struct {
	Elements int
	Applied  int
	Skipped  int
	Results  []ElementResult
	// Err combines the per-element failures of the pass.
	Err error
}

// Applier picks and applies background images for every managed element of
// an ElementSource.
type Applier struct {
	src    ElementSource
	loaded *LoadedRegistry
	log    *zap.Logger

	mu     sync.Mutex
	cfg    Config
	onPass func(*Report)
}

func NewApplier(src ElementSource, loaded *LoadedRegistry, cfg Config, log *zap.Logger) *Applier {
	if loaded == nil {
		loaded = NewLoadedRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Applier{
		src:    src,
		loaded: loaded,
		log:    log,
		cfg:    DefaultConfig().Merge(cfg),
	}
}

// Loaded exposes the registry the applier records into.
func (a *Applier) Loaded() *LoadedRegistry { return a.loaded }

// Config returns the configuration retained from previous runs.
func (a *Applier) Config() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// OnPass registers fn to receive the report of every completed pass,
// including passes started by a resize listener. fn must not call Run.
func (a *Applier) OnPass(fn func(*Report)) {
	a.mu.Lock()
	a.onPass = fn
	a.mu.Unlock()
}

// Run performs one selection pass. Overrides are merged into the retained
// configuration and stay in effect for later runs. Element level failures do
// not stop the pass, they are collected in Report.Err.
func (a *Applier) Run(ctx context.Context, overrides *Config) (*Report, error) {
	rep, hook, err := a.run(ctx, overrides)
	if err != nil {
		return nil, err
	}
	if hook != nil {
		hook(rep)
	}
	return rep, nil
}

func (a *Applier) run(ctx context.Context, overrides *Config) (*Report, func(*Report), error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if overrides != nil {
		a.cfg = a.cfg.Merge(*overrides)
	}
	attr := a.cfg.Attribute()
	elems, err := a.src.Elements(ctx, attr)
	if err != nil {
		return nil, nil, fmt.Errorf("enumerate [%s]: %w", attr, err)
	}
	ratio := a.pixelRatio(ctx)

	rep := &Report{Elements: len(elems), Results: make([]ElementResult, 0, len(elems))}
	for _, el := range elems {
		if err := ctx.Err(); err != nil {
			rep.Err = multierr.Append(rep.Err, err)
			break
		}
		res := a.apply(ctx, el, ratio)
		if res.Applied {
			rep.Applied++
		} else {
			rep.Skipped++
		}
		if res.Err != nil {
			rep.Err = multierr.Append(rep.Err, res.Err)
		}
		rep.Results = append(rep.Results, res)
	}
	a.log.Debug("Background pass done",
		zap.String("attr", attr),
		zap.Float64("ratio", ratio),
		zap.Int("elements", rep.Elements),
		zap.Int("applied", rep.Applied),
		zap.Int("skipped", rep.Skipped))
	return rep, a.onPass, nil
}

func (a *Applier) pixelRatio(ctx context.Context) float64 {
	prs, ok := a.src.(PixelRatioSource)
	if !ok {
		return 1
	}
	ratio, err := prs.DevicePixelRatio(ctx)
	if err != nil || ratio <= 0 {
		if err != nil {
			a.log.Debug("Pixel ratio unavailable, using 1", zap.Error(err))
		}
		return 1
	}
	return ratio
}

func (a *Applier) apply(ctx context.Context, el Element, ratio float64) ElementResult {
	res := ElementResult{Element: el}
	name := describe(el)

	measured, err := el.MeasuredWidth(ctx)
	if err != nil {
		res.Err = fmt.Errorf("measure %s: %w", name, err)
		a.log.Warn("Unable to measure element, skipping", zap.String("element", name), zap.Error(err))
		return res
	}
	res.RequiredWidth = RequiredWidth(measured, ratio)

	raw, ok, err := el.Declaration(ctx)
	if err != nil {
		res.Err = fmt.Errorf("read declaration of %s: %w", name, err)
		a.log.Warn("Unable to read declaration, skipping", zap.String("element", name), zap.Error(err))
		return res
	}
	if !ok {
		return res
	}
	cs, err := Parse(raw)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", name, err)
		var mce *MalformedCandidateError
		if errors.As(err, &mce) {
			a.log.Warn("Malformed background declaration, skipping",
				zap.String("element", name), zap.String("entry", mce.Entry), zap.Int("index", mce.Index))
		}
		return res
	}
	ch, ok := Choose(cs, res.RequiredWidth, a.loaded)
	if !ok {
		return res
	}
	res.Choice = ch
	if err := el.SetBackgroundSource(ctx, ch.Source); err != nil {
		res.Err = fmt.Errorf("apply %q to %s: %w", ch.Source, name, err)
		a.log.Warn("Unable to apply background", zap.String("element", name), zap.Error(err))
		return res
	}
	a.loaded.MarkLoaded(ch.Source)
	res.Applied = true
	a.log.Debug("Background applied",
		zap.String("element", name),
		zap.Float64("required", res.RequiredWidth),
		zap.String("source", ch.Source),
		zap.Bool("reused", ch.Reused),
		zap.Bool("forced", ch.Candidate.Forced))
	return res
}

// AddResizeListener re-runs the applier, debounced by the configured
// interval, whenever n signals a resize. The returned func detaches the
// listener and drops a pending re-run.
func (a *Applier) AddResizeListener(ctx context.Context, n ResizeNotifier) (stop func()) {
	d := Debounce(func() {
		rep, err := a.Run(ctx, nil)
		if err != nil {
			a.log.Warn("Resize pass failed", zap.Error(err))
			return
		}
		if rep.Err != nil {
			a.log.Debug("Resize pass finished with errors", zap.Int("skipped", rep.Skipped), zap.Error(rep.Err))
		}
	}, a.Config().Interval)
	remove := n.OnResize(d.Trigger)
	return func() {
		remove()
		d.Cancel()
	}
}

func describe(el Element) string {
	if s, ok := el.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", el)
}
