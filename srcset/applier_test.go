package srcset

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type fakeElement struct {
	name       string
	decl       string
	hasDecl    bool
	width      float64
	measureErr error
	applied    []string
}

func newFakeElement(name, decl string, width float64) *fakeElement {
	return &fakeElement{name: name, decl: decl, hasDecl: true, width: width}
}

func (e *fakeElement) String() string { return e.name }

func (e *fakeElement) Declaration(context.Context) (string, bool, error) {
	return e.decl, e.hasDecl, nil
}

func (e *fakeElement) MeasuredWidth(context.Context) (float64, error) {
	return e.width, e.measureErr
}

func (e *fakeElement) SetBackgroundSource(_ context.Context, src string) error {
	e.applied = append(e.applied, src)
	return nil
}

func (e *fakeElement) last() string {
	if len(e.applied) == 0 {
		return ""
	}
	return e.applied[len(e.applied)-1]
}

type fakeSource struct {
	mu        sync.Mutex
	elems     []*fakeElement
	ratio     float64
	attrs     []string
	passes    chan struct{}
	listeners map[int]func()
	nextID    int
}

func (s *fakeSource) Elements(_ context.Context, attr string) ([]Element, error) {
	s.mu.Lock()
	s.attrs = append(s.attrs, attr)
	out := make([]Element, len(s.elems))
	for i, e := range s.elems {
		out[i] = e
	}
	s.mu.Unlock()
	if s.passes != nil {
		s.passes <- struct{}{}
	}
	return out, nil
}

func (s *fakeSource) DevicePixelRatio(context.Context) (float64, error) {
	return s.ratio, nil
}

func (s *fakeSource) OnResize(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners == nil {
		s.listeners = map[int]func(){}
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *fakeSource) resize() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func TestApplierScenarios(t *testing.T) {
	hero := newFakeElement("hero", "a.jpg 100w, b.jpg 400w, c.jpg 900w", 450)
	thumb := newFakeElement("thumb", "a.jpg 100w, c.jpg 900w force", 100)
	src := &fakeSource{elems: []*fakeElement{hero, thumb}, ratio: 1}
	a := NewApplier(src, nil, Config{}, zaptest.NewLogger(t))

	rep, err := a.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Err != nil {
		t.Fatalf("unexpected pass errors: %v", rep.Err)
	}
	if rep.Elements != 2 || rep.Applied != 2 || rep.Skipped != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if hero.last() != "c.jpg" {
		t.Fatalf("hero got %q, want c.jpg", hero.last())
	}
	// c.jpg was marked by hero earlier in the same pass.
	if thumb.last() != "c.jpg" {
		t.Fatalf("thumb got %q, want reused c.jpg", thumb.last())
	}
	if !rep.Results[1].Choice.Reused {
		t.Fatal("expected thumb result to be flagged as reused")
	}
	if src.attrs[0] != "data-background-image-srcset" {
		t.Fatalf("unexpected attribute %q", src.attrs[0])
	}
}

func TestApplierForcedNotReplaced(t *testing.T) {
	reg := NewLoadedRegistry()
	reg.MarkLoaded("c.jpg")
	el := newFakeElement("thumb", "a.jpg 100w force, c.jpg 900w", 100)
	a := NewApplier(&fakeSource{elems: []*fakeElement{el}}, reg, Config{}, nil)
	if _, err := a.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if el.last() != "a.jpg" {
		t.Fatalf("forced candidate replaced: got %q", el.last())
	}
	if !reg.HasLoaded("a.jpg") {
		t.Fatal("applied source must be marked loaded")
	}
}

func TestApplierIsolatesMalformedDeclaration(t *testing.T) {
	first := newFakeElement("first", "a.jpg 100w, b.jpg 400w", 300)
	bad := newFakeElement("bad", "a.jpg 100w, badtoken", 300)
	last := newFakeElement("last", "x.jpg 200w", 50)
	a := NewApplier(&fakeSource{elems: []*fakeElement{first, bad, last}}, nil, Config{}, zaptest.NewLogger(t))

	rep, err := a.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Applied != 2 || rep.Skipped != 1 {
		t.Fatalf("unexpected counts: %+v", rep)
	}
	if !errors.Is(rep.Err, ErrMalformedCandidate) {
		t.Fatalf("expected malformed error in report, got %v", rep.Err)
	}
	if len(bad.applied) != 0 {
		t.Fatalf("malformed element must not be touched, got %v", bad.applied)
	}
	if first.last() != "b.jpg" || last.last() != "x.jpg" {
		t.Fatalf("other elements not updated: first=%q last=%q", first.last(), last.last())
	}
}

func TestApplierSkipsEmptyAndMissing(t *testing.T) {
	empty := newFakeElement("empty", "", 300)
	missing := &fakeElement{name: "missing", width: 300}
	a := NewApplier(&fakeSource{elems: []*fakeElement{empty, missing}}, nil, Config{}, nil)
	rep, err := a.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Err != nil || rep.Applied != 0 || rep.Skipped != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if len(empty.applied)+len(missing.applied) != 0 {
		t.Fatal("no style change expected")
	}
}

func TestApplierMeasureFailureIsolated(t *testing.T) {
	broken := newFakeElement("broken", "a.jpg 100w", 10)
	broken.measureErr = errors.New("detached")
	ok := newFakeElement("ok", "a.jpg 100w", 10)
	a := NewApplier(&fakeSource{elems: []*fakeElement{broken, ok}}, nil, Config{}, nil)
	rep, err := a.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Applied != 1 || rep.Skipped != 1 || rep.Err == nil {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if ok.last() != "a.jpg" {
		t.Fatalf("healthy element not updated: %v", ok.applied)
	}
}

func TestApplierUsesPixelRatio(t *testing.T) {
	el := newFakeElement("el", "a.jpg 100w, b.jpg 400w, c.jpg 900w", 200)
	src := &fakeSource{elems: []*fakeElement{el}, ratio: 2}
	a := NewApplier(src, nil, Config{}, nil)
	rep, err := a.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Results[0].RequiredWidth != 400 || el.last() != "b.jpg" {
		t.Fatalf("required=%v applied=%q", rep.Results[0].RequiredWidth, el.last())
	}
}

func TestApplierOverridesPersist(t *testing.T) {
	src := &fakeSource{}
	a := NewApplier(src, nil, Config{}, nil)
	if _, err := a.Run(context.Background(), &Config{Selector: "hero-srcset"}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	for _, attr := range src.attrs {
		if attr != "data-hero-srcset" {
			t.Fatalf("unexpected attribute %q", attr)
		}
	}
	if got := a.Config().Interval; got != DefaultInterval {
		t.Fatalf("interval changed unexpectedly: %v", got)
	}
}

func TestApplierResizeListener(t *testing.T) {
	el := newFakeElement("el", "a.jpg 100w, b.jpg 400w, c.jpg 900w", 100)
	src := &fakeSource{elems: []*fakeElement{el}, ratio: 1, passes: make(chan struct{}, 8)}
	a := NewApplier(src, nil, Config{Interval: 10 * time.Millisecond}, zaptest.NewLogger(t))

	if _, err := a.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	<-src.passes

	stop := a.AddResizeListener(context.Background(), src)
	defer stop()

	el.width = 800
	for i := 0; i < 5; i++ {
		src.resize()
	}
	select {
	case <-src.passes:
	case <-time.After(2 * time.Second):
		t.Fatal("resize did not trigger a pass")
	}
	select {
	case <-src.passes:
		t.Fatal("resize burst produced more than one pass")
	case <-time.After(60 * time.Millisecond):
	}
	// Run holds the applier lock while applying, Config waits for it.
	_ = a.Config()
	if el.last() != "c.jpg" {
		t.Fatalf("expected c.jpg after resize, got %v", el.applied)
	}

	stop()
	src.resize()
	select {
	case <-src.passes:
		t.Fatal("stopped listener still triggered a pass")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestApplierOnPass(t *testing.T) {
	el := newFakeElement("el", "a.jpg 100w, b.jpg 400w", 300)
	bad := newFakeElement("bad", "junk", 300)
	src := &fakeSource{elems: []*fakeElement{el, bad}, ratio: 1}
	a := NewApplier(src, nil, Config{Interval: 5 * time.Millisecond}, nil)

	reports := make(chan *Report, 4)
	a.OnPass(func(rep *Report) { reports <- rep })

	rep, err := a.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := <-reports; got != rep {
		t.Fatalf("hook got a different report")
	}
	if rep.Applied != 1 || rep.Skipped != 1 || !errors.Is(rep.Err, ErrMalformedCandidate) {
		t.Fatalf("unexpected report %+v", rep)
	}

	stop := a.AddResizeListener(context.Background(), src)
	defer stop()
	src.resize()
	select {
	case got := <-reports:
		if got.Elements != 2 {
			t.Fatalf("resize report %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("resize pass not reported")
	}
}
