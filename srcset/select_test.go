package srcset

import "testing"

func mustParse(t *testing.T, raw string) CandidateSet {
	t.Helper()
	cs, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	return cs
}

func TestRequiredWidth(t *testing.T) {
	t.Parallel()
	cases := []struct {
		measured, ratio, want float64
	}{
		{300, 1, 300},
		{300, 2, 600},
		{300, 0, 300},
		{300, -1, 300},
		{0, 2, 1},
		{0.2, 1, 1},
	}
	for _, tc := range cases {
		if got := RequiredWidth(tc.measured, tc.ratio); got != tc.want {
			t.Fatalf("RequiredWidth(%v,%v) = %v, want %v", tc.measured, tc.ratio, got, tc.want)
		}
	}
}

func TestSelectCandidate(t *testing.T) {
	t.Parallel()
	cs := mustParse(t, "a.jpg 100w, b.jpg 400w, c.jpg 900w")
	cases := []struct {
		name     string
		required float64
		want     string
	}{
		{"scenario 1", 450, "c.jpg"},
		{"scenario 2", 50, "a.jpg"},
		{"scenario 3 fallback to largest", 5000, "c.jpg"},
		{"exact width", 400, "b.jpg"},
		{"fractional", 400.5, "c.jpg"},
	}
	for _, tc := range cases {
		c, ok := SelectCandidate(cs, tc.required)
		if !ok || c.Source != tc.want {
			t.Fatalf("%s: got %v (%v), want %s", tc.name, c, ok, tc.want)
		}
	}
	if _, ok := SelectCandidate(nil, 10); ok {
		t.Fatal("expected no selection for empty set")
	}
}

// The pick is the minimum width >= required, or the maximum width if none.
func TestSelectCandidateMinimality(t *testing.T) {
	t.Parallel()
	cs := mustParse(t, "e.jpg 2048w, a.jpg 64w, c.jpg 512w, b.jpg 256w, d.jpg 1024w")
	for required := 1.0; required <= 3000; required += 7 {
		c, ok := SelectCandidate(cs, required)
		if !ok {
			t.Fatalf("no selection for %v", required)
		}
		best := -1
		for _, x := range cs {
			if float64(x.Width) >= required && (best < 0 || x.Width < best) {
				best = x.Width
			}
		}
		if best < 0 {
			best = cs[len(cs)-1].Width
		}
		if c.Width != best {
			t.Fatalf("required=%v picked %d, want %d", required, c.Width, best)
		}
	}
}

func TestChooseReusesLoadedImage(t *testing.T) {
	t.Parallel()
	reg := NewLoadedRegistry()

	first, ok := Choose(mustParse(t, "a.jpg 100w, b.jpg 400w, c.jpg 900w"), 450, reg)
	if !ok || first.Source != "c.jpg" || first.Reused {
		t.Fatalf("unexpected first choice: %+v", first)
	}
	reg.MarkLoaded(first.Source)

	second, ok := Choose(mustParse(t, "a.jpg 100w, c.jpg 900w force"), 100, reg)
	if !ok {
		t.Fatal("expected a choice")
	}
	if second.Candidate.Source != "a.jpg" {
		t.Fatalf("naive pick should be a.jpg, got %s", second.Candidate.Source)
	}
	if second.Source != "c.jpg" || !second.Reused {
		t.Fatalf("expected reuse of c.jpg, got %+v", second)
	}
}

func TestChooseForcedIgnoresRegistry(t *testing.T) {
	t.Parallel()
	reg := NewLoadedRegistry()
	reg.MarkLoaded("c.jpg")
	ch, ok := Choose(mustParse(t, "a.jpg 100w force, c.jpg 900w"), 100, reg)
	if !ok || ch.Source != "a.jpg" || ch.Reused {
		t.Fatalf("forced candidate must be applied verbatim, got %+v", ch)
	}
}

func TestChooseWithoutRegistry(t *testing.T) {
	t.Parallel()
	ch, ok := Choose(mustParse(t, "a.jpg 100w, b.jpg 400w"), 200, nil)
	if !ok || ch.Source != "b.jpg" {
		t.Fatalf("unexpected choice: %+v", ch)
	}
}

func TestChooseLoadedUndersizedLargest(t *testing.T) {
	t.Parallel()
	reg := NewLoadedRegistry()
	reg.MarkLoaded("c.jpg")
	// Nothing reaches 5000, the loaded widest candidate still wins.
	ch, _ := Choose(mustParse(t, "a.jpg 100w, c.jpg 900w"), 5000, reg)
	if ch.Source != "c.jpg" || ch.Reused {
		t.Fatalf("unexpected choice: %+v", ch)
	}
}
