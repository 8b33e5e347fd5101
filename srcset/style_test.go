package srcset

import "testing"

func TestBackgroundImageValue(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"a.jpg":              "url('a.jpg')",
		"/img/o'brien.png":   `url('/img/o\'brien.png')`,
		`C:\images\hero.jpg`: `url('C:\\images\\hero.jpg')`,
	}
	for in, want := range cases {
		if got := BackgroundImageValue(in); got != want {
			t.Fatalf("BackgroundImageValue(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSetBackgroundImage(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		style string
		want  string
	}{
		{"empty", "", "background-image: url('b.jpg')"},
		{"append", "color: red", "color: red; background-image: url('b.jpg')"},
		{
			"replace keeps order",
			"background-image: url('a.jpg'); background-size: cover",
			"background-image: url('b.jpg'); background-size: cover",
		},
		{
			"important preserved",
			"width: 50% !important; BACKGROUND-IMAGE: none",
			"width: 50% !important; background-image: url('b.jpg')",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := SetBackgroundImage(tc.style, "b.jpg"); got != tc.want {
				t.Fatalf("SetBackgroundImage(%q) = %q, want %q", tc.style, got, tc.want)
			}
		})
	}
}

func TestParseInlineStyle(t *testing.T) {
	t.Parallel()
	decls := ParseInlineStyle("Width: 320px; color:blue !important")
	if len(decls) != 2 {
		t.Fatalf("expected 2 declarations, got %d: %#v", len(decls), decls)
	}
	if decls[0].Property != "width" || decls[0].Value != "320px" {
		t.Fatalf("unexpected first declaration: %#v", decls[0])
	}
	if decls[1].Property != "color" || decls[1].Value != "blue" || !decls[1].Important {
		t.Fatalf("unexpected second declaration: %#v", decls[1])
	}
	if got := ParseInlineStyle("  "); got != nil {
		t.Fatalf("expected nil for blank style, got %#v", got)
	}
}
