package main

import (
	"bytes"
	"strings"
	"testing"

	"respbg/internal/htmlhost"
	"respbg/srcset"
)

func TestDump(t *testing.T) {
	doc, err := htmlhost.Parse(strings.NewReader(`<body>
<div id="a" style="width:50%" data-background-image-srcset="x.jpg 300w, y.jpg 700w"></div>
<div id="b" data-background-image-srcset="broken"></div>
</body>`), htmlhost.Viewport{Width: 1000, PixelRatio: 1})
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := dump(&out, doc, srcset.Config{}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.Contains(lines[0], "node=div#a width=500 required=500 pick=\"y.jpg 700w\"") {
		t.Fatalf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "node=div#b") || !strings.Contains(lines[1], "error=") {
		t.Fatalf("line 1 = %q", lines[1])
	}
}
