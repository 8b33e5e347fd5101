package htmlhost

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"respbg/srcset"
)

const remPx = 16

// widthOf approximates the rendered width of n from declared lengths only:
// inline width, min-width and max-width, the width attribute, or the
// containing block's width. Hidden elements and their descendants are zero
// wide, like offsetWidth in a browser.
func (d *Document) widthOf(n *html.Node) (float64, bool) {
	vw := d.Viewport().Width
	if n == nil || n.Type == html.DocumentNode {
		return vw, true
	}
	if n.Type != html.ElementNode {
		return d.widthOf(n.Parent)
	}
	container, visible := d.widthOf(n.Parent)
	if !visible {
		return 0, false
	}
	decls := srcset.ParseInlineStyle(attrOrEmpty(n, "style"))
	if _, ok := attr(n, "hidden"); ok {
		return 0, false
	}
	if v, ok := lookup(decls, "display"); ok && strings.EqualFold(v, "none") {
		return 0, false
	}

	w := container
	if v, ok := lookup(decls, "width"); ok {
		if px, ok := cssLength(v, container, vw); ok {
			w = px
		}
	} else if v, ok := attr(n, "width"); ok {
		if px, ok := attrLength(v, container); ok {
			w = px
		}
	}
	if v, ok := lookup(decls, "max-width"); ok {
		if px, ok := cssLength(v, container, vw); ok && px < w {
			w = px
		}
	}
	if v, ok := lookup(decls, "min-width"); ok {
		if px, ok := cssLength(v, container, vw); ok && px > w {
			w = px
		}
	}
	return max(0, w), true
}

// lookup returns the effective value of prop: the last declaration wins
// unless an earlier one is !important.
func lookup(decls []srcset.StyleDeclaration, prop string) (string, bool) {
	var (
		val       string
		found     bool
		important bool
	)
	for _, d := range decls {
		if d.Property != prop {
			continue
		}
		if important && !d.Important {
			continue
		}
		val, found, important = d.Value, true, d.Important
	}
	return val, found
}

func cssLength(v string, container, vw float64) (float64, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	num := func(s string) (float64, bool) {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	switch {
	case v == "0":
		return 0, true
	case strings.HasSuffix(v, "px"):
		return num(strings.TrimSuffix(v, "px"))
	case strings.HasSuffix(v, "%"):
		if f, ok := num(strings.TrimSuffix(v, "%")); ok {
			return container * f / 100, true
		}
	case strings.HasSuffix(v, "vw"):
		if f, ok := num(strings.TrimSuffix(v, "vw")); ok {
			return vw * f / 100, true
		}
	case strings.HasSuffix(v, "rem"):
		if f, ok := num(strings.TrimSuffix(v, "rem")); ok {
			return f * remPx, true
		}
	case strings.HasSuffix(v, "em"):
		if f, ok := num(strings.TrimSuffix(v, "em")); ok {
			return f * remPx, true
		}
	}
	return 0, false
}

func attrLength(v string, container float64) (float64, bool) {
	v = strings.TrimSpace(v)
	if strings.HasSuffix(v, "%") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
		if err != nil {
			return 0, false
		}
		return container * f / 100, true
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func attrOrEmpty(n *html.Node, name string) string {
	v, _ := attr(n, name)
	return v
}
