package proxy

import (
	"fmt"
	neturl "net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// normalizeTargetURL accepts bare hosts and percent-encoded input and
// returns an absolute http(s) URL.
func normalizeTargetURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty url")
	}
	// Encoded once more by some form posts: http%3A%2F%2F...
	if strings.Contains(strings.ToLower(s), "%3a%2f%2f") {
		if dec, err := neturl.QueryUnescape(s); err == nil {
			s = dec
		}
	}
	lower := strings.ToLower(s)
	if !(strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")) {
		if strings.Contains(s, "://") {
			return "", fmt.Errorf("unsupported scheme in %q", raw)
		}
		s = "http://" + s
	}
	u, err := neturl.Parse(s)
	if err != nil {
		return "", fmt.Errorf("bad url %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	return u.String(), nil
}

// injectBase adds <base href=target> to the document head unless one is
// already there, so relative image sources keep resolving against the
// origin once the page is served from the proxy.
func injectBase(root *html.Node, target string) {
	var head *html.Node
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Base:
				return true
			case atom.Head:
				if head == nil {
					head = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	if walk(root) || head == nil {
		return
	}
	base := &html.Node{
		Type:     html.ElementNode,
		Data:     "base",
		DataAtom: atom.Base,
		Attr:     []html.Attribute{{Key: "href", Val: target}},
	}
	head.InsertBefore(base, head.FirstChild)
}
