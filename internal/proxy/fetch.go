package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/net/html/charset"
)

const maxDocumentBytes = 8 << 20

const defaultUserAgent = "Mozilla/5.0 (compatible; respbg/1.0)"

// fetchHTML downloads target, forwarding the client's user agent and
// language along with any site headers.
func (s *Server) fetchHTML(ctx context.Context, target string, in http.Header, site *SiteConfig) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	hdr := http.Header{}
	hdr.Set("User-Agent", firstNonEmpty(in.Get("User-Agent"), defaultUserAgent))
	if lang := in.Get("Accept-Language"); lang != "" {
		hdr.Set("Accept-Language", lang)
	}
	hdr.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")
	if site != nil {
		for k, v := range site.Headers {
			hdr.Set(k, v)
		}
	}
	copyHeader(req.Header, hdr)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch %s: upstream status %s", target, resp.Status)
	}
	// Legacy encodings (windows-1251, koi8-r, ...) are converted to UTF-8 from
	// the Content-Type header or a <meta charset> in the first bytes.
	r, err := charset.NewReader(io.LimitReader(resp.Body, maxDocumentBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", target, err)
	}
	return body, nil
}
