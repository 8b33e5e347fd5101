package proxy

import (
	"net/url"
	"strings"
	"sync"

	"respbg/internal/htmlhost"
)

// viewportPrefStore remembers the last viewport a session asked for, per
// host, so follow-up requests without w/dpr keep the same layout.
type viewportPrefStore struct {
	mu   sync.RWMutex
	data map[string]htmlhost.Viewport
}

func newViewportPrefStore() *viewportPrefStore {
	return &viewportPrefStore{data: make(map[string]htmlhost.Viewport)}
}

func viewportPrefKey(sessionID, host string) string {
	return sessionID + "|" + strings.ToLower(host)
}

func (s *viewportPrefStore) Remember(key string, vp htmlhost.Viewport) {
	s.mu.Lock()
	s.data[key] = vp
	s.mu.Unlock()
}

// Apply fills vp from the remembered viewport for every field the query does
// not set explicitly.
func (s *viewportPrefStore) Apply(key string, vp *htmlhost.Viewport, overrides url.Values) {
	if vp == nil {
		return
	}
	s.mu.RLock()
	pref, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return
	}
	if overrides.Get("w") == "" && pref.Width > 0 {
		vp.Width = pref.Width
	}
	if overrides.Get("dpr") == "" && pref.PixelRatio > 0 {
		vp.PixelRatio = pref.PixelRatio
	}
}

// Forget drops every preference of a session.
func (s *viewportPrefStore) Forget(sessionID string) {
	prefix := sessionID + "|"
	s.mu.Lock()
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
		}
	}
	s.mu.Unlock()
}
