package proxy

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"respbg/srcset"
)

// SiteConfig holds per-host overrides read from <sites_dir>/<host>.json.
type SiteConfig struct {
	Selector string `json:"selector,omitempty"`
	// Interval is the resize debounce wait in milliseconds.
	Interval int               `json:"interval,omitempty"`
	Mode     string            `json:"mode,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// Srcset returns the selection overrides of the site.
func (c *SiteConfig) Srcset() srcset.Config {
	if c == nil {
		return srcset.Config{}
	}
	var out srcset.Config
	out.Selector = c.Selector
	if c.Interval > 0 {
		out.Interval = time.Duration(c.Interval) * time.Millisecond
	}
	return out
}

func (c *SiteConfig) WantsBrowser() bool {
	return c != nil && c.Mode == "js"
}

type siteConfigStore struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*SiteConfig
}

func newSiteConfigStore(dir string) *siteConfigStore {
	return &siteConfigStore{
		dir:   dir,
		cache: make(map[string]*SiteConfig),
	}
}

// Find looks up the configuration for target's host, falling back to parent
// domains (www.example.com, example.com, com).
func (s *siteConfigStore) Find(target string) *SiteConfig {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	s.mu.RLock()
	if cfg, ok := s.cache[host]; ok {
		s.mu.RUnlock()
		return cfg
	}
	s.mu.RUnlock()

	labels := strings.Split(host, ".")
	for i := 0; i < len(labels); i++ {
		candidate := strings.Join(labels[i:], ".")
		if cfg := s.load(candidate); cfg != nil {
			s.mu.Lock()
			s.cache[host] = cfg
			s.mu.Unlock()
			return cfg
		}
	}
	s.mu.Lock()
	s.cache[host] = nil
	s.mu.Unlock()
	return nil
}

func (s *siteConfigStore) load(host string) *SiteConfig {
	if s.dir == "" {
		return nil
	}
	path := filepath.Join(s.dir, host+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cfg SiteConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil
	}
	cfg.Mode = strings.TrimSpace(strings.ToLower(cfg.Mode))
	cfg.Selector = strings.TrimSpace(cfg.Selector)
	return &cfg
}
