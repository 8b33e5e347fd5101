package srcset

import "sync"

// LoadedRegistry records every source that has been applied to an element at
// least once. Entries are never removed; the registry lives as long as the
// page or session that owns it.
type LoadedRegistry struct {
	mu    sync.RWMutex
	set   map[string]struct{}
	order []string
}

func NewLoadedRegistry() *LoadedRegistry {
	return &LoadedRegistry{set: make(map[string]struct{})}
}

// MarkLoaded records src and reports whether it was new.
func (r *LoadedRegistry) MarkLoaded(src string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.set[src]; ok {
		return false
	}
	r.set[src] = struct{}{}
	r.order = append(r.order, src)
	return true
}

func (r *LoadedRegistry) HasLoaded(src string) bool {
	r.mu.RLock()
	_, ok := r.set[src]
	r.mu.RUnlock()
	return ok
}

func (r *LoadedRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Sources returns loaded sources in the order they were first applied.
func (r *LoadedRegistry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// FindAlreadyLoadedBiggerImage scans cs from the widest candidate down and
// returns the first loaded source that is at least minWidth wide. The widest
// candidate qualifies regardless of width, since nothing better exists.
func (r *LoadedRegistry) FindAlreadyLoadedBiggerImage(cs CandidateSet, minWidth float64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	last := len(cs) - 1
	for i := last; i >= 0; i-- {
		c := cs[i]
		if _, ok := r.set[c.Source]; !ok {
			continue
		}
		if float64(c.Width) >= minWidth || i == last {
			return c.Source, true
		}
	}
	return "", false
}
