package crawl

import (
	"slices"
	"sync"
)

// URLSet is the run-scoped set of discovered URLs. It is safe for concurrent use.
type URLSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

func NewURLSet() *URLSet {
	return &URLSet{urls: make(map[string]struct{})}
}

// Add inserts u and reports whether it was not already present
func (s *URLSet) Add(u string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.urls[u]; ok {
		return false
	}
	s.urls[u] = struct{}{}
	return true
}

func (s *URLSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.urls)
}

// Sorted returns the URLs in lexicographic order
func (s *URLSet) Sorted() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.urls))
	for u := range s.urls {
		out = append(out, u)
	}
	s.mu.Unlock()

	slices.Sort(out)
	return out
}
