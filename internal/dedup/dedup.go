// Package dedup collapses endpoint candidates to one entry per URL.
package dedup

import (
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/PentesterFlow/pagescope/internal/report"
)

// Set is an insertion-ordered set of endpoint refs keyed by URL. The first
// ref added for a URL wins; later ones are ignored.
//
// A Bloom filter answers the common "never seen" case; the exact map settles
// filter hits so a false positive never drops a URL.
type Set struct {
	filter *bloom.BloomFilter
	exact  map[string]struct{}
	items  []report.EndpointRef
}

// NewSet creates a set sized for roughly estimatedItems URLs.
func NewSet(estimatedItems int) *Set {
	if estimatedItems < 64 {
		estimatedItems = 64
	}
	return &Set{
		filter: bloom.NewWithEstimates(uint(estimatedItems), 0.001),
		exact:  make(map[string]struct{}),
		items:  make([]report.EndpointRef, 0),
	}
}

// Has reports whether url was already added.
func (s *Set) Has(url string) bool {
	if !s.filter.TestString(url) {
		return false
	}
	_, ok := s.exact[url]
	return ok
}

// Add inserts ref unless its URL is already present. It reports whether ref
// was inserted.
func (s *Set) Add(ref report.EndpointRef) bool {
	if s.Has(ref.URL) {
		return false
	}
	s.filter.AddString(ref.URL)
	s.exact[ref.URL] = struct{}{}
	s.items = append(s.items, ref)
	return true
}

// Len returns the number of unique URLs.
func (s *Set) Len() int {
	return len(s.items)
}

// Items returns the refs in first-seen order.
func (s *Set) Items() []report.EndpointRef {
	out := make([]report.EndpointRef, len(s.items))
	copy(out, s.items)
	return out
}

// Endpoints collapses refs to unique-by-URL, preserving first-seen order,
// method and type.
func Endpoints(refs []report.EndpointRef) []report.EndpointRef {
	s := NewSet(len(refs))
	for _, ref := range refs {
		s.Add(ref)
	}
	return s.Items()
}
