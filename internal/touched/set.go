// Package touched collects the files modified during one user turn.
//
// A Set is created by the session for each user turn and travels to tools
// through the context. It is never shared across turns.
package touched

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
)

// Set is a concurrency-safe set of cleaned absolute paths.
type Set struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// New returns an empty Set.
func New() *Set {
	return &Set{paths: make(map[string]struct{})}
}

// Add records path. Relative paths are made absolute against the working directory.
func (s *Set) Add(path string) {
	if path == "" {
		return
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	s.mu.Lock()
	s.paths[filepath.Clean(path)] = struct{}{}
	s.mu.Unlock()
}

// Len returns the number of recorded paths.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

// Sorted returns the recorded paths in lexical order.
func (s *Set) Sorted() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.paths))
	for p := range s.paths {
		out = append(out, p)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

// Reset empties the set.
func (s *Set) Reset() {
	s.mu.Lock()
	clear(s.paths)
	s.mu.Unlock()
}

type ctxKey struct{}

// WithSet attaches s to ctx.
func WithSet(ctx context.Context, s *Set) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the Set attached to ctx, or nil.
func FromContext(ctx context.Context) *Set {
	s, _ := ctx.Value(ctxKey{}).(*Set)
	return s
}

// Record adds path to the Set attached to ctx. It is a no-op when none is attached.
func Record(ctx context.Context, path string) {
	if s := FromContext(ctx); s != nil {
		s.Add(path)
	}
}
