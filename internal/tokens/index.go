// Package tokens maps lexical tokens to the visual nodes that display them.
//
// The index stores node identifiers only. The rendering layer owns the nodes
// and must remove an identifier here when it drops the node; otherwise the
// entry keeps a dangling reference.
package tokens

import (
	"context"
	"sort"
	"sync"

	"github.com/morozRed/codescape/internal/memo"
)

// NodeID identifies a visual node owned by the rendering layer.
type NodeID string

// NodeSet is a mutable, concurrency-safe set of node identifiers.
type NodeSet struct {
	mu  sync.RWMutex
	ids map[NodeID]struct{}
}

func newNodeSet() *NodeSet {
	return &NodeSet{ids: make(map[NodeID]struct{})}
}

// Add inserts id and reports whether it was new.
func (s *NodeSet) Add(id NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Remove deletes id and reports whether it was present.
func (s *NodeSet) Remove(id NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; !ok {
		return false
	}
	delete(s.ids, id)
	return true
}

func (s *NodeSet) Contains(id NodeID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

func (s *NodeSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// IDs returns a sorted copy of the set.
func (s *NodeSet) IDs() []NodeID {
	s.mu.RLock()
	out := make([]NodeID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Index maps tokens to node sets. A token seen for the first time gets an
// empty set, never an absent one.
type Index struct {
	sets *memo.Cache[string, *NodeSet]
}

func NewIndex() *Index {
	return &Index{
		sets: memo.New(func(ctx context.Context, token string) (*NodeSet, error) {
			return newNodeSet(), nil
		}),
	}
}

// Get returns the set for token, creating an empty one on first access.
func (x *Index) Get(token string) *NodeSet {
	set, err := x.sets.Get(context.Background(), token)
	if err != nil {
		// The builder cannot fail and Background never ends.
		panic(err)
	}
	return set
}

// Peek returns the set for token only if it already exists.
func (x *Index) Peek(token string) (*NodeSet, bool) {
	return x.sets.Peek(token)
}

// Remove forgets token entirely.
func (x *Index) Remove(token string) {
	x.sets.Remove(token)
}

func (x *Index) Clear() {
	x.sets.Clear()
}

func (x *Index) Len() int {
	return x.sets.Len()
}

// Tokens returns every indexed token, sorted.
func (x *Index) Tokens() []string {
	snapshot := x.sets.Snapshot()
	out := make([]string, 0, len(snapshot))
	for token := range snapshot {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}
