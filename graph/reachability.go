// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import "github.com/concord-team/concord/primitives"

// GetPredecessors returns every link reachable by following Prev
// edges backward from hash (hash's full ancestor set), memoized per
// graph and invalidated on the next Append or Merge.
func (g *Graph) GetPredecessors(hash primitives.Hash) ([]primitives.Hash, error) {
	if !g.Has(hash) {
		return nil, unknownHashError(hash)
	}
	set := g.predecessorSet(hash)
	out := make([]primitives.Hash, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sortHashes(out)
	return out, nil
}

// GetSuccessors returns every link reachable by following child edges
// forward from hash.
func (g *Graph) GetSuccessors(hash primitives.Hash) ([]primitives.Hash, error) {
	if !g.Has(hash) {
		return nil, unknownHashError(hash)
	}
	var out []primitives.Hash
	visited := map[primitives.Hash]bool{hash: true}
	queue := []primitives.Hash{hash}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range g.childMap[cur] {
			if visited[child] {
				continue
			}
			visited[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	sortHashes(out)
	return out, nil
}

// IsPredecessor reports whether a is a predecessor (direct or
// transitive) of b.
func (g *Graph) IsPredecessor(a, b primitives.Hash) (bool, error) {
	if !g.Has(a) {
		return false, unknownHashError(a)
	}
	if !g.Has(b) {
		return false, unknownHashError(b)
	}
	set := g.predecessorSet(b)
	_, ok := set[a]
	return ok, nil
}

// predecessorSet returns (and memoizes) the full ancestor set of hash,
// not including hash itself.
func (g *Graph) predecessorSet(hash primitives.Hash) map[primitives.Hash]struct{} {
	g.reachMu.Lock()
	defer g.reachMu.Unlock()

	if g.reachCache == nil {
		g.reachCache = make(map[primitives.Hash]map[primitives.Hash]struct{})
	}
	if cached, ok := g.reachCache[hash]; ok {
		return cached
	}

	prevOf := make(map[primitives.Hash][]primitives.Hash, len(g.links))
	for parent, children := range g.childMap {
		for _, child := range children {
			prevOf[child] = append(prevOf[child], parent)
		}
	}

	set := make(map[primitives.Hash]struct{})
	queue := prevOf[hash]
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, ok := set[cur]; ok {
			continue
		}
		set[cur] = struct{}{}
		queue = append(queue, prevOf[cur]...)
	}

	g.reachCache[hash] = set
	return set
}

func unknownHashError(hash primitives.Hash) error {
	return &unknownHashErr{hash: hash}
}

type unknownHashErr struct{ hash primitives.Hash }

func (e *unknownHashErr) Error() string {
	return "graph: unknown link " + e.hash.String()
}
