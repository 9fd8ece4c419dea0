// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import "github.com/concord-team/concord/primitives"

// ParentMapOptions narrows the span of GetParentMap's traversal back
// from the graph's head. The zero value walks the entire graph.
type ParentMapOptions struct {
	// Depth, if non-nil, limits the traversal to links within this
	// many hops of head.
	Depth *int

	// End, if non-empty, stops the traversal at these hashes: they are
	// not expanded and not included in the result, only referenced as
	// a predecessor of whatever link led to them.
	End []primitives.Hash

	// Prev, if non-nil, is a previously computed parent map; the
	// result is the complement — every hash this traversal would
	// otherwise include that Prev does not already have an entry for.
	// This is how the connection sync loop expands a frontier
	// incrementally without re-sending what the peer already
	// acknowledged.
	Prev map[primitives.Hash][]primitives.Hash
}

// GetParentMap returns a map from each selected link's hash to its
// immediate predecessors, used to drive incremental sync: two peers
// exchange parent maps expanding outward from their heads until they
// find a common frontier, then exchange only the links neither side
// has.
func (g *Graph) GetParentMap(opts ParentMapOptions) map[primitives.Hash][]primitives.Hash {
	prevOf := make(map[primitives.Hash][]primitives.Hash, len(g.links))
	for parent, children := range g.childMap {
		for _, child := range children {
			prevOf[child] = append(prevOf[child], parent)
		}
	}

	endSet := make(map[primitives.Hash]struct{}, len(opts.End))
	for _, h := range opts.End {
		endSet[h] = struct{}{}
	}

	type item struct {
		hash  primitives.Hash
		depth int
	}

	visited := make(map[primitives.Hash]bool)
	included := make(map[primitives.Hash][]primitives.Hash)
	queue := make([]item, 0, len(g.head))
	for _, h := range g.Head() {
		queue = append(queue, item{hash: h})
	}

	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if visited[it.hash] {
			continue
		}
		visited[it.hash] = true

		if _, isEnd := endSet[it.hash]; isEnd {
			continue
		}
		if opts.Depth != nil && it.depth > *opts.Depth {
			continue
		}

		preds := prevOf[it.hash]
		sortHashes(preds)
		included[it.hash] = preds

		for _, p := range preds {
			if !visited[p] {
				queue = append(queue, item{hash: p, depth: it.depth + 1})
			}
		}
	}

	if opts.Prev == nil {
		return included
	}

	complement := make(map[primitives.Hash][]primitives.Hash)
	for hash, preds := range included {
		if _, already := opts.Prev[hash]; !already {
			complement[hash] = preds
		}
	}
	return complement
}

// Diameter returns the length of the longest path from any root-ward
// link to the current head, used as a rough upper bound on the number
// of sync rounds two peers need to converge.
func (g *Graph) Diameter() int {
	depth := make(map[primitives.Hash]int, len(g.links))
	order := TopoSort(g, nil)
	prevOf := make(map[primitives.Hash][]primitives.Hash, len(g.links))
	for parent, children := range g.childMap {
		for _, child := range children {
			prevOf[child] = append(prevOf[child], parent)
		}
	}
	max := 0
	for _, h := range order {
		d := 0
		for _, p := range prevOf[h] {
			if depth[p]+1 > d {
				d = depth[p] + 1
			}
		}
		depth[h] = d
		if d > max {
			max = d
		}
	}
	return max
}

// CommonFrontier reports whether two parent maps, each obtained from a
// separate peer's GetParentMap call over the same region, have
// converged to describe the same boundary — every hash appearing as a
// predecessor but not as a key in one map is also missing a key entry
// in the other. Used by the connection sync loop to decide when to
// stop expanding and start exchanging missing links.
func CommonFrontier(a, b map[primitives.Hash][]primitives.Hash) bool {
	boundary := func(m map[primitives.Hash][]primitives.Hash) map[primitives.Hash]struct{} {
		out := make(map[primitives.Hash]struct{})
		for _, preds := range m {
			for _, p := range preds {
				if _, known := m[p]; !known {
					out[p] = struct{}{}
				}
			}
		}
		return out
	}
	ba, bb := boundary(a), boundary(b)
	if len(ba) != len(bb) {
		return false
	}
	for h := range ba {
		if _, ok := bb[h]; !ok {
			return false
		}
	}
	return true
}
