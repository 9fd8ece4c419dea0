// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import "github.com/concord-team/concord/primitives"

// Less orders two concurrent hashes (no path between them in the
// graph) during TopoSort. The default, HashOrder, breaks ties purely
// by hash; the team package supplies a seniority-aware comparator that
// falls back to hash order only between members added concurrently.
type Less func(a, b primitives.Hash) bool

// HashOrder is the default comparator: a trivial, total, deterministic
// order with no domain knowledge. Suitable when no seniority
// information is available (e.g. sorting links before any team state
// exists to derive seniority from).
func HashOrder(a, b primitives.Hash) bool {
	return a.Hex() < b.Hex()
}

// TopoSort returns the graph's links in deterministic topological
// order: at each step, the links with no remaining unprocessed
// predecessor form a concurrent set (antichain); that set is ordered
// by less before any of its members are emitted, and the first is
// taken. Because every tie is broken the same way regardless of which
// peer is computing it, two peers holding the same set of links always
// produce the same order.
func TopoSort(g *Graph, less Less) []primitives.Hash {
	if less == nil {
		less = HashOrder
	}

	prevOf := make(map[primitives.Hash][]primitives.Hash, len(g.links))
	indegree := make(map[primitives.Hash]int, len(g.links))
	for hash := range g.links {
		indegree[hash] = 0
	}
	for parent, children := range g.childMap {
		for _, child := range children {
			prevOf[child] = append(prevOf[child], parent)
			indegree[child]++
		}
	}

	var ready []primitives.Hash
	for hash, deg := range indegree {
		if deg == 0 {
			ready = insertSorted(ready, hash, less)
		}
	}

	order := make([]primitives.Hash, 0, len(g.links))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, child := range g.childMap[next] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = insertSorted(ready, child, less)
			}
		}
	}
	return order
}

func insertSorted(sorted []primitives.Hash, h primitives.Hash, less Less) []primitives.Hash {
	idx := len(sorted)
	for i, existing := range sorted {
		if less(h, existing) {
			idx = i
			break
		}
	}
	sorted = append(sorted, primitives.Hash{})
	copy(sorted[idx+1:], sorted[idx:])
	sorted[idx] = h
	return sorted
}
