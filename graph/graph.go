// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/concord-team/concord/concorderr"
	"github.com/concord-team/concord/primitives"
)

// Graph is the append-only, content-addressed DAG of links. A Graph
// is owned exclusively by one Team; Append and Merge mutate it in
// place, matching the single-threaded, lock-free ownership model a
// Team provides by never sharing a Graph across goroutines.
type Graph struct {
	root     primitives.Hash
	hasRoot  bool
	head     map[primitives.Hash]struct{}
	links    map[primitives.Hash]*Link
	childMap map[primitives.Hash][]primitives.Hash

	reachMu    sync.Mutex
	reachCache map[primitives.Hash]map[primitives.Hash]struct{} // hash -> its predecessor set
}

// New creates an empty graph. The first link appended to it becomes
// the root.
func New() *Graph {
	return &Graph{
		head:     make(map[primitives.Hash]struct{}),
		links:    make(map[primitives.Hash]*Link),
		childMap: make(map[primitives.Hash][]primitives.Hash),
	}
}

// Root returns the hash of the graph's root link. Returns false if the
// graph is empty.
func (g *Graph) Root() (primitives.Hash, bool) {
	return g.root, g.hasRoot
}

// Head returns the current frontier — hashes with no child — in
// sorted order, so two graphs with identical content always report
// Head in the same order.
func (g *Graph) Head() []primitives.Hash {
	out := make([]primitives.Hash, 0, len(g.head))
	for h := range g.head {
		out = append(out, h)
	}
	sortHashes(out)
	return out
}

// Len returns the number of links in the graph.
func (g *Graph) Len() int { return len(g.links) }

// Link returns the link with the given hash, if present.
func (g *Graph) Link(hash primitives.Hash) (*Link, bool) {
	l, ok := g.links[hash]
	return l, ok
}

// Has reports whether the graph contains a link with the given hash.
func (g *Graph) Has(hash primitives.Hash) bool {
	_, ok := g.links[hash]
	return ok
}

// Links returns every link in the graph, keyed by hash. The returned
// map is a defensive copy.
func (g *Graph) Links() map[primitives.Hash]*Link {
	out := make(map[primitives.Hash]*Link, len(g.links))
	for k, v := range g.links {
		out[k] = v
	}
	return out
}

// LinksFor returns the Link value for each hash that is present in the
// graph, silently skipping any hash it doesn't have. Used to build the
// missing-links payload once an expanding parent-map exchange has
// identified exactly what a peer lacks.
func (g *Graph) LinksFor(hashes []primitives.Hash) []Link {
	out := make([]Link, 0, len(hashes))
	for _, h := range hashes {
		if l, ok := g.links[h]; ok {
			out = append(out, *l)
		}
	}
	return out
}

// AppendInput carries the fields needed to seal and insert a new link.
type AppendInput struct {
	ActionType   string
	Payload      []byte
	UserPublic   primitives.SigningPublicKey
	DevicePublic primitives.SigningPublicKey
	Timestamp    int64
	Generation   uint64
	TeamKey      [primitives.SymmetricKeySize]byte
	Signer       *primitives.SigningKeypair
}

// Append seals in.Payload into a new Link whose Prev is the graph's
// current head, inserts it, and advances head to {newLink.Hash}. This
// is the only way a new link enters a graph under local authorship —
// links arriving from peers come in through Merge instead.
func (g *Graph) Append(in AppendInput) (*Link, error) {
	body := LinkBody{
		ActionType:   in.ActionType,
		Payload:      in.Payload,
		UserPublic:   in.UserPublic,
		DevicePublic: in.DevicePublic,
		Timestamp:    in.Timestamp,
		Prev:         g.Head(),
	}

	link, err := sealLink(body, in.Generation, in.TeamKey, in.Signer)
	if err != nil {
		return nil, fmt.Errorf("graph: appending link: %w", err)
	}

	if err := g.insert(link, body.Prev); err != nil {
		return nil, fmt.Errorf("graph: appending link: %w", err)
	}
	return link, nil
}

// insert records link in the graph's indexes, assuming link.Hash
// already reflects its encrypted body (the caller has sealed it).
// prev is the set of predecessor hashes the link declares; every
// element must already be present in the graph, or the link is
// rejected as corrupt (spec §3 invariant (b)).
func (g *Graph) insert(link *Link, prev []primitives.Hash) error {
	if _, exists := g.links[link.Hash]; exists {
		// Content-addressed equality: re-inserting the same hash is a
		// silent no-op, matching Merge's duplicate-discard rule.
		return nil
	}

	if len(prev) == 0 {
		if g.hasRoot {
			return concorderr.New(concorderr.KindGraphCorrupt, fmt.Sprintf("link %s claims no predecessor but a root already exists", link.Hash))
		}
	}
	for _, p := range prev {
		if !g.Has(p) {
			return concorderr.New(concorderr.KindGraphCorrupt, fmt.Sprintf("link %s references unknown predecessor %s", link.Hash, p))
		}
	}

	g.links[link.Hash] = link

	if len(prev) == 0 {
		g.root = link.Hash
		g.hasRoot = true
	}
	for _, p := range prev {
		g.childMap[p] = append(g.childMap[p], link.Hash)
		delete(g.head, p)
	}
	g.head[link.Hash] = struct{}{}

	g.invalidateReachCache()
	return nil
}

// Merge absorbs every link of other into g. Merge is idempotent,
// commutative, and associative: merging the same graph twice, or
// merging a then b versus b then a, leaves g in the same logical
// state, because links are inserted in an order that always respects
// their declared predecessors and duplicate hashes are no-ops.
func (g *Graph) Merge(other *Graph) error {
	order, err := topoInsertOrder(other)
	if err != nil {
		return fmt.Errorf("graph: merging: %w", err)
	}
	for _, hash := range order {
		link := other.links[hash]
		if g.Has(hash) {
			continue
		}
		if err := g.insert(link, link.prevFromBody(other)); err != nil {
			return fmt.Errorf("graph: merging link %s: %w", hash, err)
		}
	}
	return nil
}

// MergeLinkSet inserts a delta of links directly, using parentOf as
// each link's structural predecessors instead of deriving it from a
// complete other *Graph the way Merge does. This is how the connection
// sync loop applies the missing-links payload an expanding parent-map
// exchange identifies: the sender already knows exactly which hashes
// the receiver lacks and what those hashes' immediate parents are
// (some already present in g, some included in links itself), so
// there is no need to round-trip a whole graph to fill a small gap.
func (g *Graph) MergeLinkSet(links []Link, parentOf map[primitives.Hash][]primitives.Hash) error {
	byHash := make(map[primitives.Hash]*Link, len(links))
	for i := range links {
		byHash[links[i].Hash] = &links[i]
	}

	visited := make(map[primitives.Hash]bool, len(links))
	var visit func(h primitives.Hash) error
	visit = func(h primitives.Hash) error {
		if g.Has(h) || visited[h] {
			return nil
		}
		visited[h] = true
		link, ok := byHash[h]
		if !ok {
			return concorderr.New(concorderr.KindGraphCorrupt, fmt.Sprintf("link set references %s without including it or its owner already having it", h))
		}
		for _, p := range parentOf[h] {
			if err := visit(p); err != nil {
				return err
			}
		}
		return g.insert(link, parentOf[h])
	}

	hashes := make([]primitives.Hash, 0, len(links))
	for h := range byHash {
		hashes = append(hashes, h)
	}
	sortHashes(hashes)
	for _, h := range hashes {
		if err := visit(h); err != nil {
			return fmt.Errorf("graph: merging link set: %w", err)
		}
	}
	return nil
}

// prevFromBody looks up a link's declared predecessors from its
// encrypted body is not possible without the team key, so Merge
// instead derives predecessors structurally: from's childMap tells us
// which links point to which, which we invert here.
func (l *Link) prevFromBody(from *Graph) []primitives.Hash {
	var prev []primitives.Hash
	for parent, children := range from.childMap {
		for _, child := range children {
			if child == l.Hash {
				prev = append(prev, parent)
			}
		}
	}
	sortHashes(prev)
	return prev
}

// topoInsertOrder returns g's links in an order where every link
// appears after all of its predecessors, so Merge can insert them
// into another graph without tripping the "predecessor must already
// exist" check.
func topoInsertOrder(g *Graph) ([]primitives.Hash, error) {
	prevOf := make(map[primitives.Hash][]primitives.Hash, len(g.links))
	for parent, children := range g.childMap {
		for _, child := range children {
			prevOf[child] = append(prevOf[child], parent)
		}
	}

	var order []primitives.Hash
	visited := make(map[primitives.Hash]bool, len(g.links))
	var visit func(h primitives.Hash) error
	visit = func(h primitives.Hash) error {
		if visited[h] {
			return nil
		}
		visited[h] = true
		for _, p := range prevOf[h] {
			if err := visit(p); err != nil {
				return err
			}
		}
		order = append(order, h)
		return nil
	}

	hashes := make([]primitives.Hash, 0, len(g.links))
	for h := range g.links {
		hashes = append(hashes, h)
	}
	sortHashes(hashes)
	for _, h := range hashes {
		if err := visit(h); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (g *Graph) invalidateReachCache() {
	g.reachMu.Lock()
	g.reachCache = nil
	g.reachMu.Unlock()
}

func sortHashes(hashes []primitives.Hash) {
	sort.Slice(hashes, func(i, j int) bool {
		return hashes[i].Hex() < hashes[j].Hex()
	})
}
