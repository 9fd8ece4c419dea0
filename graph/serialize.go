// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"

	"github.com/concord-team/concord/lib/codec"
	"github.com/concord-team/concord/primitives"
)

// savedGraphVersion is the leading byte of every Save output, so a
// future format change can be rejected cleanly by Load instead of
// misparsed.
const savedGraphVersion = 1

// savedGraph is the self-describing payload serialized by Save: the
// encrypted links plus enough structure (childMap) to rebuild the
// graph's indexes without decrypting anything.
type savedGraph struct {
	Root     primitives.Hash                          `cbor:"root"`
	HasRoot  bool                                     `cbor:"has_root"`
	Head     []primitives.Hash                        `cbor:"head"`
	Links    []Link                                   `cbor:"links"`
	ChildMap map[primitives.Hash][]primitives.Hash    `cbor:"child_map"`
}

// Save serializes the graph as {root, head, encryptedLinks, childMap}
// per spec §6. Link bodies remain encrypted; Load does not need a team
// keyring to reconstruct graph structure, only to later decrypt
// individual link bodies on demand.
func (g *Graph) Save() ([]byte, error) {
	links := make([]Link, 0, len(g.links))
	for _, l := range g.links {
		links = append(links, *l)
	}

	encoded, err := codec.Marshal(savedGraph{
		Root:     g.root,
		HasRoot:  g.hasRoot,
		Head:     g.Head(),
		Links:    links,
		ChildMap: g.childMap,
	})
	if err != nil {
		return nil, fmt.Errorf("graph: saving: %w", err)
	}

	out := make([]byte, 0, len(encoded)+1)
	out = append(out, savedGraphVersion)
	out = append(out, encoded...)
	return out, nil
}

// Load reconstructs a Graph from Save's output. Links are re-inserted
// in topological order so every structural invariant (§3) is
// re-validated rather than trusted blindly from the wire.
func Load(data []byte) (*Graph, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("graph: loading: empty input")
	}
	if data[0] != savedGraphVersion {
		return nil, fmt.Errorf("graph: loading: unsupported version %d", data[0])
	}

	var saved savedGraph
	if err := codec.Unmarshal(data[1:], &saved); err != nil {
		return nil, fmt.Errorf("graph: loading: %w", err)
	}

	byHash := make(map[primitives.Hash]*Link, len(saved.Links))
	for i := range saved.Links {
		l := saved.Links[i]
		byHash[l.Hash] = &l
	}

	prevOf := make(map[primitives.Hash][]primitives.Hash, len(saved.ChildMap))
	for parent, children := range saved.ChildMap {
		for _, child := range children {
			prevOf[child] = append(prevOf[child], parent)
		}
	}
	for hash := range prevOf {
		sortHashes(prevOf[hash])
	}

	g := New()
	order, err := topoOrderFromPrev(byHash, prevOf)
	if err != nil {
		return nil, fmt.Errorf("graph: loading: %w", err)
	}
	for _, hash := range order {
		link := byHash[hash]
		if err := g.insert(link, prevOf[hash]); err != nil {
			return nil, fmt.Errorf("graph: loading: %w", err)
		}
	}

	gotHead := g.Head()
	if len(gotHead) != len(saved.Head) {
		return nil, fmt.Errorf("graph: loading: reconstructed head does not match saved head")
	}
	for i := range gotHead {
		if gotHead[i] != saved.Head[i] {
			return nil, fmt.Errorf("graph: loading: reconstructed head does not match saved head")
		}
	}

	return g, nil
}

func topoOrderFromPrev(byHash map[primitives.Hash]*Link, prevOf map[primitives.Hash][]primitives.Hash) ([]primitives.Hash, error) {
	var order []primitives.Hash
	visited := make(map[primitives.Hash]bool, len(byHash))
	inProgress := make(map[primitives.Hash]bool, len(byHash))

	var visit func(h primitives.Hash) error
	visit = func(h primitives.Hash) error {
		if visited[h] {
			return nil
		}
		if inProgress[h] {
			return fmt.Errorf("cycle detected at link %s", h)
		}
		inProgress[h] = true
		for _, p := range prevOf[h] {
			if _, ok := byHash[p]; !ok {
				return fmt.Errorf("link %s references unknown predecessor %s", h, p)
			}
			if err := visit(p); err != nil {
				return err
			}
		}
		inProgress[h] = false
		visited[h] = true
		order = append(order, h)
		return nil
	}

	hashes := make([]primitives.Hash, 0, len(byHash))
	for h := range byHash {
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
