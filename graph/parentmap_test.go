// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"testing"

	"github.com/concord-team/concord/primitives"
)

func TestGetParentMapFullGraph(t *testing.T) {
	g := New()
	var key [primitives.SymmetricKeySize]byte
	signer := newTestSigner(t)
	root := appendTestLink(t, g, key, signer, "ADD_MEMBER")
	second := appendTestLink(t, g, key, signer, "ADD_ROLE")

	pm := g.GetParentMap(ParentMapOptions{})
	if _, ok := pm[root.Hash]; !ok {
		t.Fatalf("parent map missing root")
	}
	if preds, ok := pm[second.Hash]; !ok || len(preds) != 1 || preds[0] != root.Hash {
		t.Fatalf("parent map for second = %v, want [%v]", preds, root.Hash)
	}
}

func TestGetParentMapDepthLimit(t *testing.T) {
	g := New()
	var key [primitives.SymmetricKeySize]byte
	signer := newTestSigner(t)
	appendTestLink(t, g, key, signer, "ADD_MEMBER")
	appendTestLink(t, g, key, signer, "ADD_ROLE")
	third := appendTestLink(t, g, key, signer, "ADD_DEVICE")

	depth := 0
	pm := g.GetParentMap(ParentMapOptions{Depth: &depth})
	if len(pm) != 1 {
		t.Fatalf("depth-0 parent map has %d entries, want 1", len(pm))
	}
	if _, ok := pm[third.Hash]; !ok {
		t.Fatalf("depth-0 parent map should contain only head")
	}
}

func TestGetParentMapPrevComplement(t *testing.T) {
	g := New()
	var key [primitives.SymmetricKeySize]byte
	signer := newTestSigner(t)
	appendTestLink(t, g, key, signer, "ADD_MEMBER")
	appendTestLink(t, g, key, signer, "ADD_ROLE")

	full := g.GetParentMap(ParentMapOptions{})
	complement := g.GetParentMap(ParentMapOptions{Prev: full})
	if len(complement) != 0 {
		t.Fatalf("complement against the full map should be empty, got %d entries", len(complement))
	}
}

func TestDiameterGrowsWithChain(t *testing.T) {
	g := New()
	var key [primitives.SymmetricKeySize]byte
	signer := newTestSigner(t)
	appendTestLink(t, g, key, signer, "ADD_MEMBER")
	appendTestLink(t, g, key, signer, "ADD_ROLE")
	appendTestLink(t, g, key, signer, "ADD_DEVICE")

	if d := g.Diameter(); d != 2 {
		t.Fatalf("Diameter() = %d, want 2", d)
	}
}

func TestCommonFrontierMatchingMaps(t *testing.T) {
	g := New()
	var key [primitives.SymmetricKeySize]byte
	signer := newTestSigner(t)
	appendTestLink(t, g, key, signer, "ADD_MEMBER")
	appendTestLink(t, g, key, signer, "ADD_ROLE")

	pmA := g.GetParentMap(ParentMapOptions{})
	pmB := g.GetParentMap(ParentMapOptions{})
	if !CommonFrontier(pmA, pmB) {
		t.Fatalf("CommonFrontier should be true for two identical parent maps")
	}
}
