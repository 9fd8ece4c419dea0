// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"testing"

	"github.com/concord-team/concord/primitives"
)

func newTestSigner(t *testing.T) *primitives.SigningKeypair {
	t.Helper()
	kp, err := primitives.GenerateSigningKeypair()
	if err != nil {
		t.Fatalf("GenerateSigningKeypair: %v", err)
	}
	t.Cleanup(func() { kp.Close() })
	return kp
}

func appendTestLink(t *testing.T, g *Graph, key [primitives.SymmetricKeySize]byte, signer *primitives.SigningKeypair, actionType string) *Link {
	t.Helper()
	link, err := g.Append(AppendInput{
		ActionType: actionType,
		Payload:    []byte(actionType),
		UserPublic: signer.Public,
		Timestamp:  1,
		Generation: 0,
		TeamKey:    key,
		Signer:     signer,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	return link
}

func TestAppendEstablishesRootAndHead(t *testing.T) {
	g := New()
	var key [primitives.SymmetricKeySize]byte
	signer := newTestSigner(t)

	root := appendTestLink(t, g, key, signer, "ADD_MEMBER")

	got, ok := g.Root()
	if !ok || got != root.Hash {
		t.Fatalf("Root() = %v, %v, want %v, true", got, ok, root.Hash)
	}
	head := g.Head()
	if len(head) != 1 || head[0] != root.Hash {
		t.Fatalf("Head() = %v, want [%v]", head, root.Hash)
	}
}

func TestAppendChainAdvancesHead(t *testing.T) {
	g := New()
	var key [primitives.SymmetricKeySize]byte
	signer := newTestSigner(t)

	appendTestLink(t, g, key, signer, "ADD_MEMBER")
	second := appendTestLink(t, g, key, signer, "ADD_ROLE")

	head := g.Head()
	if len(head) != 1 || head[0] != second.Hash {
		t.Fatalf("Head() = %v, want [%v]", head, second.Hash)
	}
}

func TestOpenLinkBodyRoundTrip(t *testing.T) {
	g := New()
	var key [primitives.SymmetricKeySize]byte
	signer := newTestSigner(t)

	link := appendTestLink(t, g, key, signer, "ADD_MEMBER")

	body, err := OpenLinkBody(link, key)
	if err != nil {
		t.Fatalf("OpenLinkBody: %v", err)
	}
	if body.ActionType != "ADD_MEMBER" {
		t.Fatalf("ActionType = %q, want ADD_MEMBER", body.ActionType)
	}
}

func TestOpenLinkBodyWrongKeyFails(t *testing.T) {
	g := New()
	var key [primitives.SymmetricKeySize]byte
	signer := newTestSigner(t)
	link := appendTestLink(t, g, key, signer, "ADD_MEMBER")

	var wrongKey [primitives.SymmetricKeySize]byte
	wrongKey[0] = 1
	if _, err := OpenLinkBody(link, wrongKey); err == nil {
		t.Fatalf("OpenLinkBody should fail with the wrong team key")
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	a := New()
	var key [primitives.SymmetricKeySize]byte
	signer := newTestSigner(t)
	appendTestLink(t, a, key, signer, "ADD_MEMBER")

	b := New()
	if err := b.Merge(a); err != nil {
		t.Fatalf("first Merge: %v", err)
	}
	if err := b.Merge(a); err != nil {
		t.Fatalf("second Merge: %v", err)
	}
	if b.Len() != a.Len() {
		t.Fatalf("Len() = %d, want %d after idempotent merge", b.Len(), a.Len())
	}
}

func TestMergeIsCommutative(t *testing.T) {
	var key [primitives.SymmetricKeySize]byte
	signer := newTestSigner(t)

	base := New()
	appendTestLink(t, base, key, signer, "ADD_MEMBER")

	branchA := New()
	branchA.Merge(base)
	appendTestLink(t, branchA, key, signer, "ADD_ROLE")

	branchB := New()
	branchB.Merge(base)
	appendTestLink(t, branchB, key, signer, "ADD_DEVICE")

	mergedAB := New()
	mergedAB.Merge(branchA)
	mergedAB.Merge(branchB)

	mergedBA := New()
	mergedBA.Merge(branchB)
	mergedBA.Merge(branchA)

	if mergedAB.Len() != mergedBA.Len() {
		t.Fatalf("merge order changed link count: %d vs %d", mergedAB.Len(), mergedBA.Len())
	}
	headAB := mergedAB.Head()
	headBA := mergedBA.Head()
	if len(headAB) != len(headBA) {
		t.Fatalf("merge order changed head shape: %v vs %v", headAB, headBA)
	}
}

func TestGetPredecessorsAndIsPredecessor(t *testing.T) {
	g := New()
	var key [primitives.SymmetricKeySize]byte
	signer := newTestSigner(t)

	root := appendTestLink(t, g, key, signer, "ADD_MEMBER")
	second := appendTestLink(t, g, key, signer, "ADD_ROLE")

	preds, err := g.GetPredecessors(second.Hash)
	if err != nil {
		t.Fatalf("GetPredecessors: %v", err)
	}
	if len(preds) != 1 || preds[0] != root.Hash {
		t.Fatalf("GetPredecessors(second) = %v, want [%v]", preds, root.Hash)
	}

	isPred, err := g.IsPredecessor(root.Hash, second.Hash)
	if err != nil {
		t.Fatalf("IsPredecessor: %v", err)
	}
	if !isPred {
		t.Fatalf("IsPredecessor(root, second) = false, want true")
	}

	isPred, err = g.IsPredecessor(second.Hash, root.Hash)
	if err != nil {
		t.Fatalf("IsPredecessor: %v", err)
	}
	if isPred {
		t.Fatalf("IsPredecessor(second, root) = true, want false")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	g := New()
	var key [primitives.SymmetricKeySize]byte
	signer := newTestSigner(t)
	appendTestLink(t, g, key, signer, "ADD_MEMBER")
	appendTestLink(t, g, key, signer, "ADD_ROLE")

	data, err := g.Save()
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.Len() != g.Len() {
		t.Fatalf("loaded.Len() = %d, want %d", loaded.Len(), g.Len())
	}
	origHead := g.Head()
	loadedHead := loaded.Head()
	if len(origHead) != len(loadedHead) || origHead[0] != loadedHead[0] {
		t.Fatalf("loaded head = %v, want %v", loadedHead, origHead)
	}
}

func TestTopoSortDeterministic(t *testing.T) {
	g := New()
	var key [primitives.SymmetricKeySize]byte
	signer := newTestSigner(t)
	appendTestLink(t, g, key, signer, "ADD_MEMBER")
	appendTestLink(t, g, key, signer, "ADD_ROLE")
	appendTestLink(t, g, key, signer, "ADD_DEVICE")

	order1 := TopoSort(g, nil)
	order2 := TopoSort(g, nil)
	if len(order1) != len(order2) {
		t.Fatalf("TopoSort returned different lengths across calls")
	}
	for i := range order1 {
		if order1[i] != order2[i] {
			t.Fatalf("TopoSort is not deterministic at index %d", i)
		}
	}
}
