// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package invitation

import "testing"

func TestInvitationRoundTrip(t *testing.T) {
	created, err := Create("abc 123")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	proof, err := GenerateProof("abc123")
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}
	if proof.ID != created.ID {
		t.Fatalf("proof ID = %q, want %q", proof.ID, created.ID)
	}

	rec := Record{ID: created.ID, PublicKey: created.PublicKey, MaxUses: 1}
	if err := Validate(proof, rec); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !CanBeUsed(rec, 0) {
		t.Fatalf("a fresh invitation should be usable")
	}
}

func TestValidateRejectsWrongSeed(t *testing.T) {
	created, err := Create("abc123")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	proof, err := GenerateProof("wrong-seed")
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}

	rec := Record{ID: created.ID, PublicKey: created.PublicKey, MaxUses: 1}
	if err := Validate(proof, rec); err == nil {
		t.Fatalf("Validate should reject a proof from the wrong seed")
	}
}

func TestValidateRejectsTamperedSignature(t *testing.T) {
	created, err := Create("abc123")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	proof, err := GenerateProof("abc123")
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}
	proof.Signature[0] ^= 0xFF

	rec := Record{ID: created.ID, PublicKey: created.PublicKey, MaxUses: 1}
	if err := Validate(proof, rec); err == nil {
		t.Fatalf("Validate should reject a tampered signature")
	}
}
