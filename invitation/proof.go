// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package invitation

import (
	"fmt"

	"github.com/concord-team/concord/concorderr"
	"github.com/concord-team/concord/primitives"
)

// Proof is what an invitee presents to prove possession of an
// invitation's seed: a signature over the invitation's own ID, made
// with the keypair the seed deterministically derives.
type Proof struct {
	ID        string
	Signature primitives.Signature
}

// GenerateProof re-derives the invitation keypair from seed and signs
// the invitation's ID with it. The signed challenge is fixed (the ID
// itself, not a server-issued nonce) since a Seitan invitation proof
// has no round trip to a server to fetch one from.
func GenerateProof(seed string) (Proof, error) {
	normalized := NormalizeSeed(seed)
	keypair, err := deriveKeypair(normalized)
	if err != nil {
		return Proof{}, fmt.Errorf("invitation: deriving keypair: %w", err)
	}
	defer keypair.Close()

	id := IDFromPublicKey(keypair.Public)
	sig := primitives.Sign(keypair, []byte(id))
	return Proof{ID: id, Signature: sig}, nil
}

// Validate checks proof against rec: the IDs must agree and the
// signature must verify under rec's stored public key. It does not
// check expiration, revocation, or use count — that's CanBeUsed's job,
// kept separate so a caller can distinguish "this isn't even the right
// invitation" from "this invitation is no longer usable".
func Validate(proof Proof, rec Record) error {
	if proof.ID != rec.ID {
		return concorderr.New(concorderr.KindInvalidInvitation, "proof ID does not match invitation ID")
	}
	if !primitives.Verify(rec.PublicKey, []byte(rec.ID), proof.Signature) {
		return concorderr.New(concorderr.KindIdentityProofInvalid, "invitation proof signature does not verify")
	}
	return nil
}
