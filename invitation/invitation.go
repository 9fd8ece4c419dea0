// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package invitation

import (
	"fmt"

	"github.com/concord-team/concord/primitives"
)

// idPrefixLength is how many bytes of the invitation public key become
// the invitation's ID: enough to make collisions practically
// impossible within any one team, short enough to read aloud.
const idPrefixLength = 16

// Created is what Create returns: enough for the inviting member to
// record an INVITE_MEMBER or INVITE_DEVICE action without ever holding
// the invitation's secret key.
type Created struct {
	ID        string
	PublicKey primitives.SigningPublicKey
}

// Record is the caller's view of one invitation's policy fields —
// deliberately independent of team.Invitation so this package never
// needs to import team. A caller converts between the two at whatever
// boundary makes sense for their application.
type Record struct {
	ID         string
	PublicKey  primitives.SigningPublicKey
	Expiration int64 // unix seconds; zero means no expiration
	MaxUses    uint32
	Uses       uint32
	Revoked    bool
	// UserID pins a device invitation to an existing member; empty for
	// a member invitation.
	UserID string
}

// Create deterministically derives an invitation signing keypair from
// the normalized seed and returns its ID and public key. The seed
// itself never leaves the caller — the two parties who already know it
// are the only ones who can ever regenerate this keypair.
func Create(seed string) (Created, error) {
	normalized := NormalizeSeed(seed)
	if normalized == "" {
		return Created{}, fmt.Errorf("invitation: seed normalizes to empty string")
	}

	keypair, err := deriveKeypair(normalized)
	if err != nil {
		return Created{}, fmt.Errorf("invitation: deriving keypair: %w", err)
	}
	defer keypair.Close()

	return Created{
		ID:        IDFromPublicKey(keypair.Public),
		PublicKey: keypair.Public,
	}, nil
}

// IDFromPublicKey derives an invitation's ID from its public key: the
// base58 encoding of the key's leading idPrefixLength bytes. Create
// and GenerateProof both call this so a seed always maps to the same
// ID regardless of which side computed it.
func IDFromPublicKey(pub primitives.SigningPublicKey) string {
	return primitives.EncodeBase58(pub[:idPrefixLength])
}

// CanBeUsed reports whether rec is currently redeemable: not revoked,
// under its use limit, and (if it has one) not yet expired.
func CanBeUsed(rec Record, now int64) bool {
	if rec.Revoked {
		return false
	}
	if rec.Uses >= rec.MaxUses {
		return false
	}
	if rec.Expiration != 0 && now >= rec.Expiration {
		return false
	}
	return true
}
