// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"fmt"

	"github.com/concord-team/concord/keyset"
	"github.com/concord-team/concord/lib/codec"
	"github.com/concord-team/concord/primitives"
)

// sealedTeamKeyAAD binds a sealed team-key handoff to its purpose, so
// the ciphertext can never be replayed as some other sealed payload
// sharing the same recipient key.
const sealedTeamKeyAAD = "concord.connection.accept_invitation.team_key"

// SealTeamKeyFor encrypts the team-scope keyset this principal
// currently holds to recipientPublic. A brand new member or device
// admitted via invitation holds no team key at all — every link in
// the graph, including the very ADMIT_MEMBER/ADMIT_DEVICE link that
// names them, is encrypted under it — so there is no way to bootstrap
// them purely from the graph and their own freshly generated keys.
// This is the out-of-band handoff a Connection's ACCEPT_INVITATION
// message carries to close that gap; every other scope the new
// principal needs becomes reachable afterward through the ordinary
// Lockbox closure once they can derive State at all.
func (t *Team) SealTeamKeyFor(recipientPublic primitives.EncryptionPublicKey) ([]byte, error) {
	teamRef, ok := currentRef(t.held, t.teamScope)
	if !ok {
		return nil, fmt.Errorf("team: no team key held locally to seal")
	}
	ks := t.held[teamRef.String()]

	payload := escrowedSecret{
		Scope:            ks.Scope,
		Generation:       ks.Generation,
		SigningSecret:    append([]byte(nil), ks.SigningKeypair.Secret()[:32]...),
		EncryptionSecret: append([]byte(nil), ks.EncryptionKeypair.Secret()...),
	}
	plaintext, err := codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("team: encoding sealed team key: %w", err)
	}

	box, err := primitives.EncryptSealed(recipientPublic, plaintext, []byte(sealedTeamKeyAAD))
	if err != nil {
		return nil, fmt.Errorf("team: sealing team key: %w", err)
	}
	sealed, err := codec.Marshal(box)
	if err != nil {
		return nil, fmt.Errorf("team: encoding sealed box: %w", err)
	}
	return sealed, nil
}

// OpenTeamKeySeal decrypts a blob produced by SealTeamKeyFor using the
// recipient's own encryption keypair, reconstructing the team keyset
// ready to seed the held map passed to Load.
func OpenTeamKeySeal(sealed []byte, recipientKeypair *primitives.EncryptionKeypair) (*keyset.KeysetWithSecrets, error) {
	var box primitives.SealedBox
	if err := codec.Unmarshal(sealed, &box); err != nil {
		return nil, fmt.Errorf("team: decoding sealed box: %w", err)
	}
	plaintext, err := primitives.DecryptSealed(recipientKeypair, &box, []byte(sealedTeamKeyAAD))
	if err != nil {
		return nil, fmt.Errorf("team: opening sealed team key: %w", err)
	}

	var payload escrowedSecret
	if err := codec.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("team: decoding sealed team key: %w", err)
	}

	signing, err := primitives.SigningKeypairFromSeed(payload.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("team: reconstructing team signing key: %w", err)
	}
	encryption, err := primitives.EncryptionKeypairFromSeed(payload.EncryptionSecret)
	if err != nil {
		signing.Close()
		return nil, fmt.Errorf("team: reconstructing team encryption key: %w", err)
	}

	return &keyset.KeysetWithSecrets{
		Keyset: keyset.Keyset{
			Scope:         payload.Scope,
			Generation:    payload.Generation,
			SigningPublic: signing.Public,
			EncryptPublic: encryption.Public,
		},
		SigningKeypair:    signing,
		EncryptionKeypair: encryption,
	}, nil
}
