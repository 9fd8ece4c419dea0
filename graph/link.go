// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"

	"github.com/concord-team/concord/concorderr"
	"github.com/concord-team/concord/lib/codec"
	"github.com/concord-team/concord/primitives"
)

// LinkBody is the plaintext content of one graph entry before it is
// encrypted. ActionType and Payload are opaque to this package — the
// team package encodes a TeamAction into Payload and reads it back out
// after decryption.
type LinkBody struct {
	ActionType   string                      `cbor:"action_type"`
	Payload      []byte                      `cbor:"payload"`
	UserPublic   primitives.SigningPublicKey `cbor:"user_public"`
	DevicePublic primitives.SigningPublicKey `cbor:"device_public"`
	Timestamp    int64                       `cbor:"timestamp"`
	Prev         []primitives.Hash           `cbor:"prev"`
}

// Link is one signed, encrypted entry in the graph. Hash is the
// content hash of EncryptedBody and is the link's unique ID.
type Link struct {
	Hash          primitives.Hash             `cbor:"hash"`
	Generation    uint64                      `cbor:"generation"`
	EncryptedBody []byte                      `cbor:"encrypted_body"`
	Signature     primitives.Signature        `cbor:"signature"`
	SignerPublic  primitives.SigningPublicKey `cbor:"signer_public"`
}

// sealLink encrypts body under teamKey, hashes the ciphertext, and
// signs the hash with signer. It is the core of Append (used by every
// link-producing team operation) and is unexported: every
// TeamAction-producing operation funnels through graph.Append, which
// keeps the encryption/signing/hashing invariant in one place.
func sealLink(body LinkBody, generation uint64, teamKey [primitives.SymmetricKeySize]byte, signer *primitives.SigningKeypair) (*Link, error) {
	plaintext, err := codec.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("graph: encoding link body: %w", err)
	}

	aad := generationAAD(generation)
	ciphertext, err := primitives.EncryptSymmetric(teamKey, plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("graph: encrypting link body: %w", err)
	}

	hash := primitives.HashLink(ciphertext)
	sig := primitives.Sign(signer, hash[:])

	return &Link{
		Hash:          hash,
		Generation:    generation,
		EncryptedBody: ciphertext,
		Signature:     sig,
		SignerPublic:  signer.Public,
	}, nil
}

// OpenLinkBody verifies a link's signature and decrypts its body using
// the team keyset generation it was encrypted under. Failure to
// decrypt or verify is always a fatal graph-integrity error per spec
// §4.1; callers (the team reducer) propagate concorderr.KindGraphCorrupt
// or concorderr.KindDecryptionFailed rather than attempting recovery.
func OpenLinkBody(link *Link, teamKey [primitives.SymmetricKeySize]byte) (LinkBody, error) {
	if !primitives.Verify(link.SignerPublic, link.Hash[:], link.Signature) {
		return LinkBody{}, concorderr.New(concorderr.KindSignatureInvalid, fmt.Sprintf("link %s", link.Hash))
	}
	if primitives.HashLink(link.EncryptedBody) != link.Hash {
		return LinkBody{}, concorderr.New(concorderr.KindGraphCorrupt, fmt.Sprintf("link %s hash does not match its encrypted body", link.Hash))
	}

	plaintext, err := primitives.DecryptSymmetric(teamKey, link.EncryptedBody, generationAAD(link.Generation))
	if err != nil {
		return LinkBody{}, concorderr.Wrap(concorderr.KindDecryptionFailed, err, fmt.Sprintf("link %s", link.Hash))
	}

	var body LinkBody
	if err := codec.Unmarshal(plaintext, &body); err != nil {
		return LinkBody{}, concorderr.Wrap(concorderr.KindGraphCorrupt, err, fmt.Sprintf("decoding link %s body", link.Hash))
	}
	return body, nil
}

// generationAAD binds a link's ciphertext to the team keyset
// generation it claims to be encrypted under, so a link cannot be
// replayed as if it were encrypted under a different generation.
func generationAAD(generation uint64) []byte {
	return []byte(fmt.Sprintf("concord.graph.link.generation.%d", generation))
}
