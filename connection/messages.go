// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"github.com/concord-team/concord/concorderr"
	"github.com/concord-team/concord/graph"
	"github.com/concord-team/concord/invitation"
	"github.com/concord-team/concord/primitives"
)

// MessageType discriminates a Message's concrete payload, stored on
// the wire so the receiving Step knows which field to read.
type MessageType string

const (
	MessageHello             MessageType = "HELLO"
	MessageAcceptInvitation  MessageType = "ACCEPT_INVITATION"
	MessageChallengeIdentity MessageType = "CHALLENGE_IDENTITY"
	MessageProveIdentity     MessageType = "PROVE_IDENTITY"
	MessageAcceptIdentity    MessageType = "ACCEPT_IDENTITY"
	MessageRejectIdentity    MessageType = "REJECT_IDENTITY"
	MessageSync              MessageType = "SYNC"
	MessageSeed              MessageType = "SEED"
	MessageDisconnect        MessageType = "DISCONNECT"
)

// Message is the envelope carried over the channel. Exactly one of
// the payload fields is populated, matching Type. All non-HELLO
// traffic after authentication completes is expected to travel
// wrapped under the negotiated session key — Driver, not Step, owns
// that wrapping, so Message itself is always the plaintext shape.
type Message struct {
	Type MessageType `cbor:"type"`

	Hello             *HelloPayload             `cbor:"hello,omitempty"`
	AcceptInvitation  *AcceptInvitationPayload  `cbor:"accept_invitation,omitempty"`
	ChallengeIdentity *ChallengeIdentityPayload `cbor:"challenge_identity,omitempty"`
	ProveIdentity     *ProveIdentityPayload     `cbor:"prove_identity,omitempty"`
	AcceptIdentity    *AcceptIdentityPayload    `cbor:"accept_identity,omitempty"`
	RejectIdentity    *RejectIdentityPayload    `cbor:"reject_identity,omitempty"`
	Sync              *SyncPayload              `cbor:"sync,omitempty"`
	Seed              *SeedPayload              `cbor:"seed,omitempty"`
	Disconnect        *DisconnectPayload        `cbor:"disconnect,omitempty"`
}

// IdentityClaim names an existing device this side is asserting it
// controls.
type IdentityClaim struct {
	UserID     string `cbor:"user_id"`
	DeviceName string `cbor:"device_name"`
}

// InvitationClaim is presented instead of an IdentityClaim by a party
// that holds no team state yet. The keys are the invitee's own
// freshly minted, permanent keys — never derived from the invitation
// seed. A member invitation carries both pairs (the new member gets a
// member identity and its first device in the same admission); a
// device invitation carries only the device pair, since UserID already
// names the member it extends.
type InvitationClaim struct {
	Proof invitation.Proof `cbor:"proof"`

	MemberSigning    primitives.SigningPublicKey    `cbor:"member_signing,omitempty"`
	MemberEncryption primitives.EncryptionPublicKey `cbor:"member_encryption,omitempty"`
	DeviceSigning    primitives.SigningPublicKey    `cbor:"device_signing"`
	DeviceEncryption primitives.EncryptionPublicKey `cbor:"device_encryption"`

	// ForDevice distinguishes a device invitation (extending UserID
	// with a new device) from a member invitation (UserName names a
	// brand new member).
	ForDevice bool `cbor:"for_device"`

	// UserName is set when redeeming a member invitation.
	UserName string `cbor:"user_name,omitempty"`
	// UserID/DeviceName are set for both kinds of invitation: for a
	// member invitation UserID is the new member's ID, for a device
	// invitation it names the existing member this device extends.
	UserID     string `cbor:"user_id,omitempty"`
	DeviceName string `cbor:"device_name,omitempty"`
}

// HelloPayload opens a connection: exactly one of Claim or Invitation
// is set.
type HelloPayload struct {
	Claim      *IdentityClaim   `cbor:"claim,omitempty"`
	Invitation *InvitationClaim `cbor:"invitation,omitempty"`
}

// AcceptInvitationPayload is the admitting side's reply once it has
// appended the ADMIT_MEMBER/ADMIT_DEVICE link: the graph snapshot plus
// the team's current keyset, sealed to the invitee's encryption key so
// they can decrypt it (see team.SealTeamKeyFor).
type AcceptInvitationPayload struct {
	Graph         []byte `cbor:"graph"`
	SealedTeamKey []byte `cbor:"sealed_team_key"`
	InvitationID  string `cbor:"invitation_id"`
}

// ChallengeIdentityPayload carries a fresh nonce the prover must sign
// over, together with its own device identity and a timestamp, to
// prove control of the device's signature secret.
type ChallengeIdentityPayload struct {
	Nonce []byte `cbor:"nonce"`
}

// ProveIdentityPayload is the prover's signed response to a
// ChallengeIdentityPayload.
type ProveIdentityPayload struct {
	Nonce     []byte               `cbor:"nonce"`
	Timestamp int64                `cbor:"timestamp"`
	Signature primitives.Signature `cbor:"signature"`
}

// AcceptIdentityPayload confirms a PROVE_IDENTITY verified.
type AcceptIdentityPayload struct{}

// RejectIdentityPayload reports why a PROVE_IDENTITY did not verify.
type RejectIdentityPayload struct {
	Kind concorderr.Kind `cbor:"kind"`
}

// SyncPayload announces this side's current frontier and, when the
// two sides' heads diverge, carries exactly one round of the
// expanding parent-map exchange that narrows down a common frontier.
// At most one of ParentMap, Links, or Graph is populated on any given
// message: ParentMap is one round of the expansion; once both sides
// have found where their histories agree, Links carries precisely the
// links the recipient is missing (with ParentMap now repurposed to
// give each of those links' immediate predecessors); Graph is the
// last-resort full snapshot, sent only if expansion exhausts the
// graph's diameter without ever finding a common frontier. See
// machine.go's synchronizing-phase handling for the exchange this
// implements.
type SyncPayload struct {
	Head      []primitives.Hash                     `cbor:"head"`
	ParentMap map[primitives.Hash][]primitives.Hash `cbor:"parent_map,omitempty"`
	Links     []graph.Link                           `cbor:"links,omitempty"`
	Graph     []byte                                 `cbor:"graph,omitempty"`
}

// SeedPayload carries this side's half of the session key, sealed to
// the peer's device encryption key.
type SeedPayload struct {
	Sealed primitives.SealedBox `cbor:"sealed"`
}

// DisconnectPayload explains why the sender is tearing the connection
// down.
type DisconnectPayload struct {
	Kind concorderr.Kind `cbor:"kind"`
}
