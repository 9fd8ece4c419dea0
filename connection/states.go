// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import "github.com/concord-team/concord/primitives"

// Phase is the top-level connection lifecycle state.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseAwaitingIdentityClaim
	PhaseAuthenticating
	PhaseSynchronizing
	PhaseNegotiating
	PhaseConnected
)

// String renders p for logging.
func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseAwaitingIdentityClaim:
		return "awaitingIdentityClaim"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseSynchronizing:
		return "synchronizing"
	case PhaseNegotiating:
		return "negotiating"
	case PhaseConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// provingPhase tracks this side's own progress proving its identity
// (or invitation) to the peer — the "provingMyIdentity" parallel
// region.
type provingPhase int

const (
	provingIdle provingPhase = iota
	provingAwaitingChallenge
	provingAwaitingAcceptance
	provingDone
)

// verifyingPhase tracks this side's progress verifying the peer's
// claimed identity or invitation — the "verifyingTheirIdentity"
// parallel region.
type verifyingPhase int

const (
	verifyingIdle verifyingPhase = iota
	verifyingAwaitingProof
	verifyingDone
)

// invitationPhase additionally tracks invitation handling, run in
// parallel with the identity regions whenever this connection is
// bootstrapping a brand new member or device rather than
// authenticating an existing one. invitationNone means this
// connection never enters that region at all.
type invitationPhase int

const (
	invitationNone invitationPhase = iota
	invitationAwaitingAcceptance // invitee: proof sent, waiting for ACCEPT_INVITATION
	invitationValidating        // admitter: received proof, deciding
	invitationDone
)

// State is the complete connection state: the top-level Phase plus
// whatever the currently active phase needs to remember between
// transitions. Unused fields for the current Phase are left zero.
//
// State is a plain value a caller can compare, log, or snapshot; all
// of the behavior lives in Step, not in State's methods.
type State struct {
	Phase Phase

	// Authenticating sub-state. Proving/Verifying are the two
	// always-present parallel regions; Invitation is a third region
	// only active when ViaInvitation is true.
	Proving      provingPhase
	Verifying    verifyingPhase
	Invitation   invitationPhase
	ViaInvitation bool

	// PeerUserID/PeerDeviceName identify the peer once their HELLO (or
	// a successfully admitted invitation) names them.
	PeerUserID     string
	PeerDeviceName string

	// LocalNonce is the nonce this side issued as verifier, awaiting
	// the peer's PROVE_IDENTITY in answer.
	LocalNonce []byte

	// InvitationID is set once an invitation claim or admission names
	// one, for REVOKE/use-count bookkeeping and the ACCEPT_INVITATION
	// payload's own record of which invitation it satisfies.
	InvitationID string

	// Synchronizing sub-state.
	PeerHead    []primitives.Hash
	LocalSynced bool // this side has announced its own frontier at least once
	PeerSynced  bool // the peer's last SYNC reported a frontier matching ours

	// Expanding parent-map exchange, entered whenever PeerHead diverges
	// from this side's own head. LocalParentMap/PeerParentMap accumulate
	// across rounds (never shrink); ExpandDepth is the hop count the
	// most recent round covered, doubling each round up to the graph's
	// Diameter so the ring always terminates.
	LocalParentMap map[primitives.Hash][]primitives.Hash
	PeerParentMap  map[primitives.Hash][]primitives.Hash
	ExpandDepth    int

	// Negotiating sub-state.
	LocalSeed []byte // this side's random half of the session key, pending the peer's
}

// authenticationComplete reports whether every active parallel region
// of the authenticating phase has reached its terminal state.
func (s State) authenticationComplete() bool {
	if s.Proving != provingDone || s.Verifying != verifyingDone {
		return false
	}
	if s.ViaInvitation && s.Invitation != invitationDone {
		return false
	}
	return true
}
