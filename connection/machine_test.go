// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"testing"

	"github.com/concord-team/concord/concorderr"
	"github.com/concord-team/concord/graph"
	"github.com/concord-team/concord/invitation"
	"github.com/concord-team/concord/keyset"
	"github.com/concord-team/concord/primitives"
	"github.com/concord-team/concord/team"
)

func newTestTeam(t *testing.T, teamName, userID, userName, deviceName string) *team.Team {
	t.Helper()
	tm, err := team.CreateTeam(teamName, userID, userName, deviceName, nil, nil)
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	return tm
}

func TestStepDisconnectedIgnoresNonStartEvents(t *testing.T) {
	s, actions := Step(State{}, Event{Kind: EventMessageReceived}, Environment{})
	if s.Phase != PhaseDisconnected || actions != nil {
		t.Fatalf("expected no-op, got %+v %+v", s, actions)
	}
}

func TestStepDisconnectedSendsIdentityClaim(t *testing.T) {
	env := Environment{Self: Identity{UserID: "alice", DeviceName: "alice-phone"}}
	s, actions := Step(State{}, Event{Kind: EventStart}, env)

	if s.Phase != PhaseAwaitingIdentityClaim {
		t.Fatalf("phase = %v, want PhaseAwaitingIdentityClaim", s.Phase)
	}
	if len(actions) != 2 {
		t.Fatalf("actions = %+v, want 2", actions)
	}
	send := actions[1]
	if send.Type != ActionSend || send.Message.Type != MessageHello {
		t.Fatalf("second action = %+v, want ActionSend(HELLO)", send)
	}
	if send.Message.Hello.Claim == nil || send.Message.Hello.Claim.UserID != "alice" {
		t.Fatalf("hello claim = %+v", send.Message.Hello.Claim)
	}
	if send.Message.Hello.Invitation != nil {
		t.Fatalf("expected no invitation claim for a non-invitee")
	}
}

func TestStepDisconnectedSendsMemberInvitationClaim(t *testing.T) {
	userSecrets, err := keyset.Generate(mustScope(t, keyset.ScopeUser, "carol"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	deviceSecrets, err := keyset.Generate(mustScope(t, keyset.ScopeDevice, "carol-phone"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	env := Environment{Self: Identity{
		UserID: "carol", DeviceName: "carol-phone", UserName: "Carol",
		IsInvitee: true, Seed: "correct horse battery staple",
		UserSecrets: userSecrets, DeviceSecrets: deviceSecrets,
	}}
	s, actions := Step(State{}, Event{Kind: EventStart}, env)

	if s.Phase != PhaseAwaitingIdentityClaim || !s.ViaInvitation || s.Invitation != invitationAwaitingAcceptance {
		t.Fatalf("state = %+v", s)
	}
	claim := actions[1].Message.Hello.Invitation
	if claim == nil {
		t.Fatalf("expected an invitation claim")
	}
	if claim.MemberSigning != userSecrets.SigningPublic || claim.DeviceSigning != deviceSecrets.SigningPublic {
		t.Fatalf("claim keys = %+v, want member/device keys to match generated secrets", claim)
	}
	if claim.ForDevice {
		t.Fatalf("expected a member invitation, got ForDevice = true")
	}
}

func TestStepDisconnectedSendsDeviceInvitationClaim(t *testing.T) {
	deviceSecrets, err := keyset.Generate(mustScope(t, keyset.ScopeDevice, "carol-tablet"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	env := Environment{Self: Identity{
		UserID: "carol", DeviceName: "carol-tablet",
		IsInvitee: true, ForDevice: true, Seed: "another seed",
		DeviceSecrets: deviceSecrets,
	}}
	_, actions := Step(State{}, Event{Kind: EventStart}, env)

	claim := actions[1].Message.Hello.Invitation
	if !claim.ForDevice {
		t.Fatalf("expected ForDevice = true")
	}
	if claim.MemberSigning != (primitives.SigningPublicKey{}) {
		t.Fatalf("device invitation should carry no member keys, got %+v", claim.MemberSigning)
	}
}

func mustScope(t *testing.T, kind keyset.ScopeType, name string) keyset.Scope {
	t.Helper()
	scope, err := keyset.NewScope(kind, name)
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	return scope
}

func TestStepAwaitingIdentityClaimExistingMemberUnlocksChallenge(t *testing.T) {
	tm := newTestTeam(t, "Acme", "alice", "Alice", "alice-phone")
	env := Environment{Team: tm, Self: Identity{UserID: "alice", DeviceName: "alice-phone"}}

	s := State{Phase: PhaseAwaitingIdentityClaim}
	msg := &Message{Type: MessageHello, Hello: &HelloPayload{Claim: &IdentityClaim{UserID: "bob", DeviceName: "bob-phone"}}}
	next, actions := Step(s, Event{Kind: EventMessageReceived, Message: msg}, env)

	if next.Phase != PhaseAuthenticating || next.PeerUserID != "bob" {
		t.Fatalf("state = %+v", next)
	}
	if next.Verifying != verifyingAwaitingProof {
		t.Fatalf("verifying = %v, want awaiting proof", next.Verifying)
	}
	var sawChallenge bool
	for _, a := range actions {
		if a.Type == ActionSend && a.Message.Type == MessageChallengeIdentity {
			sawChallenge = true
		}
	}
	if !sawChallenge {
		t.Fatalf("actions = %+v, want a CHALLENGE_IDENTITY send", actions)
	}
}

func TestStepAwaitingIdentityClaimValidInvitationAdmits(t *testing.T) {
	tm := newTestTeam(t, "Acme", "admin", "Admin", "admin-device")
	created, err := invitation.Create("pond otter violin")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tm.InviteMember(created.ID, created.PublicKey, 0, 1); err != nil {
		t.Fatalf("InviteMember: %v", err)
	}
	proof, err := invitation.GenerateProof("pond otter violin")
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}

	env := Environment{Team: tm, Self: Identity{UserID: "admin", DeviceName: "admin-device"}}
	s := State{Phase: PhaseAwaitingIdentityClaim}
	msg := &Message{Type: MessageHello, Hello: &HelloPayload{Invitation: &InvitationClaim{
		Proof: proof, UserID: "carol", UserName: "Carol", DeviceName: "carol-phone",
	}}}
	next, actions := Step(s, Event{Kind: EventMessageReceived, Message: msg}, env)

	if next.Phase != PhaseAuthenticating || next.Invitation != invitationValidating {
		t.Fatalf("state = %+v", next)
	}
	var admit *Action
	for i := range actions {
		if actions[i].Type == ActionAdmitMember {
			admit = &actions[i]
		}
	}
	if admit == nil {
		t.Fatalf("actions = %+v, want ActionAdmitMember", actions)
	}
	if admit.AdmitUserID != "carol" || admit.AdmitInvitationID != proof.ID {
		t.Fatalf("admit action = %+v", admit)
	}
	// The peer isn't a recognized principal until admission lands, so
	// no challenge should go out yet.
	for _, a := range actions {
		if a.Type == ActionSend && a.Message.Type == MessageChallengeIdentity {
			t.Fatalf("challenged before admission completed: %+v", actions)
		}
	}
}

func TestStepAwaitingIdentityClaimRejectsUnknownInvitation(t *testing.T) {
	tm := newTestTeam(t, "Acme", "admin", "Admin", "admin-device")
	env := Environment{Team: tm, Self: Identity{UserID: "admin", DeviceName: "admin-device"}}
	proof := invitation.Proof{ID: "nonexistent"}
	msg := &Message{Type: MessageHello, Hello: &HelloPayload{Invitation: &InvitationClaim{Proof: proof, UserID: "carol"}}}

	next, actions := Step(State{Phase: PhaseAwaitingIdentityClaim}, Event{Kind: EventMessageReceived, Message: msg}, env)

	if next.Phase != PhaseDisconnected {
		t.Fatalf("phase = %v, want disconnected", next.Phase)
	}
	var rejected bool
	for _, a := range actions {
		if a.Type == ActionSend && a.Message.Type == MessageRejectIdentity {
			rejected = true
			if a.Message.RejectIdentity.Kind != concorderr.KindInvalidInvitation {
				t.Fatalf("reject kind = %v", a.Message.RejectIdentity.Kind)
			}
		}
	}
	if !rejected {
		t.Fatalf("actions = %+v, want a REJECT_IDENTITY send", actions)
	}
}

func TestStepAwaitingIdentityClaimRejectsRevokedInvitation(t *testing.T) {
	tm := newTestTeam(t, "Acme", "admin", "Admin", "admin-device")
	created, err := invitation.Create("seed two")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tm.InviteMember(created.ID, created.PublicKey, 0, 1); err != nil {
		t.Fatalf("InviteMember: %v", err)
	}
	if err := tm.RevokeInvitation(created.ID); err != nil {
		t.Fatalf("RevokeInvitation: %v", err)
	}
	proof, err := invitation.GenerateProof("seed two")
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}

	env := Environment{Team: tm, Self: Identity{UserID: "admin", DeviceName: "admin-device"}}
	msg := &Message{Type: MessageHello, Hello: &HelloPayload{Invitation: &InvitationClaim{Proof: proof, UserID: "carol"}}}
	_, actions := Step(State{Phase: PhaseAwaitingIdentityClaim}, Event{Kind: EventMessageReceived, Message: msg}, env)

	for _, a := range actions {
		if a.Type == ActionSend && a.Message.Type == MessageRejectIdentity {
			if a.Message.RejectIdentity.Kind != concorderr.KindRevokedInvitation {
				t.Fatalf("reject kind = %v, want KindRevokedInvitation", a.Message.RejectIdentity.Kind)
			}
			return
		}
	}
	t.Fatalf("actions = %+v, want a REJECT_IDENTITY send", actions)
}

func TestStepAuthenticatingAdmittedSendsAcceptInvitation(t *testing.T) {
	s := State{Phase: PhaseAuthenticating, InvitationID: "inv-1", ViaInvitation: true, Invitation: invitationValidating}
	next, actions := Step(s, Event{Kind: EventAdmitted, Graph: []byte("graph"), SealedTeamKey: []byte("sealed")}, Environment{})

	if next.Invitation != invitationDone {
		t.Fatalf("invitation = %v, want done", next.Invitation)
	}
	if len(actions) != 1 || actions[0].Type != ActionSend || actions[0].Message.Type != MessageAcceptInvitation {
		t.Fatalf("actions = %+v", actions)
	}
	payload := actions[0].Message.AcceptInvitation
	if payload.InvitationID != "inv-1" || string(payload.Graph) != "graph" || string(payload.SealedTeamKey) != "sealed" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestStepAuthenticatingAdmissionFailedDisconnects(t *testing.T) {
	s := State{Phase: PhaseAuthenticating}
	next, actions := Step(s, Event{Kind: EventAdmissionFailed, Kind2: concorderr.KindUsedInvitation}, Environment{})

	if next.Phase != PhaseDisconnected {
		t.Fatalf("phase = %v, want disconnected", next.Phase)
	}
	foundReject, foundErr := false, false
	for _, a := range actions {
		if a.Type == ActionSend && a.Message.Type == MessageRejectIdentity {
			foundReject = true
		}
		if a.Type == ActionEmitLocalErr && a.Kind == concorderr.KindUsedInvitation {
			foundErr = true
		}
	}
	if !foundReject || !foundErr {
		t.Fatalf("actions = %+v", actions)
	}
}

func TestStepNegotiatingConnectsOnMatchingSeed(t *testing.T) {
	recipient, err := primitives.GenerateEncryptionKeypair()
	if err != nil {
		t.Fatalf("GenerateEncryptionKeypair: %v", err)
	}
	peerSeed := make([]byte, 32)
	for i := range peerSeed {
		peerSeed[i] = byte(i)
	}
	box, err := primitives.EncryptSealed(recipient.Public, peerSeed, []byte(sessionSeedAAD))
	if err != nil {
		t.Fatalf("EncryptSealed: %v", err)
	}

	localSeed := make([]byte, 32)
	for i := range localSeed {
		localSeed[i] = byte(255 - i)
	}
	s := State{Phase: PhaseNegotiating, PeerUserID: "bob", PeerDeviceName: "bob-phone", LocalSeed: localSeed}
	env := Environment{DeviceEncryptionKeypair: recipient}
	msg := &Message{Type: MessageSeed, Seed: &SeedPayload{Sealed: *box}}

	next, actions := Step(s, Event{Kind: EventMessageReceived, Message: msg}, env)

	if next.Phase != PhaseConnected {
		t.Fatalf("phase = %v, want connected", next.Phase)
	}
	var connected *Action
	for i := range actions {
		if actions[i].Type == ActionEmitConnected {
			connected = &actions[i]
		}
	}
	if connected == nil {
		t.Fatalf("actions = %+v, want ActionEmitConnected", actions)
	}
	for i, b := range connected.SessionKey {
		if b != localSeed[i]^peerSeed[i] {
			t.Fatalf("session key[%d] = %d, want %d", i, b, localSeed[i]^peerSeed[i])
		}
	}
}

func TestStepNegotiatingRejectsUndecryptableSeed(t *testing.T) {
	own, err := primitives.GenerateEncryptionKeypair()
	if err != nil {
		t.Fatalf("GenerateEncryptionKeypair: %v", err)
	}
	other, err := primitives.GenerateEncryptionKeypair()
	if err != nil {
		t.Fatalf("GenerateEncryptionKeypair: %v", err)
	}
	box, err := primitives.EncryptSealed(other.Public, make([]byte, 32), []byte(sessionSeedAAD))
	if err != nil {
		t.Fatalf("EncryptSealed: %v", err)
	}

	s := State{Phase: PhaseNegotiating, LocalSeed: make([]byte, 32)}
	env := Environment{DeviceEncryptionKeypair: own}
	msg := &Message{Type: MessageSeed, Seed: &SeedPayload{Sealed: *box}}

	next, actions := Step(s, Event{Kind: EventMessageReceived, Message: msg}, env)

	if next.Phase != PhaseDisconnected {
		t.Fatalf("phase = %v, want disconnected", next.Phase)
	}
	if len(actions) != 1 || actions[0].Type != ActionEmitLocalErr || actions[0].Kind != concorderr.KindDecryptionFailed {
		t.Fatalf("actions = %+v", actions)
	}
}

func TestEventTimeoutDisconnectsFromNonTerminalPhase(t *testing.T) {
	for _, phase := range []Phase{PhaseAwaitingIdentityClaim, PhaseAuthenticating, PhaseSynchronizing, PhaseNegotiating} {
		next, actions := Step(State{Phase: phase}, Event{Kind: EventTimeout}, Environment{})
		if next.Phase != PhaseDisconnected {
			t.Fatalf("phase %v: got %v, want disconnected", phase, next.Phase)
		}
		if len(actions) != 2 {
			t.Fatalf("phase %v: actions = %+v", phase, actions)
		}
	}
}

func TestEventTimeoutIsNoOpWhenDisconnectedOrConnected(t *testing.T) {
	for _, phase := range []Phase{PhaseDisconnected, PhaseConnected} {
		next, actions := Step(State{Phase: phase}, Event{Kind: EventTimeout}, Environment{})
		if next.Phase != phase || actions != nil {
			t.Fatalf("phase %v: got %v %+v, want no-op", phase, next.Phase, actions)
		}
	}
}

func TestEventStopTearsDownFromAnyNonDisconnectedPhase(t *testing.T) {
	for _, phase := range []Phase{PhaseAwaitingIdentityClaim, PhaseAuthenticating, PhaseSynchronizing, PhaseNegotiating, PhaseConnected} {
		s, actions := Step(State{Phase: phase}, Event{Kind: EventStop}, Environment{})
		if s.Phase != PhaseDisconnected {
			t.Fatalf("phase %v: got %v, want disconnected", phase, s.Phase)
		}
		if len(actions) != 1 || actions[0].Type != ActionCancelTimeout {
			t.Fatalf("phase %v: actions = %+v", phase, actions)
		}
	}
}

func TestStepSynchronizingBeginsParentMapExpansionOnDivergentHeads(t *testing.T) {
	tm := newTestTeam(t, "Acme", "alice", "Alice", "alice-phone")
	env := Environment{Team: tm}
	s := State{Phase: PhaseSynchronizing, LocalSynced: true}
	msg := &Message{Type: MessageSync, Sync: &SyncPayload{Head: []primitives.Hash{{1, 2, 3}}}}

	next, actions := Step(s, Event{Kind: EventMessageReceived, Message: msg}, env)

	if next.PeerSynced {
		t.Fatalf("peer should not be marked synced on divergent heads")
	}
	if next.ExpandDepth == 0 || len(next.LocalParentMap) == 0 {
		t.Fatalf("expected the parent-map expansion to have started, got %+v", next)
	}
	if len(actions) != 1 || actions[0].Type != ActionSend || actions[0].Message.Type != MessageSync {
		t.Fatalf("actions = %+v, want a single SYNC", actions)
	}
	sent := actions[0].Message.Sync
	if len(sent.Graph) != 0 {
		t.Fatalf("a first divergence should try a parent-map round before ever falling back to a full snapshot, got Graph = %v", sent.Graph)
	}
	if len(sent.ParentMap) == 0 {
		t.Fatalf("expected a parent-map round, got %+v", sent)
	}
}

func TestStepSyncMessageShipsExactlyTheMissingLinkOnceFrontiersConverge(t *testing.T) {
	tm := newTestTeam(t, "Acme", "alice", "Alice", "alice-phone")
	env := Environment{Team: tm}

	full := tm.Graph().GetParentMap(graph.ParentMapOptions{})
	head := tm.Graph().Head()
	if len(head) != 1 {
		t.Fatalf("expected a single-link frontier, got %d", len(head))
	}

	// The peer's round covers everything except the very last link — a
	// converged frontier one hop back from ours, since nothing in the
	// founding chain references the head as anyone's parent.
	peerRound := make(map[primitives.Hash][]primitives.Hash, len(full))
	for h, preds := range full {
		if h == head[0] {
			continue
		}
		peerRound[h] = preds
	}
	msg := &Message{Type: MessageSync, Sync: &SyncPayload{Head: head, ParentMap: peerRound}}
	s := State{Phase: PhaseSynchronizing, LocalSynced: true, ExpandDepth: 1, LocalParentMap: full}

	next, actions := Step(s, Event{Kind: EventMessageReceived, Message: msg}, env)

	if len(actions) != 1 || actions[0].Type != ActionSend || actions[0].Message.Type != MessageSync {
		t.Fatalf("actions = %+v, want a single SYNC", actions)
	}
	sent := actions[0].Message.Sync
	if len(sent.Graph) != 0 {
		t.Fatalf("a converged frontier should ship a link delta, not a full snapshot, got Graph = %v", sent.Graph)
	}
	if len(sent.Links) != 1 || sent.Links[0].Hash != head[0] {
		t.Fatalf("Links = %+v, want exactly the one link the peer is missing (%v)", sent.Links, head[0])
	}
	if next.PeerParentMap == nil {
		t.Fatalf("expected the peer's round to be recorded")
	}
}
