// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"fmt"

	"github.com/concord-team/concord/concorderr"
	"github.com/concord-team/concord/graph"
	"github.com/concord-team/concord/invitation"
	"github.com/concord-team/concord/keyset"
	"github.com/concord-team/concord/primitives"
	"github.com/concord-team/concord/team"
)

// initialExpandDepth is how many hops of history the first
// parent-map round after a head mismatch covers. Later rounds double
// this, capped at the graph's Diameter, so the expanding-ring search
// for a common frontier always terminates in O(log diameter) rounds.
const initialExpandDepth = 4

// Identity describes what this side of a Connection authenticates as:
// either an existing device claim, or a brand new principal redeeming
// an invitation. IsInvitee selects which shape applies; UserSecrets
// is nil for a device invitation, since it extends an existing member
// rather than minting one.
type Identity struct {
	UserID     string
	DeviceName string

	IsInvitee     bool
	Seed          string
	ForDevice     bool
	UserName      string // member invitation only
	UserSecrets   *keyset.KeysetWithSecrets
	DeviceSecrets *keyset.KeysetWithSecrets
}

// Environment carries the read-only, deterministic inputs Step needs
// beyond the State and Event themselves. Team is nil until this side
// holds team state — for an invitee, that's only true from
// EventTeamJoined onward; for an existing member, it's present from
// the start. Step never mutates Team directly: any change to it
// crosses the Action boundary for the Driver to perform.
type Environment struct {
	Team                    *team.Team
	Self                    Identity
	DeviceEncryptionKeypair *primitives.EncryptionKeypair
	Now                     int64
}

// EventKind discriminates an Event's concrete payload.
type EventKind string

const (
	EventStart           EventKind = "start"
	EventMessageReceived EventKind = "message"
	EventTimeout         EventKind = "timeout"
	EventStop            EventKind = "stop"
	EventAdmitted        EventKind = "admitted"
	EventAdmissionFailed EventKind = "admission_failed"
	EventTeamJoined      EventKind = "team_joined"
	EventGraphMerged     EventKind = "graph_merged"
)

// Event is one input to Step.
type Event struct {
	Kind    EventKind
	Message *Message

	// EventAdmitted.
	SealedTeamKey []byte
	Graph         []byte

	// EventAdmissionFailed.
	Kind2 concorderr.Kind
}

// Every per-phase deadline is the same configurable duration
// (Options.Timeout); the Phase threaded through ArmTimeout is a label
// only, and the Driver does not branch on it.

// Step is the pure transition function: given the current State and
// an incoming Event, it returns the next State and the Actions the
// Driver must perform to realize it. Step never blocks, never touches
// a clock or network, and never mutates env.Team — every side effect
// is data, returned as an Action.
func Step(s State, ev Event, env Environment) (State, []Action) {
	switch ev.Kind {
	case EventStop:
		if s.Phase == PhaseDisconnected {
			return s, nil
		}
		return State{Phase: PhaseDisconnected}, []Action{{Type: ActionCancelTimeout}}

	case EventTimeout:
		if s.Phase == PhaseDisconnected || s.Phase == PhaseConnected {
			return s, nil
		}
		return State{Phase: PhaseDisconnected}, []Action{
			{Type: ActionEmitLocalErr, Kind: concorderr.KindTimeout},
			{Type: ActionSend, Message: &Message{Type: MessageDisconnect, Disconnect: &DisconnectPayload{Kind: concorderr.KindTimeout}}},
		}
	}

	switch s.Phase {
	case PhaseDisconnected:
		return stepDisconnected(s, ev, env)
	case PhaseAwaitingIdentityClaim:
		return stepAwaitingIdentityClaim(s, ev, env)
	case PhaseAuthenticating:
		return stepAuthenticating(s, ev, env)
	case PhaseSynchronizing:
		return stepSynchronizing(s, ev, env)
	case PhaseNegotiating:
		return stepNegotiating(s, ev, env)
	default:
		return s, nil
	}
}

func stepDisconnected(s State, ev Event, env Environment) (State, []Action) {
	if ev.Kind != EventStart {
		return s, nil
	}

	hello := &HelloPayload{}
	next := State{Phase: PhaseAwaitingIdentityClaim}
	if env.Self.IsInvitee {
		proof, err := invitation.GenerateProof(env.Self.Seed)
		if err != nil {
			return State{Phase: PhaseDisconnected}, []Action{{Type: ActionEmitLocalErr, Kind: concorderr.KindInvalidInvitation}}
		}
		claim := &InvitationClaim{
			Proof:            proof,
			DeviceSigning:    env.Self.DeviceSecrets.SigningPublic,
			DeviceEncryption: env.Self.DeviceSecrets.EncryptPublic,
			ForDevice:        env.Self.ForDevice,
			UserID:           env.Self.UserID,
			UserName:         env.Self.UserName,
			DeviceName:       env.Self.DeviceName,
		}
		if !env.Self.ForDevice {
			claim.MemberSigning = env.Self.UserSecrets.SigningPublic
			claim.MemberEncryption = env.Self.UserSecrets.EncryptPublic
		}
		hello.Invitation = claim
		next.ViaInvitation = true
		next.Invitation = invitationAwaitingAcceptance
		next.InvitationID = proof.ID
	} else {
		hello.Claim = &IdentityClaim{UserID: env.Self.UserID, DeviceName: env.Self.DeviceName}
	}

	return next, []Action{
		{Type: ActionArmTimeout, TimeoutPhase: PhaseAwaitingIdentityClaim},
		{Type: ActionSend, Message: &Message{Type: MessageHello, Hello: hello}},
	}
}

func stepAwaitingIdentityClaim(s State, ev Event, env Environment) (State, []Action) {
	if ev.Kind != EventMessageReceived || ev.Message == nil || ev.Message.Type != MessageHello {
		return s, nil
	}
	hello := ev.Message.Hello

	next := s
	next.Phase = PhaseAuthenticating

	var actions []Action
	switch {
	case hello.Claim != nil:
		next.PeerUserID = hello.Claim.UserID
		next.PeerDeviceName = hello.Claim.DeviceName

	case hello.Invitation != nil:
		next.PeerUserID = hello.Invitation.UserID
		next.PeerDeviceName = hello.Invitation.DeviceName
		next.ViaInvitation = true
		next.Invitation = invitationValidating
		next.InvitationID = hello.Invitation.Proof.ID

		rec, ok := lookupInvitationRecord(env.Team, hello.Invitation.Proof.ID)
		if !ok || !invitation.CanBeUsed(rec, env.Now) || invitation.Validate(hello.Invitation.Proof, rec) != nil {
			kind := concorderr.KindInvalidInvitation
			if ok && !invitation.CanBeUsed(rec, env.Now) {
				kind = invitationUnusableKind(rec, env.Now)
			}
			return State{Phase: PhaseDisconnected}, []Action{
				{Type: ActionSend, Message: &Message{Type: MessageRejectIdentity, RejectIdentity: &RejectIdentityPayload{Kind: kind}}},
				{Type: ActionEmitLocalErr, Kind: kind},
			}
		}

		action := Action{
			Type:                  ActionAdmitMember,
			AdmitInvitationID:     hello.Invitation.Proof.ID,
			AdmitUserID:           hello.Invitation.UserID,
			AdmitUserName:         hello.Invitation.UserName,
			AdmitDeviceName:       hello.Invitation.DeviceName,
			AdmitMemberSigning:    hello.Invitation.MemberSigning,
			AdmitMemberEncryption: hello.Invitation.MemberEncryption,
			AdmitDeviceSigning:    hello.Invitation.DeviceSigning,
			AdmitDeviceEncryption: hello.Invitation.DeviceEncryption,
		}
		if hello.Invitation.ForDevice {
			action.Type = ActionAdmitDevice
		}
		actions = append(actions, action)
	}

	actions = append(actions, arTimeoutSwap(PhaseAuthenticating)...)
	next, unlockActions := maybeUnlockIdentityRegions(next, env)
	actions = append(actions, unlockActions...)
	return next, actions
}

func stepAuthenticating(s State, ev Event, env Environment) (State, []Action) {
	switch ev.Kind {
	case EventAdmitted:
		next := s
		next.Invitation = invitationDone
		actions := []Action{
			{Type: ActionSend, Message: &Message{Type: MessageAcceptInvitation, AcceptInvitation: &AcceptInvitationPayload{
				Graph:         ev.Graph,
				SealedTeamKey: ev.SealedTeamKey,
				InvitationID:  next.InvitationID,
			}}},
		}
		next, unlockActions := maybeUnlockIdentityRegions(next, env)
		actions = append(actions, unlockActions...)
		return next, actions

	case EventAdmissionFailed:
		return State{Phase: PhaseDisconnected}, []Action{
			{Type: ActionSend, Message: &Message{Type: MessageRejectIdentity, RejectIdentity: &RejectIdentityPayload{Kind: ev.Kind2}}},
			{Type: ActionEmitLocalErr, Kind: ev.Kind2},
		}

	case EventTeamJoined:
		next := s
		if next.ViaInvitation {
			next.Invitation = invitationDone
		}
		next, actions := maybeUnlockIdentityRegions(next, env)
		return next, append(actions, Action{Type: ActionEmitJoined})

	case EventMessageReceived:
		return stepAuthenticatingMessage(s, ev.Message, env)

	default:
		return s, nil
	}
}

func stepAuthenticatingMessage(s State, msg *Message, env Environment) (State, []Action) {
	switch msg.Type {
	case MessageDisconnect:
		return State{Phase: PhaseDisconnected}, []Action{{Type: ActionEmitRemoteErr, Kind: msg.Disconnect.Kind}}

	case MessageAcceptInvitation:
		if s.Invitation != invitationAwaitingAcceptance {
			return s, nil
		}
		// Team construction itself crosses the Action boundary: the
		// Driver builds env.Team from these bytes and feeds
		// EventTeamJoined back in once it has. Invitation stays
		// invitationAwaitingAcceptance until then.
		return s, []Action{{Type: ActionJoinTeam, JoinGraph: msg.AcceptInvitation.Graph, JoinSealedTeamKey: msg.AcceptInvitation.SealedTeamKey}}

	case MessageChallengeIdentity:
		if s.Proving != provingIdle || env.Team == nil {
			return s, nil
		}
		msgBody := identityProofMessage(msg.ChallengeIdentity.Nonce, env.Now, env.Self.UserID, env.Self.DeviceName)
		sig, err := env.Team.Sign(msgBody)
		if err != nil {
			return s, nil
		}
		next := s
		next.Proving = provingAwaitingAcceptance
		return next, []Action{{Type: ActionSend, Message: &Message{Type: MessageProveIdentity, ProveIdentity: &ProveIdentityPayload{
			Nonce:     msg.ChallengeIdentity.Nonce,
			Timestamp: env.Now,
			Signature: sig,
		}}}}

	case MessageProveIdentity:
		if s.Verifying != verifyingAwaitingProof || env.Team == nil {
			return s, nil
		}
		if !bytesEqual(msg.ProveIdentity.Nonce, s.LocalNonce) {
			return s, nil
		}
		msgBody := identityProofMessage(msg.ProveIdentity.Nonce, msg.ProveIdentity.Timestamp, s.PeerUserID, s.PeerDeviceName)
		if !env.Team.Verify(s.PeerUserID, msgBody, msg.ProveIdentity.Signature) {
			return State{Phase: PhaseDisconnected}, []Action{
				{Type: ActionSend, Message: &Message{Type: MessageRejectIdentity, RejectIdentity: &RejectIdentityPayload{Kind: concorderr.KindIdentityProofInvalid}}},
				{Type: ActionEmitLocalErr, Kind: concorderr.KindIdentityProofInvalid},
			}
		}
		next := s
		next.Verifying = verifyingDone
		actions := []Action{{Type: ActionSend, Message: &Message{Type: MessageAcceptIdentity, AcceptIdentity: &AcceptIdentityPayload{}}}}
		return finishAuthenticatingIfComplete(next, env, actions)

	case MessageAcceptIdentity:
		if s.Proving != provingAwaitingAcceptance {
			return s, nil
		}
		next := s
		next.Proving = provingDone
		return finishAuthenticatingIfComplete(next, env, nil)

	case MessageRejectIdentity:
		return State{Phase: PhaseDisconnected}, []Action{{Type: ActionEmitRemoteErr, Kind: msg.RejectIdentity.Kind}}

	default:
		return s, nil
	}
}

// finishAuthenticatingIfComplete transitions into synchronizing once
// every active parallel region of authenticating has reached its
// terminal state.
func finishAuthenticatingIfComplete(s State, env Environment, actions []Action) (State, []Action) {
	if !s.authenticationComplete() {
		return s, actions
	}
	next := State{Phase: PhaseSynchronizing, PeerUserID: s.PeerUserID, PeerDeviceName: s.PeerDeviceName}
	actions = append(actions,
		Action{Type: ActionCancelTimeout},
		Action{Type: ActionArmTimeout, TimeoutPhase: PhaseSynchronizing},
		Action{Type: ActionSend, Message: &Message{Type: MessageSync, Sync: &SyncPayload{Head: env.Team.Graph().Head()}}},
	)
	next.LocalSynced = true
	return next, actions
}

// maybeUnlockIdentityRegions starts the verifying region (this side
// challenging the peer) the moment the peer's identity is known and
// this side actually holds team state to check it against — true
// immediately for an existing member, only once EventTeamJoined fires
// for an invitee, and in both cases only once any active invitation
// region has already finished (the peer isn't a recognized principal
// until their admission link has landed).
func maybeUnlockIdentityRegions(s State, env Environment) (State, []Action) {
	unlocked := env.Team != nil && s.PeerUserID != "" && (s.Invitation == invitationNone || s.Invitation == invitationDone)
	if !unlocked || s.Verifying != verifyingIdle {
		return s, nil
	}
	nonce, err := primitives.RandomBytes(24)
	if err != nil {
		return s, nil
	}
	next := s
	next.Verifying = verifyingAwaitingProof
	next.LocalNonce = nonce
	return next, []Action{{Type: ActionSend, Message: &Message{Type: MessageChallengeIdentity, ChallengeIdentity: &ChallengeIdentityPayload{Nonce: nonce}}}}
}

func stepSynchronizing(s State, ev Event, env Environment) (State, []Action) {
	switch ev.Kind {
	case EventGraphMerged:
		localHead := env.Team.Graph().Head()
		next := s
		next.LocalSynced = true
		if headsMatch(localHead, s.PeerHead) {
			next.PeerSynced = true
			return finishSynchronizingIfComplete(next, env)
		}
		// The delta (or, rarely, snapshot) just merged didn't fully
		// close the gap — most likely the peer was missing links of
		// its own that this side now needs to learn about. Restart
		// the ring fresh rather than resuming stale rounds.
		return beginExpansion(next, env)

	case EventMessageReceived:
		if ev.Message == nil || ev.Message.Type != MessageDisconnect && ev.Message.Type != MessageSync {
			return s, nil
		}
		if ev.Message.Type == MessageDisconnect {
			return State{Phase: PhaseDisconnected}, []Action{{Type: ActionEmitRemoteErr, Kind: ev.Message.Disconnect.Kind}}
		}
		return stepSyncMessage(s, ev.Message.Sync, env)

	default:
		return s, nil
	}
}

func stepSyncMessage(s State, sync *SyncPayload, env Environment) (State, []Action) {
	next := s
	next.PeerHead = sync.Head

	switch {
	case len(sync.Graph) > 0:
		return next, []Action{{Type: ActionMergeGraph, MergeGraph: sync.Graph}}

	case len(sync.Links) > 0:
		return next, []Action{{Type: ActionMergeLinkSet, MergeLinks: sync.Links, MergeParentOf: sync.ParentMap}}

	case len(sync.ParentMap) > 0:
		return stepParentMapRound(next, sync.ParentMap, env)
	}

	localHead := env.Team.Graph().Head()
	if headsMatch(localHead, sync.Head) {
		next.PeerSynced = true
		var actions []Action
		if !next.LocalSynced {
			next.LocalSynced = true
			actions = append(actions, Action{Type: ActionSend, Message: &Message{Type: MessageSync, Sync: &SyncPayload{Head: localHead}}})
		}
		return finishSynchronizingIfComplete(next, env)
	}

	return beginExpansion(next, env)
}

// beginExpansion starts (or restarts) the expanding parent-map
// exchange described in stepParentMapRound: rather than immediately
// shipping the whole graph on a head mismatch, this side sends a
// shallow parent map first and only goes deeper, or ships the precise
// missing links, as the peer's replies require.
func beginExpansion(s State, env Environment) (State, []Action) {
	next := s
	next.ExpandDepth = 0
	next.LocalParentMap = nil
	next.PeerParentMap = nil
	return expandRound(next, env)
}

// expandRound sends the next doubling-depth slice of this side's own
// parent map, capped at the graph's Diameter, and records what it has
// now disclosed so the following round's GetParentMap call (via Prev)
// only covers new ground.
func expandRound(s State, env Environment) (State, []Action) {
	depth := initialExpandDepth
	if s.ExpandDepth > 0 {
		depth = s.ExpandDepth * 2
	}
	if diameter := env.Team.Graph().Diameter(); depth > diameter {
		depth = diameter
	}

	round := env.Team.Graph().GetParentMap(graph.ParentMapOptions{Depth: &depth, Prev: s.LocalParentMap})

	next := s
	next.ExpandDepth = depth
	next.LocalParentMap = mergeParentMaps(s.LocalParentMap, round)

	return next, []Action{{Type: ActionSend, Message: &Message{Type: MessageSync, Sync: &SyncPayload{Head: env.Team.Graph().Head(), ParentMap: round}}}}
}

// stepParentMapRound absorbs one round of the peer's expanding parent
// map. If this side hasn't started its own expansion yet (it's the
// one whose head was behind and is only now hearing about the
// mismatch), it starts one. Otherwise it checks whether the two
// accumulated maps have converged on a common frontier: once they
// have, the peer's map already names every hash the peer holds, so
// GetParentMap's Prev complement against it is exactly what the peer
// is missing, and that — not another round, not a full graph — is
// what goes out next. Short of convergence, and short of the graph's
// full Diameter, the ring just goes one hop deeper; beyond Diameter
// without convergence, something deeper is wrong and a full snapshot
// is the honest fallback.
func stepParentMapRound(s State, peerRound map[primitives.Hash][]primitives.Hash, env Environment) (State, []Action) {
	next := s
	next.PeerParentMap = mergeParentMaps(s.PeerParentMap, peerRound)

	if next.ExpandDepth == 0 {
		return expandRound(next, env)
	}

	if !graph.CommonFrontier(next.LocalParentMap, next.PeerParentMap) {
		if next.ExpandDepth < env.Team.Graph().Diameter() {
			return expandRound(next, env)
		}
		return next, []Action{{Type: ActionSend, Message: &Message{Type: MessageSync, Sync: &SyncPayload{Head: env.Team.Graph().Head(), Graph: mustSave(env.Team)}}}}
	}

	missing := env.Team.Graph().GetParentMap(graph.ParentMapOptions{Prev: next.PeerParentMap})
	hashes := make([]primitives.Hash, 0, len(missing))
	for h := range missing {
		hashes = append(hashes, h)
	}
	links := env.Team.Graph().LinksFor(hashes)

	return next, []Action{{Type: ActionSend, Message: &Message{Type: MessageSync, Sync: &SyncPayload{Head: env.Team.Graph().Head(), ParentMap: missing, Links: links}}}}
}

func mergeParentMaps(dst, src map[primitives.Hash][]primitives.Hash) map[primitives.Hash][]primitives.Hash {
	out := make(map[primitives.Hash][]primitives.Hash, len(dst)+len(src))
	for h, preds := range dst {
		out[h] = preds
	}
	for h, preds := range src {
		out[h] = preds
	}
	return out
}

func finishSynchronizingIfComplete(s State, env Environment) (State, []Action) {
	if !s.LocalSynced || !s.PeerSynced {
		return s, nil
	}
	seed, err := primitives.RandomBytes(32)
	if err != nil {
		return s, nil
	}
	next := State{Phase: PhaseNegotiating, PeerUserID: s.PeerUserID, PeerDeviceName: s.PeerDeviceName, LocalSeed: seed}

	actions := []Action{
		{Type: ActionCancelTimeout},
		{Type: ActionArmTimeout, TimeoutPhase: PhaseNegotiating},
	}
	peerKey, ok := peerEncryptionKey(env, s)
	if !ok {
		return State{Phase: PhaseDisconnected}, append(actions, Action{Type: ActionEmitLocalErr, Kind: concorderr.KindMemberUnknown})
	}
	box, err := primitives.EncryptSealed(peerKey, seed, []byte(sessionSeedAAD))
	if err != nil {
		return State{Phase: PhaseDisconnected}, append(actions, Action{Type: ActionEmitLocalErr, Kind: concorderr.KindDecryptionFailed})
	}
	actions = append(actions, Action{Type: ActionSend, Message: &Message{Type: MessageSeed, Seed: &SeedPayload{Sealed: *box}}})
	return next, actions
}

func stepNegotiating(s State, ev Event, env Environment) (State, []Action) {
	if ev.Kind != EventMessageReceived || ev.Message == nil {
		return s, nil
	}
	if ev.Message.Type == MessageDisconnect {
		return State{Phase: PhaseDisconnected}, []Action{{Type: ActionEmitRemoteErr, Kind: ev.Message.Disconnect.Kind}}
	}
	if ev.Message.Type != MessageSeed {
		return s, nil
	}

	peerSeed, err := primitives.DecryptSealed(env.DeviceEncryptionKeypair, &ev.Message.Seed.Sealed, []byte(sessionSeedAAD))
	if err != nil || len(peerSeed) != len(s.LocalSeed) {
		return State{Phase: PhaseDisconnected}, []Action{{Type: ActionEmitLocalErr, Kind: concorderr.KindDecryptionFailed}}
	}

	sessionKey := make([]byte, len(s.LocalSeed))
	for i := range sessionKey {
		sessionKey[i] = s.LocalSeed[i] ^ peerSeed[i]
	}

	next := State{Phase: PhaseConnected, PeerUserID: s.PeerUserID, PeerDeviceName: s.PeerDeviceName}
	actions := []Action{
		{Type: ActionCancelTimeout},
		{Type: ActionEmitConnected, SessionKey: sessionKey},
	}
	return next, actions
}

const sessionSeedAAD = "concord.connection.session_seed"

// identityProofMessage builds the deterministic byte string an
// identity challenge is signed over: the nonce, the timestamp, and
// the claimed identity, in a fixed order both sides reconstruct
// identically.
func identityProofMessage(nonce []byte, timestamp int64, userID, deviceName string) []byte {
	return []byte(fmt.Sprintf("%s|%d|%s|%s", nonce, timestamp, userID, deviceName))
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func headsMatch(a, b []primitives.Hash) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	return primitives.MerkleRoot(a) == primitives.MerkleRoot(b)
}

func mustSave(t *team.Team) []byte {
	data, err := t.Save()
	if err != nil {
		return nil
	}
	return data
}

func peerEncryptionKey(env Environment, s State) (primitives.EncryptionPublicKey, bool) {
	for _, m := range env.Team.State().MemberList() {
		if m.UserID != s.PeerUserID {
			continue
		}
		if s.PeerDeviceName != "" {
			for _, d := range m.Devices {
				if d.DeviceName == s.PeerDeviceName {
					return d.Encryption, true
				}
			}
		}
		return m.Encryption, true
	}
	return primitives.EncryptionPublicKey{}, false
}

func lookupInvitationRecord(t *team.Team, id string) (invitation.Record, bool) {
	inv, ok := t.State().InvitationByID(id)
	if !ok {
		return invitation.Record{}, false
	}
	return invitation.Record{
		ID:         inv.ID,
		PublicKey:  inv.PublicKey,
		Expiration: inv.Expiration,
		MaxUses:    inv.MaxUses,
		Uses:       inv.Uses,
		Revoked:    inv.Revoked,
		UserID:     inv.UserID,
	}, true
}

func invitationUnusableKind(rec invitation.Record, now int64) concorderr.Kind {
	switch {
	case rec.Revoked:
		return concorderr.KindRevokedInvitation
	case rec.Uses >= rec.MaxUses:
		return concorderr.KindUsedInvitation
	case rec.Expiration != 0 && now >= rec.Expiration:
		return concorderr.KindExpiredInvitation
	default:
		return concorderr.KindInvalidInvitation
	}
}

func arTimeoutSwap(phase Phase) []Action {
	return []Action{
		{Type: ActionCancelTimeout},
		{Type: ActionArmTimeout, TimeoutPhase: phase},
	}
}
