// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"github.com/concord-team/concord/concorderr"
	"github.com/concord-team/concord/graph"
	"github.com/concord-team/concord/primitives"
)

// ActionType discriminates an Action's concrete effect.
type ActionType string

const (
	ActionSend          ActionType = "send"
	ActionArmTimeout    ActionType = "arm_timeout"
	ActionCancelTimeout ActionType = "cancel_timeout"
	ActionJoinTeam      ActionType = "join_team"
	ActionMergeGraph    ActionType = "merge_graph"
	ActionMergeLinkSet  ActionType = "merge_link_set"
	ActionAdmitMember   ActionType = "admit_member"
	ActionAdmitDevice   ActionType = "admit_device"
	ActionEmitConnected ActionType = "emit_connected"
	ActionEmitJoined    ActionType = "emit_joined"
	ActionEmitUpdated   ActionType = "emit_updated"
	ActionEmitLocalErr  ActionType = "emit_local_error"
	ActionEmitRemoteErr ActionType = "emit_remote_error"
	ActionDisconnect    ActionType = "disconnect"
)

// Action is one effect Step asks the Driver to perform. Step itself
// never performs IO, never blocks on wall time, and never mutates a
// Team directly — everything it decides to do crosses this boundary
// as data, which is what makes Step testable without a real transport,
// clock, or Team.
type Action struct {
	Type ActionType

	// Send.
	Message *Message

	// ArmTimeout. Disconnected/Connected states are never timed; every
	// other phase re-arms on entry.
	TimeoutPhase Phase

	// JoinTeam: the fields AdmitMember's ACCEPT_INVITATION delivered,
	// for the Driver to reconstruct a *team.Team from.
	JoinGraph         []byte
	JoinSealedTeamKey []byte

	// MergeGraph: a peer's SYNC snapshot to fold into the existing
	// Team.
	MergeGraph []byte

	// MergeLinkSet: the missing-links delta a converged parent-map
	// exchange identified, for the Driver to fold in directly via
	// graph.Graph.MergeLinkSet rather than loading a whole snapshot.
	MergeLinks    []graph.Link
	MergeParentOf map[primitives.Hash][]primitives.Hash

	// AdmitMember / AdmitDevice: the invitee's claim, for the Driver to
	// pass straight to Team.AdmitMember/AdmitDevice. A member admission
	// additionally registers the invitee's first device in the same
	// step (AdmitMember* become the member's keys, AdmitDevice* register
	// the first device, and the team key is sealed to
	// AdmitDeviceEncryption), so both key pairs travel together even
	// though only one is used for a device invitation.
	// On success the Driver feeds EventAdmitted back in with the
	// resulting graph snapshot and sealed team key; on failure,
	// EventAdmissionFailed with the mapped concorderr.Kind.
	AdmitInvitationID     string
	AdmitUserID           string
	AdmitUserName         string
	AdmitDeviceName       string
	AdmitMemberSigning    primitives.SigningPublicKey
	AdmitMemberEncryption primitives.EncryptionPublicKey
	AdmitDeviceSigning    primitives.SigningPublicKey
	AdmitDeviceEncryption primitives.EncryptionPublicKey

	// EmitConnected.
	SessionKey []byte

	// Disconnect / EmitLocalErr / EmitRemoteErr.
	Kind concorderr.Kind
}
