// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"fmt"

	"github.com/concord-team/concord/keyset"
	"github.com/concord-team/concord/lib/codec"
	"github.com/concord-team/concord/lockbox"
	"github.com/concord-team/concord/primitives"
)

// ActionType discriminates a TeamAction's concrete Go type on the
// wire. It is stored as graph.LinkBody.ActionType.
type ActionType string

const (
	ActionAddMember         ActionType = "ADD_MEMBER"
	ActionRemoveMember      ActionType = "REMOVE_MEMBER"
	ActionAddRole           ActionType = "ADD_ROLE"
	ActionRemoveRole        ActionType = "REMOVE_ROLE"
	ActionAddMemberRole     ActionType = "ADD_MEMBER_ROLE"
	ActionRemoveMemberRole  ActionType = "REMOVE_MEMBER_ROLE"
	ActionAddDevice         ActionType = "ADD_DEVICE"
	ActionRemoveDevice      ActionType = "REMOVE_DEVICE"
	ActionInviteMember      ActionType = "INVITE_MEMBER"
	ActionInviteDevice      ActionType = "INVITE_DEVICE"
	ActionRevokeInvitation  ActionType = "REVOKE_INVITATION"
	ActionAdmitMember       ActionType = "ADMIT_MEMBER"
	ActionAdmitDevice       ActionType = "ADMIT_DEVICE"
	ActionChangeMemberKeys  ActionType = "CHANGE_MEMBER_KEYS"
	ActionChangeDeviceKeys  ActionType = "CHANGE_DEVICE_KEYS"
	ActionChangeServerKeys  ActionType = "CHANGE_SERVER_KEYS"
	ActionAddServer         ActionType = "ADD_SERVER"
	ActionRemoveServer      ActionType = "REMOVE_SERVER"
	ActionRotateKeys        ActionType = "ROTATE_KEYS"
)

// TeamAction is the tagged-sum interface every action variant
// implements. Type() must return the same constant the variant is
// registered under in Decode.
type TeamAction interface {
	Type() ActionType
}

// AddMemberAction admits a brand new member with their initial keys.
type AddMemberAction struct {
	UserID     string                         `cbor:"user_id"`
	UserName   string                         `cbor:"user_name"`
	Signing    primitives.SigningPublicKey    `cbor:"signing"`
	Encryption primitives.EncryptionPublicKey `cbor:"encryption"`
	Lockboxes  []lockbox.Lockbox              `cbor:"lockboxes"`
}

func (AddMemberAction) Type() ActionType { return ActionAddMember }

// RemoveMemberAction removes a member and every device they hold.
type RemoveMemberAction struct {
	UserID string `cbor:"user_id"`
}

func (RemoveMemberAction) Type() ActionType { return ActionRemoveMember }

// AddRoleAction defines a new role available for assignment.
type AddRoleAction struct {
	RoleName    string   `cbor:"role_name"`
	Permissions []string `cbor:"permissions"`
}

func (AddRoleAction) Type() ActionType { return ActionAddRole }

// RemoveRoleAction deletes a role definition.
type RemoveRoleAction struct {
	RoleName string `cbor:"role_name"`
}

func (RemoveRoleAction) Type() ActionType { return ActionRemoveRole }

// AddMemberRoleAction grants a role to a member, delivering that
// role's keys via Lockbox.
type AddMemberRoleAction struct {
	UserID   string           `cbor:"user_id"`
	RoleName string           `cbor:"role_name"`
	Lockbox  *lockbox.Lockbox `cbor:"lockbox,omitempty"`
}

func (AddMemberRoleAction) Type() ActionType { return ActionAddMemberRole }

// RemoveMemberRoleAction revokes a role from a member. Dispatch-side
// must reject this when it would remove the last admin; the reducer
// re-checks and no-ops rather than trusting the sender.
type RemoveMemberRoleAction struct {
	UserID   string `cbor:"user_id"`
	RoleName string `cbor:"role_name"`
}

func (RemoveMemberRoleAction) Type() ActionType { return ActionRemoveMemberRole }

// AddDeviceAction attaches a new device to an existing member.
type AddDeviceAction struct {
	UserID     string                         `cbor:"user_id"`
	DeviceName string                         `cbor:"device_name"`
	Signing    primitives.SigningPublicKey    `cbor:"signing"`
	Encryption primitives.EncryptionPublicKey `cbor:"encryption"`
	Lockboxes  []lockbox.Lockbox              `cbor:"lockboxes"`
}

func (AddDeviceAction) Type() ActionType { return ActionAddDevice }

// RemoveDeviceAction detaches one device from a member.
type RemoveDeviceAction struct {
	UserID     string `cbor:"user_id"`
	DeviceName string `cbor:"device_name"`
}

func (RemoveDeviceAction) Type() ActionType { return ActionRemoveDevice }

// InviteMemberAction records a pending invitation for a new member.
type InviteMemberAction struct {
	InvitationID string                      `cbor:"invitation_id"`
	PublicKey    primitives.SigningPublicKey `cbor:"public_key"`
	Expiration   int64                       `cbor:"expiration"`
	MaxUses      uint32                      `cbor:"max_uses"`
}

func (InviteMemberAction) Type() ActionType { return ActionInviteMember }

// InviteDeviceAction records a pending invitation to extend an
// existing member with a new device. UserID fixes which member the
// invitation belongs to; MaxUses is always 1 (enforced by the reducer
// regardless of what the link claims).
type InviteDeviceAction struct {
	InvitationID string                      `cbor:"invitation_id"`
	PublicKey    primitives.SigningPublicKey `cbor:"public_key"`
	Expiration   int64                       `cbor:"expiration"`
	UserID       string                      `cbor:"user_id"`
}

func (InviteDeviceAction) Type() ActionType { return ActionInviteDevice }

// RevokeInvitationAction marks a pending invitation unusable.
type RevokeInvitationAction struct {
	InvitationID string `cbor:"invitation_id"`
}

func (RevokeInvitationAction) Type() ActionType { return ActionRevokeInvitation }

// AdmitMemberAction consumes a member invitation, creating the member
// with their real keys.
type AdmitMemberAction struct {
	InvitationID string                         `cbor:"invitation_id"`
	UserID       string                         `cbor:"user_id"`
	UserName     string                         `cbor:"user_name"`
	Signing      primitives.SigningPublicKey    `cbor:"signing"`
	Encryption   primitives.EncryptionPublicKey `cbor:"encryption"`
	Lockboxes    []lockbox.Lockbox              `cbor:"lockboxes"`
}

func (AdmitMemberAction) Type() ActionType { return ActionAdmitMember }

// AdmitDeviceAction consumes a device invitation, attaching a new
// device with its real keys to the existing member named by the
// invitation.
type AdmitDeviceAction struct {
	InvitationID string                         `cbor:"invitation_id"`
	UserID       string                         `cbor:"user_id"`
	DeviceName   string                         `cbor:"device_name"`
	Signing      primitives.SigningPublicKey    `cbor:"signing"`
	Encryption   primitives.EncryptionPublicKey `cbor:"encryption"`
	Lockboxes    []lockbox.Lockbox              `cbor:"lockboxes"`
}

func (AdmitDeviceAction) Type() ActionType { return ActionAdmitDevice }

// ChangeMemberKeysAction replaces a member's own keyset generation.
type ChangeMemberKeysAction struct {
	UserID     string                         `cbor:"user_id"`
	Signing    primitives.SigningPublicKey    `cbor:"signing"`
	Encryption primitives.EncryptionPublicKey `cbor:"encryption"`
	Lockboxes  []lockbox.Lockbox              `cbor:"lockboxes"`
}

func (ChangeMemberKeysAction) Type() ActionType { return ActionChangeMemberKeys }

// ChangeDeviceKeysAction replaces one device's keyset generation.
type ChangeDeviceKeysAction struct {
	UserID     string                         `cbor:"user_id"`
	DeviceName string                         `cbor:"device_name"`
	Signing    primitives.SigningPublicKey    `cbor:"signing"`
	Encryption primitives.EncryptionPublicKey `cbor:"encryption"`
	Lockboxes  []lockbox.Lockbox              `cbor:"lockboxes"`
}

func (ChangeDeviceKeysAction) Type() ActionType { return ActionChangeDeviceKeys }

// ChangeServerKeysAction replaces a server scope's keyset generation.
type ChangeServerKeysAction struct {
	Host       string                         `cbor:"host"`
	Signing    primitives.SigningPublicKey    `cbor:"signing"`
	Encryption primitives.EncryptionPublicKey `cbor:"encryption"`
	Lockboxes  []lockbox.Lockbox              `cbor:"lockboxes"`
}

func (ChangeServerKeysAction) Type() ActionType { return ActionChangeServerKeys }

// AddServerAction admits a server principal (a non-human peer that may
// not invite or join as a member — see concorderr.KindCannotInviteOnServer
// / KindCannotJoinOnServer).
type AddServerAction struct {
	Host       string                         `cbor:"host"`
	Signing    primitives.SigningPublicKey    `cbor:"signing"`
	Encryption primitives.EncryptionPublicKey `cbor:"encryption"`
	Lockboxes  []lockbox.Lockbox              `cbor:"lockboxes"`
}

func (AddServerAction) Type() ActionType { return ActionAddServer }

// RemoveServerAction removes a server principal.
type RemoveServerAction struct {
	Host string `cbor:"host"`
}

func (RemoveServerAction) Type() ActionType { return ActionRemoveServer }

// RotateKeysAction installs a fresh keyset generation for an arbitrary
// scope (team or role) along with the lockboxes redelivering it to
// every scope that must still see it. Member/device/server key
// rotation instead goes through the Change*Keys actions above, which
// also carry the scope's own identity fields; RotateKeys covers the
// scopes that have no member/device/server record of their own.
type RotateKeysAction struct {
	Scope     keyset.Scope      `cbor:"scope"`
	Lockboxes []lockbox.Lockbox `cbor:"lockboxes"`
}

func (RotateKeysAction) Type() ActionType { return ActionRotateKeys }

// Encode serializes a TeamAction to the bytes stored as a link's
// payload.
func Encode(action TeamAction) ([]byte, error) {
	data, err := codec.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("team: encoding %s action: %w", action.Type(), err)
	}
	return data, nil
}

// Decode reconstructs the concrete TeamAction named by actionType from
// its encoded payload. Returns an error for an unrecognized
// actionType — the reducer treats that as "ignore this link" rather
// than propagating, since a malformed or future-versioned action must
// never crash the fold.
func Decode(actionType ActionType, payload []byte) (TeamAction, error) {
	var action TeamAction
	switch actionType {
	case ActionAddMember:
		action = &AddMemberAction{}
	case ActionRemoveMember:
		action = &RemoveMemberAction{}
	case ActionAddRole:
		action = &AddRoleAction{}
	case ActionRemoveRole:
		action = &RemoveRoleAction{}
	case ActionAddMemberRole:
		action = &AddMemberRoleAction{}
	case ActionRemoveMemberRole:
		action = &RemoveMemberRoleAction{}
	case ActionAddDevice:
		action = &AddDeviceAction{}
	case ActionRemoveDevice:
		action = &RemoveDeviceAction{}
	case ActionInviteMember:
		action = &InviteMemberAction{}
	case ActionInviteDevice:
		action = &InviteDeviceAction{}
	case ActionRevokeInvitation:
		action = &RevokeInvitationAction{}
	case ActionAdmitMember:
		action = &AdmitMemberAction{}
	case ActionAdmitDevice:
		action = &AdmitDeviceAction{}
	case ActionChangeMemberKeys:
		action = &ChangeMemberKeysAction{}
	case ActionChangeDeviceKeys:
		action = &ChangeDeviceKeysAction{}
	case ActionChangeServerKeys:
		action = &ChangeServerKeysAction{}
	case ActionAddServer:
		action = &AddServerAction{}
	case ActionRemoveServer:
		action = &RemoveServerAction{}
	case ActionRotateKeys:
		action = &RotateKeysAction{}
	default:
		return nil, fmt.Errorf("team: unknown action type %q", actionType)
	}

	if err := codec.Unmarshal(payload, action); err != nil {
		return nil, fmt.Errorf("team: decoding %s action: %w", actionType, err)
	}
	return derefAction(action), nil
}

// derefAction normalizes a decoded pointer-to-variant back to the
// value type Encode was originally given, so reducer code can type
// switch on either consistently. Decode always produces a pointer
// internally (required for codec.Unmarshal to populate it); callers
// of Decode receive the dereferenced value.
func derefAction(action TeamAction) TeamAction {
	switch a := action.(type) {
	case *AddMemberAction:
		return *a
	case *RemoveMemberAction:
		return *a
	case *AddRoleAction:
		return *a
	case *RemoveRoleAction:
		return *a
	case *AddMemberRoleAction:
		return *a
	case *RemoveMemberRoleAction:
		return *a
	case *AddDeviceAction:
		return *a
	case *RemoveDeviceAction:
		return *a
	case *InviteMemberAction:
		return *a
	case *InviteDeviceAction:
		return *a
	case *RevokeInvitationAction:
		return *a
	case *AdmitMemberAction:
		return *a
	case *AdmitDeviceAction:
		return *a
	case *ChangeMemberKeysAction:
		return *a
	case *ChangeDeviceKeysAction:
		return *a
	case *ChangeServerKeysAction:
		return *a
	case *AddServerAction:
		return *a
	case *RemoveServerAction:
		return *a
	case *RotateKeysAction:
		return *a
	default:
		return action
	}
}
