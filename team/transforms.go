// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package team

import "github.com/concord-team/concord/primitives"

// linkContext groups the per-link metadata that sits beside a decoded
// action: who authored it and when. The apply functions below take
// only the decoded action; none of them reads a linkContext.
type linkContext struct {
	Hash         primitives.Hash
	Generation   uint64
	UserPublic   primitives.SigningPublicKey
	DevicePublic primitives.SigningPublicKey
	Timestamp    int64
}

// applyAddMember appends a new member. A no-op if userId is already
// present and not removed — re-admitting an existing member is not an
// error, just redundant (spec §4.2).
func applyAddMember(s *State, a AddMemberAction) *State {
	if _, ok := s.findMember(a.UserID); ok {
		return s
	}
	s.Members = append(s.Members, Member{
		UserID:     a.UserID,
		UserName:   a.UserName,
		Signing:    a.Signing,
		Encryption: a.Encryption,
	})
	s.Lockboxes = append(s.Lockboxes, a.Lockboxes...)
	return s
}

// applyRemoveMember moves a member to removedMembers, drops their
// devices, and flags a pending key rotation if they held admin.
func applyRemoveMember(s *State, a RemoveMemberAction) *State {
	idx, ok := s.findMember(a.UserID)
	if !ok {
		return s
	}
	member := s.Members[idx]
	wasAdmin := memberHasRole(member, adminRoleName)

	s.Members = append(s.Members[:idx], s.Members[idx+1:]...)
	s.RemovedMembers = append(s.RemovedMembers, member)
	for _, d := range member.Devices {
		s.RemovedDevices = append(s.RemovedDevices, d)
	}

	if wasAdmin {
		s.PendingKeyRotations = appendUnique(s.PendingKeyRotations, a.UserID)
	}
	return s
}

func applyAddRole(s *State, a AddRoleAction) *State {
	if _, ok := s.findRole(a.RoleName); ok {
		return s
	}
	s.Roles = append(s.Roles, Role{RoleName: a.RoleName, Permissions: append([]string(nil), a.Permissions...)})
	return s
}

func applyRemoveRole(s *State, a RemoveRoleAction) *State {
	idx, ok := s.findRole(a.RoleName)
	if !ok {
		return s
	}
	s.Roles = append(s.Roles[:idx], s.Roles[idx+1:]...)
	for i := range s.Members {
		s.Members[i].Roles = removeString(s.Members[i].Roles, a.RoleName)
	}
	return s
}

func applyAddMemberRole(s *State, a AddMemberRoleAction) *State {
	idx, ok := s.findMember(a.UserID)
	if !ok {
		return s
	}
	if memberHasRole(s.Members[idx], a.RoleName) {
		return s
	}
	s.Members[idx].Roles = append(s.Members[idx].Roles, a.RoleName)
	if a.Lockbox != nil {
		s.Lockboxes = append(s.Lockboxes, *a.Lockbox)
	}
	return s
}

// applyRemoveMemberRole drops a role from a member. The last-admin
// invariant is enforced at dispatch; here the reducer re-checks and
// no-ops a violation rather than trusting the sender, so a malicious
// peer's REMOVE_MEMBER_ROLE can never strip the last admin role.
// applyRemoveMember makes no such check.
func applyRemoveMemberRole(s *State, a RemoveMemberRoleAction) *State {
	idx, ok := s.findMember(a.UserID)
	if !ok {
		return s
	}
	if !memberHasRole(s.Members[idx], a.RoleName) {
		return s
	}
	if a.RoleName == adminRoleName && countAdmins(s) <= 1 {
		return s
	}
	s.Members[idx].Roles = removeString(s.Members[idx].Roles, a.RoleName)
	return s
}

func applyAddDevice(s *State, a AddDeviceAction) *State {
	idx, ok := s.findMember(a.UserID)
	if !ok {
		return s
	}
	for _, d := range s.Members[idx].Devices {
		if d.DeviceName == a.DeviceName {
			return s
		}
	}
	s.Members[idx].Devices = append(s.Members[idx].Devices, Device{
		UserID:     a.UserID,
		DeviceName: a.DeviceName,
		Signing:    a.Signing,
		Encryption: a.Encryption,
	})
	s.Lockboxes = append(s.Lockboxes, a.Lockboxes...)
	return s
}

func applyRemoveDevice(s *State, a RemoveDeviceAction) *State {
	idx, ok := s.findMember(a.UserID)
	if !ok {
		return s
	}
	devices := s.Members[idx].Devices
	for i, d := range devices {
		if d.DeviceName == a.DeviceName {
			s.RemovedDevices = append(s.RemovedDevices, d)
			s.Members[idx].Devices = append(devices[:i], devices[i+1:]...)
			s.PendingKeyRotations = appendUnique(s.PendingKeyRotations, a.UserID)
			return s
		}
	}
	return s
}

func applyInviteMember(s *State, a InviteMemberAction) *State {
	if _, exists := s.Invitations[a.InvitationID]; exists {
		return s
	}
	s.Invitations[a.InvitationID] = Invitation{
		ID:         a.InvitationID,
		PublicKey:  a.PublicKey,
		Expiration: a.Expiration,
		MaxUses:    a.MaxUses,
	}
	return s
}

func applyInviteDevice(s *State, a InviteDeviceAction) *State {
	if _, exists := s.Invitations[a.InvitationID]; exists {
		return s
	}
	s.Invitations[a.InvitationID] = Invitation{
		ID:         a.InvitationID,
		PublicKey:  a.PublicKey,
		Expiration: a.Expiration,
		MaxUses:    1,
		UserID:     a.UserID,
		ForDevice:  true,
	}
	return s
}

func applyRevokeInvitation(s *State, a RevokeInvitationAction) *State {
	inv, ok := s.Invitations[a.InvitationID]
	if !ok {
		return s
	}
	inv.Revoked = true
	s.Invitations[a.InvitationID] = inv
	return s
}

func applyAdmitMember(s *State, a AdmitMemberAction) *State {
	inv, ok := s.Invitations[a.InvitationID]
	if !ok || inv.Revoked || inv.Uses >= inv.MaxUses || inv.ForDevice {
		return s
	}
	if _, exists := s.findMember(a.UserID); exists {
		return s
	}
	inv.Uses++
	s.Invitations[a.InvitationID] = inv

	s.Members = append(s.Members, Member{
		UserID:     a.UserID,
		UserName:   a.UserName,
		Signing:    a.Signing,
		Encryption: a.Encryption,
	})
	s.Lockboxes = append(s.Lockboxes, a.Lockboxes...)
	return s
}

func applyAdmitDevice(s *State, a AdmitDeviceAction) *State {
	inv, ok := s.Invitations[a.InvitationID]
	if !ok || inv.Revoked || inv.Uses >= inv.MaxUses || !inv.ForDevice || inv.UserID != a.UserID {
		return s
	}
	idx, exists := s.findMember(a.UserID)
	if !exists {
		return s
	}
	inv.Uses++
	s.Invitations[a.InvitationID] = inv

	s.Members[idx].Devices = append(s.Members[idx].Devices, Device{
		UserID:     a.UserID,
		DeviceName: a.DeviceName,
		Signing:    a.Signing,
		Encryption: a.Encryption,
	})
	s.Lockboxes = append(s.Lockboxes, a.Lockboxes...)
	return s
}

func applyChangeMemberKeys(s *State, a ChangeMemberKeysAction) *State {
	idx, ok := s.findMember(a.UserID)
	if !ok {
		return s
	}
	s.Members[idx].Signing = a.Signing
	s.Members[idx].Encryption = a.Encryption
	s.Lockboxes = append(s.Lockboxes, a.Lockboxes...)
	s.PendingKeyRotations = removeString(s.PendingKeyRotations, a.UserID)
	return s
}

func applyChangeDeviceKeys(s *State, a ChangeDeviceKeysAction) *State {
	idx, ok := s.findMember(a.UserID)
	if !ok {
		return s
	}
	for i, d := range s.Members[idx].Devices {
		if d.DeviceName == a.DeviceName {
			s.Members[idx].Devices[i].Signing = a.Signing
			s.Members[idx].Devices[i].Encryption = a.Encryption
			break
		}
	}
	s.Lockboxes = append(s.Lockboxes, a.Lockboxes...)
	return s
}

func applyChangeServerKeys(s *State, a ChangeServerKeysAction) *State {
	idx, ok := s.findServer(a.Host)
	if !ok {
		return s
	}
	s.Servers[idx].Signing = a.Signing
	s.Servers[idx].Encryption = a.Encryption
	s.Lockboxes = append(s.Lockboxes, a.Lockboxes...)
	return s
}

func applyAddServer(s *State, a AddServerAction) *State {
	if _, ok := s.findServer(a.Host); ok {
		return s
	}
	s.Servers = append(s.Servers, Server{Host: a.Host, Signing: a.Signing, Encryption: a.Encryption})
	s.Lockboxes = append(s.Lockboxes, a.Lockboxes...)
	return s
}

func applyRemoveServer(s *State, a RemoveServerAction) *State {
	idx, ok := s.findServer(a.Host)
	if !ok {
		return s
	}
	server := s.Servers[idx]
	s.Servers = append(s.Servers[:idx], s.Servers[idx+1:]...)
	s.RemovedServers = append(s.RemovedServers, server)
	return s
}

func applyRotateKeys(s *State, a RotateKeysAction) *State {
	s.Lockboxes = append(s.Lockboxes, a.Lockboxes...)
	return s
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

func countAdmins(s *State) int {
	count := 0
	for _, m := range s.Members {
		if memberHasRole(m, adminRoleName) {
			count++
		}
	}
	return count
}
