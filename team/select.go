// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"github.com/concord-team/concord/keyset"
	"github.com/concord-team/concord/lockbox"
	"github.com/concord-team/concord/primitives"
)

// Has reports whether userID is a current member of s.
func (s *State) Has(userID string) bool {
	_, ok := s.findMember(userID)
	return ok
}

// MemberList returns a copy of the current membership list.
func (s *State) MemberList() []Member {
	return append([]Member(nil), s.Members...)
}

// RoleList returns a copy of the current role list.
func (s *State) RoleList() []Role {
	return append([]Role(nil), s.Roles...)
}

// Devices returns a copy of userID's device list, or nil if userID is
// not a current member.
func (s *State) Devices(userID string) []Device {
	idx, ok := s.findMember(userID)
	if !ok {
		return nil
	}
	return append([]Device(nil), s.Members[idx].Devices...)
}

// ServerList returns a copy of the current server list.
func (s *State) ServerList() []Server {
	return append([]Server(nil), s.Servers...)
}

// MemberIsAdmin reports whether userID currently holds the admin role.
func (s *State) MemberIsAdmin(userID string) bool {
	idx, ok := s.findMember(userID)
	if !ok {
		return false
	}
	return memberHasRole(s.Members[idx], adminRoleName)
}

// InvitationByID looks up a pending or consumed invitation.
func (s *State) InvitationByID(id string) (Invitation, bool) {
	inv, ok := s.Invitations[id]
	return inv, ok
}

// TeamKeyring returns the keyring tracking the team scope's own
// generation history, if any link has ever rotated it into view.
func (s *State) TeamKeyring(teamScope keyset.Scope) (*keyset.Keyring, bool) {
	kr, ok := s.Keyrings[teamScope.String()]
	return kr, ok
}

// RoleKeyring returns the keyring for one role's scope, if known.
func (s *State) RoleKeyring(roleScope keyset.Scope) (*keyset.Keyring, bool) {
	kr, ok := s.Keyrings[roleScope.String()]
	return kr, ok
}

// PendingRotations returns the user IDs awaiting a key rotation
// because they (or a scope they could see) was compromised by a
// revocation.
func (s *State) PendingRotations() []string {
	return append([]string(nil), s.PendingKeyRotations...)
}

// History returns the graph head s was derived from.
func (s *State) History() []primitives.Hash {
	return append([]primitives.Hash(nil), s.Head...)
}

// VisibleScopes computes the transitive closure of scope generations
// reachable from held: starting from the scope+generation references
// the caller already holds secrets for, repeatedly try opening every
// lockbox in s.Lockboxes whose Recipient reference is already in the
// closure, adding whatever scope generation each successfully opened
// lockbox delivers. This mirrors how a real member actually learns new
// scopes — by being handed a lockbox they can open, never by
// inspecting ciphertext they can't.
//
// The returned map is keyed by keyset.Reference.String() ("scope@generation"),
// matching how a Lockbox addresses its recipient, so every generation
// of a scope the caller can reach is retained individually rather than
// collapsed to the newest — a link encrypted under an old generation
// still needs that generation's secret to decrypt.
//
// held is consulted by value; VisibleScopes does not mutate it. The
// returned secrets map includes everything in held plus everything
// newly opened, so a caller can fold the result back into their own
// held set once satisfied with it.
func VisibleScopes(s *State, held map[string]*keyset.KeysetWithSecrets) map[string]*keyset.KeysetWithSecrets {
	closure := make(map[string]*keyset.KeysetWithSecrets, len(held))
	for k, v := range held {
		closure[k] = v
	}

	for {
		progressed := false
		for i := range s.Lockboxes {
			box := &s.Lockboxes[i]
			holder, ok := closure[box.Recipient.String()]
			if !ok {
				continue
			}
			opened, err := lockbox.Open(box, holder.EncryptionKeypair)
			if err != nil {
				continue
			}
			key := opened.Reference().String()
			if _, known := closure[key]; known {
				continue
			}
			closure[key] = opened
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return closure
}
