// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"github.com/concord-team/concord/keyset"
	"github.com/concord-team/concord/lockbox"
	"github.com/concord-team/concord/primitives"
)

// Device is one signing/encryption keypair attached to a member.
type Device struct {
	UserID     string
	DeviceName string
	Signing    primitives.SigningPublicKey
	Encryption primitives.EncryptionPublicKey
}

// Member is one team member: their identity, current keys, devices,
// and role memberships.
type Member struct {
	UserID     string
	UserName   string
	Signing    primitives.SigningPublicKey
	Encryption primitives.EncryptionPublicKey
	Devices    []Device
	Roles      []string
}

// Role is a named bundle of permission strings. Permission semantics
// are opaque to this package — the host interprets them.
type Role struct {
	RoleName    string
	Permissions []string
}

// Server is a non-human principal (e.g. a relay) that holds its own
// keys but can never invite or join as a member.
type Server struct {
	Host       string
	Signing    primitives.SigningPublicKey
	Encryption primitives.EncryptionPublicKey
}

// Invitation is a pending or consumed invitation record.
type Invitation struct {
	ID         string
	PublicKey  primitives.SigningPublicKey
	Expiration int64
	MaxUses    uint32
	Uses       uint32
	Revoked    bool
	// UserID is set for device invitations: the admitting peer
	// confirms the invitee is extending this existing member.
	UserID string
	ForDevice bool
}

// State is the derived, non-persisted result of folding a graph's
// links through the reducer. Two peers holding the same set of links
// always derive an identical State.
type State struct {
	TeamName string
	Members  []Member
	Roles    []Role
	Servers  []Server
	Lockboxes []lockbox.Lockbox

	Invitations map[string]Invitation

	RemovedMembers []Member
	RemovedDevices []Device
	RemovedServers []Server

	// PendingKeyRotations lists user IDs whose scope (or a scope
	// visible from it) was compromised by a removal. Selectors surface
	// this so the Team façade can prompt the current admin to rotate.
	// An entry is removed only when a CHANGE_MEMBER_KEYS link for that
	// user is folded; a ROTATE_KEYS link leaves the list unchanged.
	PendingKeyRotations []string

	// Head is the graph head the state was derived from, recorded so
	// selectors and the event emitter can report "what head does this
	// state reflect" without re-walking the graph.
	Head []primitives.Hash

	// Keyrings holds the generation history for every scope this
	// state has ever seen a keyset for (team, every role, every
	// server — user/device scopes' keys live directly on Member/
	// Device instead, since those are 1:1 with a state entry).
	Keyrings map[string]*keyset.Keyring
}

// newState returns an empty State with its maps initialized.
func newState() *State {
	return &State{
		Invitations: make(map[string]Invitation),
		Keyrings:    make(map[string]*keyset.Keyring),
	}
}

// clone returns a deep-enough copy of s for the reducer to mutate
// without aliasing the caller's previous state. Slices and maps are
// copied; Keyring pointers are shared (Keyring.Append is itself
// append-only and safe to share across clones produced by the same
// single-threaded fold).
func (s *State) clone() *State {
	out := &State{
		TeamName:            s.TeamName,
		PendingKeyRotations: append([]string(nil), s.PendingKeyRotations...),
		Head:                append([]primitives.Hash(nil), s.Head...),
	}
	out.Members = append([]Member(nil), s.Members...)
	for i := range out.Members {
		out.Members[i].Devices = append([]Device(nil), out.Members[i].Devices...)
		out.Members[i].Roles = append([]string(nil), out.Members[i].Roles...)
	}
	out.Roles = append([]Role(nil), s.Roles...)
	out.Servers = append([]Server(nil), s.Servers...)
	out.Lockboxes = append([]lockbox.Lockbox(nil), s.Lockboxes...)
	out.RemovedMembers = append([]Member(nil), s.RemovedMembers...)
	out.RemovedDevices = append([]Device(nil), s.RemovedDevices...)
	out.RemovedServers = append([]Server(nil), s.RemovedServers...)

	out.Invitations = make(map[string]Invitation, len(s.Invitations))
	for k, v := range s.Invitations {
		out.Invitations[k] = v
	}
	out.Keyrings = make(map[string]*keyset.Keyring, len(s.Keyrings))
	for k, v := range s.Keyrings {
		out.Keyrings[k] = v
	}
	return out
}

func (s *State) findMember(userID string) (int, bool) {
	for i, m := range s.Members {
		if m.UserID == userID {
			return i, true
		}
	}
	return -1, false
}

func (s *State) findRole(roleName string) (int, bool) {
	for i, r := range s.Roles {
		if r.RoleName == roleName {
			return i, true
		}
	}
	return -1, false
}

func (s *State) findServer(host string) (int, bool) {
	for i, sv := range s.Servers {
		if sv.Host == host {
			return i, true
		}
	}
	return -1, false
}

func memberHasRole(m Member, roleName string) bool {
	for _, r := range m.Roles {
		if r == roleName {
			return true
		}
	}
	return false
}

func removeString(list []string, target string) []string {
	out := list[:0:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
