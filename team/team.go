// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package team ties the graph, resolver, reducer, and lockbox-based
// key distribution together into the imperative shell an application
// actually drives: Team owns a Graph, the secrets its principal
// holds, and the State derived from folding the two together.
package team

import (
	"fmt"
	"log/slog"

	"github.com/concord-team/concord/concorderr"
	"github.com/concord-team/concord/graph"
	"github.com/concord-team/concord/keyset"
	"github.com/concord-team/concord/lib/clock"
	"github.com/concord-team/concord/lockbox"
	"github.com/concord-team/concord/primitives"
)

// Team is one principal's view of a team: the shared graph, the keys
// this principal holds, and the State derived from folding the graph
// through the resolver and reducer. Every local mutation appends a
// link and immediately recomputes State; a Merge from a peer does the
// same. A Team is not safe for concurrent use from multiple goroutines
// without external synchronization, matching Graph's own contract.
type Team struct {
	graph *graph.Graph
	state *State

	teamScope   keyset.Scope
	userScope   keyset.Scope
	deviceScope keyset.Scope

	// held maps keyset.Reference.String() ("scope@generation") to the
	// secrets this principal holds for that exact generation. Old
	// generations are never evicted — a link encrypted under an old
	// team generation still needs that generation's secret scalar to
	// decrypt, per the Keyring retention policy.
	held map[string]*keyset.KeysetWithSecrets

	seniority *SeniorityIndex
	clock     clock.Clock
	events    *EventEmitter
	logger    *slog.Logger
}

// CreateTeam mints a fresh team scope, its founding member and their
// first device, and appends the single root link admitting that
// member, followed by links defining the admin role, granting it to
// the founder and registering the device. The returned Team already
// holds every secret it just minted: the team, user and device
// keysets. The admin role gets no keyset of its own.
func CreateTeam(teamName, userID, userName, deviceName string, events *EventEmitter, logger *slog.Logger) (*Team, error) {
	teamScope, err := keyset.NewScope(keyset.ScopeTeam, teamName)
	if err != nil {
		return nil, fmt.Errorf("team: %w", err)
	}
	userScope, err := keyset.NewScope(keyset.ScopeUser, userID)
	if err != nil {
		return nil, fmt.Errorf("team: %w", err)
	}
	deviceScope, err := keyset.NewScope(keyset.ScopeDevice, deviceName)
	if err != nil {
		return nil, fmt.Errorf("team: %w", err)
	}

	teamSecrets, err := keyset.Generate(teamScope)
	if err != nil {
		return nil, fmt.Errorf("team: generating team keyset: %w", err)
	}
	userSecrets, err := keyset.Generate(userScope)
	if err != nil {
		teamSecrets.Close()
		return nil, fmt.Errorf("team: generating user keyset: %w", err)
	}
	deviceSecrets, err := keyset.Generate(deviceScope)
	if err != nil {
		teamSecrets.Close()
		userSecrets.Close()
		return nil, fmt.Errorf("team: generating device keyset: %w", err)
	}

	teamLockbox, err := lockbox.Create(teamSecrets, userScope, 0, userSecrets.EncryptPublic)
	if err != nil {
		teamSecrets.Close()
		userSecrets.Close()
		deviceSecrets.Close()
		return nil, fmt.Errorf("team: sealing founding team lockbox: %w", err)
	}

	t := &Team{
		graph:       graph.New(),
		teamScope:   teamScope,
		userScope:   userScope,
		deviceScope: deviceScope,
		held:        make(map[string]*keyset.KeysetWithSecrets),
		clock:       clock.Real(),
		events:      eventsOrDefault(events),
		logger:      logger,
	}
	t.held[teamSecrets.Reference().String()] = teamSecrets
	t.held[userSecrets.Reference().String()] = userSecrets
	t.held[deviceSecrets.Reference().String()] = deviceSecrets

	founding := AddMemberAction{
		UserID:     userID,
		UserName:   userName,
		Signing:    userSecrets.SigningPublic,
		Encryption: userSecrets.EncryptPublic,
		Lockboxes:  []lockbox.Lockbox{*teamLockbox},
	}
	if _, err := t.appendAction(founding); err != nil {
		return nil, err
	}
	if err := t.AddRole(adminRoleName, []string{"*"}); err != nil {
		return nil, err
	}
	if err := t.AddMemberRole(userID, adminRoleName); err != nil {
		return nil, err
	}
	// A bare member has no signable identity: Sign always signs with
	// the device-scope key, and Verify only checks member.Signing plus
	// registered devices. Without this the founder could sign but no
	// one, including themselves, could verify it.
	if err := t.AddDevice(userID, deviceName, deviceSecrets.SigningPublic, deviceSecrets.EncryptPublic); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reconstructs a Team from an existing graph plus whatever
// secrets the caller already holds — typically, at minimum, their own
// user and device keysets. State is derived immediately; the lockbox
// visibility closure run during that derivation further expands held
// with anything reachable from those starting secrets.
func Load(g *graph.Graph, teamScope keyset.Scope, userID, deviceName string, held map[string]*keyset.KeysetWithSecrets, events *EventEmitter, logger *slog.Logger) (*Team, error) {
	userScope, err := keyset.NewScope(keyset.ScopeUser, userID)
	if err != nil {
		return nil, fmt.Errorf("team: %w", err)
	}
	deviceScope, err := keyset.NewScope(keyset.ScopeDevice, deviceName)
	if err != nil {
		return nil, fmt.Errorf("team: %w", err)
	}

	heldCopy := make(map[string]*keyset.KeysetWithSecrets, len(held))
	for k, v := range held {
		heldCopy[k] = v
	}

	t := &Team{
		graph:       g,
		teamScope:   teamScope,
		userScope:   userScope,
		deviceScope: deviceScope,
		held:        heldCopy,
		clock:       clock.Real(),
		events:      eventsOrDefault(events),
		logger:      logger,
	}
	t.recompute()
	return t, nil
}

// Join loads a Team for a principal who was just admitted. Every link
// in the graph, including the ADMIT_MEMBER/ADMIT_DEVICE link naming
// this principal, is encrypted under the team key — there is no
// lockbox a brand new principal can open without it, since opening a
// lockbox requires decrypting the very link it's attached to first.
// teamSecrets must therefore reach the caller out-of-band; see
// SealTeamKeyFor and OpenTeamKeySeal, which is how the connection
// package's ACCEPT_INVITATION handshake closes this gap.
//
// userSecrets is nil when joining as a new device on an existing
// member rather than as a brand new member: the member's user-scope
// secret was never freshly minted for this device, it arrives via the
// lockbox attached to the ADMIT_DEVICE link itself, which recompute's
// visibility closure opens once teamSecrets and deviceSecrets let it
// decrypt that link at all.
func Join(g *graph.Graph, teamScope keyset.Scope, userID, deviceName string, teamSecrets, userSecrets, deviceSecrets *keyset.KeysetWithSecrets, events *EventEmitter, logger *slog.Logger) (*Team, error) {
	held := map[string]*keyset.KeysetWithSecrets{
		teamSecrets.Reference().String():   teamSecrets,
		deviceSecrets.Reference().String(): deviceSecrets,
	}
	if userSecrets != nil {
		held[userSecrets.Reference().String()] = userSecrets
	}
	return Load(g, teamScope, userID, deviceName, held, events, logger)
}

func eventsOrDefault(e *EventEmitter) *EventEmitter {
	if e != nil {
		return e
	}
	return NewEventEmitter()
}

// State returns the team's current derived state.
func (t *Team) State() *State { return t.state }

// Graph returns the team's underlying link graph, for transport to
// peers.
func (t *Team) Graph() *graph.Graph { return t.graph }

// Events returns the emitter other layers (notably connection.Driver)
// subscribe to for "updated" notifications.
func (t *Team) Events() *EventEmitter { return t.events }

// Save serializes the underlying graph for storage or transport.
func (t *Team) Save() ([]byte, error) { return t.graph.Save() }

// Merge absorbs a peer's graph, re-derives State, and emits "updated".
func (t *Team) Merge(other *graph.Graph) error {
	if err := t.graph.Merge(other); err != nil {
		return fmt.Errorf("team: merging: %w", err)
	}
	t.recompute()
	t.events.Emit("updated", UpdatedEvent{Head: t.graph.Head()})
	return nil
}

// MergeLinkSet absorbs a delta of links identified by a peer's
// expanding parent-map exchange — the bandwidth-bounded alternative to
// Merge's whole-graph intake, used once the connection sync loop has
// narrowed down exactly which links the peer is missing.
func (t *Team) MergeLinkSet(links []graph.Link, parentOf map[primitives.Hash][]primitives.Hash) error {
	if err := t.graph.MergeLinkSet(links, parentOf); err != nil {
		return fmt.Errorf("team: merging link set: %w", err)
	}
	t.recompute()
	t.events.Emit("updated", UpdatedEvent{Head: t.graph.Head()})
	return nil
}

// linkKeyFor implements LinkKeyFunc by deriving the team's link key for
// generation from whatever team-scope secret this principal holds for
// that exact generation.
func (t *Team) linkKeyFor(generation uint64) ([primitives.SymmetricKeySize]byte, bool) {
	ref := keyset.Reference{Scope: t.teamScope, Generation: generation}
	ks, ok := t.held[ref.String()]
	if !ok {
		return [primitives.SymmetricKeySize]byte{}, false
	}
	key, err := primitives.DeriveLinkKey(ks.EncryptionKeypair.Secret(), generation)
	if err != nil {
		return [primitives.SymmetricKeySize]byte{}, false
	}
	return key, true
}

// recompute re-derives State from the graph: seniority, resolver
// filtering, then the reducer fold, then an attempt to open every
// lockbox reachable from the secrets already held, folding anything
// newly learned back into held and into State's keyring bookkeeping.
func (t *Team) recompute() {
	initial := newState()

	idx := BuildSeniorityIndex(t.graph, t.linkKeyFor)
	order := Resolve(initial, t.graph, t.linkKeyFor, idx)
	state := Reduce(initial, t.graph, order, t.linkKeyFor, t.logger)

	opened := VisibleScopes(state, t.held)
	for ref, ks := range opened {
		if _, already := t.held[ref]; already {
			continue
		}
		t.held[ref] = ks

		kr, ok := state.Keyrings[ks.Scope.String()]
		if !ok {
			kr = keyset.NewKeyring(ks.Scope)
			state.Keyrings[ks.Scope.String()] = kr
		}
		if err := kr.Append(ks.Public()); err != nil && t.logger != nil {
			t.logger.Warn("team: keyring append failed", "scope", ks.Scope.String(), "error", err)
		}
	}

	t.seniority = idx
	t.state = state
}

// currentRef returns the highest generation held for scope, if any.
func currentRef(held map[string]*keyset.KeysetWithSecrets, scope keyset.Scope) (keyset.Reference, bool) {
	best := keyset.Reference{}
	found := false
	for _, ks := range held {
		if !ks.Scope.Equal(scope) {
			continue
		}
		if !found || ks.Generation > best.Generation {
			best = keyset.Reference{Scope: scope, Generation: ks.Generation}
			found = true
		}
	}
	return best, found
}

// appendAction seals action into a new link authored by this
// principal's current user and device identity, encrypted under the
// team generation this principal currently holds, and recomputes State.
func (t *Team) appendAction(action TeamAction) (*graph.Link, error) {
	teamRef, ok := currentRef(t.held, t.teamScope)
	if !ok {
		return nil, concorderr.New(concorderr.KindGraphCorrupt, "no team key held locally")
	}
	userRef, ok := currentRef(t.held, t.userScope)
	if !ok {
		return nil, concorderr.New(concorderr.KindMemberUnknown, "no user key held locally")
	}
	deviceRef, ok := currentRef(t.held, t.deviceScope)
	if !ok {
		return nil, concorderr.New(concorderr.KindDeviceUnknown, "no device key held locally")
	}

	teamSecrets := t.held[teamRef.String()]
	userSecrets := t.held[userRef.String()]
	deviceSecrets := t.held[deviceRef.String()]

	teamKey, err := primitives.DeriveLinkKey(teamSecrets.EncryptionKeypair.Secret(), teamRef.Generation)
	if err != nil {
		return nil, fmt.Errorf("team: deriving link key: %w", err)
	}

	payload, err := Encode(action)
	if err != nil {
		return nil, fmt.Errorf("team: %w", err)
	}

	link, err := t.graph.Append(graph.AppendInput{
		ActionType:   string(action.Type()),
		Payload:      payload,
		UserPublic:   userSecrets.SigningPublic,
		DevicePublic: deviceSecrets.SigningPublic,
		Timestamp:    t.clock.Now().Unix(),
		Generation:   teamRef.Generation,
		TeamKey:      teamKey,
		Signer:       deviceSecrets.SigningKeypair,
	})
	if err != nil {
		return nil, fmt.Errorf("team: appending link: %w", err)
	}

	t.recompute()
	t.events.Emit("updated", UpdatedEvent{Head: t.graph.Head()})
	return link, nil
}

// sealCurrentScopesTo seals every scope generation VisibleScopes can
// currently reach to a freshly admitted recipient, used when bringing
// a new member or device into the team.
func (t *Team) sealCurrentScopesTo(scopeType keyset.ScopeType, name string, recipientPublic primitives.EncryptionPublicKey) ([]lockbox.Lockbox, error) {
	recipientScope, err := keyset.NewScope(scopeType, name)
	if err != nil {
		return nil, fmt.Errorf("team: %w", err)
	}
	visible := VisibleScopes(t.state, t.held)
	boxes := make([]lockbox.Lockbox, 0, len(visible))
	for _, ks := range visible {
		box, err := lockbox.Create(ks, recipientScope, 0, recipientPublic)
		if err != nil {
			return nil, fmt.Errorf("team: sealing %s for %s: %w", ks.Scope, recipientScope, err)
		}
		boxes = append(boxes, *box)
	}
	return boxes, nil
}

// Add admits userID directly, without going through an invitation.
func (t *Team) Add(userID, userName string, signing primitives.SigningPublicKey, encryption primitives.EncryptionPublicKey) error {
	if t.state.Has(userID) {
		return nil
	}
	boxes, err := t.sealCurrentScopesTo(keyset.ScopeUser, userID, encryption)
	if err != nil {
		return err
	}
	_, err = t.appendAction(AddMemberAction{UserID: userID, UserName: userName, Signing: signing, Encryption: encryption, Lockboxes: boxes})
	return err
}

// Remove removes a current member. Refuses to remove the last admin.
func (t *Team) Remove(userID string) error {
	if !t.state.Has(userID) {
		return concorderr.New(concorderr.KindMemberUnknown, userID)
	}
	if t.state.MemberIsAdmin(userID) && countAdmins(t.state) <= 1 {
		return concorderr.New(concorderr.KindCannotRemoveLastAdmin, userID)
	}
	_, err := t.appendAction(RemoveMemberAction{UserID: userID})
	return err
}

// AddRole defines a new role. Permissions are opaque application-level
// strings.
func (t *Team) AddRole(roleName string, permissions []string) error {
	if _, err := keyset.NewScope(keyset.ScopeRole, roleName); err != nil {
		return fmt.Errorf("team: %w", err)
	}
	_, err := t.appendAction(AddRoleAction{RoleName: roleName, Permissions: permissions})
	return err
}

// RemoveRole deletes a role definition entirely, stripping it from
// every member who holds it.
func (t *Team) RemoveRole(roleName string) error {
	if _, ok := t.state.findRole(roleName); !ok {
		return fmt.Errorf("team: role %q does not exist", roleName)
	}
	_, err := t.appendAction(RemoveRoleAction{RoleName: roleName})
	return err
}

// AddMemberRole grants roleName to userID, resealing the role's own
// keyset (if it has one) to the member's encryption key.
func (t *Team) AddMemberRole(userID, roleName string) error {
	idx, ok := t.state.findMember(userID)
	if !ok {
		return concorderr.New(concorderr.KindMemberUnknown, userID)
	}
	member := t.state.Members[idx]
	if memberHasRole(member, roleName) {
		return nil
	}

	roleScope, err := keyset.NewScope(keyset.ScopeRole, roleName)
	if err != nil {
		return fmt.Errorf("team: %w", err)
	}

	var box *lockbox.Lockbox
	if roleRef, ok := currentRef(t.held, roleScope); ok {
		recipientScope, err := keyset.NewScope(keyset.ScopeUser, userID)
		if err != nil {
			return fmt.Errorf("team: %w", err)
		}
		box, err = lockbox.Create(t.held[roleRef.String()], recipientScope, 0, member.Encryption)
		if err != nil {
			return fmt.Errorf("team: sealing role lockbox: %w", err)
		}
	}

	_, err = t.appendAction(AddMemberRoleAction{UserID: userID, RoleName: roleName, Lockbox: box})
	return err
}

// RemoveMemberRole revokes roleName from userID. Refuses to strip the
// last admin's admin role.
func (t *Team) RemoveMemberRole(userID, roleName string) error {
	idx, ok := t.state.findMember(userID)
	if !ok {
		return concorderr.New(concorderr.KindMemberUnknown, userID)
	}
	if !memberHasRole(t.state.Members[idx], roleName) {
		return nil
	}
	if roleName == adminRoleName && countAdmins(t.state) <= 1 {
		return concorderr.New(concorderr.KindCannotRemoveLastAdmin, userID)
	}
	_, err := t.appendAction(RemoveMemberRoleAction{UserID: userID, RoleName: roleName})
	return err
}

// AddDevice attaches a new device to an existing member.
func (t *Team) AddDevice(userID, deviceName string, signing primitives.SigningPublicKey, encryption primitives.EncryptionPublicKey) error {
	if !t.state.Has(userID) {
		return concorderr.New(concorderr.KindMemberUnknown, userID)
	}
	boxes, err := t.sealCurrentScopesTo(keyset.ScopeDevice, deviceName, encryption)
	if err != nil {
		return err
	}
	_, err = t.appendAction(AddDeviceAction{UserID: userID, DeviceName: deviceName, Signing: signing, Encryption: encryption, Lockboxes: boxes})
	return err
}

// RemoveDevice detaches deviceName from userID.
func (t *Team) RemoveDevice(userID, deviceName string) error {
	if !t.state.Has(userID) {
		return concorderr.New(concorderr.KindMemberUnknown, userID)
	}
	_, err := t.appendAction(RemoveDeviceAction{UserID: userID, DeviceName: deviceName})
	return err
}

// AddServer admits a server principal. Servers never receive content
// lockboxes — they relay encrypted links without the ability to read
// them, so AddServer seals nothing to the new server scope.
func (t *Team) AddServer(host string, signing primitives.SigningPublicKey, encryption primitives.EncryptionPublicKey) error {
	_, err := t.appendAction(AddServerAction{Host: host, Signing: signing, Encryption: encryption})
	return err
}

// RemoveServer removes a server principal.
func (t *Team) RemoveServer(host string) error {
	if _, ok := t.state.findServer(host); !ok {
		return fmt.Errorf("team: server %q does not exist", host)
	}
	_, err := t.appendAction(RemoveServerAction{Host: host})
	return err
}

// InviteMember records a pending invitation for a brand new member.
func (t *Team) InviteMember(invitationID string, publicKey primitives.SigningPublicKey, expiration int64, maxUses uint32) error {
	_, err := t.appendAction(InviteMemberAction{InvitationID: invitationID, PublicKey: publicKey, Expiration: expiration, MaxUses: maxUses})
	return err
}

// InviteDevice records a pending invitation for a new device on an
// existing member.
func (t *Team) InviteDevice(invitationID string, publicKey primitives.SigningPublicKey, expiration int64, userID string) error {
	if !t.state.Has(userID) {
		return concorderr.New(concorderr.KindMemberUnknown, userID)
	}
	_, err := t.appendAction(InviteDeviceAction{InvitationID: invitationID, PublicKey: publicKey, Expiration: expiration, UserID: userID})
	return err
}

// RevokeInvitation marks a pending invitation unusable.
func (t *Team) RevokeInvitation(invitationID string) error {
	if _, ok := t.state.InvitationByID(invitationID); !ok {
		return concorderr.New(concorderr.KindInvalidInvitation, invitationID)
	}
	_, err := t.appendAction(RevokeInvitationAction{InvitationID: invitationID})
	return err
}

// AdmitMember consumes a member invitation, admitting userID with
// their real keys and sealing every currently visible scope to them.
func (t *Team) AdmitMember(invitationID, userID, userName string, signing primitives.SigningPublicKey, encryption primitives.EncryptionPublicKey) error {
	inv, ok := t.state.InvitationByID(invitationID)
	if !ok {
		return concorderr.New(concorderr.KindInvalidInvitation, invitationID)
	}
	if inv.Revoked {
		return concorderr.New(concorderr.KindRevokedInvitation, invitationID)
	}
	if inv.Uses >= inv.MaxUses {
		return concorderr.New(concorderr.KindUsedInvitation, invitationID)
	}

	boxes, err := t.sealCurrentScopesTo(keyset.ScopeUser, userID, encryption)
	if err != nil {
		return err
	}
	_, err = t.appendAction(AdmitMemberAction{InvitationID: invitationID, UserID: userID, UserName: userName, Signing: signing, Encryption: encryption, Lockboxes: boxes})
	return err
}

// AdmitDevice consumes a device invitation, attaching a new device to
// the existing member it names.
func (t *Team) AdmitDevice(invitationID, userID, deviceName string, signing primitives.SigningPublicKey, encryption primitives.EncryptionPublicKey) error {
	inv, ok := t.state.InvitationByID(invitationID)
	if !ok {
		return concorderr.New(concorderr.KindInvalidInvitation, invitationID)
	}
	if inv.Revoked {
		return concorderr.New(concorderr.KindRevokedInvitation, invitationID)
	}
	if !inv.ForDevice || inv.UserID != userID {
		return concorderr.New(concorderr.KindInvalidInvitation, invitationID)
	}
	if inv.Uses >= inv.MaxUses {
		return concorderr.New(concorderr.KindUsedInvitation, invitationID)
	}

	boxes, err := t.sealCurrentScopesTo(keyset.ScopeDevice, deviceName, encryption)
	if err != nil {
		return err
	}
	_, err = t.appendAction(AdmitDeviceAction{InvitationID: invitationID, UserID: userID, DeviceName: deviceName, Signing: signing, Encryption: encryption, Lockboxes: boxes})
	return err
}

// ChangeKeys rotates this principal's own member keyset, resealing
// every scope currently visible to them under the new key.
func (t *Team) ChangeKeys() error {
	userID := t.userScope.Name()
	if !t.state.Has(userID) {
		return concorderr.New(concorderr.KindMemberUnknown, userID)
	}

	fresh, err := keyset.Generate(t.userScope)
	if err != nil {
		return fmt.Errorf("team: generating rotated user keyset: %w", err)
	}

	visible := VisibleScopes(t.state, t.held)
	boxes := make([]lockbox.Lockbox, 0, len(visible))
	for _, ks := range visible {
		box, err := lockbox.Create(ks, t.userScope, fresh.Generation, fresh.EncryptPublic)
		if err != nil {
			fresh.Close()
			return fmt.Errorf("team: resealing %s for rotated keys: %w", ks.Scope, err)
		}
		boxes = append(boxes, *box)
	}

	action := ChangeMemberKeysAction{UserID: userID, Signing: fresh.SigningPublic, Encryption: fresh.EncryptPublic, Lockboxes: boxes}
	if _, err := t.appendAction(action); err != nil {
		fresh.Close()
		return err
	}
	t.held[fresh.Reference().String()] = fresh
	return nil
}

// RotateKeys mints a fresh team generation and redelivers it, via
// lockbox, to every current member's user scope at their own
// generation 0. Used after a removal strips an admin's standing. The
// ROTATE_KEYS link leaves PendingKeyRotations unchanged; only a
// CHANGE_MEMBER_KEYS link for a listed user removes that entry.
func (t *Team) RotateKeys() error {
	teamRef, ok := currentRef(t.held, t.teamScope)
	if !ok {
		return concorderr.New(concorderr.KindGraphCorrupt, "no team key held locally")
	}
	fresh, err := keyset.GenerateGeneration(t.teamScope, teamRef.Generation+1)
	if err != nil {
		return fmt.Errorf("team: generating rotated team keyset: %w", err)
	}

	boxes := make([]lockbox.Lockbox, 0, len(t.state.Members))
	for _, m := range t.state.Members {
		recipientScope, err := keyset.NewScope(keyset.ScopeUser, m.UserID)
		if err != nil {
			fresh.Close()
			return fmt.Errorf("team: %w", err)
		}
		box, err := lockbox.Create(fresh, recipientScope, 0, m.Encryption)
		if err != nil {
			fresh.Close()
			return fmt.Errorf("team: sealing rotated team key for %s: %w", m.UserID, err)
		}
		boxes = append(boxes, *box)
	}

	action := RotateKeysAction{Scope: t.teamScope, Lockboxes: boxes}
	if _, err := t.appendAction(action); err != nil {
		fresh.Close()
		return err
	}
	t.held[fresh.Reference().String()] = fresh
	return nil
}

// Encrypt encrypts plaintext under the team's current content key.
func (t *Team) Encrypt(plaintext []byte) ([]byte, error) {
	teamRef, ok := currentRef(t.held, t.teamScope)
	if !ok {
		return nil, concorderr.New(concorderr.KindGraphCorrupt, "no team key held locally")
	}
	key, err := primitives.DeriveLinkKey(t.held[teamRef.String()].EncryptionKeypair.Secret(), teamRef.Generation)
	if err != nil {
		return nil, fmt.Errorf("team: %w", err)
	}
	ciphertext, err := primitives.EncryptSymmetric(key, plaintext, []byte(t.teamScope.String()))
	if err != nil {
		return nil, fmt.Errorf("team: encrypting: %w", err)
	}
	return ciphertext, nil
}

// Decrypt decrypts ciphertext that was encrypted under the team's
// content key at the named generation.
func (t *Team) Decrypt(ciphertext []byte, generation uint64) ([]byte, error) {
	key, ok := t.linkKeyFor(generation)
	if !ok {
		return nil, concorderr.New(concorderr.KindDecryptionFailed, "no key held for generation")
	}
	plaintext, err := primitives.DecryptSymmetric(key, ciphertext, []byte(t.teamScope.String()))
	if err != nil {
		return nil, concorderr.Wrap(concorderr.KindDecryptionFailed, err, "team content")
	}
	return plaintext, nil
}

// Sign signs message with this principal's current device key.
func (t *Team) Sign(message []byte) (primitives.Signature, error) {
	deviceRef, ok := currentRef(t.held, t.deviceScope)
	if !ok {
		return primitives.Signature{}, concorderr.New(concorderr.KindDeviceUnknown, "no device key held locally")
	}
	return primitives.Sign(t.held[deviceRef.String()].SigningKeypair, message), nil
}

// Verify reports whether sig over message was produced by signerUserID
// — their member key or any of their current devices' keys.
func (t *Team) Verify(signerUserID string, message []byte, sig primitives.Signature) bool {
	idx, ok := t.state.findMember(signerUserID)
	if !ok {
		return false
	}
	member := t.state.Members[idx]
	if primitives.Verify(member.Signing, message, sig) {
		return true
	}
	for _, d := range member.Devices {
		if primitives.Verify(d.Signing, message, sig) {
			return true
		}
	}
	return false
}
