// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package keyset

import (
	"fmt"
	"strings"
)

// ScopeType identifies the kind of principal or grant-target a Scope
// names.
type ScopeType int

const (
	ScopeTeam ScopeType = iota
	ScopeRole
	ScopeUser
	ScopeDevice
	ScopeServer
	ScopeEphemeral
)

// String returns the lowercase wire name of the scope type.
func (t ScopeType) String() string {
	switch t {
	case ScopeTeam:
		return "team"
	case ScopeRole:
		return "role"
	case ScopeUser:
		return "user"
	case ScopeDevice:
		return "device"
	case ScopeServer:
		return "server"
	case ScopeEphemeral:
		return "ephemeral"
	default:
		return "unknown"
	}
}

func parseScopeType(s string) (ScopeType, error) {
	switch s {
	case "team":
		return ScopeTeam, nil
	case "role":
		return ScopeRole, nil
	case "user":
		return ScopeUser, nil
	case "device":
		return ScopeDevice, nil
	case "server":
		return ScopeServer, nil
	case "ephemeral":
		return ScopeEphemeral, nil
	default:
		return 0, fmt.Errorf("keyset: unknown scope type %q", s)
	}
}

// Scope identifies a principal or grant-target: a Keyset, a Lockbox
// recipient, and a lookup into TeamState are all addressed by Scope.
// A Scope is an immutable value constructed only through NewScope, so
// every Scope in the system is guaranteed to carry a valid name.
type Scope struct {
	scopeType ScopeType
	name      string
}

// NewScope validates name against the charset rules for scope names
// (non-empty, no leading/trailing whitespace, no colon — colon is the
// scope's own type/name separator in its text form) and returns a
// Scope of the given type.
func NewScope(scopeType ScopeType, name string) (Scope, error) {
	if name == "" {
		return Scope{}, fmt.Errorf("keyset: scope name is empty")
	}
	if strings.TrimSpace(name) != name {
		return Scope{}, fmt.Errorf("keyset: scope name %q has leading or trailing whitespace", name)
	}
	if strings.ContainsRune(name, ':') {
		return Scope{}, fmt.Errorf("keyset: scope name %q contains a colon", name)
	}
	switch scopeType {
	case ScopeTeam, ScopeRole, ScopeUser, ScopeDevice, ScopeServer, ScopeEphemeral:
	default:
		return Scope{}, fmt.Errorf("keyset: invalid scope type %d", scopeType)
	}
	return Scope{scopeType: scopeType, name: name}, nil
}

// Type returns the scope's type.
func (s Scope) Type() ScopeType { return s.scopeType }

// Name returns the scope's bare name.
func (s Scope) Name() string { return s.name }

// IsZero reports whether s is the zero-value Scope (never a validly
// constructed one, since NewScope rejects an empty name).
func (s Scope) IsZero() bool { return s.name == "" }

// String returns the canonical "type:name" text form.
func (s Scope) String() string {
	return s.scopeType.String() + ":" + s.name
}

// Equal reports whether two scopes name the same type and name.
func (s Scope) Equal(other Scope) bool {
	return s.scopeType == other.scopeType && s.name == other.name
}

// MarshalText implements encoding.TextMarshaler.
func (s Scope) MarshalText() ([]byte, error) {
	if s.IsZero() {
		return nil, fmt.Errorf("keyset: cannot marshal zero-value scope")
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scope) UnmarshalText(data []byte) error {
	text := string(data)
	idx := strings.IndexByte(text, ':')
	if idx < 0 {
		return fmt.Errorf("keyset: malformed scope text %q", text)
	}
	scopeType, err := parseScopeType(text[:idx])
	if err != nil {
		return fmt.Errorf("keyset: parsing scope: %w", err)
	}
	parsed, err := NewScope(scopeType, text[idx+1:])
	if err != nil {
		return fmt.Errorf("keyset: parsing scope: %w", err)
	}
	*s = parsed
	return nil
}
