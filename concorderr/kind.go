// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package concorderr

// Kind identifies the category of a Concord error. Callers branch on
// Kind instead of matching error strings — in particular, the
// Connection state machine uses Kind to decide whether a failure is
// recoverable (the peer may retry with different credentials) or
// fatal (the connection must disconnect).
type Kind int

const (
	// KindUnknown is the zero value; never returned by this module's
	// own operations, but is what Of reports for an error with no
	// embedded Kind.
	KindUnknown Kind = iota

	// Invitation errors (spec §7).
	KindInvalidInvitation
	KindExpiredInvitation
	KindUsedInvitation
	KindRevokedInvitation

	// Identity errors.
	KindMemberUnknown
	KindMemberRemoved
	KindDeviceUnknown
	KindDeviceRemoved

	// Identity-proof errors.
	KindIdentityProofInvalid
	KindChallengeStale

	// Crypto / graph-integrity errors. Always fatal.
	KindDecryptionFailed
	KindSignatureInvalid
	KindGraphCorrupt

	// Membership/administrative-policy errors.
	KindNotAdmin
	KindCannotRemoveLastAdmin
	KindCannotInviteOnServer
	KindCannotJoinOnServer

	// Protocol errors.
	KindTimeout
)

// String returns a human-readable name for the Kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidInvitation:
		return "invalid invitation"
	case KindExpiredInvitation:
		return "expired invitation"
	case KindUsedInvitation:
		return "used invitation"
	case KindRevokedInvitation:
		return "revoked invitation"
	case KindMemberUnknown:
		return "member unknown"
	case KindMemberRemoved:
		return "member removed"
	case KindDeviceUnknown:
		return "device unknown"
	case KindDeviceRemoved:
		return "device removed"
	case KindIdentityProofInvalid:
		return "identity proof invalid"
	case KindChallengeStale:
		return "challenge stale"
	case KindDecryptionFailed:
		return "decryption failed"
	case KindSignatureInvalid:
		return "signature invalid"
	case KindGraphCorrupt:
		return "graph corrupt"
	case KindNotAdmin:
		return "not admin"
	case KindCannotRemoveLastAdmin:
		return "cannot remove last admin"
	case KindCannotInviteOnServer:
		return "cannot invite on server"
	case KindCannotJoinOnServer:
		return "cannot join on server"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error implements the error interface for a bare Kind, so a Kind
// value can be passed directly as the target of errors.Is(err,
// concorderr.KindDecryptionFailed) without constructing an *Error.
func (k Kind) Error() string { return k.String() }

// Fatal reports whether an error of this Kind is fatal to a Connection
// (must disconnect) rather than recoverable (the peer may retry with
// different credentials). Per spec §7: crypto and graph-integrity
// failures are always fatal; invitation and identity mismatches are
// recoverable.
func (k Kind) Fatal() bool {
	switch k {
	case KindDecryptionFailed, KindSignatureInvalid, KindGraphCorrupt:
		return true
	default:
		return false
	}
}
