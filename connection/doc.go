// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package connection implements the authentication and graph-sync
// protocol run between two peers over an ordered, reliable message
// channel (transport is the host's responsibility — this package only
// ever produces and consumes opaque message bytes).
//
// The protocol is a hierarchical state machine with two parallel
// regions during authentication (proving this side's own identity,
// verifying the peer's) and, for a brand new principal, a third region
// redeeming an invitation instead of an existing identity claim. The
// machine itself is the pure function Step; Driver is the imperative
// shell that owns the clock, the team reference, and the
// sendMessage callback and turns Step's returned Actions into real
// effects.
package connection
