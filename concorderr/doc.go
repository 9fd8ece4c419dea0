// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package concorderr defines the error-kind taxonomy shared across
// Concord's packages: invitation failures, identity-proof failures,
// graph/crypto integrity failures, and membership-policy violations.
//
// [Kind] is a small int enum with a [Kind.String] method, following
// the same shape as an authorization decision's deny-reason trace: a
// caller that needs to branch on *why* an operation failed (recoverable
// vs. fatal, retry with different credentials vs. disconnect) checks
// the Kind rather than matching an error string.
//
// [Error] wraps a Kind with an optional underlying cause and supports
// errors.Is against both a *Error and a bare Kind value, and
// errors.As to recover the Kind from an arbitrary error chain.
package concorderr
