// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Concord packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. Apart
// from one safety valve in lib/clock's own tests, these are the only
// place in the test suite where real wall-clock timeouts are used —
// everywhere else, tests drive a connection state machine with
// clock.Fake instead of sleeping.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation. Use it instead of time.Now() when tests need unique
// link bodies, invitation seeds, or device names distinguishable
// within a single test run.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Concord-internal dependencies.
package testutil
