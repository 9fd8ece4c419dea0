// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package team

// adminRoleName is the reserved role name conferring admin authority:
// resolver seniority conflicts, last-admin protection, and every
// admin-gated dispatch check key off membership in this role.
const adminRoleName = "admin"
