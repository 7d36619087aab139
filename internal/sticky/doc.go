//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package sticky implements username-parameter sticky-upstream selection:
// parsing `base+k1=v1+k2=v2+...` usernames, rendezvous-hashing the
// canonicalized key set over a resolved IP set, and a TTL-backed cache
// keyed on the canonical params. This is the side routine spec.md calls
// out as "tested as a side routine" rather than part of the core
// interception pipeline.
package sticky
