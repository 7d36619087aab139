//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package tlsintercept implements C4: terminating a client TLS handshake
// behind a dynamically minted leaf certificate while opening (or reusing)
// an upstream TLS session, so the inspection driver (C5) receives two
// plaintext halves it can recurse into. TLCP is modeled as an alternate
// [Profile] selection with no change to the [Intercept] interface; Go's
// standard library has no native GM/TLCP cipher suite support, so the
// TLCP profile only swaps the outbound negotiation preferences a real
// GM-capable TLS implementation would consult (see DESIGN.md).
package tlsintercept
