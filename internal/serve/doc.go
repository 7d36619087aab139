//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package serve implements the front-end entry handlers: HTTP CONNECT /
// absolute-form, and SOCKS5 TCP-CONNECT / UDP-ASSOCIATE. Each handler
// authenticates, selects the remote protocol, dials upstream via an
// [escaper.Escaper], and then either relays transparently (C11) or hands
// off to the inspection driver (C5), wiring C1 through C11 into one
// front-end-specific entry point.
package serve
