//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package h2intercept implements C7: the HTTP/2 bidirectional bridge.
// It pairs a downstream [golang.org/x/net/http2.Server] (serving the
// client connection) with a single upstream [golang.org/x/net/http2.ClientConn]
// wrapped directly around the already-established upstream connection via
// [golang.org/x/net/http2.Transport.NewClientConn], so each client stream
// round-trips through an independent task per §4.7, with the configured
// settings applied to the downstream server only (the upstream leg keeps
// the transport's defaults), alive-stream-driven idle accounting, and a
// one-shot-cancelable ping relay keeping the upstream leg's liveness
// checked for the lifetime of the bridge.
package h2intercept
