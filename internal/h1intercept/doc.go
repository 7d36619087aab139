//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package h1intercept implements C6: the pipelined HTTP/1 request/
// response pump (§4.6.1) and the upgrade handler (§4.6.2). The pump reads
// client requests, enqueues them to a single-producer writer that
// serializes them upstream in order, and replies to the client in
// request-arrival order even when pipelining races an inner connection's
// responses. The upgrade handler classifies the finite set of Upgrade
// tokens and either switches the connection's protocol, streams a
// body-bearing response, or passes a plain response through.
package h1intercept
