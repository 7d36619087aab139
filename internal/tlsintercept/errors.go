//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package tlsintercept

import "errors"

// ErrPeerHandshakeFailed covers a failed client-side (downstream) handshake.
var ErrPeerHandshakeFailed = errors.New("peer tls handshake failed")

// ErrPeerHandshakeTimeout covers a client-side handshake that did not
// complete within the configured deadline.
var ErrPeerHandshakeTimeout = errors.New("peer tls handshake timed out")

// ErrUpstreamHandshakeFailed covers a failed upstream handshake.
var ErrUpstreamHandshakeFailed = errors.New("upstream tls handshake failed")

// ErrUpstreamHandshakeTimeout covers an upstream handshake that did not
// complete within the configured deadline.
var ErrUpstreamHandshakeTimeout = errors.New("upstream tls handshake timed out")

// ErrInternalTLSClient covers a failure to mint the client-facing leaf
// certificate for the requested name.
var ErrInternalTLSClient = errors.New("internal tls client error")
