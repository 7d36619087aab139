//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package h1intercept

import "errors"

// ErrConnectIPRefused: ConnectIp upgrades are refused unconditionally
// per §4.6.2.
var ErrConnectIPRefused = errors.New("connect-ip upgrade refused")

// ErrWebSocketBlocked is returned when policy blocks a WebSocket upgrade
// for the request's host.
var ErrWebSocketBlocked = errors.New("websocket upgrade blocked by policy")

// ErrInvalidUpgradeProtocol: a Tls(_, _) token over Upgrade is rejected.
var ErrInvalidUpgradeProtocol = errors.New("invalid upgrade protocol")

// ErrPipelineFull names the condition of a reader enqueueing past
// pipeline_size outstanding entries. [Pump] does not return it: its
// reader blocks until the queue has room.
var ErrPipelineFull = errors.New("pipeline size exceeded")
