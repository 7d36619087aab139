//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package h1intercept

import (
	"strings"

	"github.com/bassosimone/inspectproxy/internal/httpmsg"
)

// UpgradeToken is the finite set of upgrade tokens §4.6.2 dispatches on.
type UpgradeToken int

const (
	UpgradeGeneric UpgradeToken = iota
	UpgradeWebsocket
	UpgradeConnectUDP
	UpgradeConnectIP
	UpgradeHTTP2
	UpgradeTLS
)

// ClassifyUpgradeToken maps the raw Upgrade header value to one of the
// finite tokens §4.6.2 names, falling through to UpgradeGeneric for
// anything unrecognized (a bypass tunnel that still obeys idle/quit
// rules).
func ClassifyUpgradeToken(raw string) UpgradeToken {
	tok := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case tok == "websocket":
		return UpgradeWebsocket
	case tok == "connect-udp":
		return UpgradeConnectUDP
	case tok == "connect-ip":
		return UpgradeConnectIP
	case strings.HasPrefix(tok, "h2c"), tok == "http/2.0":
		return UpgradeHTTP2
	case strings.HasPrefix(tok, "tls/"):
		return UpgradeTLS
	default:
		return UpgradeGeneric
	}
}

// WebSocketAction gates whether a WebSocket upgrade is allowed for a
// given host, the policy hook §4.6.2 calls `websocket_inspect_action`.
type WebSocketAction int

const (
	WebSocketInspect WebSocketAction = iota
	WebSocketBlock
	WebSocketBypass
)

// WebSocketActionFunc resolves the action for a host.
type WebSocketActionFunc func(host string) WebSocketAction

// WebSocketNotes snapshots the request/response state needed once a
// connection has switched into a WebSocket intercept at depth+1: the
// original (or adapted) request headers and URI, plus the upstream's
// 101 response headers.
type WebSocketNotes struct {
	RequestHeaders  *httpmsg.Headers
	RequestURI      string
	ResponseHeaders *httpmsg.Headers
}

// UpgradeOutcome is the result of driving one upgrade attempt to
// completion, the three paths §4.6.2 enumerates after reading exactly
// one response header.
type UpgradeOutcomeKind int

const (
	// OutcomeSwitched: status 101, connection switches to the negotiated
	// protocol (WebSocket or, via a distinct code path, HTTP/2).
	OutcomeSwitched UpgradeOutcomeKind = iota
	// OutcomeBodyResponse: a body-bearing response was streamed back and
	// the upgrade attempt concluded without switching.
	OutcomeBodyResponse
	// OutcomePassthrough: a plain (non-101, no body) response passed
	// through verbatim.
	OutcomePassthrough
)

// UpgradeOutcome carries the dispatch decision plus, when switched, the
// notes needed to hand off to the next protocol's intercept.
type UpgradeOutcome struct {
	Kind  UpgradeOutcomeKind
	Notes *WebSocketNotes
}

// DecideUpgrade applies the §4.6.2 policy table for the classified
// token, before any bytes are exchanged with upstream: ConnectIp is
// refused unconditionally; Websocket is gated by wsAction; Tls over
// Upgrade is rejected; Http/2 and the generic fallback are both allowed
// through (the former switches into a fresh H/2 intercept, the latter
// becomes a bypass tunnel).
func DecideUpgrade(tok UpgradeToken, host string, wsAction WebSocketActionFunc) error {
	switch tok {
	case UpgradeConnectIP:
		return ErrConnectIPRefused
	case UpgradeWebsocket:
		if wsAction != nil && wsAction(host) == WebSocketBlock {
			return ErrWebSocketBlocked
		}
		return nil
	case UpgradeTLS:
		return ErrInvalidUpgradeProtocol
	default:
		return nil
	}
}

// BuildWebSocketNotes snapshots req/resp into a [WebSocketNotes] after a
// 101 Switching Protocols response, per §8 scenario 5.
func BuildWebSocketNotes(req *httpmsg.Message, resp *httpmsg.Response) *WebSocketNotes {
	return &WebSocketNotes{
		RequestHeaders:  req.Headers,
		RequestURI:      req.Line.Target,
		ResponseHeaders: resp.Headers,
	}
}

// ClassifyUpgradeResponse maps a response's status code to the
// [UpgradeOutcomeKind] §4.6.2 dispatches on.
func ClassifyUpgradeResponse(resp *httpmsg.Response) UpgradeOutcomeKind {
	if resp.Line.Code == 101 {
		return OutcomeSwitched
	}
	if !resp.Body.NoBody() {
		return OutcomeBodyResponse
	}
	return OutcomePassthrough
}
