//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package serve

import "net"

// connState is the mutable "current plaintext halves" a connection's
// dispatch loop carries across recursion depths: plain to start, swapped
// for a [tlsintercept.Result]'s two [*tls.Conn] halves once a TLS variant
// runs, so every later [inspect.Handler] in the same [inspect.Dispatch]
// reads/writes whichever layer is current without knowing it changed.
type connState struct {
	clt net.Conn
	ups net.Conn

	// host/port identify the original CONNECT target, the SNI/upstream
	// server name every TLS variant handler needs regardless of how many
	// recursion depths separate it from the front-end that dialed.
	host string
	port int
}

func (cs *connState) cltR() net.Conn { return cs.clt }
func (cs *connState) cltW() net.Conn { return cs.clt }
func (cs *connState) upsR() net.Conn { return cs.ups }
func (cs *connState) upsW() net.Conn { return cs.ups }

// swapTLS replaces both halves with the plaintext sides of a completed
// TLS intercept.
func (cs *connState) swapTLS(clt, ups net.Conn) {
	cs.clt = clt
	cs.ups = ups
}
