//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package escaper

import (
	"context"
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestResolvedAddressIPsFlattensAAndAAAA(t *testing.T) {
	addr := ResolvedAddress{
		A:    []*dns.A{{A: net.IPv4(127, 0, 0, 1)}},
		AAAA: []*dns.AAAA{{AAAA: net.IPv6loopback}},
	}
	ips := addr.IPs()
	require.Len(t, ips, 2)
}

func TestDirectTCPFailsWithoutAddresses(t *testing.T) {
	d := NewDirectTCP("direct")
	_, _, err := d.DialTCP(context.Background(), ResolvedAddress{}, 80)
	require.ErrorIs(t, err, ErrNoAddresses)
}

func TestDirectTCPDialsListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	d := NewDirectTCP("direct")
	addr := ResolvedAddress{A: []*dns.A{{A: net.IPv4(127, 0, 0, 1)}}}
	conn, decision, err := d.DialTCP(context.Background(), addr, port)
	require.NoError(t, err)
	require.Equal(t, "direct", decision.EgressName)
	conn.Close()
}
