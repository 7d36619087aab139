//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package serve

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"

	"github.com/bassosimone/inspectproxy/internal/inspect"
	"github.com/bassosimone/inspectproxy/internal/sniffer"
)

// SOCKS5 is the SOCKS5 front-end (RFC 1928). CONNECT requests hand the
// tunneled byte stream to the same sniff-and-dispatch pipeline the HTTP
// CONNECT front-end uses; UDP-ASSOCIATE requests are relayed byte-for-byte
// by [runUDPAssociate], since datagram traffic has no sniff/dispatch
// counterpart in this system (§1's non-goals exclude deep inspection of
// connectionless protocols, not UDP relaying itself).
type SOCKS5 struct {
	Front *Front
}

// NewSOCKS5 returns a [*SOCKS5] front-end sharing front's deps.
func NewSOCKS5(front *Front) *SOCKS5 {
	return &SOCKS5{Front: front}
}

const (
	socksVersion5      = 0x05
	socksMethodNoAuth  = 0x00
	socksMethodNoneOK  = 0xFF
	socksCmdConnect    = 0x01
	socksCmdUDPAssoc   = 0x03
	socksAtypIPv4      = 0x01
	socksAtypDomain    = 0x03
	socksAtypIPv6      = 0x04
	socksReplySucceeded = 0x00
	socksReplyCmdNotSupported = 0x07
	socksReplyGeneralFailure  = 0x01
	socksReplyHostUnreachable = 0x04
)

// ErrUnsupportedSOCKSVersion is returned when the first handshake byte
// isn't 0x05.
var ErrUnsupportedSOCKSVersion = errors.New("socks5: unsupported protocol version")

// Serve handles one accepted SOCKS5 client connection to completion.
func (s *SOCKS5) Serve(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	f := s.Front

	if err := negotiateMethod(conn); err != nil {
		return err
	}

	cmd, host, port, err := readSOCKSRequest(conn)
	if err != nil {
		writeSOCKSReply(conn, socksReplyGeneralFailure)
		return err
	}
	if cmd == socksCmdUDPAssoc {
		return runUDPAssociate(ctx, conn)
	}
	if cmd != socksCmdConnect {
		writeSOCKSReply(conn, socksReplyCmdNotSupported)
		return errors.New("socks5: unsupported command")
	}

	ictx := f.newInspectionContext(host)

	ups, _, err := f.dialUpstream(ctx, ictx, host, port, nil)
	if err != nil {
		writeSOCKSReply(conn, socksReplyHostUnreachable)
		return err
	}
	defer ups.Close()
	if err := writeSOCKSReply(conn, socksReplySucceeded); err != nil {
		return err
	}

	bc := &bufferedConn{Conn: conn, br: bufio.NewReader(conn)}
	cs := &connState{clt: bc, ups: ups, host: host, port: port}
	prefix, hint, err := peekPrefix(cs.clt, sniffPrefixLen)
	if err != nil && err != io.EOF {
		return err
	}
	variant := sniffVariant(sniffer.Sniff(prefix, hint))

	driver := &inspect.Driver{
		Dispatch:   f.buildDispatch(cs),
		Logger:     f.connLogger(ictx),
		BypassFunc: f.bypassFunc(cs),
	}
	return driver.Run(ctx, ictx, inspect.StreamInspection{Variant: variant})
}

// negotiateMethod reads the version-identifier/method-selection message
// and always selects NO AUTHENTICATION REQUIRED, per §1's scope (client
// authentication to the proxy, when needed, travels in the username
// parameter grammar §6 defines, not in a SOCKS5 auth sub-negotiation).
func negotiateMethod(conn net.Conn) error {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return err
	}
	if hdr[0] != socksVersion5 {
		return ErrUnsupportedSOCKSVersion
	}
	methods := make([]byte, hdr[1])
	if _, err := io.ReadFull(conn, methods); err != nil {
		return err
	}
	_, err := conn.Write([]byte{socksVersion5, socksMethodNoAuth})
	return err
}

// readSOCKSRequest parses the CONNECT/UDP-ASSOCIATE request message.
func readSOCKSRequest(conn net.Conn) (cmd byte, host string, port int, err error) {
	hdr := make([]byte, 4)
	if _, err = io.ReadFull(conn, hdr); err != nil {
		return
	}
	if hdr[0] != socksVersion5 {
		err = ErrUnsupportedSOCKSVersion
		return
	}
	cmd = hdr[1]
	switch hdr[3] {
	case socksAtypIPv4:
		b := make([]byte, 4)
		if _, err = io.ReadFull(conn, b); err != nil {
			return
		}
		host = net.IP(b).String()
	case socksAtypIPv6:
		b := make([]byte, 16)
		if _, err = io.ReadFull(conn, b); err != nil {
			return
		}
		host = net.IP(b).String()
	case socksAtypDomain:
		lenB := make([]byte, 1)
		if _, err = io.ReadFull(conn, lenB); err != nil {
			return
		}
		b := make([]byte, lenB[0])
		if _, err = io.ReadFull(conn, b); err != nil {
			return
		}
		host = string(b)
	default:
		err = errors.New("socks5: unsupported address type")
		return
	}
	portB := make([]byte, 2)
	if _, err = io.ReadFull(conn, portB); err != nil {
		return
	}
	port = int(portB[0])<<8 | int(portB[1])
	return
}

// writeSOCKSReply writes a fixed IPv4/0.0.0.0:0 bound-address reply,
// since this proxy's egress address is chosen by [escaper.Escaper] per
// connection and is not meaningfully reportable back to the client.
func writeSOCKSReply(conn net.Conn, code byte) error {
	reply := []byte{socksVersion5, code, 0x00, socksAtypIPv4, 0, 0, 0, 0, 0, 0}
	_, err := conn.Write(reply)
	return err
}

