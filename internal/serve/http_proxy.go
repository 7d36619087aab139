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
	"strconv"

	"github.com/bassosimone/inspectproxy/internal/h1intercept"
	"github.com/bassosimone/inspectproxy/internal/httpmsg"
	"github.com/bassosimone/inspectproxy/internal/inspect"
	"github.com/bassosimone/inspectproxy/internal/sniffer"
	"github.com/bassosimone/inspectproxy/internal/sticky"
)

// HTTPProxy is the HTTP CONNECT / absolute-form front-end: one accepted
// connection's first request line decides whether it tunnels an
// arbitrary protocol through C3..C11, or is itself a plain proxied HTTP
// request relayed directly.
type HTTPProxy struct {
	Front *Front
}

// NewHTTPProxy returns an [*HTTPProxy] front-end sharing front's deps.
func NewHTTPProxy(front *Front) *HTTPProxy {
	return &HTTPProxy{Front: front}
}

// sniffPrefixLen is how many bytes [HTTPProxy.Serve] peeks before calling
// [sniffer.Sniff] once a CONNECT tunnel is established.
const sniffPrefixLen = 32

// Serve handles one accepted client connection to completion.
func (p *HTTPProxy) Serve(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	f := p.Front

	lr := httpmsg.NewLineReader(conn, f.Limits.MaxHeaderSize)
	msg, err := httpmsg.ParseRequest(lr)
	if err != nil {
		writeErrorPage(conn, 400, "Bad Request")
		return err
	}

	var params *sticky.Params
	if raw, ok := msg.Headers.Get("Proxy-Authorization"); ok {
		if pp, perr := sticky.Parse(proxyAuthUsername(raw)); perr == nil {
			params = pp
		}
	}

	if msg.Line.Form == httpmsg.FormAuthority {
		return p.serveConnect(ctx, conn, lr, msg, params)
	}
	return p.serveAbsolute(ctx, conn, lr, msg, params)
}

// serveConnect implements the CONNECT bootstrap: dial upstream, reply
// 200, then hand the now-tunneled byte stream to C3's sniffer and C5's
// dispatch driver.
func (p *HTTPProxy) serveConnect(ctx context.Context, conn net.Conn, lr *httpmsg.LineReader, msg *httpmsg.Message, params *sticky.Params) error {
	f := p.Front
	host, port, err := splitHostPort(msg.Line.Target, 443)
	if err != nil {
		writeErrorPage(conn, 400, "Bad Request")
		return err
	}

	ictx := f.newInspectionContext(host)

	ups, _, err := f.dialUpstream(ctx, ictx, host, port, params)
	if err != nil {
		writeErrorPage(conn, 502, "Bad Gateway")
		return err
	}
	defer ups.Close()

	if _, err := io.WriteString(conn, h1intercept.ConnectSuccessLine("Connection Established", nil)); err != nil {
		return err
	}

	cs := &connState{clt: &bufferedConn{Conn: conn, br: lr.Buffered()}, ups: ups, host: host, port: port}
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

// serveAbsolute relays plain proxied HTTP requests directly: no sniffing,
// no TLS or protocol-switch handling, just the well-known forward-proxy
// request/response cycle, looping while both sides keep the connection
// alive.
func (p *HTTPProxy) serveAbsolute(ctx context.Context, conn net.Conn, lr *httpmsg.LineReader, first *httpmsg.Message, params *sticky.Params) error {
	f := p.Front
	msg := first
	for {
		if err := h1intercept.ValidateForm(h1intercept.RoleForwardProxy, msg.Line.Form); err != nil {
			writeErrorPage(conn, 400, "Bad Request")
			return err
		}
		host, port, err := targetFromAbsolute(msg.Line.Target)
		if err != nil {
			writeErrorPage(conn, 400, "Bad Request")
			return err
		}
		ups, _, err := f.dialUpstream(ctx, nil, host, port, params)
		if err != nil {
			writeErrorPage(conn, 502, "Bad Gateway")
			return err
		}

		wire := msg.SerializeForOrigin(host)
		if _, err := ups.Write(wire); err != nil {
			ups.Close()
			return err
		}
		upsLR := httpmsg.NewLineReader(ups, f.Limits.MaxHeaderSize)
		resp, err := httpmsg.ParseResponse(upsLR, msg.Line.Method, msg.KeepAlive)
		if err != nil {
			ups.Close()
			return err
		}
		if _, err := io.WriteString(conn, httpmsg.SerializeStatusLine(resp.Line.Version, resp.Line.Code, resp.Line.Reason)); err != nil {
			ups.Close()
			return err
		}
		for _, field := range resp.Headers.All() {
			if _, err := io.WriteString(conn, field.Name+": "+field.Value+"\r\n"); err != nil {
				ups.Close()
				return err
			}
		}
		if _, err := io.WriteString(conn, "\r\n"); err != nil {
			ups.Close()
			return err
		}
		if !resp.Body.NoBody() {
			if err := relayHTTPBody(ctx, conn, upsLR.Buffered(), resp.Body); err != nil {
				ups.Close()
				return err
			}
		}
		ups.Close()
		if !resp.KeepAlive || !msg.KeepAlive {
			return nil
		}
		msg, err = httpmsg.ParseRequest(lr)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func targetFromAbsolute(target string) (string, int, error) {
	return splitAbsoluteURI(target)
}

func writeErrorPage(w io.Writer, code int, reason string) {
	body := h1intercept.ErrorPageBody(code, reason)
	io.WriteString(w, h1intercept.ErrorPageHeaders(code, reason, len(body), false))
	w.Write(body)
}

// splitHostPort parses a CONNECT authority-form target ("host:port"),
// defaulting to defaultPort when no port is present.
func splitHostPort(target string, defaultPort int) (string, int, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return target, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// proxyAuthUsername extracts the Basic-auth username component (sticky's
// parameter grammar lives in the username, per §6), ignoring the
// password. It returns "" when raw is not a Basic credential or its
// base64 does not decode.
func proxyAuthUsername(raw string) string {
	const prefix = "Basic "
	if len(raw) > len(prefix) && raw[:len(prefix)] == prefix {
		if decoded, err := decodeBasicUsername(raw[len(prefix):]); err == nil {
			return decoded
		}
	}
	return ""
}

// bufferedConn prepends br's already-buffered bytes to conn's Read
// stream, the "the LineReader over-read into the CONNECT tunnel" case
// every front-end must reuse rather than drop.
type bufferedConn struct {
	net.Conn
	br *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) { return c.br.Read(p) }

// peekPrefix peeks up to n bytes from c's own buffered reader without
// consuming them, for the one-shot [sniffer.Sniff] call at the top of a
// CONNECT tunnel. A conn that is not a *bufferedConn yields no bytes.
func peekPrefix(c net.Conn, n int) ([]byte, sniffer.Hint, error) {
	bc, ok := c.(*bufferedConn)
	if !ok {
		return nil, sniffer.Hint{}, nil
	}
	prefix, err := bc.br.Peek(n)
	if err != nil && len(prefix) == 0 {
		return nil, sniffer.Hint{}, err
	}
	return prefix, sniffer.Hint{}, nil
}
