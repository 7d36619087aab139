//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package h1intercept

import "fmt"

// ErrorPageBody renders the fixed `<code> <reason>` HTML body §6
// requires for every served error page.
func ErrorPageBody(code int, reason string) []byte {
	return []byte(fmt.Sprintf("<html><body><h1>%d %s</h1></body></html>", code, reason))
}

// ErrorPageHeaders renders the status line and headers that must
// accompany [ErrorPageBody]: Content-Type, Content-Length, and a
// Connection token reflecting whether the connection stays open. Every
// reply sent after a committed request body carries Connection: close
// per §7, so callers past that point should always pass keepAlive=false.
func ErrorPageHeaders(code int, reason string, bodyLen int, keepAlive bool) string {
	conn := "close"
	if keepAlive {
		conn = "keep-alive"
	}
	return fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Type: text/html\r\nContent-Length: %d\r\nConnection: %s\r\n\r\n",
		code, reason, bodyLen, conn,
	)
}

// ConnectSuccessLine renders the exact CONNECT success line §6 and §8
// scenario 1 require, with any custom headers (e.g. upstream-addr)
// appended before the terminating blank line.
func ConnectSuccessLine(reason string, extraHeaders map[string]string) string {
	out := fmt.Sprintf("HTTP/1.1 200 %s\r\n", reason)
	for k, v := range extraHeaders {
		out += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	return out + "\r\n"
}

// HundredContinueLine is the fixed "100 Continue" wire form §6 requires.
const HundredContinueLine = "HTTP/1.1 100 Continue\r\n\r\n"

// ProxyAuthenticateHeader renders the WWW/Proxy-Authenticate challenge
// for an ASCII-only realm, per §6.
func ProxyAuthenticateHeader(headerName, realm string) string {
	return fmt.Sprintf("%s: Basic realm=\"%s\"\r\n", headerName, realm)
}
