//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package sniffer classifies the first bytes of a plaintext stream into
// one of a fixed set of protocols (C3), so the inspection driver (C5)
// knows which interceptor to dispatch to next.
package sniffer

import (
	"bytes"
	"strings"
)

// Protocol is the outcome of a sniff.
type Protocol int

const (
	Undecided Protocol = iota
	HTTP1
	HTTP2PriorKnowledge
	TLS
	SMTP
	IMAP
	Unknown
	TimedOut
)

func (p Protocol) String() string {
	switch p {
	case HTTP1:
		return "http1"
	case HTTP2PriorKnowledge:
		return "http2-prior-knowledge"
	case TLS:
		return "tls"
	case SMTP:
		return "smtp"
	case IMAP:
		return "imap"
	case Unknown:
		return "unknown"
	case TimedOut:
		return "timed-out"
	default:
		return "undecided"
	}
}

// http2Preface is the fixed client connection preface RFC 9113 §3.4
// requires before any prior-knowledge cleartext HTTP/2 frame.
const http2Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// Hint carries out-of-band knowledge that should short-circuit sniffing,
// e.g. a CONNECT to port 443 where SNI was already observed at the TLS
// layer.
type Hint struct {
	ExplicitProtocol Protocol
	NoExplicitSSL    bool
	SkipNext         bool
}

// Sniff classifies prefix, a buffered read-ahead of the stream (at least
// a few bytes; longer prefixes only improve SMTP/IMAP/HTTP1 confidence).
// maxDepth-driven recursion guards live in the inspection driver (C5), not
// here: Sniff only ever looks at the bytes it's given.
func Sniff(prefix []byte, hint Hint) Protocol {
	if hint.ExplicitProtocol != Undecided {
		return hint.ExplicitProtocol
	}
	if len(prefix) == 0 {
		return Undecided
	}

	if len(prefix) >= len(http2Preface) && bytes.HasPrefix(prefix, []byte(http2Preface)) {
		return HTTP2PriorKnowledge
	}
	if isTLSHandshake(prefix) {
		return TLS
	}
	if looksLikeHTTP1(prefix) {
		return HTTP1
	}
	if looksLikeSMTPGreetingReply(prefix) {
		return SMTP
	}
	if looksLikeIMAPGreeting(prefix) {
		return IMAP
	}
	return Unknown
}

// isTLSHandshake recognizes a TLS record header: content type 22
// (handshake), version major byte 3.
func isTLSHandshake(prefix []byte) bool {
	return len(prefix) >= 3 && prefix[0] == 0x16 && prefix[1] == 0x03
}

var http1Methods = []string{
	"GET ", "POST ", "PUT ", "HEAD ", "DELETE ", "OPTIONS ", "PATCH ", "TRACE ", "CONNECT ",
}

func looksLikeHTTP1(prefix []byte) bool {
	s := string(prefix)
	for _, m := range http1Methods {
		if strings.HasPrefix(s, m) {
			return true
		}
	}
	return false
}

// looksLikeSMTPGreetingReply recognizes a server-initiated "220 " banner,
// relevant when the proxy is sniffing an upstream-originated byte stream
// (e.g. after a transparent TCP relay upgrade decision).
func looksLikeSMTPGreetingReply(prefix []byte) bool {
	return bytes.HasPrefix(prefix, []byte("220 ")) || bytes.HasPrefix(prefix, []byte("220-")) ||
		hasSMTPVerbPrefix(prefix)
}

var smtpVerbs = []string{"EHLO ", "HELO ", "MAIL FROM:", "RCPT TO:", "DATA", "QUIT", "NOOP", "RSET", "BDAT ", "STARTTLS"}

func hasSMTPVerbPrefix(prefix []byte) bool {
	s := strings.ToUpper(string(prefix))
	for _, v := range smtpVerbs {
		if strings.HasPrefix(s, v) {
			return true
		}
	}
	return false
}

// looksLikeIMAPGreeting recognizes either the server's untagged "* OK"
// greeting or a client's tagged command line ("a1 LOGIN ...").
func looksLikeIMAPGreeting(prefix []byte) bool {
	if bytes.HasPrefix(prefix, []byte("* OK")) || bytes.HasPrefix(prefix, []byte("* PREAUTH")) {
		return true
	}
	return looksLikeTaggedIMAPCommand(prefix)
}

func looksLikeTaggedIMAPCommand(prefix []byte) bool {
	sp := bytes.IndexByte(prefix, ' ')
	if sp <= 0 || sp > 32 {
		return false
	}
	tag := prefix[:sp]
	for _, c := range tag {
		if c == ' ' || c == '\r' || c == '\n' || c == '+' || c == '*' {
			return false
		}
	}
	rest := strings.ToUpper(strings.TrimLeft(string(prefix[sp+1:]), " "))
	for _, verb := range []string{"LOGIN", "AUTHENTICATE", "CAPABILITY", "SELECT", "EXAMINE", "ENABLE", "NOOP", "LOGOUT", "STARTTLS"} {
		if strings.HasPrefix(rest, verb) {
			return true
		}
	}
	return false
}
