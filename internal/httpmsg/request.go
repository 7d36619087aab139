//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package httpmsg

import (
	"fmt"
	"strings"
)

// RequestForm distinguishes how the request target was written on the
// wire, which in turn decides which concrete request type C6 builds.
type RequestForm int

const (
	FormOrigin RequestForm = iota
	FormAbsolute
	FormAuthority // CONNECT
)

// RequestLine is the parsed first line of an HTTP/1 request.
type RequestLine struct {
	Method  string
	Target  string
	Version string
	Form    RequestForm
}

// ParseRequestLine parses "METHOD target VERSION", validating the version
// is exactly HTTP/1.0 or HTTP/1.1 and classifying the request form.
func ParseRequestLine(line string) (RequestLine, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return RequestLine{}, ErrMalformedRequestLine
	}
	version := parts[2]
	if version != "HTTP/1.0" && version != "HTTP/1.1" {
		return RequestLine{}, ErrUnsupportedVersion
	}
	rl := RequestLine{Method: parts[0], Target: parts[1], Version: version}
	switch {
	case rl.Method == "CONNECT":
		rl.Form = FormAuthority
	case strings.HasPrefix(rl.Target, "/"):
		rl.Form = FormOrigin
	default:
		rl.Form = FormAbsolute
	}
	return rl, nil
}

// Message is the common shape shared by transparent and proxy requests:
// a parsed line, the end-to-end header set, and the body framing
// descriptor derived from it.
type Message struct {
	Line       RequestLine
	Headers    *Headers
	Body       BodyType
	KeepAlive  bool
	UpgradeTok string
	HasUpgrade bool
}

// ParseRequest reads a request line followed by headers from lr, applying
// body-framing precedence and hop-by-hop/upgrade rules from §4.2.
func ParseRequest(lr *LineReader) (*Message, error) {
	lineBytes, err := lr.ReadLine()
	if err != nil {
		return nil, err
	}
	line, err := ParseRequestLine(string(lineBytes))
	if err != nil {
		return nil, err
	}
	headers, err := parseHeaderBlock(lr)
	if err != nil {
		return nil, err
	}

	body, forceClose, err := DetermineBodyFraming(headers, false)
	if err != nil {
		return nil, err
	}

	keepAlive := line.Version == "HTTP/1.1"
	if headers.HasConnectionToken("close") {
		keepAlive = false
	}
	if headers.HasConnectionToken("keep-alive") && line.Version == "HTTP/1.0" {
		keepAlive = true
	}
	if forceClose {
		keepAlive = false
	}

	upgradeTok, hasUpgrade := UpgradeRequested(headers)

	return &Message{
		Line:       line,
		Headers:    headers,
		Body:       body,
		KeepAlive:  keepAlive,
		UpgradeTok: upgradeTok,
		HasUpgrade: hasUpgrade,
	}, nil
}

func parseHeaderBlock(lr *LineReader) (*Headers, error) {
	h := &Headers{}
	for {
		line, err := lr.ReadLine()
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			return h, nil
		}
		idx := indexByte(line, ':')
		if idx < 0 {
			return nil, ErrMalformedHeaderLine
		}
		name := string(line[:idx])
		value := strings.TrimSpace(string(line[idx+1:]))
		h.Add(name, value)
	}
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

// PipelineSafe reports whether this request may be sent upstream before a
// previous response was received: idempotent method, no body, no
// upgrade. Mirrors §4.6.1's req.pipeline_safe().
func (m *Message) PipelineSafe() bool {
	if m.HasUpgrade {
		return false
	}
	if !m.Body.NoBody() {
		return false
	}
	switch m.Line.Method {
	case "GET", "HEAD", "OPTIONS", "TRACE":
		return true
	default:
		return false
	}
}

// SerializeForOrigin renders the request in path-and-query (origin) form,
// with hop-by-hop headers stripped, for transparent / forward-proxy
// delivery to the origin server or next hop.
func (m *Message) SerializeForOrigin(hostHeader string) []byte {
	return m.serialize(pathForm(m.Line.Target), hostHeader, true)
}

// PartialSerializeForProxy renders the request in absolute-form, for
// delivery to a configured forward-proxy peer.
func (m *Message) PartialSerializeForProxy(absoluteURI string) []byte {
	return m.serialize(absoluteURI, "", true)
}

// SerializeForAdapter renders the request with hop-by-hop headers
// stripped, for handoff to the external content-adaptation service.
func (m *Message) SerializeForAdapter() []byte {
	return m.serialize(m.Line.Target, "", true)
}

func (m *Message) serialize(target, hostOverride string, stripHopByHop bool) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\r\n", m.Line.Method, target, m.Line.Version)

	headers := m.Headers
	if stripHopByHop {
		headers = headers.Clone()
		headers.StripHopByHop()
	}
	wroteHost := false
	for _, f := range headers.All() {
		if hostOverride != "" && strings.EqualFold(f.Name, "Host") {
			fmt.Fprintf(&b, "Host: %s\r\n", hostOverride)
			wroteHost = true
			continue
		}
		fmt.Fprintf(&b, "%s: %s\r\n", f.Name, f.Value)
	}
	if hostOverride != "" && !wroteHost {
		fmt.Fprintf(&b, "Host: %s\r\n", hostOverride)
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

func pathForm(target string) string {
	if idx := strings.Index(target, "://"); idx >= 0 {
		rest := target[idx+3:]
		if slash := strings.IndexByte(rest, '/'); slash >= 0 {
			return rest[slash:]
		}
		return "/"
	}
	return target
}
