//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package httpmsg

import (
	"strconv"
	"strings"
)

// StatusLine is the parsed first line of an HTTP/1 response.
type StatusLine struct {
	Version string
	Code    int
	Reason  string
}

// ParseStatusLine parses "VERSION CODE REASON".
func ParseStatusLine(line string) (StatusLine, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return StatusLine{}, ErrMalformedStatusLine
	}
	if parts[0] != "HTTP/1.0" && parts[0] != "HTTP/1.1" {
		return StatusLine{}, ErrUnsupportedVersion
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return StatusLine{}, ErrMalformedStatusLine
	}
	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}
	return StatusLine{Version: parts[0], Code: code, Reason: reason}, nil
}

// Response is a parsed HTTP/1 response.
type Response struct {
	Line      StatusLine
	Headers   *Headers
	Body      BodyType
	KeepAlive bool
}

// ParseResponse reads a status line followed by headers from lr. reqMethod
// is needed because a HEAD response's Content-Length describes a body
// that will not actually be sent; reqKeepAlive is the request's own
// keep-alive decision, since a response can only be kept alive if the
// request allowed it.
func ParseResponse(lr *LineReader, reqMethod string, reqKeepAlive bool) (*Response, error) {
	lineBytes, err := lr.ReadLine()
	if err != nil {
		return nil, err
	}
	line, err := ParseStatusLine(string(lineBytes))
	if err != nil {
		return nil, err
	}
	headers, err := parseHeaderBlock(lr)
	if err != nil {
		return nil, err
	}

	var body BodyType
	var forceClose bool
	switch {
	case reqMethod == "HEAD", line.Code == 204, line.Code == 304, (line.Code >= 100 && line.Code < 200):
		body = BodyType{Kind: ContentLength, Length: 0}
	default:
		body, forceClose, err = DetermineBodyFraming(headers, true)
		if err != nil {
			return nil, err
		}
	}

	keepAlive := reqKeepAlive && line.Version == "HTTP/1.1"
	if headers.HasConnectionToken("close") {
		keepAlive = false
	}
	if forceClose {
		keepAlive = false
	}
	if body.Kind == ReadUntilEnd {
		keepAlive = false
	}

	return &Response{Line: line, Headers: headers, Body: body, KeepAlive: keepAlive}, nil
}

// SerializeStatusLine renders "VERSION CODE REASON\r\n", used verbatim by
// the CONNECT-success and error-template responses in §6.
func SerializeStatusLine(version string, code int, reason string) string {
	return version + " " + strconv.Itoa(code) + " " + reason + "\r\n"
}
