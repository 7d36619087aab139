//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package httpmsg

import "errors"

// ErrUnsupportedVersion is returned for any HTTP version token other than
// exactly "HTTP/1.0" or "HTTP/1.1" — notably "HTTP/2.0" on a request line,
// which must be handled by the sniffer (C3) / H2 interceptor (C7) instead.
var ErrUnsupportedVersion = errors.New("unsupported HTTP version")

// ErrInvalidContentLength is returned when Content-Length occurs more
// than once with mismatched values.
var ErrInvalidContentLength = errors.New("invalid or inconsistent Content-Length")

// ErrMalformedRequestLine is returned when the request line cannot be
// split into method/target/version.
var ErrMalformedRequestLine = errors.New("malformed request line")

// ErrMalformedStatusLine is returned when the status line cannot be
// parsed.
var ErrMalformedStatusLine = errors.New("malformed status line")

// ErrMalformedHeaderLine is returned when a header line has no colon.
var ErrMalformedHeaderLine = errors.New("malformed header line")
