//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package httpmsg

import (
	"strconv"
	"strings"
)

// DetermineBodyFraming applies §4.2's body-framing precedence to a parsed
// header set, returning the resulting [BodyType] and whether keep_alive
// must be forced off. It never mutates h; callers needing the
// Content-Length header gone when Transfer-Encoding wins should call
// h.Remove("Content-Length") themselves once this returns.
//
// allowReadUntilEnd should be true only for responses (a request body
// can never legally run until connection close).
func DetermineBodyFraming(h *Headers, allowReadUntilEnd bool) (BodyType, bool, error) {
	te, hasTE := h.Get("Transfer-Encoding")
	chunked := hasTE && endsWithChunked(te)

	if chunked {
		// Transfer-Encoding wins over Content-Length; if both are
		// present keep_alive is forced off per RFC 9112 §6.1.
		forceClose := h.Count("Content-Length") > 0
		hasTrailer := h.Count("Trailer") > 0
		kind := ChunkedWithoutTrailer
		if hasTrailer {
			kind = ChunkedWithTrailer
		}
		return BodyType{Kind: kind}, forceClose, nil
	}

	if values := h.Values("Content-Length"); len(values) > 0 {
		length, err := parseConsistentContentLength(values)
		if err != nil {
			return BodyType{}, false, err
		}
		return BodyType{Kind: ContentLength, Length: length}, false, nil
	}

	if allowReadUntilEnd {
		return BodyType{Kind: ReadUntilEnd}, false, nil
	}
	return BodyType{Kind: ContentLength, Length: 0}, false, nil
}

func endsWithChunked(te string) bool {
	parts := strings.Split(te, ",")
	if len(parts) == 0 {
		return false
	}
	last := strings.TrimSpace(parts[len(parts)-1])
	return strings.EqualFold(last, "chunked")
}

// parseConsistentContentLength requires every repeated Content-Length
// occurrence to parse to the identical value (RFC 9112 §6.3 request
// smuggling defense); mismatches fail with [ErrInvalidContentLength].
func parseConsistentContentLength(values []string) (uint64, error) {
	var first uint64
	for i, v := range values {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, ErrInvalidContentLength
		}
		if i == 0 {
			first = n
		} else if n != first {
			return 0, ErrInvalidContentLength
		}
	}
	return first, nil
}

// UpgradeRequested reports whether Connection lists "upgrade" — only then
// is the Upgrade header itself honored; otherwise it must be stripped as
// an ordinary hop-by-hop header per §4.2.
func UpgradeRequested(h *Headers) (token string, ok bool) {
	if !h.HasConnectionToken("upgrade") {
		return "", false
	}
	v, present := h.Get("Upgrade")
	return v, present
}
