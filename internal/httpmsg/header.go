//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package httpmsg implements the zero-copy-flavored HTTP/1 message codec:
// header parsing that preserves original casing, body-framing precedence
// (chunked vs content-length), hop-by-hop stripping, the three
// serializers used by the proxy and peer roles, and the preview encoder
// the adaptation client (C10) uses for preview-and-continue.
package httpmsg

import "strings"

// Field is one header occurrence, with its original-case name preserved.
type Field struct {
	Name  string // original casing, e.g. "X-Forwarded-For"
	Value string
}

// Headers is an insertion-ordered multimap of header fields. Unlike
// [net/http.Header] it never folds multiple occurrences together and
// never normalizes casing, so a byte-faithful re-serialization is
// possible.
type Headers struct {
	fields []Field
}

// Add appends a field occurrence, preserving the given casing.
func (h *Headers) Add(name, value string) {
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Get returns the first value for name (case-insensitive), and whether it
// was present.
func (h *Headers) Get(name string) (string, bool) {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns every value for name (case-insensitive), in occurrence
// order.
func (h *Headers) Values(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Count returns the number of occurrences of name.
func (h *Headers) Count(name string) int {
	return len(h.Values(name))
}

// All returns every field in insertion order.
func (h *Headers) All() []Field {
	return h.fields
}

// Remove deletes every occurrence of name (case-insensitive), returning
// whether anything was removed.
func (h *Headers) Remove(name string) bool {
	out := h.fields[:0]
	removed := false
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			removed = true
			continue
		}
		out = append(out, f)
	}
	h.fields = out
	return removed
}

// hopByHop is the fixed set of headers §4.2 names as hop-by-hop.
var hopByHop = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"te":                  true,
	"upgrade":             true,
	"transfer-encoding":   true,
	"trailer":             true,
	"proxy-authorization": true,
}

// connectionTokens parses the Connection header's comma-separated token
// list, which names additional hop-by-hop headers to strip.
func (h *Headers) connectionTokens() []string {
	var tokens []string
	for _, v := range h.Values("Connection") {
		for _, tok := range strings.Split(v, ",") {
			tok = strings.TrimSpace(tok)
			if tok != "" {
				tokens = append(tokens, tok)
			}
		}
	}
	return tokens
}

// HasConnectionToken reports whether Connection lists token
// (case-insensitive), e.g. "upgrade" or "close".
func (h *Headers) HasConnectionToken(token string) bool {
	for _, tok := range h.connectionTokens() {
		if strings.EqualFold(tok, token) {
			return true
		}
	}
	return false
}

// StripHopByHop removes the fixed hop-by-hop headers plus every extra
// token the Connection header allow-lists, and finally removes Connection
// itself. This is used by every serializer that forwards a message
// onward (to origin, to a forward proxy peer, or to the adapter).
func (h *Headers) StripHopByHop() {
	extra := h.connectionTokens()
	out := h.fields[:0]
	for _, f := range h.fields {
		lower := strings.ToLower(f.Name)
		if hopByHop[lower] {
			continue
		}
		stripped := false
		for _, tok := range extra {
			if strings.EqualFold(tok, f.Name) {
				stripped = true
				break
			}
		}
		if stripped {
			continue
		}
		out = append(out, f)
	}
	h.fields = out
}

// Clone returns a deep copy of h.
func (h *Headers) Clone() *Headers {
	out := &Headers{fields: make([]Field, len(h.fields))}
	copy(out.fields, h.fields)
	return out
}
