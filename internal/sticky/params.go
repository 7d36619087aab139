//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package sticky

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// Reserved parameter keys §6 gives fixed meaning to: `rotate` forces
// random selection instead of rendezvous hashing, `sticky` sets a
// per-request TTL override, `session_id` folds into the cache-key
// canonicalization without participating in upstream-host derivation.
const (
	KeyRotate    = "rotate"
	KeySticky    = "sticky"
	KeySessionID = "session_id"
)

// ErrMalformedParam is returned for a `+k=v` segment missing either side
// of the `=`.
var ErrMalformedParam = errors.New("malformed username parameter")

// Params is the parsed form of `base+k1=v1+k2=v2+...`.
type Params struct {
	Base      string
	Values    map[string]string // all k=v pairs, reserved keys included
	Rotate    bool
	StickyTTL time.Duration // zero means "use the default TTL"
	SessionID string
}

// Parse splits raw into its base identity and `+`-separated key/value
// parameters.
func Parse(raw string) (*Params, error) {
	parts := strings.Split(raw, "+")
	p := &Params{Base: parts[0], Values: make(map[string]string)}
	for _, seg := range parts[1:] {
		idx := strings.IndexByte(seg, '=')
		if idx < 0 || idx == 0 || idx == len(seg)-1 {
			return nil, ErrMalformedParam
		}
		k, v := seg[:idx], seg[idx+1:]
		p.Values[k] = v
		switch k {
		case KeyRotate:
			p.Rotate = v != "0" && strings.ToLower(v) != "false"
		case KeySticky:
			if d, err := time.ParseDuration(v); err == nil {
				p.StickyTTL = d
			}
		case KeySessionID:
			p.SessionID = v
		}
	}
	return p, nil
}

// HostKeys returns the non-reserved parameter keys, sorted, the ordered
// set §6 says derives the upstream hostname by joining their values.
func (p *Params) HostKeys() []string {
	var keys []string
	for k := range p.Values {
		if isReserved(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DeriveHost joins the values of [Params.HostKeys] with sep and appends
// suffix, applying the `localhost`/`.localhost` reserved-literal mapping
// to 127.0.0.1.
func (p *Params) DeriveHost(sep, suffix string) string {
	keys := p.HostKeys()
	vals := make([]string, 0, len(keys))
	for _, k := range keys {
		vals = append(vals, p.Values[k])
	}
	host := strings.Join(vals, sep)
	if host == "" {
		return ""
	}
	host += suffix
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return "127.0.0.1"
	}
	return host
}

// CanonicalKey builds the cache key §6 names:
// `<prefix>:<upstream>|<base>|<canon-params>`, where canon-params lists
// unknown (non-reserved) keys sorted, then `session_id` last if present.
func (p *Params) CanonicalKey(prefix, upstream string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte(':')
	b.WriteString(upstream)
	b.WriteByte('|')
	b.WriteString(p.Base)
	b.WriteByte('|')
	keys := p.HostKeys()
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('+')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p.Values[k])
	}
	if p.SessionID != "" {
		if len(keys) > 0 {
			b.WriteByte('+')
		}
		b.WriteString(KeySessionID)
		b.WriteByte('=')
		b.WriteString(p.SessionID)
	}
	return b.String()
}

func isReserved(k string) bool {
	return k == KeyRotate || k == KeySticky || k == KeySessionID
}

// UsesStickiness reports whether the store should be consulted at all:
// `rotate` disables stickiness regardless of any `sticky` value present.
func (p *Params) UsesStickiness() bool {
	return !p.Rotate
}
