//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package serve

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"

	"github.com/bassosimone/inspectproxy/internal/adaptation"
	"github.com/bassosimone/inspectproxy/internal/escaper"
	"github.com/bassosimone/inspectproxy/internal/h2intercept"
	"github.com/bassosimone/inspectproxy/internal/inspect"
	"github.com/bassosimone/inspectproxy/internal/ioprim"
	"github.com/bassosimone/inspectproxy/internal/metrics"
	"github.com/bassosimone/inspectproxy/internal/nopx"
	"github.com/bassosimone/inspectproxy/internal/relay"
	"github.com/bassosimone/inspectproxy/internal/sticky"
	"github.com/bassosimone/inspectproxy/internal/taskctx"
	"github.com/bassosimone/inspectproxy/internal/tlsintercept"
)

// Resolver abstracts the forward-name-resolution step a front-end needs
// before calling an [escaper.Escaper]; [NewFront] defaults it to one
// backed by [net.DefaultResolver].
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]net.IP, error)
}

// stdResolver adapts [net.DefaultResolver] to [Resolver].
type stdResolver struct{}

func (stdResolver) LookupHost(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	out := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.IP)
	}
	return out, nil
}

// Front bundles every dependency a front-end entry handler (HTTP CONNECT
// / absolute-form, SOCKS5) shares: egress dialing, DNS resolution, TLS
// interception, content adaptation, sticky-upstream selection, and
// observability, wiring C1 through C11 plus §6's sticky parameters.
type Front struct {
	Escaper      escaper.Escaper
	Resolver     Resolver
	TLSConfig    tlsintercept.Config
	H2Settings   h2intercept.Settings
	Adapter      *adaptation.Client
	Metrics      *metrics.UserMetrics
	StickyStore  *sticky.Store
	StickySep    string
	StickySuffix string
	Limits       taskctx.Limits
	Policy       taskctx.PolicyKnobs
	Wheel        *ioprim.IdleWheel
	MaxInspectionDepth int
	Logger       *slog.Logger
}

// NewFront returns a [*Front] with conservative defaults filled in for
// every field the caller left zero-valued.
func NewFront(esc escaper.Escaper, logger *slog.Logger) *Front {
	if logger == nil {
		logger = slog.Default()
	}
	if d, ok := esc.(*escaper.DirectTCP); ok {
		d.Logger = logger
	}
	return &Front{
		Escaper:            esc,
		Resolver:           stdResolver{},
		TLSConfig:          tlsintercept.Config{UpstreamProfile: tlsintercept.ProfileModern(), Logger: logger},
		H2Settings:         h2intercept.DefaultSettings(),
		StickyStore:        sticky.NewStore(),
		StickySep:          "-",
		Limits:             taskctx.DefaultLimits(),
		Wheel:              ioprim.NewIdleWheel(time.Second),
		MaxInspectionDepth: 8,
		Logger:             logger,
	}
}

// resolve turns host into an [escaper.ResolvedAddress] usable by
// [escaper.Escaper]. Resolution itself is out of this system's scope
// (§1's non-goals); this wraps whatever [Resolver] the caller configured
// into the record shape [escaper.Escaper] expects.
func (f *Front) resolve(ctx context.Context, host string) (escaper.ResolvedAddress, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ipLiteralAddress(host, ip), nil
	}
	host, err := normalizeHost(host)
	if err != nil {
		return escaper.ResolvedAddress{}, errResolverFailed(err)
	}
	ips, err := f.Resolver.LookupHost(ctx, host)
	if err != nil {
		return escaper.ResolvedAddress{}, errResolverFailed(err)
	}
	addr := escaper.ResolvedAddress{Name: dns.Fqdn(host)}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			addr.A = append(addr.A, &dns.A{Hdr: dns.RR_Header{Name: addr.Name, Rrtype: dns.TypeA, Class: dns.ClassINET}, A: v4})
			continue
		}
		addr.AAAA = append(addr.AAAA, &dns.AAAA{Hdr: dns.RR_Header{Name: addr.Name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET}, AAAA: ip})
	}
	return addr, nil
}

// normalizeHost converts an international domain name to its ASCII
// (punycode) form before resolution/SNI use, leaving already-ASCII
// hostnames untouched.
func normalizeHost(host string) (string, error) {
	return idna.Lookup.ToASCII(host)
}

func ipLiteralAddress(host string, ip net.IP) escaper.ResolvedAddress {
	addr := escaper.ResolvedAddress{Name: dns.Fqdn(host)}
	if v4 := ip.To4(); v4 != nil {
		addr.A = []*dns.A{{Hdr: dns.RR_Header{Name: addr.Name, Rrtype: dns.TypeA, Class: dns.ClassINET}, A: v4}}
	} else {
		addr.AAAA = []*dns.AAAA{{Hdr: dns.RR_Header{Name: addr.Name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET}, AAAA: ip}}
	}
	return addr
}

type resolverError struct{ err error }

func (e *resolverError) Error() string { return "resolver: " + e.err.Error() }
func (e *resolverError) Unwrap() error { return e.err }

func errResolverFailed(err error) error { return &resolverError{err} }

// dialUpstream resolves host and dials port through f.Escaper, applying
// sticky-upstream selection from params when non-nil and non-empty. When
// ictx is non-nil, the dial runs under [nopx.WithSpan] so every
// connect/observe log line the escaper's pipeline emits carries ictx's
// span ID and advances ictx.Notes.
func (f *Front) dialUpstream(
	ctx context.Context, ictx *taskctx.InspectionContext, host string, port int, params *sticky.Params,
) (net.Conn, escaper.EgressDecision, error) {
	target := host
	if params != nil {
		if derived := params.DeriveHost(f.StickySep, f.StickySuffix); derived != "" {
			target = derived
		}
	}
	addr, err := f.resolve(ctx, target)
	if err != nil {
		return nil, escaper.EgressDecision{}, err
	}
	if params != nil && params.UsesStickiness() {
		key := params.CanonicalKey("sticky", target)
		if ip, ok := f.StickyStore.Get(key); ok {
			addr = pinToIP(addr, ip)
		} else if picked, ok := sticky.Pick(key, addr.IPs()); ok {
			addr = pinToIP(addr, picked)
			f.StickyStore.Put(key, picked, sticky.ClampTTL(params.StickyTTL))
		}
	}
	return f.Escaper.DialTCP(nopx.WithSpan(ctx, ictx), addr, port)
}

// pinToIP narrows addr down to the single already-chosen ip, so a
// subsequent [escaper.Escaper.DialTCP] call can't wander off to a
// different candidate than the one sticky selection committed to.
func pinToIP(addr escaper.ResolvedAddress, ip net.IP) escaper.ResolvedAddress {
	if v4 := ip.To4(); v4 != nil {
		return escaper.ResolvedAddress{Name: addr.Name, A: []*dns.A{{Hdr: dns.RR_Header{Name: addr.Name, Rrtype: dns.TypeA, Class: dns.ClassINET}, A: v4}}}
	}
	return escaper.ResolvedAddress{Name: addr.Name, AAAA: []*dns.AAAA{{Hdr: dns.RR_Header{Name: addr.Name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET}, AAAA: ip}}}
}

// newInspectionContext builds the root [taskctx.InspectionContext] for a
// freshly accepted connection bound for host, honoring f.Policy and
// f.Limits. The span ID tagging every recursion depth of this connection
// is minted fresh per [nopx.NewSpanID], not derived from host.
func (f *Front) newInspectionContext(host string) *taskctx.InspectionContext {
	ictx := taskctx.NewRootContext(f.Limits, f.Policy, f.Wheel, f.MaxInspectionDepth, nopx.NewSpanID())
	ictx.Host = host
	return ictx
}

// connLogger returns f.Logger tagged with ictx's span ID and target host,
// the logger every front-end hands to [inspect.Driver] so every dispatch/
// handler log line carries the connection's identity.
func (f *Front) connLogger(ictx *taskctx.InspectionContext) *slog.Logger {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("spanID", ictx.SpanID, "host", ictx.Host)
}

// bypassFunc is the [inspect.Driver.BypassFunc] every front-end shares:
// a transparent relay through C11 for any Unknown-protocol fallthrough.
func (f *Front) bypassFunc(cs *connState) func(ctx context.Context, ictx *taskctx.InspectionContext, in inspect.StreamInspection) error {
	return func(ctx context.Context, ictx *taskctx.InspectionContext, _ inspect.StreamInspection) error {
		_, err := relay.Run(ctx, relay.Config{
			Wheel:        f.Wheel,
			MaxIdleCount: f.Limits.MaxIdleCount,
			StreamCfg:    ioprim.DefaultStreamCopyConfig(),
			Logger:       f.Logger,
		}, relay.ReasonUnknownProtocol, cs.cltR(), cs.cltW(), cs.upsR(), cs.upsW(), ictx.QuitSignal())
		return err
	}
}
