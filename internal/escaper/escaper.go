//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package escaper

import (
	"context"
	"net"
	"net/netip"

	"github.com/miekg/dns"

	"github.com/bassosimone/inspectproxy/internal/nopx"
)

// ResolvedAddress is the address-record shape a DNS resolver (out of
// scope here) would hand to an [Escaper]: the owner name plus the A/AAAA
// records that back it, reusing [dns.A]/[dns.AAAA] so a real resolver can
// be dropped in without reshaping this contract.
type ResolvedAddress struct {
	Name string
	A    []*dns.A
	AAAA []*dns.AAAA
}

// IPs flattens the resolved A/AAAA records into a plain address list, the
// form [Escaper] implementations actually dial.
func (r ResolvedAddress) IPs() []net.IP {
	out := make([]net.IP, 0, len(r.A)+len(r.AAAA))
	for _, rec := range r.A {
		out = append(out, rec.A)
	}
	for _, rec := range r.AAAA {
		out = append(out, rec.AAAA)
	}
	return out
}

// EgressDecision records which local path/address an [Escaper] chose,
// for [taskctx.TaskNotes]'s egress-path-selection field.
type EgressDecision struct {
	LocalAddr  net.Addr
	RemoteAddr net.Addr
	EgressName string
}

// Escaper is the minimal egress-dial contract every front-end handler
// depends on. Implementations own resolution and Happy-Eyeballs racing;
// this package only shapes the call and a direct-TCP fallback.
type Escaper interface {
	// DialTCP connects to one of addr's candidate IPs on port and
	// returns the established connection plus the egress decision that
	// was made.
	DialTCP(ctx context.Context, addr ResolvedAddress, port int) (net.Conn, EgressDecision, error)
}

// DirectTCP is the simplest [Escaper]: it dials the first reachable IP in
// addr.IPs() directly, with no egress selection or Happy-Eyeballs racing.
// Each dial attempt runs through the teacher's composable pipeline
// (ConnectFunc, observed for per-I/O logging, watched for responsive
// cancellation on ctx), the same three-stage shape "nopx" wires for any
// connection-establishment step.
type DirectTCP struct {
	Dialer *net.Dialer
	Name   string
	Logger nopx.SLogger

	pipeline nopx.Func[netip.AddrPort, net.Conn]
}

// NewDirectTCP returns a [*DirectTCP] escaper labeled name (used only for
// [EgressDecision.EgressName]), logging nowhere until [DirectTCP.Logger]
// is set.
func NewDirectTCP(name string) *DirectTCP {
	return &DirectTCP{Dialer: &net.Dialer{}, Name: name, Logger: nopx.DefaultSLogger()}
}

// ErrNoAddresses is returned when addr carries no A/AAAA records to dial.
var ErrNoAddresses = errNoAddresses{}

type errNoAddresses struct{}

func (errNoAddresses) Error() string { return "no resolved addresses to dial" }

func (d *DirectTCP) buildPipeline() nopx.Func[netip.AddrPort, net.Conn] {
	if d.pipeline != nil {
		return d.pipeline
	}
	logger := d.Logger
	if logger == nil {
		logger = nopx.DefaultSLogger()
	}
	cfg := nopx.NewConfig()
	cfg.Dialer = d.Dialer
	connect := nopx.NewConnectFunc(cfg, "tcp", logger)
	observe := nopx.NewObserveConnFunc(cfg, logger)
	watch := nopx.NewCancelWatchFunc()
	d.pipeline = nopx.Compose3[netip.AddrPort, net.Conn, net.Conn, net.Conn](connect, observe, watch)
	return d.pipeline
}

func (d *DirectTCP) DialTCP(ctx context.Context, addr ResolvedAddress, port int) (net.Conn, EgressDecision, error) {
	ips := addr.IPs()
	if len(ips) == 0 {
		return nil, EgressDecision{}, ErrNoAddresses
	}
	pipeline := d.buildPipeline()
	var lastErr error
	for _, ip := range ips {
		conn, err := pipeline.Call(ctx, addrPortFor(ip, port))
		if err != nil {
			lastErr = err
			continue
		}
		return conn, EgressDecision{
			LocalAddr:  conn.LocalAddr(),
			RemoteAddr: conn.RemoteAddr(),
			EgressName: d.Name,
		}, nil
	}
	return nil, EgressDecision{}, lastErr
}

// addrPortFor builds the [netip.AddrPort] [nopx.ConnectFunc] dials from an
// already-resolved [net.IP] and port.
func addrPortFor(ip net.IP, port int) netip.AddrPort {
	if v4 := ip.To4(); v4 != nil {
		return netip.AddrPortFrom(netip.AddrFrom4([4]byte(v4)), uint16(port))
	}
	return netip.AddrPortFrom(netip.AddrFrom16([16]byte(ip.To16())), uint16(port))
}
