//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package tlsintercept

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/safeconn"

	"github.com/bassosimone/inspectproxy/internal/nopx"
	"github.com/bassosimone/inspectproxy/internal/taskctx"
)

// Profile selects the outbound negotiation preferences §4.4 calls out:
// protocol floor/ceiling, cipher list, supported groups, and whether an
// alternate GM/TLCP cipher suite list applies. Selecting [ProfileTLCP]
// changes none of [Intercept]'s interface, only which suites/groups this
// profile prefers.
type Profile struct {
	Name               string
	MinVersion         uint16
	MaxVersion         uint16
	CipherSuites       []uint16
	CurvePreferences   []tls.CurveID
	InsecureSkipVerify bool // only set by tests against a stub upstream
}

// ProfileModern is the default TLS 1.2/1.3 profile.
func ProfileModern() Profile {
	return Profile{Name: "modern", MinVersion: tls.VersionTLS12, MaxVersion: tls.VersionTLS13}
}

// ProfileTLCP models the GM/TLCP alternative cipher/profile selection
// named in §4.4. Go's standard crypto/tls has no native TLCP
// (GB/T 38636) suite; a production build would plug a GM-capable
// TLS implementation in here. This profile still flows through the same
// [Intercept] call so the dispatch in C5 never special-cases it.
func ProfileTLCP() Profile {
	return Profile{Name: "tlcp", MinVersion: tls.VersionTLS12, MaxVersion: tls.VersionTLS12}
}

// Config bundles the knobs [Intercept] needs: the client-facing minting
// authority, the outbound profile, an optional session cache, and the two
// handshake deadlines.
type Config struct {
	CA                       *CertAuthority
	UpstreamProfile          Profile
	SessionCache             tls.ClientSessionCache
	ClientHandshakeTimeout   time.Duration
	UpstreamHandshakeTimeout time.Duration
	Logger                   *slog.Logger
}

// Result is the outcome of a successful [Intercept]: two plaintext halves
// (the terminated client conn, the established upstream conn) plus the
// metadata §4.4 says to carry for logging.
type Result struct {
	ClientConn   *tls.Conn
	UpstreamConn *tls.Conn
	NegotiatedALPN string
	UpstreamPeerCert []byte // leaf DER, nil if upstream presented none
}

// Intercept performs the client-side handshake (serving a leaf minted for
// sni) and the upstream handshake (to upstreamServerName over
// dialUpstream) using the profile in cfg, returning the two plaintext
// halves. The two handshakes are independent; a production build may run
// them concurrently, but sequencing here keeps the control flow legible
// without changing the contract. When ictx is non-nil, the upstream
// handshake runs under [nopx.WithSpan] so its tlsHandshakeStart/Done log
// lines carry ictx's span ID and the handshake advances ictx.Notes.
func Intercept(
	ctx context.Context,
	ictx *taskctx.InspectionContext,
	cfg Config,
	clientRaw net.Conn,
	sni string,
	dialUpstream func(ctx context.Context) (net.Conn, error),
	upstreamServerName string,
	upstreamCacheKey SessionCacheKey,
) (*Result, error) {
	leaf, err := cfg.CA.LeafFor(sni)
	if err != nil {
		return nil, ErrInternalTLSClient
	}

	clientCtx, cancel := withTimeout(ctx, cfg.ClientHandshakeTimeout)
	defer cancel()
	clientTLSConf := &tls.Config{
		Certificates: []tls.Certificate{*leaf},
		NextProtos:   []string{"h2", "http/1.1"},
	}
	clientConn := tls.Server(clientRaw, clientTLSConf)
	if err := clientConn.HandshakeContext(clientCtx); err != nil {
		logHandshakeDone(cfg.Logger, "peerTlsHandshakeDone", clientRaw, err)
		if clientCtx.Err() != nil {
			return nil, ErrPeerHandshakeTimeout
		}
		return nil, ErrPeerHandshakeFailed
	}
	logHandshakeDone(cfg.Logger, "peerTlsHandshakeDone", clientRaw, nil)

	upstreamRaw, err := dialUpstream(ctx)
	if err != nil {
		clientConn.Close()
		return nil, err
	}

	upCtx, upCancel := withTimeout(ctx, cfg.UpstreamHandshakeTimeout)
	defer upCancel()
	upConf := &tls.Config{
		ServerName:         upstreamServerName,
		MinVersion:         cfg.UpstreamProfile.MinVersion,
		MaxVersion:         cfg.UpstreamProfile.MaxVersion,
		CipherSuites:       cfg.UpstreamProfile.CipherSuites,
		CurvePreferences:   cfg.UpstreamProfile.CurvePreferences,
		InsecureSkipVerify: cfg.UpstreamProfile.InsecureSkipVerify,
		ClientSessionCache: cfg.SessionCache,
		NextProtos:         []string{"h2", "http/1.1"},
	}
	handshake := nopx.NewTLSHandshakeFunc(nopx.NewConfig(), upConf, nopxLoggerFor(cfg.Logger))
	tconn, err := handshake.Call(nopx.WithSpan(upCtx, ictx), upstreamRaw)
	if err != nil {
		clientConn.Close()
		upstreamRaw.Close()
		if upCtx.Err() != nil {
			return nil, ErrUpstreamHandshakeTimeout
		}
		return nil, ErrUpstreamHandshakeFailed
	}
	upstreamConn := tconn.(*tls.Conn)

	state := upstreamConn.ConnectionState()
	res := &Result{ClientConn: clientConn, UpstreamConn: upstreamConn, NegotiatedALPN: state.NegotiatedProtocol}
	if len(state.PeerCertificates) > 0 {
		res.UpstreamPeerCert = state.PeerCertificates[0].Raw
	}
	return res, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// nopxLoggerFor adapts cfg.Logger to [nopx.SLogger], since [*slog.Logger]
// satisfies it structurally but a nil logger does not.
func nopxLoggerFor(logger *slog.Logger) nopx.SLogger {
	if logger == nil {
		return nopx.DefaultSLogger()
	}
	return logger
}

func logHandshakeDone(logger *slog.Logger, event string, conn net.Conn, err error) {
	if logger == nil {
		return
	}
	logger.Info(event,
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.Any("err", err),
	)
}
