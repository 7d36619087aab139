//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package serve

import (
	"bufio"
	"context"
	"io"
	"net"

	"github.com/bassosimone/inspectproxy/internal/h1intercept"
	"github.com/bassosimone/inspectproxy/internal/h2intercept"
	"github.com/bassosimone/inspectproxy/internal/httpmsg"
	"github.com/bassosimone/inspectproxy/internal/imapintercept"
	"github.com/bassosimone/inspectproxy/internal/inspect"
	"github.com/bassosimone/inspectproxy/internal/ioprim"
	"github.com/bassosimone/inspectproxy/internal/relay"
	"github.com/bassosimone/inspectproxy/internal/sniffer"
	"github.com/bassosimone/inspectproxy/internal/smtpintercept"
	"github.com/bassosimone/inspectproxy/internal/taskctx"
	"github.com/bassosimone/inspectproxy/internal/tlsintercept"
)

// buildDispatch wires C6 through C9 into the [inspect.Dispatch] the
// driver consults once a connection's first bytes are sniffed, sharing
// cs as the mutable "current plaintext halves" every handler reads and,
// for the TLS variants, replaces.
func (f *Front) buildDispatch(cs *connState) inspect.Dispatch {
	return inspect.Dispatch{
		inspect.TlsModern:  f.tlsHandler(cs, tlsintercept.ProfileModern()),
		inspect.TlsTlcp:    f.tlsHandler(cs, tlsintercept.ProfileTLCP()),
		inspect.H1:         f.h1Handler(cs),
		inspect.H2:         f.h2Handler(cs),
		inspect.Websocket:  f.websocketHandler(cs),
		inspect.Smtp:       f.smtpHandler(cs),
		inspect.Imap:       f.imapHandler(cs),
	}
}

// tlsHandler terminates the client's TLS handshake with a leaf minted
// for cs.host and re-originates one to upstream using profile, then
// re-sniffs the now-plaintext stream to pick H1 vs H2.
func (f *Front) tlsHandler(cs *connState, profile tlsintercept.Profile) inspect.Handler {
	return func(ctx context.Context, ictx *taskctx.InspectionContext, in inspect.StreamInspection) (inspect.StreamInspection, bool, error) {
		cfg := f.TLSConfig
		cfg.UpstreamProfile = profile
		if cfg.ClientHandshakeTimeout == 0 {
			cfg.ClientHandshakeTimeout = f.Limits.ReqHeaderTimeout
		}
		if cfg.UpstreamHandshakeTimeout == 0 {
			cfg.UpstreamHandshakeTimeout = f.Limits.RspHeaderTimeout
		}
		dialUpstream := func(context.Context) (net.Conn, error) { return cs.ups, nil }
		res, err := tlsintercept.Intercept(ctx, ictx, cfg, cs.clt, cs.host, dialUpstream, cs.host, tlsintercept.SessionCacheKey{Host: cs.host, Port: cs.port})
		if err != nil {
			return inspect.StreamInspection{}, false, err
		}
		cs.swapTLS(res.ClientConn, res.UpstreamConn)
		if res.NegotiatedALPN == "h2" {
			return inspect.StreamInspection{Variant: inspect.H2}, false, nil
		}
		return inspect.StreamInspection{Variant: inspect.H1}, false, nil
	}
}

func (f *Front) h1Handler(cs *connState) inspect.Handler {
	return func(ctx context.Context, ictx *taskctx.InspectionContext, in inspect.StreamInspection) (inspect.StreamInspection, bool, error) {
		pump := &h1intercept.Pump{Cfg: h1intercept.PumpConfig{
			Role:         h1intercept.RoleTransparent,
			PipelineSize: 16,
			MaxHeaderLen: f.Limits.MaxHeaderSize,
			Wheel:        f.Wheel,
			MaxIdleCount: f.Limits.MaxIdleCount,
			Logger:       f.Logger,
		}}
		err := pump.Run(ctx, cs.clt, cs.clt, cs.ups, cs.ups, relayHTTPBody)
		return inspect.StreamInspection{Variant: inspect.End}, true, err
	}
}

// relayHTTPBody copies a response body from src to dst according to its
// framing, with no modification (content adaptation, when enabled, runs
// inside the interceptor packages that call [adaptation.Client] directly
// rather than through this transparent pass-through).
func relayHTTPBody(ctx context.Context, dst io.Writer, src io.Reader, bt httpmsg.BodyType) error {
	switch {
	case bt.Kind == httpmsg.ContentLength:
		_, err := io.CopyN(dst, src, int64(bt.Length))
		return err
	case bt.IsChunked():
		cr := httpmsg.NewChunkedReader(bufio.NewReader(src))
		buf := make([]byte, 32*1024)
		for {
			n, err := cr.Read(buf)
			if n > 0 {
				if werr := httpmsg.WriteChunk(dst, buf[:n], nil); werr != nil {
					return werr
				}
			}
			if err == io.EOF {
				return httpmsg.WriteChunk(dst, nil, cr.Trailer())
			}
			if err != nil {
				return err
			}
		}
	default:
		_, err := io.Copy(dst, src)
		return err
	}
}

// h2Handler bridges an already-negotiated HTTP/2 connection; per §4.5
// this variant is always terminal for the connection.
func (f *Front) h2Handler(cs *connState) inspect.Handler {
	return func(ctx context.Context, ictx *taskctx.InspectionContext, in inspect.StreamInspection) (inspect.StreamInspection, bool, error) {
		bridge := h2intercept.NewBridge(h2intercept.BridgeConfig{
			Settings:        f.H2Settings,
			Policy:          h2intercept.PolicyIntercept,
			ServerForceQuit: ictx.QuitSignal(),
			Logger:          f.Logger,
		})
		err := bridge.Run(ctx, cs.clt, cs.ups, true)
		return inspect.StreamInspection{Variant: inspect.End}, true, err
	}
}

// websocketHandler relays an upgraded WebSocket connection transparently;
// full frame-level inspection of WebSocket payloads is out of scope
// (§1's non-goals), so once the 101 handshake has been forwarded the
// connection is treated exactly like C11's bypass tunnel.
func (f *Front) websocketHandler(cs *connState) inspect.Handler {
	return func(ctx context.Context, ictx *taskctx.InspectionContext, in inspect.StreamInspection) (inspect.StreamInspection, bool, error) {
		_, err := relay.Run(ctx, relay.Config{
			Wheel:        f.Wheel,
			MaxIdleCount: f.Limits.MaxIdleCount,
			StreamCfg:    ioprim.DefaultStreamCopyConfig(),
			Logger:       f.Logger,
		}, relay.ReasonBypass, cs.clt, cs.clt, cs.ups, cs.ups, ictx.QuitSignal())
		return inspect.StreamInspection{Variant: inspect.End}, true, err
	}
}

func (f *Front) smtpHandler(cs *connState) inspect.Handler {
	return func(ctx context.Context, ictx *taskctx.InspectionContext, in inspect.StreamInspection) (inspect.StreamInspection, bool, error) {
		d := smtpintercept.NewDriver(smtpintercept.Config{
			Timeouts:   smtpintercept.DefaultTimeouts(),
			MaxLineLen: f.Limits.MaxLineSize,
			Adapter:    f.Adapter,
		})
		err := d.Run(ctx, cs.clt, cs.clt, cs.ups, cs.ups)
		return inspect.StreamInspection{Variant: inspect.End}, true, err
	}
}

func (f *Front) imapHandler(cs *connState) inspect.Handler {
	return func(ctx context.Context, ictx *taskctx.InspectionContext, in inspect.StreamInspection) (inspect.StreamInspection, bool, error) {
		d := imapintercept.NewDriver(imapintercept.Config{
			Supported:  []string{"IDLE", "UTF8=ACCEPT"},
			MaxLineLen: f.Limits.MaxLineSize,
			Adapter:    f.Adapter,
		})
		err := d.Run(ctx, cs.clt, cs.clt, cs.ups, cs.ups)
		return inspect.StreamInspection{Variant: inspect.End}, true, err
	}
}

// sniffVariant maps a [sniffer.Protocol] onto the matching
// [inspect.Variant] the dispatch loop understands.
func sniffVariant(p sniffer.Protocol) inspect.Variant {
	switch p {
	case sniffer.HTTP1:
		return inspect.H1
	case sniffer.HTTP2PriorKnowledge:
		return inspect.H2
	case sniffer.TLS:
		return inspect.TlsModern
	case sniffer.SMTP:
		return inspect.Smtp
	case sniffer.IMAP:
		return inspect.Imap
	default:
		return inspect.StreamUnknown
	}
}
