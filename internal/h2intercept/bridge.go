//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package h2intercept

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bassosimone/inspectproxy/internal/errtax"
	"github.com/bassosimone/inspectproxy/internal/ioprim"
	"golang.org/x/net/http2"
)

// ErrBlockModeRequired is returned when policy is Block: the server
// half short-circuits the handshake and returns this so the caller can
// emit an abrupt "HTTP/1.1 required" shutdown, per §4.7's block mode.
var ErrBlockModeRequired = errors.New("http/1.1 required")

// ErrUpstreamClosed/Disconnected cover the upstream-closed shutdown path.
var ErrUpstreamClosed = errors.New("upstream connection closed")
var ErrUpstreamDisconnected = errors.New("upstream connection disconnected")

// Policy selects the per-connection behavior §4.7 names.
type Policy int

const (
	PolicyIntercept Policy = iota
	PolicyBlock
	PolicyDetour
)

// BridgeConfig bundles everything [Bridge] needs to pair one client
// connection with one upstream connection.
type BridgeConfig struct {
	Settings         Settings
	Policy           Policy
	ServerForceQuit  <-chan struct{}
	BelongsToBlocked func() bool
	Wheel            *ioprim.IdleWheel
	MaxIdleCount     int
	Logger           *slog.Logger
	// ForwardHandler dispatches a non-CONNECT request to the upstream
	// transport and writes the response; CONNECT/extended-CONNECT are
	// handled by [Bridge] itself via the shared upstream transport.
	ForwardHandler func(w http.ResponseWriter, r *http.Request, upstream http.RoundTripper)
}

// Bridge pairs clientConn (served as an H/2 downstream) with
// upstreamConn (dialed once as an H/2 upstream transport), relaying each
// accepted stream through an independent task.
type Bridge struct {
	cfg          BridgeConfig
	aliveStreams atomic.Int64
}

// NewBridge constructs a [*Bridge] for one connection pair.
func NewBridge(cfg BridgeConfig) *Bridge {
	return &Bridge{cfg: cfg}
}

// Run serves clientConn until the connection ends, the server quit
// signal fires, the user is blocked, or the upstream connection closes.
// It blocks until the bridge fully shuts down.
func (b *Bridge) Run(ctx context.Context, clientConn net.Conn, upstreamConn net.Conn, upstreamSupportsExtendedConnect bool) error {
	if b.cfg.Policy == PolicyBlock {
		// Short-circuit: never even read the client preface/settings;
		// an abrupt shutdown communicates "HTTP/1.1 required" and the
		// caller falls back to an H/1 reply.
		return ErrBlockModeRequired
	}

	upstreamTransport := &http2.Transport{
		AllowHTTP:       true,
		ReadIdleTimeout: 30 * time.Second,
		PingTimeout:     15 * time.Second,
	}
	cc, err := upstreamTransport.NewClientConn(upstreamConn)
	if err != nil {
		return errtax.New(errtax.ReasonUpstreamNotConnected, "h2 upstream client conn", err)
	}
	defer cc.Close()

	maxStreams := ClampConcurrentStreams(b.cfg.Settings.MaxConcurrentStreams, b.cfg.Settings.MaxConcurrentStreams)
	server := &http2.Server{
		MaxConcurrentStreams: maxStreams,
		MaxReadFrameSize:      b.cfg.Settings.MaxFrameSize,
		MaxUploadBufferPerStream:     int32(b.cfg.Settings.InitialWindowSize),
		MaxUploadBufferPerConnection: b.cfg.Settings.InitialConnectionWindowSize,
		PermitProhibitedCipherSuites: false,
	}

	upstreamClosed := make(chan struct{})
	go b.watchUpstreamClosed(upstreamConn, upstreamClosed)

	shutdownCtx, cancelShutdown := context.WithCancel(ctx)
	defer cancelShutdown()

	stopPing := make(chan struct{})
	var stopPingOnce sync.Once
	defer stopPingOnce.Do(func() { close(stopPing) })
	go b.pingRelay(shutdownCtx, cc, stopPing)

	go func() {
		select {
		case <-b.cfg.ServerForceQuit:
			server.Shutdown(shutdownCtx) // spec: abrupt, NO_ERROR, refuse new streams
			cancelShutdown()
		case <-upstreamClosed:
			// graceful: let in-flight streams finish, refuse nothing new
			// beyond what ServeConn already stops accepting once it returns.
			stopPingOnce.Do(func() { close(stopPing) })
		case <-shutdownCtx.Done():
		}
	}()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.aliveStreams.Add(1)
		defer func() {
			if b.aliveStreams.Add(-1) == 0 {
				// Zero streams: the idle timer in the caller's select loop
				// starts accumulating ticks from here.
			}
		}()
		if b.cfg.BelongsToBlocked != nil && b.cfg.BelongsToBlocked() {
			w.WriteHeader(http.StatusTeapot) // ENHANCE_YOUR_CALM has no clean HTTP status; caller aborts stream instead
			return
		}
		switch {
		case r.Method == http.MethodConnect && r.Header.Get(":protocol") == "":
			b.handleConnect(w, r, cc)
		case r.Method == http.MethodConnect:
			b.handleExtendedConnect(w, r, cc, upstreamSupportsExtendedConnect)
		default:
			if b.cfg.ForwardHandler != nil {
				b.cfg.ForwardHandler(w, r, cc)
			}
		}
	})

	server.ServeConn(clientConn, &http2.ServeConnOpts{
		Context: shutdownCtx,
		Handler: handler,
	})

	select {
	case <-upstreamClosed:
		return errtax.New(errtax.ReasonClosedByUpstream, "h2 upstream closed", ErrUpstreamClosed)
	default:
	}
	return nil
}

// pingRelay mirrors §4.7's ping-pong liveness check: it sends periodic
// HTTP/2 PING frames to the upstream connection via cc.Ping and exits as
// soon as one fails, the bridge shuts down, or stop is closed. stop is a
// one-shot signal: callers close it exactly once (guarded by sync.Once)
// to cancel the relay from whichever shutdown path fires first.
func (b *Bridge) pingRelay(ctx context.Context, cc *http2.ClientConn, stop <-chan struct{}) {
	interval := b.cfg.Settings.PingInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := cc.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (b *Bridge) watchUpstreamClosed(conn net.Conn, closed chan<- struct{}) {
	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	_ = err
	close(closed)
}

// handleConnect bridges a plain CONNECT stream: the request body is the
// client->upstream half, the response body (after headers are flushed)
// is the upstream->client half.
func (b *Bridge) handleConnect(w http.ResponseWriter, r *http.Request, upstream http.RoundTripper) {
	resp, err := upstream.RoundTrip(r)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	w.WriteHeader(resp.StatusCode)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		if rerr != nil {
			return
		}
	}
}

// handleExtendedConnect bridges a `:protocol`-bearing extended CONNECT
// stream (WebSocket-over-H2, CONNECT-UDP, ...), only when the upstream
// negotiated support for it; otherwise responds 501.
func (b *Bridge) handleExtendedConnect(w http.ResponseWriter, r *http.Request, upstream http.RoundTripper, upstreamSupports bool) {
	if !upstreamSupports {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	b.handleConnect(w, r, upstream)
}

// AliveStreams returns the current count of in-flight streams, the
// alive-stream counter §4.7 says drives the top-level idle timer.
func (b *Bridge) AliveStreams() int64 {
	return b.aliveStreams.Load()
}
