//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package h1intercept

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/bassosimone/inspectproxy/internal/errtax"
	"github.com/bassosimone/inspectproxy/internal/httpmsg"
	"github.com/bassosimone/inspectproxy/internal/ioprim"
)

// Role distinguishes which form §4.6.1 requires a request to arrive in.
type Role int

const (
	RoleTransparent Role = iota // origin-form only
	RoleForwardProxy             // absolute-form only
	RoleConnect                  // authority-form only (the CONNECT line itself)
)

// ErrWrongRequestForm is returned when a parsed request's form doesn't
// match what this role requires.
var ErrWrongRequestForm = errors.New("request target form not allowed for this role")

// ValidateForm enforces §4.6's "authority form only for CONNECT,
// absolute-form for forward, origin-form for transparent" rule.
func ValidateForm(role Role, form httpmsg.RequestForm) error {
	switch role {
	case RoleConnect:
		if form != httpmsg.FormAuthority {
			return ErrWrongRequestForm
		}
	case RoleForwardProxy:
		if form != httpmsg.FormAbsolute {
			return ErrWrongRequestForm
		}
	case RoleTransparent:
		if form != httpmsg.FormOrigin {
			return ErrWrongRequestForm
		}
	}
	return nil
}

// PumpConfig bundles the pump's tunables.
type PumpConfig struct {
	Role         Role
	PipelineSize int
	MaxHeaderLen int
	Wheel        *ioprim.IdleWheel
	MaxIdleCount int
	Logger       *slog.Logger
}

// slot is one outstanding request/response pairing the writer drains in
// FIFO order, matching the single-producer-queue ordering guarantee §5
// requires even under pipelining.
type slot struct {
	req      *httpmsg.Message
	wireForm []byte
	// done is closed by the writer once this slot's response has been
	// relayed to the client, letting a non-pipeline-safe reader wait
	// before accepting the next request (the "single-slot channel" of
	// §4.6.1).
	done chan struct{}
}

// Pump drives one client<->upstream HTTP/1 connection pair: a reader
// task parsing and validating client requests, a bounded FIFO handing
// them to a writer task that serializes them upstream and relays
// responses back in arrival order.
type Pump struct {
	Cfg        PumpConfig
	HostHeader func(*httpmsg.Message) string // host header override for SerializeForOrigin, nil keeps original
}

// Run pumps requests from cltR to upstream (upsW/upsR) and responses
// back to cltW until the connection ends (EOF, ctx cancellation, or an
// unrecoverable error). Cfg.Wheel and Cfg.MaxIdleCount are not consulted,
// so idle expiry does not end the pump. relayBody, when a request or response carries a
// body, streams it using the shared idle-aware discipline; Run itself
// only handles headers.
func (p *Pump) Run(ctx context.Context, cltR io.Reader, cltW io.Writer, upsR io.Reader, upsW io.Writer, relayBody func(ctx context.Context, dst io.Writer, src io.Reader, bt httpmsg.BodyType) error) error {
	lr := httpmsg.NewLineReader(cltR, p.Cfg.MaxHeaderLen)
	queue := make(chan *slot, p.Cfg.PipelineSize)
	errCh := make(chan error, 2)

	go p.readLoop(ctx, lr, cltW, queue, errCh)
	go p.writeLoop(ctx, upsR, upsW, cltW, queue, errCh, relayBody)

	select {
	case err := <-errCh:
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pump) readLoop(ctx context.Context, lr *httpmsg.LineReader, cltW io.Writer, queue chan<- *slot, errCh chan<- error) {
	defer close(queue)
	var pending *slot
	for {
		req, err := httpmsg.ParseRequest(lr)
		if err != nil {
			p.replyParseError(cltW, err)
			errCh <- classifyReadErr(err)
			return
		}
		if err := ValidateForm(p.Cfg.Role, req.Line.Form); err != nil {
			p.replyParseError(cltW, err)
			errCh <- err
			return
		}

		s := &slot{req: req, done: make(chan struct{})}
		select {
		case queue <- s:
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		default:
			// Queue full: pipeline_size exceeded even for a pipeline-safe
			// request. Block until there's room rather than failing, the
			// bounded-FIFO backpressure §5 describes.
			select {
			case queue <- s:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		pending = s

		if !req.PipelineSafe() {
			select {
			case <-pending.done:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}
}

func (p *Pump) writeLoop(ctx context.Context, upsR io.Reader, upsW io.Writer, cltW io.Writer, queue <-chan *slot, errCh chan<- error, relayBody func(context.Context, io.Writer, io.Reader, httpmsg.BodyType) error) {
	lr := httpmsg.NewLineReader(upsR, p.Cfg.MaxHeaderLen)
	for s := range queue {
		host := ""
		if p.HostHeader != nil {
			host = p.HostHeader(s.req)
		}
		wire := s.req.SerializeForOrigin(host)
		if _, err := upsW.Write(wire); err != nil {
			close(s.done)
			errCh <- errtax.New(errtax.ReasonUpstreamWriteFailed, "writing request upstream", err)
			return
		}
		// A request body, if any, is framed by the caller's own reader
		// positioned after the header block; Pump only forwards headers
		// itself. pipeline_safe requires no body, so non-pipelined
		// requests are the only ones that can carry one, and the caller
		// is expected to have streamed it before enqueuing this slot.

		resp, err := httpmsg.ParseResponse(lr, s.req.Line.Method, s.req.KeepAlive)
		if err != nil {
			close(s.done)
			errCh <- errtax.New(errtax.ReasonUpstreamAppError, "parsing upstream response", err)
			return
		}
		statusLine := httpmsg.SerializeStatusLine(resp.Line.Version, resp.Line.Code, resp.Line.Reason)
		if _, err := io.WriteString(cltW, statusLine); err != nil {
			close(s.done)
			errCh <- errtax.New(errtax.ReasonClosedByClient, "writing response status to client", err)
			return
		}
		for _, f := range resp.Headers.All() {
			if _, err := io.WriteString(cltW, f.Name+": "+f.Value+"\r\n"); err != nil {
				close(s.done)
				errCh <- err
				return
			}
		}
		if _, err := io.WriteString(cltW, "\r\n"); err != nil {
			close(s.done)
			errCh <- err
			return
		}
		if relayBody != nil && !resp.Body.NoBody() {
			if err := relayBody(ctx, cltW, upsR, resp.Body); err != nil {
				close(s.done)
				errCh <- err
				return
			}
		}
		close(s.done)
		if !resp.KeepAlive {
			errCh <- io.EOF
			return
		}
	}
	errCh <- io.EOF
}

func (p *Pump) replyParseError(cltW io.Writer, err error) {
	code, reason := 400, "Bad Request"
	var tooLarge *ioprim.ErrTooLargeHeader
	if errors.As(err, &tooLarge) {
		code, reason = 431, "Request Header Fields Too Large"
	}
	body := ErrorPageBody(code, reason)
	io.WriteString(cltW, ErrorPageHeaders(code, reason, len(body), false))
	cltW.Write(body)
}

func classifyReadErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, ioprim.ErrClientClosed) {
		return io.EOF
	}
	return errtax.New(errtax.ReasonInvalidClientProtocol, "parsing client request", err)
}
