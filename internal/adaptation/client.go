//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package adaptation

import (
	"bufio"
	"context"
	"io"
	"net"
	"time"
)

// Outcome tags the result of [Client.Adapt] — each variant dictates the
// next relay step, per §9's "no call site peeks inside the chosen
// variant" rule.
type OutcomeKind int

const (
	// OutcomeOriginalTransferred: adapter answered 204; the proxy replays its already-consumed preview bytes to
	// upstream and continues its own forwarding path unchanged.
	OutcomeOriginalTransferred OutcomeKind = iota
	// OutcomeNoPayload: adapter consumed the body and produced no
	// replacement; the proxy closes its write side.
	OutcomeNoPayload
	// OutcomeModifiedHead: adapter replaced only the request/response head.
	OutcomeModifiedHead
	// OutcomeModifiedHeadAndBody: adapter replaced head and body.
	OutcomeModifiedHeadAndBody
	// OutcomeErrorResponse: adapter's error-response (head ± body)
	// preempts upstream I/O and must be returned to the client verbatim.
	OutcomeErrorResponse
)

// Outcome is the full result of one [Client.Adapt] call.
type Outcome struct {
	Kind        OutcomeKind
	ModifiedHead []byte
	ModifiedBody io.Reader
	ErrorHead    []byte
	ErrorBody    io.Reader
	Shared       map[string]string // the adapter's proprietary shared-headers bag, §3
}

// Config bundles the adapter endpoint, preview size, and whether to
// bypass on connect failure.
type Config struct {
	ServiceURI   string
	PreviewLimit int
	Bypass       bool
	DialTimeout  time.Duration
	Dialer       func(ctx context.Context) (net.Conn, error)
	Pool         *Pool
}

// Client drives one adaptation call per [Config].
type Client struct {
	Cfg Config
}

// NewClient builds a [Client] from cfg.
func NewClient(cfg Config) *Client {
	return &Client{Cfg: cfg}
}

// Adapt performs the full preview/continue/204/206/error-response
// lifecycle of §4.10 for one request. head is the already-serialized,
// hop-by-hop-stripped protocol head; preview is the already-encoded
// preview (see [httpmsg.EncodePreview]); remainingBody, if non-nil, is
// the rest of the body to stream in the 100-continue path.
func (c *Client) Adapt(ctx context.Context, method Method, head []byte, preview []byte, remainingBody io.Reader) (*Outcome, error) {
	conn, fromPool, err := c.open(ctx)
	if err != nil {
		if c.Cfg.Bypass {
			return nil, ErrBypass
		}
		return nil, &InternalAdapterError{Err: err}
	}

	if err := WriteRequest(conn, method, c.Cfg.ServiceURI, RequestHead{Bytes: head}, c.Cfg.PreviewLimit, preview); err != nil {
		conn.Close()
		return nil, &InternalAdapterError{Err: err}
	}

	br := bufio.NewReader(conn)
	resp, err := ReadResponse(br)
	if err != nil {
		conn.Close()
		return nil, &InternalAdapterError{Err: err}
	}

	switch {
	case resp.Code == 100:
		outcome, err := c.continueExchange(ctx, conn, br, remainingBody)
		if err != nil {
			conn.Close()
			return nil, err
		}
		c.maybeReturn(conn, resp.KeepAlive, fromPool)
		return outcome, nil

	case resp.Code == 204:
		c.maybeReturn(conn, resp.KeepAlive, fromPool)
		return &Outcome{Kind: OutcomeOriginalTransferred, Shared: sharedHeaders(resp)}, nil

	case resp.Code == 206:
		conn.Close()
		return nil, ErrNotImplemented206

	case resp.Code >= 200 && resp.Code < 300:
		// Body was consumed by the adapter; proxy closes its write side.
		c.maybeReturn(conn, resp.KeepAlive, fromPool)
		return &Outcome{Kind: OutcomeNoPayload, Shared: sharedHeaders(resp)}, nil

	default:
		conn.Close()
		return nil, &ErrServerErrorResponse{Reason: "UnknownResponseForPreview", Code: resp.Code, Phrase: resp.Reason}
	}
}

// continueExchange handles the 100-continue path: stream the remaining
// body and read the adapter's final response concurrently, producing
// the modified-head/modified-head-and-body/error-response outcome.
func (c *Client) continueExchange(ctx context.Context, conn net.Conn, br *bufio.Reader, remainingBody io.Reader) (*Outcome, error) {
	writeErrCh := make(chan error, 1)
	go func() {
		if remainingBody == nil {
			writeErrCh <- nil
			return
		}
		_, err := io.Copy(conn, remainingBody)
		writeErrCh <- err
	}()

	final, err := ReadResponse(br)
	if werr := <-writeErrCh; werr != nil && err == nil {
		err = werr
	}
	if err != nil {
		return nil, &InternalAdapterError{Err: err}
	}

	if final.Code >= 200 && final.Code < 300 && final.Code != 204 {
		body, headLen := splitEncapsulatedBody(br, final)
		if headLen > 0 {
			return &Outcome{Kind: OutcomeModifiedHeadAndBody, ModifiedBody: body, Shared: sharedHeaders(final)}, nil
		}
		return &Outcome{Kind: OutcomeModifiedHead, Shared: sharedHeaders(final)}, nil
	}
	if final.Code == 204 {
		return &Outcome{Kind: OutcomeOriginalTransferred, Shared: sharedHeaders(final)}, nil
	}
	errBody, _ := splitEncapsulatedBody(br, final)
	return &Outcome{Kind: OutcomeErrorResponse, ErrorBody: errBody, Shared: sharedHeaders(final)}, nil
}

func splitEncapsulatedBody(br *bufio.Reader, resp *Response) (io.Reader, int) {
	if resp.Encapsulated == nil {
		return br, 0
	}
	if _, ok := resp.Encapsulated["res-body"]; ok {
		return br, 1
	}
	return nil, 0
}

func sharedHeaders(resp *Response) map[string]string {
	out := make(map[string]string)
	for _, f := range resp.Headers.All() {
		out[f.Name] = f.Value
	}
	return out
}

func (c *Client) open(ctx context.Context) (net.Conn, bool, error) {
	if c.Cfg.Pool != nil {
		if conn, ok := c.Cfg.Pool.Take(); ok {
			return conn, true, nil
		}
	}
	dialCtx := ctx
	var cancel context.CancelFunc
	if c.Cfg.DialTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, c.Cfg.DialTimeout)
		defer cancel()
	}
	conn, err := c.Cfg.Dialer(dialCtx)
	return conn, false, err
}

// maybeReturn returns conn to the pool only when keepAlive was
// advertised, the point-in-time 100-continue exchange fully drained both
// reader and writer (true here because ReadResponse/io.Copy both ran to
// completion before this is called), per §4.10(3).
func (c *Client) maybeReturn(conn net.Conn, keepAlive bool, wasFromPool bool) {
	if c.Cfg.Pool == nil || !keepAlive {
		conn.Close()
		return
	}
	c.Cfg.Pool.Put(conn)
}
