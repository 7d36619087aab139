//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package inspect implements C5: the [StreamInspection] sum type and the
// recursive dispatch loop that drives the other interceptors. It never
// parses protocol bytes itself — it owns only the "what's next" decision
// and the bookkeeping (depth counter, policy gates) every recursion must
// respect.
package inspect

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/bassosimone/inspectproxy/internal/errtax"
	"github.com/bassosimone/inspectproxy/internal/sniffer"
	"github.com/bassosimone/inspectproxy/internal/taskctx"
)

// Variant tags the possible states of a [StreamInspection].
type Variant int

const (
	StreamInspect Variant = iota // undecided, needs a sniff
	StreamUnknown                // bypass: relay transparently
	TlsModern
	TlsTlcp
	StartTls
	H1
	H2
	Websocket
	Smtp
	Imap
	End // terminal: connection is fully handled, nothing more to do
)

func (v Variant) String() string {
	switch v {
	case StreamUnknown:
		return "unknown"
	case TlsModern:
		return "tls"
	case TlsTlcp:
		return "tlcp"
	case StartTls:
		return "starttls"
	case H1:
		return "h1"
	case H2:
		return "h2"
	case Websocket:
		return "websocket"
	case Smtp:
		return "smtp"
	case Imap:
		return "imap"
	case End:
		return "end"
	default:
		return "inspect"
	}
}

// StreamInspection is the growing sum type the dispatch loop advances:
// at every step it is in exactly one variant, optionally carrying the
// sniff hint that produced it.
type StreamInspection struct {
	Variant Variant
	Hint    sniffer.Hint
}

// ErrMaxDepthExceeded is returned by the loop when a handler's "next"
// variant would recurse past the configured max depth.
var ErrMaxDepthExceeded = taskctx.ErrMaxDepthExceeded

// ErrForbiddenProtocol is returned when a policy knob (§4.5's
// prohibit_unknown_protocol / prohibit_timeout_protocol) fires.
var ErrForbiddenProtocol = errors.New("forbidden by rule: protocol banned")

// Handler dispatches one [Variant] to completion, returning either the
// next [StreamInspection] to advance to, or (End, nil) when it fully
// terminated the connection itself (H2's contract: always terminal for
// this connection, per §4.5).
type Handler func(ctx context.Context, ictx *taskctx.InspectionContext, in StreamInspection) (next StreamInspection, terminated bool, err error)

// Dispatch maps each [Variant] to the [Handler] responsible for it. The
// driver never hardcodes a protocol's behavior; it only owns the loop,
// the depth counter, and the policy gates.
type Dispatch map[Variant]Handler

// Driver runs the sum-type dispatch loop described in §4.5.
type Driver struct {
	Dispatch Dispatch
	Logger   *slog.Logger
	// BypassFunc is invoked when the loop falls through to transparent
	// relay (StreamUnknown with no registered handler, or a policy gate
	// didn't forbid it). It is the only caller of C11 from this package.
	BypassFunc func(ctx context.Context, ictx *taskctx.InspectionContext, in StreamInspection) error
}

// Run drives in to completion. Each nested inspection increments
// ictx's depth counter exactly once (enforced here, not by handlers),
// per §4.5's contract; a handler that needs "no change in nesting" (the
// STARTTLS renegotiate-then-EHLO loop in SMTP, for instance) should
// return its own variant via a sibling call rather than through this
// loop, since this loop always treats a returned non-terminal variant as
// one nested inspection.
func (d *Driver) Run(ctx context.Context, ictx *taskctx.InspectionContext, in StreamInspection) error {
	cur := in
	first := true
	for {
		if cur.Variant == End {
			return nil
		}
		if !first {
			if err := ictx.IncreaseInspectionDepth(); err != nil {
				return errtax.New(errtax.ReasonInterceptionError, "max inspection depth exceeded", err)
			}
		}
		first = false

		if cur.Variant == StreamInspect {
			// Caller is expected to have already sniffed into a concrete
			// variant via [sniffer.Sniff] before invoking Run with a
			// StreamInspect input only when recursing without new bytes
			// (e.g. after a STARTTLS renegotiation cleared the sniffer's
			// state); treat an un-sniffable prefix as Unknown.
			cur = StreamInspection{Variant: StreamUnknown}
		}

		if cur.Variant == StreamUnknown {
			if ictx.Policy.ProhibitUnknownProtocol {
				return errtax.New(errtax.ReasonForbiddenProtoBanned, "unknown protocol banned by policy", ErrForbiddenProtocol)
			}
			if d.BypassFunc == nil {
				return errors.New("inspect: no bypass handler registered")
			}
			return d.BypassFunc(ctx, ictx, cur)
		}

		handler, ok := d.Dispatch[cur.Variant]
		if !ok {
			return errors.New("inspect: no handler registered for variant " + cur.Variant.String())
		}
		d.logDispatch(cur)
		next, terminated, err := handler(ctx, ictx, cur)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if terminated {
			return nil
		}
		cur = next
	}
}

func (d *Driver) logDispatch(cur StreamInspection) {
	if d.Logger == nil {
		return
	}
	d.Logger.Debug("inspectDispatch", slog.String("variant", cur.Variant.String()))
}
