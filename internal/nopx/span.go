//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package nopx

import (
	"context"

	"github.com/bassosimone/inspectproxy/internal/taskctx"
)

// spanContextKey is the unexported key under which [WithSpan] stores a
// [*spanContext] in a [context.Context].
type spanContextKey struct{}

// spanContext carries the identity of the inspection this pipeline stage
// runs on: the span ID every log line from the stage should be tagged
// with, plus the [*taskctx.TaskNotes] whose lifecycle stage the stage
// transitions as it makes progress.
type spanContext struct {
	spanID string
	notes  *taskctx.TaskNotes
}

// WithSpan attaches ictx's span ID and [*taskctx.TaskNotes] to ctx, so
// every [Func] dialing or handshaking downstream logs under the same
// span and advances the same task's lifecycle bookkeeping. This reads
// like any other context value attachment: it does not touch ctx's
// deadline or cancellation, consistent with this package staying
// context-transparent (see doc.go).
func WithSpan(ctx context.Context, ictx *taskctx.InspectionContext) context.Context {
	if ictx == nil {
		return ctx
	}
	return context.WithValue(ctx, spanContextKey{}, &spanContext{spanID: ictx.SpanID, notes: ictx.Notes})
}

// spanFromContext extracts the [*spanContext] WithSpan attached to ctx,
// or nil if the pipeline is running unspanned (e.g. a unit test that
// never called [WithSpan]).
func spanFromContext(ctx context.Context) *spanContext {
	sc, _ := ctx.Value(spanContextKey{}).(*spanContext)
	return sc
}

// transition advances sc's notes to stage, a no-op when sc or its notes
// are nil so every [Func] can call this unconditionally.
func (sc *spanContext) transition(stage taskctx.Stage) {
	if sc == nil || sc.notes == nil {
		return
	}
	sc.notes.Transition(stage)
}

// id returns sc's span ID, or "" when sc is nil, for unconditional
// inclusion in a log line via slog.String("spanID", sc.id()).
func (sc *spanContext) id() string {
	if sc == nil {
		return ""
	}
	return sc.spanID
}
