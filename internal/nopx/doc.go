// SPDX-License-Identifier: GPL-3.0-or-later

// Package nopx provides the composable dial/observe/handshake primitives
// the egress side of this proxy chains together: [escaper.DirectTCP] dials
// the chosen upstream IP through [ConnectFunc], wraps it in [ObserveConnFunc]
// for per-I/O logging, and binds it to ctx via [CancelWatchFunc], while
// [tlsintercept.Intercept] hands the upstream leg to [TLSHandshakeFunc] for
// the re-origination handshake.
//
// # Core Abstraction
//
// The package is built around a single interface:
//
//	type Func[A, B any] interface {
//		Call(ctx context.Context, input A) (B, error)
//	}
//
// Each Func represents an atomic network operation with exactly one success
// mode and one failure mode. This design enables type-safe composition via
// [Compose2], [Compose3], etc., where the compiler verifies that outputs
// match inputs across pipeline stages.
//
// # Available Primitives
//
//   - [ConnectFunc]: dials TCP or UDP endpoints
//   - [TLSHandshakeFunc]: performs TLS handshake over an existing connection
//   - [ObserveConnFunc]: observes connections for logging I/O operations
//   - [CancelWatchFunc]: closes connection on context cancellation (for responsive ^C handling)
//
// Composition utilities:
//   - [Compose2] through [Compose8]: chain Funcs into pipelines
//   - [FuncAdapter]: wrap a function as a Func for ad-hoc custom behavior
//   - [Apply]: bind a fixed input to a Func
//   - [ConstFunc]: lift a pure value into a Func
//   - [NewEndpointFunc]: convenience wrapper for ConstFunc with endpoints
//
// # Connection Lifecycle
//
// Dial operations ([ConnectFunc], [TLSHandshakeFunc]) create connections and
// transfer ownership to the next stage on success. On error, they close the
// connection.
//
// # Spans and task notes
//
// [WithSpan] attaches a [*taskctx.InspectionContext]'s span ID and
// [*taskctx.TaskNotes] to a ctx. Every [ConnectFunc], [ObserveConnFunc], and
// [TLSHandshakeFunc] call reads that attachment (if any) to tag its log
// lines with the span ID and, for [ConnectFunc], to transition the task's
// lifecycle stage around the dial. A ctx with no attached span logs with an
// empty spanID and leaves task notes untouched, so these primitives remain
// usable standalone (e.g. from unit tests) without a [*taskctx.InspectionContext].
//
// # Observability
//
// All primitives support structured logging via [SLogger] (compatible with [log/slog]).
//
// By default, logging is disabled. Error classification is configurable via
// [ErrClassifier]; [NewConfig] wires it to errtax.Classify, this proxy's own
// errno taxonomy, so every connectDone/closeDone/tlsHandshakeDone log line
// carries a real class instead of an empty string.
//
// Primitives emit two kinds of structured log events:
//
//   - Span events (*Start/*Done pairs): Record operation lifecycle including
//     timing and success/failure. Used for latency analysis and error tracking.
//   - I/O events (readStart/readDone, writeStart/writeDone, setDeadline,
//     setReadDeadline, setWriteDeadline): emitted by the connection that
//     [ObserveConnFunc] returns, for each I/O call on it.
//
// All events share a common set of fields: localAddr, remoteAddr, protocol,
// spanID, and t (timestamp). Completion events (*Done) additionally include
// t0 (start time), err, and errClass. I/O-level events (read, write, deadline
// changes) are emitted at [slog.LevelDebug]; all other events use [slog.LevelInfo].
//
// Use [NewSpanID] to generate a unique, time-ordered identifier (UUIDv7) for each
// operation, then attach it to a ctx via [WithSpan] (or to a logger with
// [*slog.Logger.With]). All log entries from that operation will share the
// same spanID, enabling correlation across pipeline stages.
//
// # Timeout and Context Philosophy
//
// This package is context-transparent: operations never modify the context they receive.
// The caller controls timeouts externally via [context.WithTimeout], [context.WithDeadline],
// or [signal.NotifyContext]. When the context is done (timeout, cancel, or signal),
// operations fail and the pipeline is interrupted. [WithSpan] preserves this: it
// only attaches a value, never a deadline or cancellation.
//
// Connection lifecycle requires [CancelWatchFunc] to bind the context lifecycle to
// the connection: when the context is done, the connection is closed immediately,
// causing any in-progress I/O to fail. This enables responsive ^C handling via
// [signal.NotifyContext] and ensures that blocking I/O respects the context deadline.
//
// IMPORTANT: Without [CancelWatchFunc] in your pipeline, I/O operations may block
// indefinitely even after the context is done. Always include [CancelWatchFunc]
// when composing connection pipelines to ensure proper timeout behavior.
//
// # Design Boundaries
//
// This package intentionally provides only primitives. The following are out of scope
// and should be implemented by higher-level packages:
//
//   - Parallel execution (fan-out, racing)
//   - Retry and backoff logic
//   - Multi-step orchestration
//   - Convenience helpers that combine multiple primitives
//
// These concerns introduce multiple success/failure modes, which would compromise
// the compositional simplicity of the primitives.
package nopx
