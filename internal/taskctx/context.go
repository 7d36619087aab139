//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package taskctx holds the per-connection state shared across recursion
// depths (InspectionContext) and the per-task mutable bookkeeping
// (TaskNotes) described in §3, plus a context.Context-friendly watcher
// ([InspectionContext.Watch]) that composes the parent ctx with two of the
// three cancellation triggers from §5, server quit and user blocked; idle
// expiry is not observed by the watcher.
package taskctx

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bassosimone/inspectproxy/internal/ioprim"
)

// Limits bundles the protocol-inspection ceilings shared by every
// interceptor: header/line size bounds and per-protocol timeouts.
type Limits struct {
	MaxHeaderSize    int
	MaxLineSize      int
	MaxIdleCount     int
	TransferMaxIdle  int
	ConnectTimeout   time.Duration
	ReqHeaderTimeout time.Duration
	RspHeaderTimeout time.Duration
}

// DefaultLimits returns conservative defaults suitable for tests and for
// a config layer to override.
func DefaultLimits() Limits {
	return Limits{
		MaxHeaderSize:    64 * 1024,
		MaxLineSize:      8 * 1024,
		MaxIdleCount:     30,
		TransferMaxIdle:  120,
		ConnectTimeout:   15 * time.Second,
		ReqHeaderTimeout: 30 * time.Second,
		RspHeaderTimeout: 60 * time.Second,
	}
}

// PolicyKnobs are the per-user policy gates §4.5 consults.
type PolicyKnobs struct {
	ProhibitUnknownProtocol bool
	ProhibitTimeoutProtocol bool
}

// InspectionContext is shared, cheaply cloneable state spanning every
// recursion depth of one connection: policy handles, the idle wheel, the
// quit signal, and the depth counter. Cloning only copies the lightweight
// fields; Depth is shared via a pointer so `increase_inspection_depth`
// affects every clone descended from the same root.
type InspectionContext struct {
	Limits  Limits
	Policy  PolicyKnobs
	Wheel   *ioprim.IdleWheel
	SpanID  string
	Host    string
	Notes   *TaskNotes
	depth   *atomic.Int32
	maxDep  int
	quit    *quitSignal
	UserCtx any // optional user context, nil when anonymous
}

type quitSignal struct {
	ch chan struct{}
}

// NewRootContext creates the top-level [InspectionContext] for a freshly
// accepted connection.
func NewRootContext(limits Limits, policy PolicyKnobs, wheel *ioprim.IdleWheel, maxDepth int, spanID string) *InspectionContext {
	return &InspectionContext{
		Limits: limits, Policy: policy, Wheel: wheel, SpanID: spanID, Notes: NewTaskNotes(),
		depth: &atomic.Int32{}, maxDep: maxDepth, quit: &quitSignal{ch: make(chan struct{})},
	}
}

// Clone returns a shallow copy sharing the depth counter and quit signal,
// the "cheap to clone (reference-counted)" contract from §3.
func (c *InspectionContext) Clone() *InspectionContext {
	clone := *c
	return &clone
}

// Depth returns the current inspection recursion depth.
func (c *InspectionContext) Depth() int {
	return int(c.depth.Load())
}

// IncreaseInspectionDepth increments the shared depth counter exactly
// once per nested inspection, returning an error if max_depth would be
// exceeded.
func (c *InspectionContext) IncreaseInspectionDepth() error {
	if int(c.depth.Add(1)) > c.maxDep {
		return ErrMaxDepthExceeded
	}
	return nil
}

// RequestQuit signals every task sharing this context's quit channel.
func (c *InspectionContext) RequestQuit() {
	select {
	case <-c.quit.ch:
	default:
		close(c.quit.ch)
	}
}

// QuitSignal returns a channel closed once RequestQuit has been called,
// for use in a cancellation select.
func (c *InspectionContext) QuitSignal() <-chan struct{} {
	return c.quit.ch
}

// ErrMaxDepthExceeded is returned by IncreaseInspectionDepth once the
// configured recursion ceiling is hit.
var ErrMaxDepthExceeded = &depthError{}

type depthError struct{}

func (*depthError) Error() string { return "maximum inspection depth exceeded" }

// Stage is one point in a [TaskNotes] lifecycle.
type Stage int

const (
	StagePreparing Stage = iota
	StageConnecting
	StageConnected
	StageReplying
	StageRelaying
	StageDone
)

// TaskNotes is per-task mutable bookkeeping: lifecycle stage transitions
// (with both wall-clock and monotonic timestamps), the chosen egress
// path, and byte/packet counters.
type TaskNotes struct {
	Stage          Stage
	StageWallTimes map[Stage]time.Time
	StageMonoTimes map[Stage]time.Time
	EgressDecision string
	BytesIn        uint64
	BytesOut       uint64
	PacketsIn      uint64
	PacketsOut     uint64
}

// NewTaskNotes creates a fresh [TaskNotes] in the Preparing stage.
func NewTaskNotes() *TaskNotes {
	n := &TaskNotes{
		StageWallTimes: make(map[Stage]time.Time),
		StageMonoTimes: make(map[Stage]time.Time),
	}
	n.Transition(StagePreparing)
	return n
}

// Transition records entry into stage with both a wall-clock and a
// monotonic timestamp.
func (n *TaskNotes) Transition(stage Stage) {
	n.Stage = stage
	now := time.Now()
	n.StageWallTimes[stage] = now
	n.StageMonoTimes[stage] = now
}

// CancelTrigger enumerates the three triggers §5 requires every root
// task to observe in a biased select.
type CancelTrigger int

const (
	TriggerNone CancelTrigger = iota
	TriggerServerQuit
	TriggerUserBlocked
	TriggerIdleExpiry
)

// Watch returns a context cancelled when either ctx is done, the
// InspectionContext's quit signal fires, or blocked reports true; and
// reports which trigger fired via the returned function.
func (c *InspectionContext) Watch(ctx context.Context, blocked func() bool) (context.Context, func() CancelTrigger) {
	child, cancel := context.WithCancel(ctx)
	var trigger atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.QuitSignal():
				trigger.Store(int32(TriggerServerQuit))
				cancel()
				return
			case <-ticker.C:
				if blocked != nil && blocked() {
					trigger.Store(int32(TriggerUserBlocked))
					cancel()
					return
				}
			}
		}
	}()
	return child, func() CancelTrigger { return CancelTrigger(trigger.Load()) }
}
