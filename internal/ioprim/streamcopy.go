//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package ioprim

import (
	"context"
	"errors"
	"io"
)

// StreamCopyConfig bounds the buffer size and yield size used by every
// directional copy, the explicit backpressure watermark called out in §5.
type StreamCopyConfig struct {
	BufferSize int
	YieldSize  int
}

// DefaultStreamCopyConfig mirrors common real-world defaults: a 16 KiB
// buffer, yielding every 4 reads so the opposite direction gets a turn.
func DefaultStreamCopyConfig() StreamCopyConfig {
	return StreamCopyConfig{BufferSize: 16 * 1024, YieldSize: 4}
}

// StreamCopy pumps bytes in one direction (src -> dst), tracking byte and
// packet counters and whether the direction is currently idle. It never
// decides when to stop on its own except on error or an explicit Stop;
// the caller drives termination via the biased select described in §5.
type StreamCopy struct {
	src    io.Reader
	dst    io.Writer
	cfg    StreamCopyConfig
	buf    []byte
	active bool

	BytesCopied   uint64
	PacketsCopied uint64

	flusher interface{ Flush() error }
}

// NewStreamCopy constructs a copier with cfg's buffer size. dst may
// optionally implement an io.Writer-like Flush() error method (as
// bufio.Writer does); if so, [StreamCopy.WriteFlush] calls it.
func NewStreamCopy(src io.Reader, dst io.Writer, cfg StreamCopyConfig) *StreamCopy {
	sc := &StreamCopy{src: src, dst: dst, cfg: cfg, buf: make([]byte, cfg.BufferSize)}
	if f, ok := dst.(interface{ Flush() error }); ok {
		sc.flusher = f
	}
	return sc
}

// CopyOnce performs a single bounded read/write round: up to cfg.YieldSize
// reads are performed before returning, so a caller's select loop shares
// fairly with the opposite direction. It returns io.EOF when src reports
// a clean end-of-stream, and any other error verbatim.
func (sc *StreamCopy) CopyOnce(ctx context.Context) error {
	for i := 0; i < sc.cfg.YieldSize; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := sc.src.Read(sc.buf)
		if n > 0 {
			sc.active = true
			if _, werr := sc.dst.Write(sc.buf[:n]); werr != nil {
				return werr
			}
			sc.BytesCopied += uint64(n)
			sc.PacketsCopied++
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return io.EOF
			}
			return rerr
		}
		if n == 0 {
			// Short/zero-count read with no error: rate-limited reader
			// signaling back-off. Yield immediately rather than spinning.
			return nil
		}
	}
	return nil
}

// IsIdle reports whether no bytes were copied since the last call to
// ResetActive.
func (sc *StreamCopy) IsIdle() bool {
	return !sc.active
}

// ResetActive clears the activity flag so the next IsIdle call reflects
// only subsequent progress.
func (sc *StreamCopy) ResetActive() {
	sc.active = false
}

// NoCachedData reports true when the underlying reader has no buffered
// look-ahead data waiting (best-effort; readers that don't buffer always
// report true).
func (sc *StreamCopy) NoCachedData() bool {
	type buffered interface{ Buffered() int }
	if b, ok := sc.src.(buffered); ok {
		return b.Buffered() == 0
	}
	return true
}

// WriteFlush flushes the destination writer if it supports Flush.
func (sc *StreamCopy) WriteFlush() error {
	if sc.flusher != nil {
		return sc.flusher.Flush()
	}
	return nil
}

// Direction identifies one half of a bidirectional relay, matching the
// spec's transit_north (client -> upstream) / transit_south (upstream ->
// client) naming.
type Direction int

const (
	DirectionNorth Direction = iota
	DirectionSouth
)

// SinglePump drains one direction to completion after the opposite
// direction has already finished, per §4.1: "the other side continues
// until its own termination, using a single-direction continuation that
// keeps the idle/quit discipline." maxIdleCount bounds the idle-wheel
// ticks that may accumulate across CopyOnce rounds that make no progress
// before it gives up with [*ErrIdle].
func SinglePump(ctx context.Context, sc *StreamCopy, wheel *IdleWheel, maxIdleCount int) error {
	counter := NewIdleCounter(wheel, maxIdleCount)
	for {
		sc.ResetActive()
		err := sc.CopyOnce(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if sc.IsIdle() {
			if idleErr := counter.Accumulate(); idleErr != nil {
				return idleErr
			}
		} else {
			counter.Reset()
		}
	}
}
