//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package ioprim

import (
	"context"
	"io"
	"sync"
	"time"
)

// TokenBucket is a single replenish-interval token bucket, shared as the
// building block for both per-socket and process-wide limiters. shift
// chooses the replenish interval as 2^shift milliseconds, matching the
// spec's `shift_millis` knob.
type TokenBucket struct {
	mu       sync.Mutex
	max      uint64
	tokens   uint64
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewTokenBucket creates a bucket refilling to max tokens every
// 2^shiftMillis milliseconds.
func NewTokenBucket(shiftMillis uint, max uint64) *TokenBucket {
	return &TokenBucket{
		max:      max,
		tokens:   max,
		interval: time.Millisecond << shiftMillis,
		now:      time.Now,
	}
}

// Take removes up to want tokens, returning how many were actually
// granted (possibly 0 if the bucket is exhausted and the interval hasn't
// elapsed).
func (b *TokenBucket) Take(want uint64) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if want > b.tokens {
		want = b.tokens
	}
	b.tokens -= want
	return want
}

func (b *TokenBucket) refillLocked() {
	now := b.now()
	if now.Sub(b.last) >= b.interval {
		b.tokens = b.max
		b.last = now
	}
}

// Reset restores the bucket to full and resets the replenish clock,
// mirroring the spec's `reset_stats` contract for per-request reuse.
func (b *TokenBucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = b.max
	b.last = time.Time{}
}

// LimitedReader is a [io.Reader] rate-limited by a local bucket and,
// optionally, a chained global bucket (both must grant tokens for a read
// to proceed at full size).
type LimitedReader struct {
	r      io.Reader
	local  *TokenBucket
	global *TokenBucket
}

// NewLimitedReader wraps r with local token-bucket limiting. global may be
// nil when no process-wide limiter is attached.
func NewLimitedReader(r io.Reader, local, global *TokenBucket) *LimitedReader {
	return &LimitedReader{r: r, local: local, global: global}
}

// Read implements [io.Reader], capping the read size to the tokens
// currently available from both buckets.
func (lr *LimitedReader) Read(p []byte) (int, error) {
	n := uint64(len(p))
	if lr.local != nil {
		if allowed := lr.local.Take(n); allowed < n {
			n = allowed
		}
	}
	if lr.global != nil {
		if allowed := lr.global.Take(n); allowed < n {
			n = allowed
		}
	}
	if n == 0 {
		// No tokens available this tick; report a short zero-byte read so
		// the caller's select loop can re-poll rather than blocking here.
		return 0, nil
	}
	return lr.r.Read(p[:n])
}

// ResetStats resets the local bucket's replenish clock for reuse across
// pipelined requests on the same connection.
func (lr *LimitedReader) ResetStats() {
	if lr.local != nil {
		lr.local.Reset()
	}
}

// LimitedWriter is the write-side counterpart of [LimitedReader].
type LimitedWriter struct {
	w      io.Writer
	local  *TokenBucket
	global *TokenBucket
}

// NewLimitedWriter wraps w with local (and optional global) token-bucket
// limiting.
func NewLimitedWriter(w io.Writer, local, global *TokenBucket) *LimitedWriter {
	return &LimitedWriter{w: w, local: local, global: global}
}

// Write implements [io.Writer], writing in token-sized slices until all of
// p has been written. When the buckets grant no more tokens before that,
// it returns the count written so far with [io.ErrShortWrite].
func (lw *LimitedWriter) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n := uint64(len(p) - written)
		if lw.local != nil {
			if allowed := lw.local.Take(n); allowed < n {
				n = allowed
			}
		}
		if lw.global != nil {
			if allowed := lw.global.Take(n); allowed < n {
				n = allowed
			}
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
		m, err := lw.w.Write(p[written : written+int(n)])
		written += m
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// ResetStats resets the local bucket's replenish clock for reuse.
func (lw *LimitedWriter) ResetStats() {
	if lw.local != nil {
		lw.local.Reset()
	}
}

// WaitForTokens blocks (respecting ctx) until at least one token is
// available from local, polling at the bucket's replenish interval. This
// is used by callers that would otherwise busy-loop on a zero-byte read
// from [LimitedReader].
func WaitForTokens(ctx context.Context, local *TokenBucket) error {
	if local == nil {
		return nil
	}
	if local.Take(1) > 0 {
		return nil
	}
	t := time.NewTicker(local.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if local.Take(1) > 0 {
				return nil
			}
		}
	}
}
