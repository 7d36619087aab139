//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package relay implements C11: a pure transparent byte copy with no
// protocol awareness, used for the Unknown/Bypass/Timeout branches of the
// inspection driver (C5). It obeys the same idle/quit/graceful-shutdown
// discipline as every other interceptor (§5) so a bypass connection is
// never held open past its idle budget or the server's quit signal.
package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/bassosimone/inspectproxy/internal/ioprim"
)

// Reason tags why a connection fell through to transparent relay, for
// the "TransitUnknown" log line §4.11 calls for.
type Reason string

const (
	ReasonUnknownProtocol Reason = "unknown_protocol"
	ReasonBypass          Reason = "bypass"
	ReasonSniffTimeout    Reason = "sniff_timeout"
)

// Config bundles the relay's idle accounting (the shared idle wheel and
// the per-task max idle count), its copy sizing and its logger; the quit
// channel is passed to [Run] separately.
type Config struct {
	Wheel        *ioprim.IdleWheel
	MaxIdleCount int
	StreamCfg    ioprim.StreamCopyConfig
	Logger       *slog.Logger
}

// Stats accumulates the byte/packet counters both directions produce, the
// universal invariant §8 checks against a socket tee.
type Stats struct {
	NorthBytes, SouthBytes     uint64
	NorthPackets, SouthPackets uint64
}

// ErrServerQuit is returned when quit fires before either direction
// reaches EOF.
var ErrServerQuit = errors.New("canceled as server quit")

// Run relays bytes between (cltR, cltW) and (upsR, upsW) until both
// directions finish, the idle budget is exhausted, quit fires, or an I/O
// error occurs on either side. Each iteration checks quit and ctx, then
// runs one bounded copy round per unfinished direction, accumulating idle
// ticks for a direction whose round copied nothing. When one direction
// reaches EOF, its destination's write side is half-closed (if it
// supports CloseWrite) and the loop goes on with the other direction alone.
func Run(ctx context.Context, cfg Config, reason Reason, cltR io.Reader, cltW io.Writer, upsR io.Reader, upsW io.Writer, quit <-chan struct{}) (Stats, error) {
	logStart(cfg.Logger, reason)

	north := ioprim.NewStreamCopy(cltR, upsW, cfg.StreamCfg)
	south := ioprim.NewStreamCopy(upsR, cltW, cfg.StreamCfg)
	idleNorth := ioprim.NewIdleCounter(cfg.Wheel, cfg.MaxIdleCount)
	idleSouth := ioprim.NewIdleCounter(cfg.Wheel, cfg.MaxIdleCount)

	northDone, southDone := false, false
	var stats Stats

	for !northDone || !southDone {
		select {
		case <-quit:
			return stats, ErrServerQuit
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		if !northDone {
			north.ResetActive()
			err := north.CopyOnce(ctx)
			stats.NorthBytes = north.BytesCopied
			stats.NorthPackets = north.PacketsCopied
			switch {
			case err == nil && !north.IsIdle():
				idleNorth.Reset()
			case err == nil && north.IsIdle():
				if idleErr := idleNorth.Accumulate(); idleErr != nil {
					return stats, idleErr
				}
			case errors.Is(err, io.EOF):
				northDone = true
				if f, ok := upsW.(interface{ CloseWrite() error }); ok {
					_ = f.CloseWrite()
				}
			default:
				return stats, err
			}
		}

		if !southDone {
			south.ResetActive()
			err := south.CopyOnce(ctx)
			stats.SouthBytes = south.BytesCopied
			stats.SouthPackets = south.PacketsCopied
			switch {
			case err == nil && !south.IsIdle():
				idleSouth.Reset()
			case err == nil && south.IsIdle():
				if idleErr := idleSouth.Accumulate(); idleErr != nil {
					return stats, idleErr
				}
			case errors.Is(err, io.EOF):
				southDone = true
				if f, ok := cltW.(interface{ CloseWrite() error }); ok {
					_ = f.CloseWrite()
				}
			default:
				return stats, err
			}
		}
	}
	return stats, nil
}

func logStart(logger *slog.Logger, reason Reason) {
	if logger == nil {
		return
	}
	logger.Info("transitUnknown", slog.String("reason", string(reason)))
}
