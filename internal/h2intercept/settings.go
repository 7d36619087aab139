//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package h2intercept

import "time"

// Settings bundles the §4.7 knobs for the bridge. MaxConcurrentStreams,
// MaxFrameSize, InitialWindowSize and InitialConnectionWindowSize are
// applied to the downstream [golang.org/x/net/http2.Server] only; the
// upstream [golang.org/x/net/http2.Transport] uses none of these values.
// PingInterval drives the upstream ping relay. MaxHeaderListSize,
// MaxSendBufferSize and EnableConnectProtocol are not read by the bridge.
type Settings struct {
	MaxConcurrentStreams       uint32
	MaxHeaderListSize          uint32
	MaxFrameSize               uint32
	MaxSendBufferSize          int
	InitialWindowSize          uint32
	InitialConnectionWindowSize int32
	EnablePush                 bool // always false per §4.7
	EnableConnectProtocol      bool // advertised downstream iff upstream supports extended CONNECT
	PingInterval               time.Duration // interval between upstream PING frames; 0 uses a 15s default
}

// DefaultSettings returns conservative defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxConcurrentStreams:        100,
		MaxHeaderListSize:           64 * 1024,
		MaxFrameSize:                16 * 1024,
		MaxSendBufferSize:           4 * 1024 * 1024,
		InitialWindowSize:           1 << 20,
		InitialConnectionWindowSize: 1 << 20,
		EnablePush:                  false,
	}
}

// ClampConcurrentStreams enforces §4.7's
// `max_concurrent_streams = min(server-side cap, config)`.
func ClampConcurrentStreams(serverCap, configured uint32) uint32 {
	if serverCap > 0 && serverCap < configured {
		return serverCap
	}
	return configured
}
