//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package errtax classifies connection-path failures into the taxonomy a
// reverse-MITM forward proxy needs: a short classifier string for
// structured logging (in the spirit of [github.com/bassosimone/errclass])
// plus a [Reason] enumeration that the front-end handlers map onto a
// client-facing HTTP status code or SOCKS5 reply.
package errtax

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
)

// Reason enumerates the taxonomy of §7: client-side I/O, upstream-side I/O,
// adapter, policy, lifecycle, and internal failures.
type Reason int

const (
	// ReasonUnclassified is the zero value: no specific reason identified.
	ReasonUnclassified Reason = iota

	// Client-side I/O.
	ReasonClientTCPReadFailed
	ReasonClientTCPWriteFailed
	ReasonClientUDPRecvFailed
	ReasonClientUDPSendFailed
	ReasonClientAppTimeout
	ReasonClosedByClient
	ReasonClosedEarlyByClient
	ReasonClientAppError
	ReasonInvalidClientProtocol

	// Upstream-side I/O.
	ReasonUpstreamReadFailed
	ReasonUpstreamWriteFailed
	ReasonUpstreamAppError
	ReasonUpstreamAppTimeout
	ReasonUpstreamAppUnavailable
	ReasonUpstreamNotResolved
	ReasonUpstreamConnectionRefused
	ReasonUpstreamConnectionReset
	ReasonUpstreamHostUnreachable
	ReasonUpstreamNetworkUnreachable
	ReasonUpstreamConnectTimedOut
	ReasonUpstreamNotConnected
	ReasonUpstreamNotAvailable
	ReasonUpstreamNotNegotiated
	ReasonUpstreamTLSHandshakeTimeout
	ReasonUpstreamTLSHandshakeFailed
	ReasonClosedByUpstream
	ReasonInvalidUpstreamProtocol

	// Adapter.
	ReasonInternalAdapterError
	ReasonIcapServerErrorResponse

	// Policy.
	ReasonForbiddenDestDenied
	ReasonForbiddenProtoBanned
	ReasonForbiddenRateLimited
	ReasonForbiddenFullyLoaded
	ReasonForbiddenSrcBlocked
	ReasonForbiddenUaBlocked
	ReasonCanceledAsUserBlocked
	ReasonCanceledAsServerQuit

	// Lifecycle.
	ReasonIdle
	ReasonFinished
	ReasonInterceptionError

	// Internal.
	ReasonInternalServerError
	ReasonInternalTLSClientError
	ReasonInternalResolverError
	ReasonUnclassifiedError

	// Auth, handled earlier in the pipeline than the rest of the taxonomy.
	ReasonClientAuthFailed
)

// TaskError wraps an underlying error with its classified [Reason] and an
// optional human-readable detail, e.g. "idle while reading response body".
type TaskError struct {
	Reason Reason
	Detail string
	Err    error
}

func (e *TaskError) Error() string {
	if e.Detail != "" {
		return e.Detail + ": " + e.errString()
	}
	return e.errString()
}

func (e *TaskError) errString() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unclassified error"
}

func (e *TaskError) Unwrap() error { return e.Err }

// New wraps err with the given reason and an optional detail message.
func New(reason Reason, detail string, err error) *TaskError {
	return &TaskError{Reason: reason, Detail: detail, Err: err}
}

// ClientStatusCode maps a [Reason] to the client-facing HTTP status code
// per §7's propagation policy. ok is false when no reply can be sent
// (the connection must simply close).
func ClientStatusCode(reason Reason) (code int, reasonPhrase string, ok bool) {
	switch reason {
	case ReasonForbiddenDestDenied, ReasonForbiddenProtoBanned,
		ReasonForbiddenSrcBlocked, ReasonForbiddenUaBlocked:
		return 403, "Forbidden", true
	case ReasonForbiddenRateLimited, ReasonForbiddenFullyLoaded:
		return 429, "Too Many Requests", true
	case ReasonUpstreamNotResolved, ReasonInternalResolverError:
		return 530, "Origin DNS Error", true
	case ReasonUpstreamConnectionRefused, ReasonUpstreamConnectionReset, ReasonUpstreamNotConnected:
		return 521, "Web Server Is Down", true
	case ReasonUpstreamHostUnreachable, ReasonUpstreamNetworkUnreachable:
		return 523, "Origin Is Unreachable", true
	case ReasonUpstreamConnectTimedOut:
		return 522, "Connection Timed Out", true
	case ReasonUpstreamTLSHandshakeTimeout, ReasonUpstreamTLSHandshakeFailed:
		return 525, "SSL Handshake Failed", true
	case ReasonUpstreamAppTimeout:
		return 504, "Gateway Timeout", true
	case ReasonClientAppTimeout:
		return 408, "Request Timeout", true
	case ReasonClientAuthFailed:
		return 407, "Proxy Authentication Required", true
	case ReasonClosedByClient, ReasonFinished, ReasonIdle, ReasonInterceptionError:
		return 0, "", false
	default:
		return 502, "Bad Gateway", true
	}
}

// Classify maps a generic error to a short classifier string, the way
// [github.com/bassosimone/errclass.New] classifies errors for structured
// logging. Unlike [FromError] it never inspects taxonomy reasons — only
// the underlying network/OS condition.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	var taskErr *TaskError
	if errors.As(err, &taskErr) && taskErr.Err != nil {
		err = taskErr.Err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "ETIMEDOUT"
	case errors.Is(err, context.Canceled):
		return "ECANCELED"
	case errors.Is(err, net.ErrClosed):
		return "ECONNABORTED"
	}
	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		return classifyErrno(sysErr)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Classify(opErr.Err)
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return Classify(pathErr.Err)
	}
	return "unknown"
}

// FromError classifies err into a [Reason] for a given failure point
// ("client" or "upstream"), consulting the OS errno table first and
// falling back to a generic I/O-failed reason.
func FromError(point string, err error) Reason {
	if err == nil {
		return ReasonUnclassified
	}
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		if point == "client" {
			return ReasonClientAppTimeout
		}
		return ReasonUpstreamAppTimeout
	}
	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case errECONNREFUSED:
			return ReasonUpstreamConnectionRefused
		case errECONNRESET, errECONNABORTED:
			if point == "client" {
				return ReasonClosedEarlyByClient
			}
			return ReasonUpstreamConnectionReset
		case errEHOSTUNREACH:
			return ReasonUpstreamHostUnreachable
		case errENETUNREACH, errENETDOWN:
			return ReasonUpstreamNetworkUnreachable
		case errETIMEDOUT:
			if point == "client" {
				return ReasonClientAppTimeout
			}
			return ReasonUpstreamConnectTimedOut
		}
	}
	if point == "client" {
		return ReasonClientTCPReadFailed
	}
	return ReasonUpstreamReadFailed
}
