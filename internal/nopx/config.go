// SPDX-License-Identifier: GPL-3.0-or-later

package nopx

import (
	"net"
	"time"

	"github.com/bassosimone/inspectproxy/internal/errtax"
)

// Config holds common configuration for nop operations.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// Dialer is used by [*ConnectFunc].
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to a classifier backed by [errtax.Classify], so
	// every connectDone/closeDone/tlsHandshakeDone log line carries this
	// proxy's own errno taxonomy instead of an empty string.
	ErrClassifier ErrClassifier

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Dialer:        &net.Dialer{},
		ErrClassifier: ErrClassifierFunc(errtax.Classify),
		TimeNow:       time.Now,
	}
}
