//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package relay

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/bassosimone/inspectproxy/internal/ioprim"
	"github.com/stretchr/testify/require"
)

func TestRunCopiesBothDirectionsUntilEOF(t *testing.T) {
	cltClient, cltServer := net.Pipe()
	upsClient, upsServer := net.Pipe()

	wheel := ioprim.NewIdleWheel(10 * time.Millisecond)
	defer wheel.Close()
	cfg := Config{Wheel: wheel, MaxIdleCount: 1000, StreamCfg: ioprim.DefaultStreamCopyConfig()}
	quit := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := Run(context.Background(), cfg, ReasonUnknownProtocol, cltServer, cltServer, upsServer, upsServer, quit)
		done <- err
	}()

	go func() {
		_, _ = io.Copy(io.Discard, upsClient)
	}()
	go func() {
		_, _ = io.Copy(io.Discard, cltClient)
	}()

	_, err := cltClient.Write([]byte("hello"))
	require.NoError(t, err)
	cltClient.Close()
	upsClient.Close()

	select {
	case err := <-done:
		_ = err // both closes race EOF vs write-after-close; just ensure it returns
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after both peers closed")
	}
}
