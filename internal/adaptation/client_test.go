//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package adaptation

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeServer accepts one connection on a net.Pipe and answers with a
// fixed ICAP-style response after reading the request head+preview.
func fakeServer(t *testing.T, response string) func(ctx context.Context) (net.Conn, error) {
	client, server := net.Pipe()
	go func() {
		br := bufio.NewReader(server)
		// Drain the request line + headers.
		for {
			line, err := br.ReadString('\n')
			if err != nil || line == "\r\n" {
				break
			}
		}
		// Drain the head + preview bytes best-effort (bounded by a short
		// read so the test doesn't hang if the client wrote less).
		buf := make([]byte, 4096)
		server.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		_, _ = server.Read(buf)
		server.SetReadDeadline(time.Time{})
		_, _ = server.Write([]byte(response))
	}()
	return func(ctx context.Context) (net.Conn, error) { return client, nil }
}

func TestClientAdapt204ReturnsOriginalTransferred(t *testing.T) {
	dialer := fakeServer(t, "ICAP/1.0 204 No Content\r\n\r\n")
	c := NewClient(Config{ServiceURI: "icap://x/reqmod", PreviewLimit: 4, Dialer: dialer})
	out, err := c.Adapt(context.Background(), MethodXferData, []byte("GET / HTTP/1.1\r\n\r\n"), []byte("0\r\n\r\n"), nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeOriginalTransferred, out.Kind)
}

func TestClientAdaptUnknownStatusIsServerErrorResponse(t *testing.T) {
	dialer := fakeServer(t, "ICAP/1.0 599 Weird\r\n\r\n")
	c := NewClient(Config{ServiceURI: "icap://x/reqmod", PreviewLimit: 4, Dialer: dialer})
	_, err := c.Adapt(context.Background(), MethodXferData, []byte("GET / HTTP/1.1\r\n\r\n"), []byte("0\r\n\r\n"), nil)
	require.Error(t, err)
	var serr *ErrServerErrorResponse
	require.ErrorAs(t, err, &serr)
	require.Equal(t, 599, serr.Code)
}

func TestClientAdapt206IsNotImplemented(t *testing.T) {
	dialer := fakeServer(t, "ICAP/1.0 206 Partial\r\n\r\n")
	c := NewClient(Config{ServiceURI: "icap://x/reqmod", PreviewLimit: 4, Dialer: dialer})
	_, err := c.Adapt(context.Background(), MethodXferData, []byte("GET / HTTP/1.1\r\n\r\n"), []byte("0\r\n\r\n"), nil)
	require.ErrorIs(t, err, ErrNotImplemented206)
}

func TestClientAdaptBypassOnDialFailure(t *testing.T) {
	c := NewClient(Config{ServiceURI: "icap://x/reqmod", PreviewLimit: 4, Bypass: true, Dialer: func(ctx context.Context) (net.Conn, error) {
		return nil, net.ErrClosed
	}})
	_, err := c.Adapt(context.Background(), MethodXferData, []byte("GET / HTTP/1.1\r\n\r\n"), []byte("0\r\n\r\n"), nil)
	require.ErrorIs(t, err, ErrBypass)
}
