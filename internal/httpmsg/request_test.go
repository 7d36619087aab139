//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package httpmsg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestLineRejectsHTTP2(t *testing.T) {
	_, err := ParseRequestLine("GET / HTTP/2.0")
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestParseRequestLineClassifiesForm(t *testing.T) {
	rl, err := ParseRequestLine("CONNECT example.com:443 HTTP/1.1")
	require.NoError(t, err)
	assert.Equal(t, FormAuthority, rl.Form)

	rl, err = ParseRequestLine("GET http://example.com/a HTTP/1.1")
	require.NoError(t, err)
	assert.Equal(t, FormAbsolute, rl.Form)

	rl, err = ParseRequestLine("GET /a HTTP/1.1")
	require.NoError(t, err)
	assert.Equal(t, FormOrigin, rl.Form)
}

func TestParseRequestChunkedWinsOverContentLength(t *testing.T) {
	raw := "POST /x HTTP/1.1\r\nHost: a\r\nTransfer-Encoding: chunked\r\nContent-Length: 5\r\n\r\n"
	lr := NewLineReader(strings.NewReader(raw), 4096)
	msg, err := ParseRequest(lr)
	require.NoError(t, err)

	assert.True(t, msg.Body.IsChunked())
	assert.False(t, msg.KeepAlive, "keep-alive must be disabled when chunked and content-length collide")
}

func TestParseRequestMismatchedContentLengthFails(t *testing.T) {
	raw := "POST /x HTTP/1.1\r\nHost: a\r\nContent-Length: 5\r\nContent-Length: 6\r\n\r\n"
	lr := NewLineReader(strings.NewReader(raw), 4096)
	_, err := ParseRequest(lr)
	assert.ErrorIs(t, err, ErrInvalidContentLength)
}

func TestPipelineSafe(t *testing.T) {
	raw := "GET /x HTTP/1.1\r\nHost: a\r\n\r\n"
	lr := NewLineReader(strings.NewReader(raw), 4096)
	msg, err := ParseRequest(lr)
	require.NoError(t, err)
	assert.True(t, msg.PipelineSafe())

	raw = "POST /x HTTP/1.1\r\nHost: a\r\nContent-Length: 3\r\n\r\nabc"
	lr = NewLineReader(strings.NewReader(raw), 4096)
	msg, err = ParseRequest(lr)
	require.NoError(t, err)
	assert.False(t, msg.PipelineSafe())
}

func TestUpgradeOnlyHonoredWithConnectionToken(t *testing.T) {
	raw := "GET /ws HTTP/1.1\r\nHost: a\r\nUpgrade: websocket\r\n\r\n"
	lr := NewLineReader(strings.NewReader(raw), 4096)
	msg, err := ParseRequest(lr)
	require.NoError(t, err)
	assert.False(t, msg.HasUpgrade, "Upgrade without Connection: upgrade must not be honored")

	raw = "GET /ws HTTP/1.1\r\nHost: a\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n\r\n"
	lr = NewLineReader(strings.NewReader(raw), 4096)
	msg, err = ParseRequest(lr)
	require.NoError(t, err)
	assert.True(t, msg.HasUpgrade)
	assert.Equal(t, "websocket", msg.UpgradeTok)
}

func TestSerializeForOriginRoundTrip(t *testing.T) {
	raw := "GET http://example.com/a?b=c HTTP/1.1\r\nHost: example.com\r\nConnection: keep-alive\r\n\r\n"
	lr := NewLineReader(strings.NewReader(raw), 4096)
	msg, err := ParseRequest(lr)
	require.NoError(t, err)

	out := msg.SerializeForOrigin("example.com")
	assert.Contains(t, string(out), "GET /a?b=c HTTP/1.1\r\n")
	assert.NotContains(t, string(out), "Connection:")
}
