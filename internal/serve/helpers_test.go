//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package serve

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitAbsoluteURIDefaultsPortByScheme(t *testing.T) {
	host, port, err := splitAbsoluteURI("http://example.com/path")
	require.NoError(t, err)
	require.Equal(t, "example.com", host)
	require.Equal(t, 80, port)

	host, port, err = splitAbsoluteURI("https://example.com:8443/path")
	require.NoError(t, err)
	require.Equal(t, "example.com", host)
	require.Equal(t, 8443, port)
}

func TestDecodeBasicUsernameSplitsUserAndPass(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString([]byte("alice+rotate=1:secret"))
	user, err := decodeBasicUsername(b64)
	require.NoError(t, err)
	require.Equal(t, "alice+rotate=1", user)
}

func TestSplitHostPortDefaultsWhenNoPort(t *testing.T) {
	host, port, err := splitHostPort("example.com", 443)
	require.NoError(t, err)
	require.Equal(t, "example.com", host)
	require.Equal(t, 443, port)

	host, port, err = splitHostPort("example.com:8080", 443)
	require.NoError(t, err)
	require.Equal(t, "example.com", host)
	require.Equal(t, 8080, port)
}
