//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package ioprim

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCopyOnceCopiesBytes(t *testing.T) {
	src := strings.NewReader("hello, world")
	var dst bytes.Buffer
	sc := NewStreamCopy(src, &dst, DefaultStreamCopyConfig())

	err := sc.CopyOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello, world", dst.String())
	assert.Equal(t, uint64(len("hello, world")), sc.BytesCopied)
	assert.False(t, sc.IsIdle())
}

func TestStreamCopyOnceReportsEOF(t *testing.T) {
	src := strings.NewReader("")
	var dst bytes.Buffer
	sc := NewStreamCopy(src, &dst, DefaultStreamCopyConfig())

	err := sc.CopyOnce(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestSinglePumpDrainsUntilEOF(t *testing.T) {
	src := strings.NewReader(strings.Repeat("x", 1000))
	var dst bytes.Buffer
	sc := NewStreamCopy(src, &dst, StreamCopyConfig{BufferSize: 64, YieldSize: 2})
	wheel := NewIdleWheel(5 * time.Millisecond)
	defer wheel.Close()

	err := SinglePump(context.Background(), sc, wheel, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1000, dst.Len())
}
