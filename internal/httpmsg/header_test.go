//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package httpmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadersPreservesCasing(t *testing.T) {
	h := &Headers{}
	h.Add("X-Forwarded-For", "1.2.3.4")

	v, ok := h.Get("x-forwarded-for")
	assert.True(t, ok)
	assert.Equal(t, "1.2.3.4", v)
	assert.Equal(t, "X-Forwarded-For", h.All()[0].Name)
}

func TestHeadersStripHopByHopHonorsConnectionAllowList(t *testing.T) {
	h := &Headers{}
	h.Add("Connection", "close, X-Custom-Hop")
	h.Add("X-Custom-Hop", "drop-me")
	h.Add("X-Keep", "keep-me")
	h.Add("Proxy-Authorization", "Basic xyz")

	h.StripHopByHop()

	_, ok := h.Get("Connection")
	assert.False(t, ok)
	_, ok = h.Get("X-Custom-Hop")
	assert.False(t, ok)
	_, ok = h.Get("Proxy-Authorization")
	assert.False(t, ok)
	v, ok := h.Get("X-Keep")
	assert.True(t, ok)
	assert.Equal(t, "keep-me", v)
}

func TestHeadersCountDetectsDuplicates(t *testing.T) {
	h := &Headers{}
	h.Add("Content-Length", "5")
	h.Add("Content-Length", "5")
	assert.Equal(t, 2, h.Count("Content-Length"))
}
