//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package sniffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSniffHTTP1(t *testing.T) {
	assert.Equal(t, HTTP1, Sniff([]byte("GET / HTTP/1.1\r\n"), Hint{}))
	assert.Equal(t, HTTP1, Sniff([]byte("CONNECT example.com:443 HTTP/1.1\r\n"), Hint{}))
}

func TestSniffHTTP2PriorKnowledge(t *testing.T) {
	assert.Equal(t, HTTP2PriorKnowledge, Sniff([]byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"), Hint{}))
}

func TestSniffTLS(t *testing.T) {
	assert.Equal(t, TLS, Sniff([]byte{0x16, 0x03, 0x01, 0x00, 0x05}, Hint{}))
}

func TestSniffSMTP(t *testing.T) {
	assert.Equal(t, SMTP, Sniff([]byte("220 mail.example.com ESMTP ready\r\n"), Hint{}))
	assert.Equal(t, SMTP, Sniff([]byte("EHLO client.example.com\r\n"), Hint{}))
}

func TestSniffIMAP(t *testing.T) {
	assert.Equal(t, IMAP, Sniff([]byte("* OK IMAP4rev1 ready\r\n"), Hint{}))
	assert.Equal(t, IMAP, Sniff([]byte("a1 LOGIN user pass\r\n"), Hint{}))
}

func TestSniffUnknown(t *testing.T) {
	assert.Equal(t, Unknown, Sniff([]byte{0x00, 0x01, 0x02, 0x03}, Hint{}))
}

func TestSniffHonorsExplicitHint(t *testing.T) {
	assert.Equal(t, TLS, Sniff([]byte("GET / HTTP/1.1\r\n"), Hint{ExplicitProtocol: TLS}))
}
