//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package smtpintercept

import "errors"

// ErrBurlNotNegotiated is returned when BURL is issued without both
// chunking and URL submission having been negotiated at EHLO time.
var ErrBurlNotNegotiated = errors.New("BURL used without CHUNKING/BURL negotiated")

// Transaction holds the reverse-path and forward-paths of one MAIL...
// RCPT...DATA cycle, plus the running byte total for BDAT chunks.
type Transaction struct {
	ReversePath  string
	ForwardPaths []string
	ChunkedBytes int64
	sawLastBdat  bool
	sawLastBurl  bool
}

// NewTransaction returns an empty transaction, awaiting MAIL FROM.
func NewTransaction() *Transaction {
	return &Transaction{}
}

// SetReversePath records MAIL FROM:<path>.
func (t *Transaction) SetReversePath(path string) {
	t.ReversePath = path
}

// AddForwardPath records one RCPT TO:<path>.
func (t *Transaction) AddForwardPath(path string) {
	t.ForwardPaths = append(t.ForwardPaths, path)
}

// AcceptBdatChunk sums n octets into the running total; isLast marks the
// transaction as having received its terminal chunk.
func (t *Transaction) AcceptBdatChunk(n int64, isLast bool) {
	t.ChunkedBytes += n
	if isLast {
		t.sawLastBdat = true
	}
}

// Done reports whether the transaction accepted its last BDAT chunk or its
// last BURL and is ready for RSET-or-QUIT-or-next-MAIL; a DATA body is not
// recorded here.
func (t *Transaction) Done() bool {
	return t.sawLastBdat || t.sawLastBurl
}

// AcceptBurl marks a BURL chunk submitted; last marks the final one,
// completing the transaction. Returns [ErrBurlNotNegotiated] if the
// session never negotiated chunking + URL submission together.
func (t *Transaction) AcceptBurl(sess *Session, last bool) error {
	if !sess.SupportsChunking || !sess.SupportsBURL {
		return ErrBurlNotNegotiated
	}
	if last {
		t.sawLastBurl = true
	}
	return nil
}
