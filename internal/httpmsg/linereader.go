//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package httpmsg

import (
	"io"

	"github.com/bassosimone/inspectproxy/internal/ioprim"
)

// LineReader is C1's bounded-length line reader, reused directly here:
// per §2, "C1/C2 are used by all upper components" — the header codec
// parses on top of the same framing primitive every interceptor shares
// rather than re-implementing line bounding.
type LineReader = ioprim.LineReader

// NewLineReader forwards to [ioprim.NewLineReader].
func NewLineReader(r io.Reader, maxLen int) *LineReader {
	return ioprim.NewLineReader(r, maxLen)
}
