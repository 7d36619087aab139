//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package httpmsg

import (
	"bytes"
	"io"
	"strconv"
)

// Preview is the output of the preview encoder: a chunked rendering of up
// to Limit bytes of a request/response body, annotated with whether the
// whole body fit (IEOF), plus enough bookkeeping for the chunked case to
// resume reading the original body without reparsing.
type Preview struct {
	// Encoded is the wire bytes: one or more "<hex-size>\r\n<data>\r\n"
	// chunks followed by either "0\r\n\r\n" (more body follows) or
	// "0; ieof\r\n\r\n" (this was the entire body).
	Encoded []byte

	// IEOF is true iff Encoded contains the complete body.
	IEOF bool

	// ConsumedSize is how many body bytes were consumed into the preview.
	ConsumedSize uint64

	// ChunkedNextSize is valid only when the source was already chunked:
	// it is the ChunkedReader.RemainingInChunk() value at the point the
	// preview stopped, so serving the rest of the body can resume via
	// [ResumeChunkedReader] without reparsing a chunk-size line.
	ChunkedNextSize uint64
}

// EncodePreview produces a preview of at most limit bytes from body,
// whose framing is bt. For [ContentLength] and [ReadUntilEnd] bodies it
// reads up to limit raw bytes and re-chunks them. For already-chunked
// bodies it decodes chunk-by-chunk (via cr, which must wrap the same
// underlying reader as body) so it can stop mid-chunk and record
// ChunkedNextSize.
func EncodePreview(body io.Reader, bt BodyType, cr *ChunkedReader, limit int) (*Preview, error) {
	if bt.IsChunked() {
		return encodeChunkedPreview(cr, limit)
	}
	return encodePlainPreview(body, bt, limit)
}

func encodePlainPreview(body io.Reader, bt BodyType, limit int) (*Preview, error) {
	buf := make([]byte, limit)
	n, err := io.ReadFull(body, buf)
	complete := false
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		complete = true
		err = nil
	}
	if err != nil {
		return nil, err
	}
	if bt.Kind == ContentLength && uint64(n) >= bt.Length {
		complete = true
	}
	var out bytes.Buffer
	if n > 0 {
		_ = WriteChunk(&out, buf[:n], nil)
	}
	writeTerminator(&out, complete)
	return &Preview{Encoded: out.Bytes(), IEOF: complete, ConsumedSize: uint64(n)}, nil
}

func encodeChunkedPreview(cr *ChunkedReader, limit int) (*Preview, error) {
	var out bytes.Buffer
	var consumed uint64
	buf := make([]byte, 4096)
	for int(consumed) < limit {
		want := limit - int(consumed)
		if want > len(buf) {
			want = len(buf)
		}
		n, err := cr.Read(buf[:want])
		if n > 0 {
			_ = WriteChunk(&out, buf[:n], nil)
			consumed += uint64(n)
		}
		if err == io.EOF {
			writeTerminator(&out, true)
			return &Preview{
				Encoded: out.Bytes(), IEOF: true, ConsumedSize: consumed,
				ChunkedNextSize: cr.RemainingInChunk(),
			}, nil
		}
		if err != nil {
			return nil, err
		}
	}
	writeTerminator(&out, false)
	return &Preview{
		Encoded: out.Bytes(), IEOF: false, ConsumedSize: consumed,
		ChunkedNextSize: cr.RemainingInChunk(),
	}, nil
}

func writeTerminator(w *bytes.Buffer, ieof bool) {
	w.WriteString("0")
	if ieof {
		w.WriteString("; ieof")
	}
	w.WriteString("\r\n\r\n")
}

// ParsePreviewSize parses the ICAP-style "Preview: <n>" header value.
func ParsePreviewSize(value string) (int, error) {
	return strconv.Atoi(value)
}
