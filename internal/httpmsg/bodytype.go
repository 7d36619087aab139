//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package httpmsg

// BodyKind tags the variants of [BodyType].
type BodyKind int

const (
	// ReadUntilEnd means the body runs until the connection closes (no
	// framing information at all — only legal on a response that will
	// not be kept alive).
	ReadUntilEnd BodyKind = iota
	// ContentLength means the body is exactly Length bytes.
	ContentLength
	// ChunkedWithTrailer means the body is chunk-encoded and a trailer
	// section may follow the terminating chunk.
	ChunkedWithTrailer
	// ChunkedWithoutTrailer means the body is chunk-encoded with no
	// trailer section expected.
	ChunkedWithoutTrailer
)

// BodyType is the tagged union describing how a message body is framed.
type BodyType struct {
	Kind   BodyKind
	Length uint64 // valid only when Kind == ContentLength
}

// NoBody reports whether the message is known to carry no body at all
// (distinct from ReadUntilEnd, which may still carry bytes).
func (b BodyType) NoBody() bool {
	return b.Kind == ContentLength && b.Length == 0
}

// IsChunked reports whether b is either chunked variant.
func (b BodyType) IsChunked() bool {
	return b.Kind == ChunkedWithTrailer || b.Kind == ChunkedWithoutTrailer
}
