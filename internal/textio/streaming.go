// Package textio provides the byte-level transforms applied between a file
// handle and the CSV tokenizer.
//
// Readers are stacked in this order when reading:
//
//  1. Decompression (gzip, zstd, xz, bzip2), see codec.go
//  2. Charset decoding to UTF-8, see charset.go
//  3. BOM removal and UTF-8 validation (UTF-8 sources only)
//  4. Byte counting for logging
//
// Writers apply the same transforms in reverse.
package textio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrInvalidEncoding is returned when input bytes are not valid in the
// configured encoding and the strict error mode is in effect.
var ErrInvalidEncoding = errors.New("invalid text encoding")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// UTF8BOM returns a copy of the UTF-8 byte order mark.
func UTF8BOM() []byte {
	return bytes.Clone(utf8BOM)
}

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
// The UTF-8 BOM is 0xEF 0xBB 0xBF and is commonly added by Windows programs.
type BOMSkippingReader struct {
	br         *bufio.Reader
	bomChecked bool
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{br: bufio.NewReader(r)}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.bomChecked {
		r.bomChecked = true
		// A short or failed peek means there is no complete BOM; the error,
		// if any, resurfaces on the read below.
		if head, err := r.br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			if _, err := r.br.Discard(len(utf8BOM)); err != nil {
				return 0, err
			}
		}
	}
	return r.br.Read(p)
}

// UTF8Reader checks that a stream is valid UTF-8 as it is read.
//
// In strict mode the first invalid byte fails the read with an error wrapping
// ErrInvalidEncoding. Otherwise each invalid byte is replaced with '?', which
// keeps the output the same length as the input.
type UTF8Reader struct {
	br      *bufio.Reader
	replace bool
	offset  int64
	err     error

	// rejectReplacement treats U+FFFD as invalid input. It is set for the
	// output of charset decoders, which emit U+FFFD for undecodable bytes.
	rejectReplacement bool

	// pending holds the tail of a rune that did not fit the caller's buffer.
	pending []byte
}

// NewUTF8Reader creates a validating reader. replace selects '?' substitution
// instead of failing.
func NewUTF8Reader(r io.Reader, replace bool) *UTF8Reader {
	return &UTF8Reader{br: bufio.NewReader(r), replace: replace}
}

// Read implements io.Reader. A rune larger than the space left in p is split
// across calls.
func (v *UTF8Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := copy(p, v.pending)
	v.pending = v.pending[n:]
	if len(v.pending) > 0 {
		return n, nil
	}
	if v.err != nil {
		if n > 0 {
			return n, nil
		}
		return 0, v.err
	}

	var buf [utf8.UTFMax]byte
	for n < len(p) {
		b, err := v.br.Peek(1)
		if err != nil {
			v.err = err
			break
		}

		// Fast path: ASCII needs no decoding
		if b[0] < utf8.RuneSelf {
			p[n] = b[0]
			n++
			v.offset++
			_, _ = v.br.Discard(1)
			continue
		}

		r, size, err := v.br.ReadRune()
		if err != nil {
			v.err = err
			break
		}

		if r == utf8.RuneError && (size == 1 || v.rejectReplacement) {
			if !v.replace {
				v.err = fmt.Errorf("%w: invalid byte sequence at offset %d", ErrInvalidEncoding, v.offset)
				break
			}
			p[n] = '?'
			n++
			v.offset += int64(size)
			continue
		}

		w := utf8.EncodeRune(buf[:], r)
		c := copy(p[n:], buf[:w])
		n += c
		v.offset += int64(size)
		if c < w {
			v.pending = append(v.pending[:0], buf[c:w]...)
			break
		}
	}

	if n > 0 {
		return n, nil
	}
	return 0, v.err
}

// CountingReader wraps an io.Reader to track bytes read.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
}

// NewCountingReader creates a counting reader.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{reader: r}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// CountingWriter wraps an io.Writer to track bytes written.
type CountingWriter struct {
	writer       io.Writer
	BytesWritten int64
}

// NewCountingWriter creates a counting writer.
func NewCountingWriter(w io.Writer) *CountingWriter {
	return &CountingWriter{writer: w}
}

// Write implements io.Writer.
func (w *CountingWriter) Write(p []byte) (int, error) {
	n, err := w.writer.Write(p)
	w.BytesWritten += int64(n)
	return n, err
}
