package textio

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// pythonAliases maps common non-WHATWG spellings to WHATWG labels.
var pythonAliases = map[string]string{
	"latin-1": "latin1",
	"latin_1": "latin1",
	"utf8":    "utf-8",
	"u8":      "utf-8",
}

// Charset is a resolved text encoding.
type Charset struct {
	// Name is the canonical WHATWG name, e.g. "utf-8" or "windows-1252".
	Name string
	// BOM reports whether a UTF-8 byte order mark is written on creation.
	BOM bool

	enc encoding.Encoding // nil for UTF-8
}

// LookupCharset resolves an encoding label. The empty label means UTF-8.
// "utf-8-sig" selects UTF-8 with a byte order mark on write.
func LookupCharset(label string) (Charset, error) {
	l := strings.ToLower(strings.TrimSpace(label))
	if alias, ok := pythonAliases[l]; ok {
		l = alias
	}

	switch l {
	case "", "utf-8":
		return Charset{Name: "utf-8"}, nil
	case "utf-8-sig", "utf_8_sig", "utf8-sig":
		return Charset{Name: "utf-8", BOM: true}, nil
	}

	enc, err := htmlindex.Get(l)
	if err != nil {
		// Python spells many labels with underscores
		enc, err = htmlindex.Get(strings.ReplaceAll(l, "_", "-"))
	}
	if err != nil {
		return Charset{}, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return Charset{}, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	if name == "utf-8" {
		return Charset{Name: name}, nil
	}
	return Charset{Name: name, enc: enc}, nil
}

// IsUTF8 reports whether the charset is UTF-8.
func (c Charset) IsUTF8() bool {
	return c.enc == nil
}

// NewReader returns a reader producing UTF-8 text from r.
//
// UTF-8 input has its BOM removed and is validated; replace selects '?'
// substitution for invalid bytes instead of failing with ErrInvalidEncoding.
// Other charsets are decoded with x/text, which maps undecodable bytes to
// U+FFFD. In strict mode that U+FFFD fails the read, unless the charset can
// itself encode U+FFFD (the UTF-16 family), where a decoded U+FFFD may be
// genuine text and is passed through.
func (c Charset) NewReader(r io.Reader, replace bool) io.Reader {
	if c.enc == nil {
		return NewUTF8Reader(NewBOMSkippingReader(r), replace)
	}
	decoded := transform.NewReader(r, c.enc.NewDecoder())
	if c.encodesReplacement() {
		return decoded
	}
	v := NewUTF8Reader(decoded, replace)
	v.rejectReplacement = true
	return v
}

// encodesReplacement reports whether U+FFFD is representable in c.
func (c Charset) encodesReplacement() bool {
	_, err := c.enc.NewEncoder().String(string(utf8.RuneError))
	return err == nil
}

// NewWriter returns a writer encoding UTF-8 text into w. Close must be
// called to flush the encoder; it does not close w.
//
// When replace is false, runes the charset cannot represent fail the write
// with an error wrapping ErrInvalidEncoding.
func (c Charset) NewWriter(w io.Writer, replace bool) io.WriteCloser {
	if c.enc == nil {
		return nopWriteCloser{w}
	}
	enc := c.enc.NewEncoder()
	if replace {
		enc = encoding.ReplaceUnsupported(enc)
	}
	sink := &errWriter{w: w}
	return &encodeWriter{tw: transform.NewWriter(sink, enc), sink: sink}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// errWriter remembers the last error of the underlying writer so encoder
// failures can be told apart from I/O failures.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}

type encodeWriter struct {
	tw   *transform.Writer
	sink *errWriter
}

func (e *encodeWriter) Write(p []byte) (int, error) {
	n, err := e.tw.Write(p)
	return n, e.classify(err)
}

func (e *encodeWriter) Close() error {
	return e.classify(e.tw.Close())
}

func (e *encodeWriter) classify(err error) error {
	if err == nil || e.sink.err != nil && errors.Is(err, e.sink.err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
}
