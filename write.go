package csvkit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/csvkit/internal/logging"
	"github.com/JonMunkholm/csvkit/internal/textio"
)

// Writer writes Records to a delimited text file.
//
// Each row is serialized and encoded in memory before it is handed to the
// buffered file writer, so a row that fails (unknown field, unencodable
// character) leaves no partial bytes behind. Close must always be called;
// compressed output is only complete after Close.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	ctx    context.Context
	path   string
	op     string
	logger *slog.Logger
	s      settings

	file    *os.File
	counter *textio.CountingWriter
	comp    io.Closer
	buf     *bufio.Writer

	header Header
	row    bytes.Buffer // csv output for one row
	enc    bytes.Buffer // row after charset encoding
	csv    *csv.Writer

	rows   int
	err    error // sticky
	closed bool
}

// OpenWriter opens path for writing according to opts.Mode.
//
// ModeWrite (also the default) truncates or creates the file and writes
// header as its first row; header must be non-empty. ModeAppend appends to
// the file, creating it if needed, and writes no header; an empty header is
// taken from the first record written.
func OpenWriter(ctx context.Context, path string, header Header, opts Options) (*Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeWrite
	}
	op := string(mode)

	s, err := opts.resolve(op, path)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeWrite:
		if err := header.Validate(); err != nil {
			return nil, withPath(err, op, path)
		}
	case ModeAppend:
		if err := header.validateUnique(); err != nil {
			return nil, withPath(err, op, path)
		}
	default:
		e := configError(op, CodeInvalidOption, "mode %q cannot be used for writing", mode)
		e.Path = path
		return nil, e
	}
	if s.codec == textio.CodecBzip2 {
		e := configError(op, CodeInvalidOption, "%w: %s", textio.ErrReadOnlyCodec, s.codec)
		e.Path = path
		return nil, e
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if mode == ModeAppend {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, ioError(op, path, CodeOpen, err)
	}

	empty := true
	if mode == ModeAppend {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, ioError(op, path, CodeOpen, err)
		}
		empty = info.Size() == 0
	}

	ctx, logger := logging.WithOperation(ctx, s.logger, op, path)

	w := &Writer{
		ctx:     ctx,
		path:    path,
		op:      op,
		logger:  logger,
		s:       s,
		file:    f,
		counter: textio.NewCountingWriter(f),
	}
	if len(header) > 0 {
		w.header = append(Header(nil), header...)
	}

	comp, err := textio.NewCompressor(w.counter, s.codec)
	if err != nil {
		f.Close()
		return nil, ioError(op, path, CodeOpen, err)
	}
	w.comp = comp
	w.buf = bufio.NewWriter(comp)

	w.csv = csv.NewWriter(&w.row)
	w.csv.Comma = s.delimiter
	w.csv.UseCRLF = s.crlf

	if s.charset.BOM && empty {
		if _, err := w.buf.Write(textio.UTF8BOM()); err != nil {
			w.fail(ioError(op, path, CodeReadWrite, err))
		}
	}
	if mode == ModeWrite && w.err == nil {
		if err := w.writeFields(w.header); err != nil {
			w.fail(err)
		}
	}
	if w.err != nil {
		err := w.err
		w.Close()
		return nil, err
	}

	logger.Debug("file opened",
		"codec", s.codec,
		"encoding", s.charset.Name,
		"columns", len(w.header),
	)
	return w, nil
}

func withPath(err error, op, path string) error {
	var ce *Error
	if errors.As(err, &ce) {
		ce.Op = op
		ce.Path = path
	}
	return err
}

// Header returns the header rows are written in. It is nil for an append
// writer until the first record is written.
func (w *Writer) Header() Header {
	return w.header
}

// Write appends one record, ordered by the header. Header fields missing
// from rec are written empty; fields of rec not in the header are an error
// (CFG004) and nothing is written.
func (w *Writer) Write(rec Record) error {
	if err := w.ready(); err != nil {
		return err
	}
	if len(w.header) == 0 {
		if err := w.adoptHeader(rec); err != nil {
			return err
		}
	}
	if err := checkFields(w.op, w.path, w.header, rec); err != nil {
		return err
	}
	return w.writeRecord(rec)
}

// WriteAll appends records in order. All records are checked against the
// header before the first one is written.
func (w *Writer) WriteAll(records []Record) error {
	if err := w.ready(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	if len(w.header) == 0 {
		if err := w.adoptHeader(records[0]); err != nil {
			return err
		}
	}
	for _, rec := range records {
		if err := checkFields(w.op, w.path, w.header, rec); err != nil {
			return err
		}
	}
	for _, rec := range records {
		if err := w.writeRecord(rec); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) ready() error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return ioError(w.op, w.path, CodeReadWrite, os.ErrClosed)
	}
	return w.ctx.Err()
}

func (w *Writer) adoptHeader(rec Record) error {
	h := Header(rec.Keys())
	if err := h.Validate(); err != nil {
		return withPath(err, w.op, w.path)
	}
	w.header = h
	return nil
}

func (w *Writer) writeRecord(rec Record) error {
	fields := make([]string, len(w.header))
	for i, name := range w.header {
		v, _ := rec.Get(name)
		fields[i] = FormatValue(v)
	}
	if err := w.writeFields(fields); err != nil {
		w.fail(err)
		return err
	}
	w.rows++
	return nil
}

// writeFields serializes and encodes one row in memory, then hands it to the
// buffered writer in a single call.
func (w *Writer) writeFields(fields []string) error {
	w.row.Reset()
	if len(fields) == 1 && fields[0] == "" {
		// A bare newline would read back as a skipped blank line
		w.row.WriteString(`""`)
		w.row.WriteString(w.newline())
	} else {
		if err := w.csv.Write(fields); err != nil {
			return ioError(w.op, w.path, CodeReadWrite, err)
		}
		w.csv.Flush()
		if err := w.csv.Error(); err != nil {
			return ioError(w.op, w.path, CodeReadWrite, err)
		}
	}

	line, err := w.encode(w.row.Bytes())
	if err != nil {
		return formatError(w.op, w.path, CodeEncoding, err)
	}
	if _, err := w.buf.Write(line); err != nil {
		return ioError(w.op, w.path, CodeReadWrite, err)
	}
	return nil
}

func (w *Writer) newline() string {
	if w.s.crlf {
		return "\r\n"
	}
	return "\n"
}

func (w *Writer) encode(line []byte) ([]byte, error) {
	if w.s.charset.IsUTF8() {
		if utf8.Valid(line) {
			return line, nil
		}
		if !w.s.replace {
			return nil, fmt.Errorf("%w: row is not valid UTF-8", textio.ErrInvalidEncoding)
		}
		return []byte(strings.ToValidUTF8(string(line), "?")), nil
	}

	w.enc.Reset()
	ew := w.s.charset.NewWriter(&w.enc, w.s.replace)
	if _, err := ew.Write(line); err != nil {
		return nil, err
	}
	if err := ew.Close(); err != nil {
		return nil, err
	}
	return w.enc.Bytes(), nil
}

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// Flush writes buffered rows to the file. Compressed output is completed
// only by Close.
func (w *Writer) Flush() error {
	if err := w.ready(); err != nil {
		return err
	}
	if err := w.buf.Flush(); err != nil {
		w.fail(ioError(w.op, w.path, CodeReadWrite, err))
		return w.err
	}
	return nil
}

// Close flushes buffered rows, completes compression and closes the file.
// It returns the first error the writer encountered. It is safe to call
// more than once.
func (w *Writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true

	if w.err == nil {
		if err := w.buf.Flush(); err != nil {
			w.fail(ioError(w.op, w.path, CodeReadWrite, err))
		}
	}
	if w.comp != nil {
		if err := w.comp.Close(); err != nil {
			w.fail(ioError(w.op, w.path, CodeReadWrite, err))
		}
	}
	if err := w.file.Close(); err != nil {
		w.fail(ioError(w.op, w.path, CodeReadWrite, err))
	}

	w.logger.Debug("file closed", "rows", w.rows, "bytes", w.counter.BytesWritten)
	return w.err
}

// checkFields rejects records carrying fields that are not in header.
func checkFields(op, path string, header Header, rec Record) error {
	var unknown []string
	for _, k := range rec.keys {
		if header.Index(k) < 0 {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		e := configError(op, CodeUnknownField, "fields %s not in header [%s]",
			strings.Join(unknown, ", "), header.String())
		e.Path = path
		return e
	}
	return nil
}

// CreateFile creates or truncates path and writes header as its only row.
func CreateFile(ctx context.Context, path string, header Header, opts Options) error {
	opts.Mode = ModeWrite
	w, err := OpenWriter(ctx, path, header, opts)
	if err != nil {
		return err
	}
	return w.Close()
}

// AppendRow appends rec to path ordered by header. An empty header uses the
// record's own key order. The record is checked before the file is opened.
func AppendRow(ctx context.Context, path string, rec Record, header Header, opts Options) error {
	return AppendRows(ctx, path, []Record{rec}, header, opts)
}

// AppendRows appends records to path in one buffered write, ordered by
// header (or the first record's keys when header is empty). Every record is
// checked before the file is opened. With no records the file is left
// untouched and is not created.
func AppendRows(ctx context.Context, path string, records []Record, header Header, opts Options) error {
	const op = "append"

	if len(records) == 0 {
		return ctx.Err()
	}
	if len(header) == 0 {
		header = Header(records[0].Keys())
		if err := header.Validate(); err != nil {
			return withPath(err, op, path)
		}
	}
	for _, rec := range records {
		if err := checkFields(op, path, header, rec); err != nil {
			return err
		}
	}

	opts.Mode = ModeAppend
	w, err := OpenWriter(ctx, path, header, opts)
	if err != nil {
		return err
	}
	if err := w.WriteAll(records); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
