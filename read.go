package csvkit

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"

	"github.com/JonMunkholm/csvkit/internal/logging"
	"github.com/JonMunkholm/csvkit/internal/textio"
)

// Reader reads Records from a delimited text file. The first row is the
// header and is never returned as a Record.
//
// A Reader is forward-only and not safe for concurrent use. Close releases
// the file handle and must always be called.
type Reader struct {
	ctx    context.Context
	path   string
	logger *slog.Logger

	file    *os.File
	counter *textio.CountingReader
	closers []func() error
	csv     *csv.Reader

	header   Header
	line     int
	rows     int
	interval int
	err    error // sticky; io.EOF once exhausted
	closed bool
}

// Open opens path for reading and consumes its header row.
//
// The byte stream is decompressed, decoded to UTF-8 and validated before it
// reaches the tokenizer. An empty file yields an empty Header and a Reader
// whose first Next returns io.EOF.
func Open(ctx context.Context, path string, opts Options) (*Reader, error) {
	const op = "read"

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := opts.resolve(op, path)
	if err != nil {
		return nil, err
	}
	if s.mode != "" && s.mode != ModeRead {
		e := configError(op, CodeInvalidOption, "mode %q cannot be used for reading", s.mode)
		e.Path = path
		return nil, e
	}

	ctx, logger := logging.WithOperation(ctx, s.logger, op, path)

	f, err := os.Open(path)
	if err != nil {
		return nil, ioError(op, path, CodeOpen, err)
	}

	r := &Reader{
		ctx:      ctx,
		path:     path,
		logger:   logger,
		file:     f,
		counter:  textio.NewCountingReader(f),
		interval: s.interval,
	}

	src, closeFn, err := textio.NewDecompressor(r.counter, s.codec)
	if err != nil {
		f.Close()
		return nil, formatError(op, path, CodeMalformed, err)
	}
	r.closers = append(r.closers, closeFn)

	cr := csv.NewReader(s.charset.NewReader(src, s.replace))
	cr.Comma = s.delimiter
	cr.LazyQuotes = s.lazyQuotes
	cr.TrimLeadingSpace = s.trimLeading
	cr.ReuseRecord = true
	r.csv = cr

	if err := r.readHeader(); err != nil {
		r.Close()
		return nil, err
	}

	logger.Debug("file opened",
		"codec", s.codec,
		"encoding", s.charset.Name,
		"columns", len(r.header),
	)
	return r, nil
}

func (r *Reader) readHeader() error {
	fields, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		r.err = io.EOF
		return nil
	}
	if err != nil {
		return classifyReadError("read", r.path, err)
	}

	r.line, _ = r.csv.FieldPos(0)
	r.header = make(Header, len(fields))
	copy(r.header, fields)

	if err := r.header.validateUnique(); err != nil {
		var ce *Error
		errors.As(err, &ce)
		return formatError("read", r.path, CodeDuplicateColumn,
			fmt.Errorf("line %d: %w", r.line, ce.Err))
	}
	return nil
}

// Header returns the file's header row. The slice must not be modified.
func (r *Reader) Header() Header {
	return r.header
}

// Line returns the line number of the row most recently read, starting at 1
// for the header. Multi-line quoted fields report their first line.
func (r *Reader) Line() int {
	return r.line
}

// Next returns the next Record, or io.EOF when the file is exhausted.
// Every value passes through Convert. After any error, Next keeps returning
// that error.
func (r *Reader) Next() (Record, error) {
	if r.err != nil {
		return Record{}, r.err
	}
	if r.closed {
		return Record{}, ioError("read", r.path, CodeReadWrite, os.ErrClosed)
	}

	// Check for cancellation periodically
	if r.rows%r.interval == 0 {
		if err := r.ctx.Err(); err != nil {
			r.err = err
			return Record{}, err
		}
	}

	fields, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		r.err = io.EOF
		r.logger.Debug("end of file", "rows", r.rows)
		return Record{}, io.EOF
	}
	if err != nil {
		r.err = classifyReadError("read", r.path, err)
		return Record{}, r.err
	}

	r.line, _ = r.csv.FieldPos(0)
	r.rows++

	values := make(map[string]any, len(r.header))
	for i, name := range r.header {
		values[name] = Convert(fields[i])
	}
	return newRecordFromHeader(r.header, values), nil
}

// Close releases the file. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, err)
	}

	r.logger.Debug("file closed", "rows", r.rows, "bytes", r.counter.BytesRead)

	if err := errors.Join(errs...); err != nil {
		return ioError("read", r.path, CodeReadWrite, err)
	}
	return nil
}

// Records returns the Records of path as a lazy sequence. The file is opened
// when iteration starts and closed when it ends, however it ends. At most one
// error is yielded, after which the sequence stops.
//
// Ranging over the sequence again re-opens the file.
func Records(ctx context.Context, path string, opts Options) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		r, err := Open(ctx, path, opts)
		if err != nil {
			yield(Record{}, err)
			return
		}
		defer r.Close()

		for {
			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				if err := r.Close(); err != nil {
					yield(Record{}, err)
				}
				return
			}
			if err != nil {
				yield(Record{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Headers returns the header row of path without reading any records.
func Headers(ctx context.Context, path string, opts Options) (Header, error) {
	r, err := Open(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Header(), nil
}
