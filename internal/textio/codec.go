package textio

import (
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Codec identifies a compression format wrapped around delimited text.
type Codec string

const (
	CodecAuto  Codec = "auto"
	CodecNone  Codec = "none"
	CodecGzip  Codec = "gzip"
	CodecZstd  Codec = "zstd"
	CodecXZ    Codec = "xz"
	CodecBzip2 Codec = "bzip2"
)

// ErrReadOnlyCodec is returned when compressing with a codec that can only
// be decompressed.
var ErrReadOnlyCodec = errors.New("codec does not support writing")

var codecExtensions = map[string]Codec{
	".gz":   CodecGzip,
	".gzip": CodecGzip,
	".zst":  CodecZstd,
	".zstd": CodecZstd,
	".xz":   CodecXZ,
	".bz2":  CodecBzip2,
}

// ResolveCodec turns a configured codec name into a concrete codec for path.
// "auto" and "" pick the codec from the file extension.
func ResolveCodec(name, path string) (Codec, error) {
	switch c := Codec(strings.ToLower(strings.TrimSpace(name))); c {
	case "", CodecAuto:
		if c, ok := codecExtensions[strings.ToLower(filepath.Ext(path))]; ok {
			return c, nil
		}
		return CodecNone, nil
	case CodecNone, CodecGzip, CodecZstd, CodecXZ, CodecBzip2:
		return c, nil
	default:
		return "", fmt.Errorf("unknown compression %q", name)
	}
}

// NewDecompressor wraps r so that it yields decompressed bytes. The returned
// close function releases decoder resources and must be called; it does not
// close r.
func NewDecompressor(r io.Reader, c Codec) (io.Reader, func() error, error) {
	switch c {
	case CodecGzip:
		gzReader, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gzReader, gzReader.Close, nil

	case CodecBzip2:
		return bzip2.NewReader(r), noClose, nil

	case CodecXZ:
		xzReader, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return xzReader, noClose, nil

	case CodecZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return decoder, func() error { decoder.Close(); return nil }, nil

	default:
		return r, noClose, nil
	}
}

// NewCompressor wraps w so that written bytes are compressed. Each
// compressor produces one self-contained member (gzip member, zstd frame,
// xz stream); decoders read concatenated members, so appending a new member
// to an existing file is valid. Close flushes the member; it does not close w.
func NewCompressor(w io.Writer, c Codec) (io.WriteCloser, error) {
	switch c {
	case CodecGzip:
		return gzip.NewWriter(w), nil

	case CodecZstd:
		encoder, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return encoder, nil

	case CodecXZ:
		xzWriter, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		return xzWriter, nil

	case CodecBzip2:
		return nil, fmt.Errorf("%w: %s", ErrReadOnlyCodec, c)

	default:
		return nopWriteCloser{w}, nil
	}
}

func noClose() error { return nil }
