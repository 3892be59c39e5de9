package csvkit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/JonMunkholm/csvkit/internal/config"
	"github.com/JonMunkholm/csvkit/internal/logging"
	"github.com/JonMunkholm/csvkit/internal/textio"
)

// Mode selects how a file is opened.
type Mode string

const (
	ModeRead   Mode = "read"
	ModeWrite  Mode = "write"  // truncate and write the header
	ModeAppend Mode = "append" // append rows to an existing file
)

// Encoding error handling.
const (
	EncodingStrict  = "strict"
	EncodingReplace = "replace"
)

// defaultCheckInterval is how many rows a Reader returns between context
// cancellation checks when Options.CheckInterval is zero.
const defaultCheckInterval = 100

// Options controls how files are opened, decoded and tokenized.
//
// The zero value is usable: empty fields take the defaults returned by
// DefaultOptions. Options are passed by value; there is no package-level
// configuration.
type Options struct {
	// Mode defaults to read for readers and to write for OpenWriter.
	Mode Mode `env:"CSVKIT_MODE" yaml:"mode"`

	// Encoding is a WHATWG label ("utf-8", "latin1", "shift_jis", ...) or
	// "utf-8-sig" to write a UTF-8 byte order mark on file creation.
	Encoding string `env:"CSVKIT_ENCODING" yaml:"encoding" default:"utf-8"`

	// EncodingErrors is "strict" (fail) or "replace" (substitute '?').
	EncodingErrors string `env:"CSVKIT_ENCODING_ERRORS" yaml:"encoding_errors" default:"strict"`

	// Newline is the row terminator written: "" or "\n" for LF, "\r\n" for
	// CRLF. Readers accept both regardless.
	Newline string `env:"CSVKIT_NEWLINE" yaml:"newline"`

	Delimiter rune `env:"CSVKIT_DELIMITER" yaml:"delimiter" default:","`

	// Compression is "auto" (by file extension), "none", "gzip", "zstd",
	// "xz" or "bzip2". bzip2 is read-only.
	Compression string `env:"CSVKIT_COMPRESSION" yaml:"compression" default:"auto"`

	LazyQuotes       bool `env:"CSVKIT_LAZY_QUOTES" yaml:"lazy_quotes"`
	TrimLeadingSpace bool `env:"CSVKIT_TRIM_LEADING_SPACE" yaml:"trim_leading_space"`

	// CheckInterval is how many rows a Reader returns between context
	// cancellation checks. Zero means 100.
	CheckInterval int `env:"CSVKIT_CHECK_INTERVAL" yaml:"check_interval" default:"100"`

	// LogLevel and LogFormat are only read by LoadOptions and
	// LoadOptionsFile, which turn them into Logger.
	LogLevel  string `env:"CSVKIT_LOG_LEVEL" yaml:"log_level"`
	LogFormat string `env:"CSVKIT_LOG_FORMAT" yaml:"log_format"`

	// Logger receives debug events. Nil means the logger stored in the
	// operation's context by NewContext, or slog.Default().
	Logger *slog.Logger

	// Allocator backs Arrow tables. Nil means memory.DefaultAllocator.
	Allocator memory.Allocator
}

// DefaultOptions returns the options used for empty fields.
func DefaultOptions() Options {
	return Options{
		Mode:           ModeRead,
		Encoding:       "utf-8",
		EncodingErrors: EncodingStrict,
		Delimiter:      ',',
		Compression:    string(textio.CodecAuto),
		CheckInterval:  defaultCheckInterval,
	}
}

// LoadOptions reads Options from CSVKIT_* environment variables.
func LoadOptions() (Options, error) {
	var opts Options
	if err := config.LoadEnv(&opts); err != nil {
		return Options{}, configError("load options", CodeInvalidOption, "%w", err)
	}
	return finishLoad(opts)
}

// LoadOptionsFile reads Options from a YAML file (.yaml, .yml) or a dotenv
// file (anything else). Dotenv keys are the CSVKIT_* variable names; YAML
// keys are the snake_case field names, e.g. "encoding_errors". The process
// environment is not consulted.
func LoadOptionsFile(path string) (Options, error) {
	var opts Options
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = config.LoadYAML(path, &opts)
	default:
		err = config.LoadDotenv(path, &opts)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return Options{}, ioError("load options", path, CodeOpen, err)
		}
		e := configError("load options", CodeInvalidOption, "%w", err)
		e.Path = path
		return Options{}, e
	}
	return finishLoad(opts)
}

func finishLoad(opts Options) (Options, error) {
	if opts.LogLevel != "" || opts.LogFormat != "" {
		opts.Logger = logging.New(opts.LogLevel, opts.LogFormat, os.Stderr)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// NewContext returns a copy of ctx carrying logger. Operations run with the
// returned context log to it when Options.Logger is nil; pgsink always does.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.NewContext(ctx, logger)
}

// Validate checks every option and reports all failures at once (CFG005).
func (o Options) Validate() error {
	var errs []string

	switch o.Mode {
	case "", ModeRead, ModeWrite, ModeAppend:
	default:
		errs = append(errs, fmt.Sprintf("mode %q must be read, write or append", o.Mode))
	}

	if _, err := textio.LookupCharset(o.Encoding); err != nil {
		errs = append(errs, err.Error())
	}

	switch strings.ToLower(o.EncodingErrors) {
	case "", EncodingStrict, EncodingReplace:
	default:
		errs = append(errs, fmt.Sprintf("encoding errors %q must be strict or replace", o.EncodingErrors))
	}

	if _, ok := normalizeNewline(o.Newline); !ok {
		errs = append(errs, fmt.Sprintf("newline %q must be \\n or \\r\\n", o.Newline))
	}

	if o.Delimiter != 0 && !validDelimiter(o.Delimiter) {
		errs = append(errs, fmt.Sprintf("delimiter %q is not allowed", o.Delimiter))
	}

	if _, err := textio.ResolveCodec(o.Compression, ""); err != nil {
		errs = append(errs, err.Error())
	}

	if o.CheckInterval < 0 {
		errs = append(errs, fmt.Sprintf("check interval %d must not be negative", o.CheckInterval))
	}

	if len(errs) > 0 {
		return configError("options", CodeInvalidOption, "%s", strings.Join(errs, "; "))
	}
	return nil
}

// normalizeNewline maps the accepted spellings to "\n" or "\r\n".
func normalizeNewline(s string) (string, bool) {
	switch strings.ToLower(s) {
	case "", "\n", `\n`, "lf":
		return "\n", true
	case "\r\n", `\r\n`, "crlf":
		return "\r\n", true
	default:
		return "", false
	}
}

// validDelimiter mirrors the checks encoding/csv applies to Comma.
func validDelimiter(r rune) bool {
	return r != '"' && r != '\r' && r != '\n' && utf8.ValidRune(r) && r != utf8.RuneError
}

// settings are Options resolved for one operation on one path.
type settings struct {
	mode        Mode
	charset     textio.Charset
	replace     bool
	crlf        bool
	delimiter   rune
	codec       textio.Codec
	lazyQuotes  bool
	trimLeading bool
	interval    int
	logger      *slog.Logger
	alloc       memory.Allocator
}

func (o Options) resolve(op, path string) (settings, error) {
	if err := o.Validate(); err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			ce.Op = op
			ce.Path = path
		}
		return settings{}, err
	}

	// Validate has already accepted every value below.
	charset, _ := textio.LookupCharset(o.Encoding)
	codec, _ := textio.ResolveCodec(o.Compression, path)
	newline, _ := normalizeNewline(o.Newline)

	s := settings{
		mode:        o.Mode,
		charset:     charset,
		replace:     strings.EqualFold(o.EncodingErrors, EncodingReplace),
		crlf:        newline == "\r\n",
		delimiter:   o.Delimiter,
		codec:       codec,
		lazyQuotes:  o.LazyQuotes,
		trimLeading: o.TrimLeadingSpace,
		interval:    o.CheckInterval,
		logger:      o.Logger,
		alloc:       o.Allocator,
	}
	if s.delimiter == 0 {
		s.delimiter = ','
	}
	if s.interval == 0 {
		s.interval = defaultCheckInterval
	}
	if s.alloc == nil {
		s.alloc = memory.DefaultAllocator
	}
	return s, nil
}
