package csvkit

// errors.go defines the error taxonomy shared by every operation.
//
// Errors fall into three kinds, selectable with errors.Is:
//
//	ErrConfiguration - invalid arguments or options (CFG001-CFG099)
//	ErrIO            - file system failures (IO001-IO099)
//	ErrFormat        - malformed delimited text or encoding (FMT001-FMT099)
//
// Each *Error carries a code for support reference, the operation and path
// that produced it, and the underlying error (reachable with errors.Unwrap,
// so errors.Is(err, fs.ErrNotExist) keeps working).
//
// # Codes
//
//	CFG001 - Chunk size must be a positive integer
//	CFG002 - Header is empty
//	CFG003 - Header contains a duplicate field name
//	CFG004 - Record contains a field that is not in the header
//	CFG005 - Invalid option (mode, encoding, delimiter, newline, compression)
//
//	IO001  - File could not be opened or created
//	IO002  - File could not be read, written, flushed or closed
//
//	FMT001 - Malformed delimited text (quoting)
//	FMT002 - Wrong number of fields in a row
//	FMT003 - Invalid text encoding
//	FMT004 - Duplicate column name in the file header

import (
	"encoding/csv"
	"errors"
	"fmt"

	"github.com/JonMunkholm/csvkit/internal/textio"
)

// Kind is the category of an Error. The exported Err* values are Kinds and
// can be used directly as errors.Is targets.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	ErrConfiguration Kind = "configuration error"
	ErrIO            Kind = "io error"
	ErrFormat        Kind = "format error"
)

// Error codes. See the package-level table above.
const (
	CodeChunkSize      = "CFG001"
	CodeEmptyHeader    = "CFG002"
	CodeDuplicateField = "CFG003"
	CodeUnknownField   = "CFG004"
	CodeInvalidOption  = "CFG005"

	CodeOpen      = "IO001"
	CodeReadWrite = "IO002"

	CodeMalformed       = "FMT001"
	CodeFieldCount      = "FMT002"
	CodeEncoding        = "FMT003"
	CodeDuplicateColumn = "FMT004"
)

// Error is the concrete error returned by csvkit operations.
type Error struct {
	Kind Kind
	Code string
	Op   string // operation, e.g. "read", "append"
	Path string // file path, empty when not file related
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := "csvkit: " + string(e.Kind)
	if e.Op != "" {
		msg += " in " + e.Op
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + " (" + e.Code + ")"
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && e != nil && e.Kind == k
}

func configError(op, code string, format string, args ...any) *Error {
	return &Error{Kind: ErrConfiguration, Code: code, Op: op, Err: fmt.Errorf(format, args...)}
}

func ioError(op, path, code string, err error) *Error {
	return &Error{Kind: ErrIO, Code: code, Op: op, Path: path, Err: err}
}

func formatError(op, path, code string, err error) *Error {
	return &Error{Kind: ErrFormat, Code: code, Op: op, Path: path, Err: err}
}

// classifyReadError maps a tokenizer or decoder failure to a format error.
// Errors already classified are returned unchanged.
func classifyReadError(op, path string, err error) error {
	var ce *Error
	if errors.As(err, &ce) {
		if ce.Path == "" {
			ce.Path = path
		}
		return ce
	}
	if errors.Is(err, textio.ErrInvalidEncoding) {
		return formatError(op, path, CodeEncoding, err)
	}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		if errors.Is(pe.Err, csv.ErrFieldCount) {
			return formatError(op, path, CodeFieldCount, err)
		}
		return formatError(op, path, CodeMalformed, err)
	}
	return ioError(op, path, CodeReadWrite, err)
}

// describeMessages holds the user-facing message for each code.
var describeMessages = map[string]string{
	CodeChunkSize:       "Chunk size must be a positive integer",
	CodeEmptyHeader:     "A header with at least one field is required",
	CodeDuplicateField:  "Header field names must be unique",
	CodeUnknownField:    "Record contains a field that is not in the header",
	CodeInvalidOption:   "Invalid read or write option",
	CodeOpen:            "File could not be opened",
	CodeReadWrite:       "File could not be read or written",
	CodeMalformed:       "File is not valid delimited text",
	CodeFieldCount:      "A row has the wrong number of fields",
	CodeEncoding:        "File contains characters invalid for its encoding",
	CodeDuplicateColumn: "File header contains a duplicate column name",
}

// Describe renders err as "Message (Code: XXX)". Errors that did not come
// from csvkit are rendered with their own text and code ERR000.
//
// Example output: "A row has the wrong number of fields (Code: FMT002)"
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		if msg, ok := describeMessages[ce.Code]; ok {
			return fmt.Sprintf("%s (Code: %s)", msg, ce.Code)
		}
	}
	return fmt.Sprintf("%s (Code: ERR000)", err.Error())
}
