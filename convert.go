package csvkit

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Convert promotes a text field to a float64, int64 or bool when the text
// unambiguously represents one, and returns the text unchanged otherwise.
//
// Rules, first match wins:
//
//  1. exactly one '.' and parses as a decimal float: float64
//  2. non-empty and all decimal digits (any script): int64
//  3. "True" or "False": bool
//  4. anything else: the original string
//
// An integer too large for int64 is returned as text. Convert never fails.
func Convert(text string) any {
	if strings.Count(text, ".") == 1 {
		if f, ok := parseFloat(text); ok {
			return f
		}
	}

	if i, ok := parseDigits(text); ok {
		return i
	}

	switch text {
	case "True":
		return true
	case "False":
		return false
	}

	return text
}

// ConvertValue applies Convert to the textual form of v.
// Booleans and numbers render the way FormatValue writes them, so
// ConvertValue(1) == int64(1) and ConvertValue(true) == true.
func ConvertValue(v any) any {
	if s, ok := v.(string); ok {
		return Convert(s)
	}
	return Convert(FormatValue(v))
}

// FormatValue renders a scalar the way the writer puts it in a file.
//
// nil is empty, booleans are True/False, integers are base 10 and floats use
// the shortest representation that round-trips, always carrying a '.' so a
// written float reads back as a float (1.0, 0.5, 1.0e+20). Infinities and
// NaN render as inf, -inf and nan. Other values use fmt.Sprint.
func FormatValue(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case bool:
		if tv {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(tv)
	case int8:
		return strconv.FormatInt(int64(tv), 10)
	case int16:
		return strconv.FormatInt(int64(tv), 10)
	case int32:
		return strconv.FormatInt(int64(tv), 10)
	case int64:
		return strconv.FormatInt(tv, 10)
	case uint:
		return strconv.FormatUint(uint64(tv), 10)
	case uint8:
		return strconv.FormatUint(uint64(tv), 10)
	case uint16:
		return strconv.FormatUint(uint64(tv), 10)
	case uint32:
		return strconv.FormatUint(uint64(tv), 10)
	case uint64:
		return strconv.FormatUint(tv, 10)
	case float32:
		return formatFloat(float64(tv), 32)
	case float64:
		return formatFloat(tv, 64)
	case []byte:
		return string(tv)
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	abs := math.Abs(f)
	if abs == 0 || (abs >= 1e-4 && abs < 1e16) {
		s := strconv.FormatFloat(f, 'f', -1, bitSize)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}

	s := strconv.FormatFloat(f, 'e', -1, bitSize)
	mantissa, exp, _ := strings.Cut(s, "e")
	if !strings.Contains(mantissa, ".") {
		mantissa += ".0"
	}
	return mantissa + "e" + exp
}

// parseFloat accepts decimal floats only. Surrounding whitespace and
// underscores between digits are allowed; hexadecimal forms are not.
func parseFloat(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	if s == "" || strings.ContainsAny(s, "xXpP") {
		return 0, false
	}

	s, ok := asciiDigits(s)
	if !ok {
		return 0, false
	}
	if strings.Contains(s, "_") {
		if s, ok = stripUnderscores(s); !ok {
			return 0, false
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Out of range values saturate to +-Inf
		var ne *strconv.NumError
		if errors.As(err, &ne) && errors.Is(ne.Err, strconv.ErrRange) {
			return f, true
		}
		return 0, false
	}
	return f, true
}

// parseDigits parses text made only of decimal digits, in any script.
func parseDigits(text string) (int64, bool) {
	if text == "" {
		return 0, false
	}

	var n int64
	for _, r := range text {
		d, ok := digitValue(r)
		if !ok {
			return 0, false
		}
		if n > (math.MaxInt64-int64(d))/10 {
			return 0, false
		}
		n = n*10 + int64(d)
	}
	return n, true
}

// digitValue returns the value of a Unicode decimal digit (category Nd).
// Nd characters come in contiguous runs of ten starting at zero, so the
// offset into the table range gives the value.
func digitValue(r rune) (int, bool) {
	if r >= '0' && r <= '9' {
		return int(r - '0'), true
	}
	if !unicode.IsDigit(r) {
		return 0, false
	}
	for _, rng := range unicode.Nd.R16 {
		if rune(rng.Lo) <= r && r <= rune(rng.Hi) {
			return int(r-rune(rng.Lo)) % 10, true
		}
	}
	for _, rng := range unicode.Nd.R32 {
		if rune(rng.Lo) <= r && r <= rune(rng.Hi) {
			return int(r-rune(rng.Lo)) % 10, true
		}
	}
	return 0, false
}

// asciiDigits rewrites non-ASCII decimal digits to ASCII.
func asciiDigits(s string) (string, bool) {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return s, true
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x80 {
			b.WriteRune(r)
			continue
		}
		d, ok := digitValue(r)
		if !ok {
			return "", false
		}
		b.WriteByte(byte('0' + d))
	}
	return b.String(), true
}

// stripUnderscores removes underscores that sit between two digits and
// rejects any other underscore.
func stripUnderscores(s string) (string, bool) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '_' {
			b.WriteByte(s[i])
			continue
		}
		if i == 0 || i == len(s)-1 || !isASCIIDigit(s[i-1]) || !isASCIIDigit(s[i+1]) {
			return "", false
		}
	}
	return b.String(), true
}

func isASCIIDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
