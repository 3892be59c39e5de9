package textio

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestLookupCharset(t *testing.T) {
	tests := []struct {
		label    string
		wantName string
		wantBOM  bool
		wantUTF8 bool
		wantErr  bool
	}{
		{label: "", wantName: "utf-8", wantUTF8: true},
		{label: "UTF-8", wantName: "utf-8", wantUTF8: true},
		{label: "utf8", wantName: "utf-8", wantUTF8: true},
		{label: "utf-8-sig", wantName: "utf-8", wantBOM: true, wantUTF8: true},
		{label: "latin-1", wantName: "windows-1252"},
		{label: "iso-8859-1", wantName: "windows-1252"},
		{label: "utf-16le", wantName: "utf-16le"},
		{label: "shift_jis", wantName: "shift_jis"},
		{label: "klingon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			cs, err := LookupCharset(tt.label)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("LookupCharset(%q) expected error", tt.label)
				}
				return
			}
			if err != nil {
				t.Fatalf("LookupCharset(%q) error = %v", tt.label, err)
			}
			if cs.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", cs.Name, tt.wantName)
			}
			if cs.BOM != tt.wantBOM {
				t.Errorf("BOM = %v, want %v", cs.BOM, tt.wantBOM)
			}
			if cs.IsUTF8() != tt.wantUTF8 {
				t.Errorf("IsUTF8 = %v, want %v", cs.IsUTF8(), tt.wantUTF8)
			}
		})
	}
}

func TestCharset_Latin1RoundTrip(t *testing.T) {
	cs, err := LookupCharset("latin-1")
	if err != nil {
		t.Fatalf("LookupCharset error = %v", err)
	}

	var encoded bytes.Buffer
	w := cs.NewWriter(&encoded, false)
	if _, err := io.WriteString(w, "city\nZürich\n"); err != nil {
		t.Fatalf("write error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close error = %v", err)
	}
	if !bytes.Contains(encoded.Bytes(), []byte{'Z', 0xFC, 'r'}) {
		t.Fatalf("expected single-byte ü in output, got %v", encoded.Bytes())
	}

	decoded, err := io.ReadAll(cs.NewReader(&encoded, false))
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	if string(decoded) != "city\nZürich\n" {
		t.Errorf("decoded = %q", decoded)
	}
}

func TestCharset_UnsupportedRune(t *testing.T) {
	cs, err := LookupCharset("latin-1")
	if err != nil {
		t.Fatalf("LookupCharset error = %v", err)
	}

	var strict bytes.Buffer
	w := cs.NewWriter(&strict, false)
	_, err = io.WriteString(w, "snow ☃\n")
	if err == nil {
		err = w.Close()
	}
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}

	var lenient bytes.Buffer
	w = cs.NewWriter(&lenient, true)
	if _, err := io.WriteString(w, "snow ☃\n"); err != nil {
		t.Fatalf("write error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close error = %v", err)
	}
	if strings.Contains(lenient.String(), "☃") {
		t.Errorf("unsupported rune should be replaced, got %q", lenient.String())
	}
}

func TestCharset_UTF8ReaderStripsBOM(t *testing.T) {
	cs, _ := LookupCharset("utf-8")
	input := append(UTF8BOM(), []byte("LatD,City\n")...)

	got, err := io.ReadAll(cs.NewReader(bytes.NewReader(input), false))
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	if string(got) != "LatD,City\n" {
		t.Errorf("got %q", got)
	}
}

func TestCharset_StrictDecode(t *testing.T) {
	tests := []struct {
		label   string
		input   []byte
		replace bool
		want    string
		wantErr bool
	}{
		{label: "shift_jis", input: []byte("x,\x93\x8c\x8b\x9e\n"), want: "x,東京\n"},
		{label: "shift_jis", input: []byte("x,\x81\x20y\n"), wantErr: true},
		{label: "shift_jis", input: []byte("x,\x81\x20y\n"), replace: true, want: "x,? y\n"},
		{label: "euc-kr", input: []byte("x,\xa1\x20y\n"), wantErr: true},
		// UTF-16 can encode U+FFFD itself, so it is passed through.
		{label: "utf-16le", input: []byte{0xFD, 0xFF, 'a', 0}, want: "�a"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			cs, err := LookupCharset(tt.label)
			if err != nil {
				t.Fatalf("LookupCharset error = %v", err)
			}
			got, err := io.ReadAll(cs.NewReader(bytes.NewReader(tt.input), tt.replace))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidEncoding) {
					t.Fatalf("expected ErrInvalidEncoding, got %v (%q)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("read error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
