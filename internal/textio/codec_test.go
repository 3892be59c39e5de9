package textio

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestResolveCodec(t *testing.T) {
	tests := []struct {
		name    string
		codec   string
		path    string
		want    Codec
		wantErr bool
	}{
		{name: "auto plain", codec: "auto", path: "data/cities.csv", want: CodecNone},
		{name: "empty means auto", codec: "", path: "data/cities.csv.gz", want: CodecGzip},
		{name: "auto zstd", codec: "auto", path: "cities.csv.zst", want: CodecZstd},
		{name: "auto xz", codec: "auto", path: "cities.csv.XZ", want: CodecXZ},
		{name: "auto bzip2", codec: "auto", path: "cities.csv.bz2", want: CodecBzip2},
		{name: "explicit overrides extension", codec: "none", path: "cities.csv.gz", want: CodecNone},
		{name: "explicit gzip", codec: "GZIP", path: "cities.csv", want: CodecGzip},
		{name: "unknown", codec: "lz4", path: "cities.csv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveCodec(tt.codec, tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ResolveCodec(%q, %q) expected error", tt.codec, tt.path)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveCodec(%q, %q) error = %v", tt.codec, tt.path, err)
			}
			if got != tt.want {
				t.Errorf("ResolveCodec(%q, %q) = %q, want %q", tt.codec, tt.path, got, tt.want)
			}
		})
	}
}

func TestCodecRoundTrip_ConcatenatedMembers(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecGzip, CodecZstd, CodecXZ} {
		t.Run(string(codec), func(t *testing.T) {
			var file bytes.Buffer

			// Two separate writes emulate create followed by append.
			for _, chunk := range []string{"id,name\n", "1,John\n2,Jane\n"} {
				w, err := NewCompressor(&file, codec)
				if err != nil {
					t.Fatalf("NewCompressor error = %v", err)
				}
				if _, err := io.WriteString(w, chunk); err != nil {
					t.Fatalf("write error = %v", err)
				}
				if err := w.Close(); err != nil {
					t.Fatalf("close error = %v", err)
				}
			}

			r, closeFn, err := NewDecompressor(bytes.NewReader(file.Bytes()), codec)
			if err != nil {
				t.Fatalf("NewDecompressor error = %v", err)
			}
			defer closeFn()

			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("read error = %v", err)
			}
			if want := "id,name\n1,John\n2,Jane\n"; string(got) != want {
				t.Errorf("got %q, want %q", got, want)
			}
		})
	}
}

func TestNewCompressor_Bzip2ReadOnly(t *testing.T) {
	_, err := NewCompressor(io.Discard, CodecBzip2)
	if !errors.Is(err, ErrReadOnlyCodec) {
		t.Fatalf("expected ErrReadOnlyCodec, got %v", err)
	}
}

func TestNewDecompressor_CorruptGzip(t *testing.T) {
	_, _, err := NewDecompressor(bytes.NewReader([]byte("not gzip")), CodecGzip)
	if err == nil {
		t.Fatal("expected error for corrupt gzip header")
	}
}
