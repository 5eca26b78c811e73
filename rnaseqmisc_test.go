package rnaseqmisc

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDetermineDelimiter(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  rune
	}{
		{"gene,s1,s2\nACTB,5,7\nXIST,0,2\n", ','},
		{"gene\ts1\ts2\nACTB\t5\t7\nXIST\t0\t2\n", '\t'},
	} {
		if got := DetermineDelimiter(strings.NewReader(tc.input)); got != tc.want {
			t.Fatalf("delimiter %q, want %q for %q", got, tc.want, tc.input)
		}
	}
}

func TestDetectDataType(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte("gene,s1\nACTB,5\n")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	dt, err := DetectDataType(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if dt != DataTypeGzip {
		t.Fatalf("detected %v, want gzip", dt)
	}

	dt, err = DetectDataType(strings.NewReader("gene,s1\nACTB,5\n"))
	if err != nil {
		t.Fatal(err)
	}
	if dt != DataTypeNoCompression {
		t.Fatalf("detected %v, want no compression", dt)
	}
}

func TestMaybeDecompressReadCloserFromFile(t *testing.T) {
	const table = "gene,s1,s2\nACTB,5,7\nXIST,0,2\n"

	var gzipped bytes.Buffer
	zw := gzip.NewWriter(&gzipped)
	if _, err := zw.Write([]byte(table)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	for _, tc := range []struct {
		name string
		data []byte
	}{
		{"counts.csv.gz", gzipped.Bytes()},
		{"counts.csv", []byte(table)},
	} {
		path := filepath.Join(dir, tc.name)
		if err := os.WriteFile(path, tc.data, 0o644); err != nil {
			t.Fatal(err)
		}

		f, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}

		rc, err := MaybeDecompressReadCloserFromFile(f)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		got, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		rc.Close()
		f.Close()

		if string(got) != table {
			t.Fatalf("%s: read %q, want %q", tc.name, got, table)
		}
	}
}
