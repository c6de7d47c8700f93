package inputfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/desfreng/netlist/inputfile"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadOneValuePerLine(t *testing.T) {
	path := writeFile(t, "in.txt", "0\n1\n0b10\n0x0f\n")
	src, err := inputfile.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []uint64{0, 1, 2, 15}
	for i, w := range want {
		v, ok := src.Value(i)
		if !ok || v != w {
			t.Errorf("Value(%d) = %d, %v, want %d, true", i, v, ok, w)
		}
	}
	if _, ok := src.Value(len(want)); ok {
		t.Errorf("Value(%d) = ok, want false (past end of file)", len(want))
	}
}

func TestLoadSkipsBlankLinesAndComments(t *testing.T) {
	path := writeFile(t, "in.txt", "1\n\n# comment\n0\n")
	src, err := inputfile.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	v0, _ := src.Value(0)
	v1, _ := src.Value(1)
	if v0 != 1 || v1 != 0 {
		t.Fatalf("values = %d, %d, want 1, 0", v0, v1)
	}
	if _, ok := src.Value(2); ok {
		t.Errorf("Value(2) = ok, want false")
	}
}

func TestLoadRejectsMalformedLiteral(t *testing.T) {
	path := writeFile(t, "in.txt", "not-a-literal\n")
	if _, err := inputfile.Load(path); err == nil {
		t.Fatal("Load() error = nil, want a parse error")
	}
}

func TestLoadMemoryImageReadsWhitespaceSeparatedWords(t *testing.T) {
	path := writeFile(t, "mem.txt", "0x00 0x01\n0x02   0x03")
	words, err := inputfile.LoadMemoryImage(path)
	if err != nil {
		t.Fatalf("LoadMemoryImage() error = %v", err)
	}
	want := []uint64{0, 1, 2, 3}
	if len(words) != len(want) {
		t.Fatalf("words = %v, want %v", words, want)
	}
	for i, w := range want {
		if words[i] != w {
			t.Errorf("words[%d] = %d, want %d", i, words[i], w)
		}
	}
}

func TestLoadMissingFileIsAnError(t *testing.T) {
	if _, err := inputfile.Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("Load() error = nil, want a file-open error")
	}
}
