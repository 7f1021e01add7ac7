package logutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriterRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	w, err := NewRotatingWriter(path, 16, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer w.Close()

	for i := 0; i < 4; i++ {
		if _, err := w.Write([]byte("0123456789\n")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	for _, name := range []string{path, path + ".1", path + ".2"} {
		if _, err := os.Stat(name); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
	if _, err := os.Stat(path + ".3"); err == nil {
		t.Errorf("expected at most 2 archives")
	}
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Pikachu from Pokemon", "Pikachu from Pokemon"},
		{"line1\nline2", "line1\\nline2"},
		{"tab\there", "tab\\there"},
		{"bell\x07", "bell?"},
	}
	for _, tt := range tests {
		if got := SanitizeForLog(tt.in); got != tt.want {
			t.Errorf("SanitizeForLog(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}

	long := strings.Repeat("a", 150)
	if got := SanitizeForLog(long); len(got) != 103 {
		t.Errorf("expected truncation to 100 chars plus ellipsis, got %d", len(got))
	}
}
