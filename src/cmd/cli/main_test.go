package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"character-hunter/src/coordinator"
	"character-hunter/src/dataset"
	"character-hunter/src/label"
	"character-hunter/src/ledger"
	"character-hunter/src/ocr"
	"character-hunter/src/resident"
)

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(&cliOptions{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	out, err := execute(t, "parse", "Pikachu", "from", "Pokemon")
	if err != nil {
		t.Fatal(err)
	}
	if out != "subject: Pikachu\nsource: Pokemon\n" {
		t.Errorf("unexpected output %q", out)
	}

	out, err = execute(t, "parse", "--json", "Zelda (Breath of the Wild)")
	if err != nil {
		t.Fatal(err)
	}
	var l label.Label
	if err := json.Unmarshal([]byte(out), &l); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if l.Subject != "Zelda" || l.Source != "Breath of the Wild" {
		t.Errorf("label = %+v", l)
	}

	if _, err := execute(t, "parse", "   "); err == nil {
		t.Error("expected rejection for blank query")
	}
	if _, err := execute(t, "parse"); err == nil {
		t.Error("expected usage error without arguments")
	}
}

type stubRecognizer struct{ text string }

func (s stubRecognizer) Recognize(context.Context, image.Image) (string, error) { return s.text, nil }

func writePNG(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shot.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOCRCommand(t *testing.T) {
	orig := newRecognizer
	defer func() { newRecognizer = orig }()
	newRecognizer = func(string) (ocr.Recognizer, func(), error) {
		return stubRecognizer{text: "google.com/search?q=mario+-+super+mario+bros\nAll Images"}, func() {}, nil
	}
	path := writePNG(t)

	out, err := execute(t, "ocr", "--file", path, "--json")
	if err != nil {
		t.Fatal(err)
	}
	var res OCRResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if res.Query != "mario - super mario bros" || res.Subject != "mario" || res.LabelFrom != "super mario bros" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Source != path || res.CharCount == 0 {
		t.Errorf("unexpected metadata %+v", res)
	}

	out, err = execute(t, "ocr", "--file", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "query: mario - super mario bros\nlabel: mario (super mario bros)\n") {
		t.Errorf("unexpected text output %q", out)
	}
}

func TestReadInput(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.png")
	notPNG := filepath.Join(dir, "fake.png")
	_ = os.WriteFile(empty, nil, 0o644)
	_ = os.WriteFile(notPNG, []byte("GIF89a......"), 0o644)

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"missing", filepath.Join(dir, "missing.png"), "failed to read file"},
		{"empty", empty, "input file is empty"},
		{"bad magic", notPNG, "invalid magic number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readInput(tt.path, nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("readInput = %v, expected %q", err, tt.wantErr)
			}
		})
	}

	valid, _ := os.ReadFile(writePNG(t))
	if data, err := readInput("-", bytes.NewReader(valid)); err != nil || len(data) != len(valid) {
		t.Errorf("stdin read = %d bytes, %v", len(data), err)
	}
}

func TestStatsCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := ledger.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range []dataset.Entry{
		{Path: "/d/Pikachu/1.png", Subject: "Pikachu", CapturedAt: time.Now()},
		{Path: "/d/Pikachu/2.png", Subject: "Pikachu", CapturedAt: time.Now()},
		{Path: "/d/Mario/1.png", Subject: "Mario", CapturedAt: time.Now()},
	} {
		if err := l.Record(e); err != nil {
			t.Fatal(err)
		}
	}
	l.Close()

	out, err := execute(t, "stats", "--ledger", path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "Mario") || !strings.HasPrefix(lines[2], "Pikachu") {
		t.Errorf("unexpected table %q", out)
	}

	if _, err := execute(t, "stats", "--ledger", filepath.Join(t.TempDir(), "none.db")); err == nil {
		t.Error("expected error for missing ledger")
	}
}

func TestStatusCommand(t *testing.T) {
	srv := resident.NewServer(0, func() coordinator.Snapshot {
		return coordinator.Snapshot{State: "active", Subject: "Kirby", Counters: coordinator.Counters{Saved: 2}}
	})
	if err := srv.Listen(); err != nil {
		t.Skipf("loopback unavailable: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	port := strconv.Itoa(srv.Port())
	t.Setenv("HUNTER_PORT_START", port)
	t.Setenv("HUNTER_PORT_END", port)
	t.Setenv("DATASET_DIR", t.TempDir())

	out, err := execute(t, "status")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hunting Kirby | saved 2, duplicates 0, ignored 0\n" {
		t.Errorf("unexpected output %q", out)
	}
}
