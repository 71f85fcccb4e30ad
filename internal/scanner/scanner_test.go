package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/codecompass/core/pkg/config"
)

func TestScan_GoldenPath(t *testing.T) {
	tmpDir := t.TempDir()

	files := map[string][]byte{
		"src/main.ts":        []byte("export const x = 1;\n"),
		"src/.secret":        []byte("no extension"),
		"src/logo.png":       append([]byte{0x89, 0x50, 0x4e, 0x47, 0x00}, []byte("rest")...),
		"node_modules/x.ts":  []byte("export const y = 2;\n"),
	}

	for path, content := range files {
		full := filepath.Join(tmpDir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, content, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	cfg, err := config.ResolveScanConfig(config.ScanOverrides{
		RepoRoot:   strPtr(tmpDir),
		IgnoreDirs: []string{"node_modules"},
		// .png is allowed here so logo.png is rejected by the binary
		// sniff (step 5), not the extension filter (step 3) — the
		// scenario is meant to exercise binary detection specifically.
		AllowExts: []string{".ts", ".png"},
	})
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}

	result, err := New(cfg).Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(result.Files) != 1 || result.Files[0] != "src/main.ts" {
		t.Fatalf("expected exactly [src/main.ts], got %v", result.Files)
	}
	if result.Stats.FilesIgnoredBinary < 1 {
		t.Errorf("expected at least one binary file ignored, got %d", result.Stats.FilesIgnoredBinary)
	}
	if result.Stats.DirsIgnored < 1 {
		t.Errorf("expected at least one ignored dir, got %d", result.Stats.DirsIgnored)
	}
}

func TestScan_SortedAscending(t *testing.T) {
	tmpDir := t.TempDir()
	for _, name := range []string{"z.ts", "a.ts", "m.ts"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	cfg, err := config.ResolveScanConfig(config.ScanOverrides{
		RepoRoot:  strPtr(tmpDir),
		AllowExts: []string{".ts"},
	})
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}

	result, err := New(cfg).Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	want := []string{"a.ts", "m.ts", "z.ts"}
	if len(result.Files) != len(want) {
		t.Fatalf("got %v, want %v", result.Files, want)
	}
	for i := range want {
		if result.Files[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, result.Files[i], want[i])
		}
	}
}

func TestScan_MaxFilesTruncatesListNotCounters(t *testing.T) {
	tmpDir := t.TempDir()
	for _, name := range []string{"a.ts", "b.ts", "c.ts"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	maxFiles := 2
	cfg, err := config.ResolveScanConfig(config.ScanOverrides{
		RepoRoot:  strPtr(tmpDir),
		AllowExts: []string{".ts"},
		MaxFiles:  &maxFiles,
	})
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}

	result, err := New(cfg).Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(result.Files) != 2 {
		t.Fatalf("expected truncated list of 2, got %d", len(result.Files))
	}
	if result.Stats.FilesKept != 3 {
		t.Errorf("expected counter to reflect all kept files (3), got %d", result.Stats.FilesKept)
	}
}

func strPtr(s string) *string { return &s }
