package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codecompass/core/internal/models"
	"github.com/codecompass/core/pkg/config"
)

func TestChunkFile_Windowing(t *testing.T) {
	tmpDir := t.TempDir()
	lines := []string{"l1", "l2", "l3", "l4", "l5", "l6", "l7"}
	content := strings.Join(lines, "\n")
	absPath := filepath.Join(tmpDir, "path", "file.ts")
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := &config.ChunkConfig{ChunkLines: 4, Overlap: 1}
	c := New(cfg)

	result, err := c.ChunkFile(absPath, tmpDir, "typescript", models.ContentTypeCode)
	if err != nil {
		t.Fatalf("ChunkFile: %v", err)
	}

	if len(result.Chunks) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(result.Chunks))
	}

	first, second := result.Chunks[0], result.Chunks[1]
	if first.StartLine != 1 || first.EndLine != 4 {
		t.Errorf("first window = %d..%d, want 1..4", first.StartLine, first.EndLine)
	}
	if second.StartLine != 4 || second.EndLine != 7 {
		t.Errorf("second window = %d..%d, want 4..7", second.StartLine, second.EndLine)
	}

	sum := sha256.Sum256([]byte(content))
	contentHash := hex.EncodeToString(sum[:])
	relPath := "path/file.ts"
	wantID := ChunkID(relPath, 1, 4, contentHash)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%s", relPath, 1, 4, contentHash)
	recomputed := hex.EncodeToString(h.Sum(nil))

	if wantID != recomputed {
		t.Errorf("chunkId mismatch: %s vs recomputed %s", wantID, recomputed)
	}
}

func TestChunkFile_TrailingNewlineDoesNotInflateLineCount(t *testing.T) {
	tmpDir := t.TempDir()
	lines := []string{"l1", "l2", "l3", "l4", "l5", "l6", "l7"}
	content := strings.Join(lines, "\n") + "\n"
	absPath := filepath.Join(tmpDir, "file.ts")
	if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := &config.ChunkConfig{ChunkLines: 4, Overlap: 1}
	c := New(cfg)

	result, err := c.ChunkFile(absPath, tmpDir, "typescript", models.ContentTypeCode)
	if err != nil {
		t.Fatalf("ChunkFile: %v", err)
	}

	if result.TotalLines != 7 {
		t.Errorf("TotalLines = %d, want 7 (trailing newline must not add a spurious line)", result.TotalLines)
	}
	if len(result.Chunks) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(result.Chunks))
	}
	if last := result.Chunks[len(result.Chunks)-1]; last.EndLine != 7 {
		t.Errorf("last window ends at %d, want 7", last.EndLine)
	}
}

func TestSplitLines_StripsOneTrailingTerminator(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"no trailing newline", "a\nb\nc", []string{"a", "b", "c"}},
		{"single trailing lf", "a\nb\nc\n", []string{"a", "b", "c"}},
		{"single trailing crlf", "a\nb\nc\r\n", []string{"a", "b", "c"}},
		{"single trailing cr", "a\nb\nc\r", []string{"a", "b", "c"}},
		{"double trailing newline keeps one blank line", "a\nb\n\n", []string{"a", "b", ""}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitLines(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitLines(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("SplitLines(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestWindowLines_BoundaryBehaviors(t *testing.T) {
	tests := []struct {
		name       string
		n          int
		chunkLines int
		overlap    int
		wantCount  int
	}{
		{"one chunk per line", 5, 1, 0, 5},
		{"single line file", 1, 4, 1, 1},
		{"empty file", 0, 4, 1, 0},
		{"overlap is chunkLines-1", 10, 4, 3, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows := windowLines(tt.n, tt.chunkLines, tt.overlap)
			if len(windows) != tt.wantCount {
				t.Errorf("windowLines(%d, %d, %d) = %d windows, want %d", tt.n, tt.chunkLines, tt.overlap, len(windows), tt.wantCount)
			}
			if len(windows) > 0 {
				last := windows[len(windows)-1]
				if last.end != tt.n {
					t.Errorf("last window ends at %d, want %d", last.end, tt.n)
				}
			}
		})
	}
}

func TestChunkAndPointID_Determinism(t *testing.T) {
	id1 := ChunkID("a/b.go", 1, 10, "hash1")
	id2 := ChunkID("a/b.go", 1, 10, "hash1")
	id3 := ChunkID("a/b.go", 1, 11, "hash1")
	if id1 != id2 {
		t.Errorf("equal inputs produced different chunkIds")
	}
	if id1 == id3 {
		t.Errorf("changing endLine did not change chunkId")
	}

	p1 := PointID("a/b.go", 0, "hash1")
	p2 := PointID("a/b.go", 0, "hash1")
	p3 := PointID("a/b.go", 1, "hash1")
	if p1 != p2 {
		t.Errorf("equal inputs produced different pointIds")
	}
	if p1 == p3 {
		t.Errorf("changing chunkIndex did not change pointId")
	}
}

func TestDecodeText_StrategyLabels(t *testing.T) {
	text, source := decodeText([]byte("plain ascii"))
	if source != "utf-8" || text != "plain ascii" {
		t.Errorf("got (%q, %q), want (%q, utf-8)", text, source, "plain ascii")
	}

	bomText, bomSource := decodeText([]byte("\xef\xbb\xbfhello"))
	if bomSource != "utf-8-bom" || bomText != "hello" {
		t.Errorf("got (%q, %q), want (hello, utf-8-bom)", bomText, bomSource)
	}

	latin1Text, latin1Source := decodeText([]byte{0xff, 0xfe})
	if latin1Source != "latin-1" || latin1Text == "" {
		t.Errorf("got (%q, %q), want non-empty latin-1 decode", latin1Text, latin1Source)
	}
}

func TestByParagraph(t *testing.T) {
	if out := ByParagraph("", 300); out != nil {
		t.Errorf("empty input should produce empty list, got %v", out)
	}

	text := "first paragraph\n\nsecond paragraph spans\nmultiple lines"
	chunks := ByParagraph(text, 300)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 paragraph chunks, got %d: %v", len(chunks), chunks)
	}

	long := strings.Repeat("x", 1000)
	chunks = ByParagraph(long, 300)
	for _, c := range chunks {
		if len(c) > 300 {
			t.Errorf("chunk exceeds maxSize: len=%d", len(c))
		}
	}
}
