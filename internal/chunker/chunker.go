// Package chunker decodes source files into overlapping line windows with
// deterministic identity, and splits answer text into paragraph-sized
// chunks for streaming.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/codecompass/core/internal/models"
	"github.com/codecompass/core/pkg/config"
)

// pointNamespace is the fixed UUID namespace used to derive deterministic
// pointIds. It is an arbitrary but stable value private to this module.
var pointNamespace = uuid.MustParse("7b4d9c7e-7d9b-4a7d-9a2c-9b7f6a7e0d1a")

// Chunker splits a decoded file into line windows per spec §4.C.
type Chunker struct {
	cfg *config.ChunkConfig
}

// New builds a Chunker from a resolved ChunkConfig. cfg.ChunkLines and
// cfg.Overlap are assumed already validated by config.ResolveChunkConfig.
func New(cfg *config.ChunkConfig) *Chunker {
	return &Chunker{cfg: cfg}
}

// FileResult is the outcome of chunking one file.
type FileResult struct {
	Path       string
	TotalLines int
	Chunks     []models.Chunk
	Warnings   []string
	// Source names the decode strategy that produced Chunks' text:
	// "utf-8", "utf-8-bom", or "latin-1".
	Source string
}

// ChunkFile reads absPath, decodes it, and emits overlapping line windows
// identified relative to repoRoot.
func (c *Chunker) ChunkFile(absPath, repoRoot, language string, contentType models.ContentType) (*FileResult, error) {
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("chunker: reading %s: %w", absPath, err)
	}

	text, source := decodeText(raw)
	lines := SplitLines(text)

	relPath, warnings := identityPath(absPath, repoRoot)

	contentHash := hashContent(text)

	windows := windowLines(len(lines), c.cfg.ChunkLines, c.cfg.Overlap)

	chunks := make([]models.Chunk, 0, len(windows))
	for i, w := range windows {
		content := strings.Join(lines[w.start:w.end], "\n")
		chunks = append(chunks, models.Chunk{
			Repo:        "",
			Path:        relPath,
			StartLine:   w.start + 1,
			EndLine:     w.end,
			Language:    language,
			ContentType: contentType,
			Content:     content,
			ContentHash: contentHash,
			ChunkIndex:  i,
		})
	}

	return &FileResult{
		Path:       relPath,
		TotalLines: len(lines),
		Chunks:     chunks,
		Warnings:   warnings,
		Source:     source,
	}, nil
}

type window struct{ start, end int }

// windowLines implements the fixed step/stop rule from spec §4.C: step =
// chunkLines - overlap; emit windows starting at i = 0, step, 2*step, ...;
// stop after the first window whose end equals n. An empty file (n == 0)
// produces zero windows.
func windowLines(n, chunkLines, overlap int) []window {
	if n == 0 {
		return nil
	}
	step := chunkLines - overlap

	var windows []window
	for i := 0; i < n; i += step {
		end := i + chunkLines
		if end > n {
			end = n
		}
		windows = append(windows, window{start: i, end: end})
		if end == n {
			break
		}
	}
	return windows
}

// ChunkID is the hash of (path | startLine | endLine | contentHash),
// identifying a chunk within a file version.
func ChunkID(path string, startLine, endLine int, contentHash string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%s", path, startLine, endLine, contentHash)
	return hex.EncodeToString(h.Sum(nil))
}

// PointID is a UUID derived deterministically from (relativePath,
// chunkIndex, contentHash); stable across runs as long as file content is
// unchanged.
func PointID(relativePath string, chunkIndex int, contentHash string) string {
	name := fmt.Sprintf("%s|%d|%s", relativePath, chunkIndex, contentHash)
	return uuid.NewSHA1(pointNamespace, []byte(name)).String()
}

func hashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// decodeText attempts UTF-8 strict, UTF-8 with BOM stripped, then falls
// back to a Latin-1-with-replacement decoding that never fails. It returns
// the decoded text and a label for which strategy was used.
func decodeText(raw []byte) (string, string) {
	if utf8.Valid(raw) {
		if trimmed := strings.TrimPrefix(string(raw), string(rune(0xFEFF))); trimmed != string(raw) {
			return trimmed, "utf-8-bom"
		}
		return string(raw), "utf-8"
	}

	// Latin-1 (ISO-8859-1): every byte maps 1:1 to the Unicode code point
	// of the same value, so this never produces invalid UTF-8 output.
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes), "latin-1"
}

// SplitLines splits decoded file text into lines without keeping line
// terminators, per spec §4.C. Like Python's str.splitlines() on a file
// read whole, exactly one trailing line terminator (\r\n, \n, or \r) is
// stripped first so a file ending in a newline does not produce a
// spurious trailing empty "line" and an inflated line count.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	for _, term := range []string{"\r\n", "\n", "\r"} {
		if strings.HasSuffix(text, term) {
			text = text[:len(text)-len(term)]
			break
		}
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// identityPath returns the repo-relative POSIX path used for chunk
// identity. If absPath resolves outside repoRoot, it returns the absolute
// path instead and a warning, per spec §4.C.
func identityPath(absPath, repoRoot string) (string, []string) {
	rel, err := filepath.Rel(repoRoot, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(absPath), []string{fmt.Sprintf("%s: outside of repo root", absPath)}
	}
	return filepath.ToSlash(rel), nil
}
