// Package scanner performs the depth-first filesystem traversal that
// produces the list of files the rest of the pipeline operates on.
package scanner

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/codecompass/core/pkg/config"
	"github.com/codecompass/core/pkg/ignore"
)

// Stats accompanies a Scan result with counters useful for diagnostics and
// the coverage gate in the Indexer Orchestrator.
type Stats struct {
	TotalFilesSeen      int
	FilesKept           int
	FilesIgnoredExt     int
	FilesIgnoredPattern int
	FilesIgnoredBinary  int
	DirsIgnored         int
	ElapsedMs           int64
}

// Result is the Scanner's output: a sorted list of repo-relative POSIX
// paths plus the stats record.
type Result struct {
	Files []string
	Stats Stats
}

// Scanner walks a repo root honoring ignore-dir, allow-ext, glob, and
// binary-sniff filters.
type Scanner struct {
	cfg     *config.ScanConfig
	ignores map[string]struct{}
	exts    map[string]struct{}
	matcher *ignore.Matcher
}

// New builds a Scanner from a resolved ScanConfig.
func New(cfg *config.ScanConfig) *Scanner {
	ignores := make(map[string]struct{}, len(cfg.IgnoreDirs))
	for _, d := range cfg.IgnoreDirs {
		ignores[d] = struct{}{}
	}
	exts := make(map[string]struct{}, len(cfg.AllowExts))
	for _, e := range cfg.AllowExts {
		exts[e] = struct{}{}
	}
	return &Scanner{
		cfg:     cfg,
		ignores: ignores,
		exts:    exts,
		matcher: ignore.NewMatcher(cfg.IgnorePatterns),
	}
}

// Scan performs the DFS walk described in spec §4.B: directory handles are
// opened one level at a time (no symlink following), and rejection happens
// in the documented short-circuit order.
func (s *Scanner) Scan() (*Result, error) {
	start := time.Now()
	stats := Stats{}

	info, err := os.Lstat(s.cfg.RepoRoot)
	if err != nil {
		return nil, fmt.Errorf("scanner: stat repo root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scanner: repo root is not a directory: %s", s.cfg.RepoRoot)
	}

	var files []string
	type frame struct{ abs string }
	stack := []frame{{abs: s.cfg.RepoRoot}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(top.abs)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			abs := filepath.Join(top.abs, entry.Name())

			if entry.Type()&os.ModeSymlink != 0 {
				continue
			}

			if entry.IsDir() {
				if _, ignored := s.ignores[entry.Name()]; ignored {
					stats.DirsIgnored++
					continue
				}
				stack = append(stack, frame{abs: abs})
				continue
			}

			if !entry.Type().IsRegular() {
				continue
			}

			stats.TotalFilesSeen++

			relPath, err := filepath.Rel(s.cfg.RepoRoot, abs)
			if err != nil {
				relPath = abs
			}
			relPath = filepath.ToSlash(relPath)

			ext := strings.ToLower(filepath.Ext(abs))
			if _, ok := s.exts[ext]; !ok {
				stats.FilesIgnoredExt++
				continue
			}

			if s.matcher.ShouldIgnore(relPath) {
				stats.FilesIgnoredPattern++
				continue
			}

			if isBinary, err := looksBinary(abs); err != nil || isBinary {
				stats.FilesIgnoredBinary++
				continue
			}

			files = append(files, relPath)
		}
	}

	sort.Strings(files)
	stats.FilesKept = len(files)

	if s.cfg.MaxFiles > 0 && len(files) > s.cfg.MaxFiles {
		files = files[:s.cfg.MaxFiles]
	}

	stats.ElapsedMs = time.Since(start).Milliseconds()
	return &Result{Files: files, Stats: stats}, nil
}

// looksBinary reads a 4 KiB prefix and reports whether it contains a NUL
// byte, per spec §4.B.
func looksBinary(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return true, err
	}
	defer f.Close()

	buf := make([]byte, 4096)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return true, err
	}
	return bytes.IndexByte(buf[:n], 0) >= 0, nil
}
