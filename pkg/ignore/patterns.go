// Package ignore matches repo-relative POSIX paths against pre-compiled
// glob ignore patterns.
package ignore

import (
	"log"
	"path/filepath"
	"strings"
)

// Matcher matches file paths against ignore patterns. Patterns are
// validated once at construction; a malformed pattern is logged and
// skipped rather than failing the matcher.
type Matcher struct {
	patterns []string
}

// NewMatcher compiles the given patterns, dropping any that filepath.Match
// would reject outright.
func NewMatcher(patterns []string) *Matcher {
	valid := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if _, err := filepath.Match(stripRecursive(p), "probe"); err != nil {
			log.Printf("ignore: skipping malformed pattern %q: %v", p, err)
			continue
		}
		valid = append(valid, p)
	}
	return &Matcher{patterns: valid}
}

// ShouldIgnore returns true if path matches any ignore pattern.
func (m *Matcher) ShouldIgnore(path string) bool {
	path = filepath.ToSlash(path)
	for _, pattern := range m.patterns {
		if m.matchPattern(path, pattern) {
			return true
		}
	}
	return false
}

func (m *Matcher) matchPattern(path, pattern string) bool {
	pattern = filepath.ToSlash(pattern)

	if strings.Contains(pattern, "**") {
		parts := strings.Split(pattern, "**")

		if len(parts) > 0 && parts[0] != "" {
			prefix := strings.TrimSuffix(parts[0], "/")
			if strings.HasPrefix(path, prefix+"/") || path == prefix {
				return true
			}
		}

		for _, part := range parts {
			if part != "" && part != "/" {
				part = strings.Trim(part, "/")
				if strings.Contains(path, "/"+part+"/") || strings.HasPrefix(path, part+"/") || strings.HasSuffix(path, "/"+part) {
					return true
				}
			}
		}
	}

	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}

	filename := filepath.Base(path)
	if matched, err := filepath.Match(pattern, filename); err == nil && matched {
		return true
	}

	dir := filepath.Dir(path)
	trimmed := strings.TrimSuffix(pattern, "/**")
	for dir != "." && dir != "/" {
		if filepath.Base(dir) == trimmed {
			return true
		}
		dir = filepath.Dir(dir)
	}

	return false
}

func stripRecursive(pattern string) string {
	return strings.ReplaceAll(pattern, "**", "*")
}

// DefaultPatterns returns the default glob ignore patterns layered on top
// of the ignore-dirs set.
func DefaultPatterns() []string {
	return []string{
		"**/*.min.js",
		"**/*.bundle.js",
		"*.iml",
	}
}
