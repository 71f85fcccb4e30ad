// Package classifier decides whether a scanned file belongs to the code or
// docs bucket.
package classifier

import (
	"strings"

	"github.com/codecompass/core/internal/models"
	"github.com/codecompass/core/pkg/config"
)

// Classifier buckets repo-relative paths using the doc path hints and doc
// extensions from the runtime config.
type Classifier struct {
	docPathHints  []string
	docExtensions map[string]struct{}
}

// New builds a Classifier from a resolved RuntimeConfig.
func New(cfg *config.RuntimeConfig) *Classifier {
	exts := make(map[string]struct{}, len(cfg.DocExtensions))
	for _, e := range cfg.DocExtensions {
		exts[e] = struct{}{}
	}
	return &Classifier{
		docPathHints:  cfg.DocPathHints,
		docExtensions: exts,
	}
}

// Classify returns the content type for relPath and, when the match was by
// path hint, the hint that matched.
func (c *Classifier) Classify(relPath string) (models.ContentType, string) {
	normalized := "/" + strings.ToLower(strings.Trim(strings.ReplaceAll(relPath, "\\", "/"), "/")) + "/"

	for _, hint := range c.docPathHints {
		if strings.Contains(normalized, hint) {
			return models.ContentTypeDocs, hint
		}
	}

	ext := strings.ToLower(extOf(relPath))
	if _, ok := c.docExtensions[ext]; ok {
		return models.ContentTypeDocs, ""
	}

	return models.ContentTypeCode, ""
}

func extOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	slash := strings.LastIndexByte(path, '/')
	if idx <= slash {
		return ""
	}
	return path[idx:]
}
