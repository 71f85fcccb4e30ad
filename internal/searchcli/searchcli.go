// Package searchcli implements the Search/Ask CLI surface: query embedding,
// cross-collection merge, snippet resolution, and ask_code delegation.
package searchcli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/codecompass/core/internal/chunker"
	"github.com/codecompass/core/internal/embedder"
	"github.com/codecompass/core/internal/models"
	"github.com/codecompass/core/internal/vectorstore"
	"github.com/codecompass/core/pkg/config"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Searcher resolves search queries against the code/docs collections.
type Searcher struct {
	runtimeCfg *config.RuntimeConfig
	store      *vectorstore.Store
	embedders  map[models.ContentType]*embedder.Client

	lineCacheMu sync.Mutex
	lineCache   map[string][]string
}

// New builds a Searcher. embedders maps content type to its query embedder.
func New(runtimeCfg *config.RuntimeConfig, store *vectorstore.Store, embedders map[models.ContentType]*embedder.Client) *Searcher {
	return &Searcher{
		runtimeCfg: runtimeCfg,
		store:      store,
		embedders:  embedders,
		lineCache:  make(map[string][]string),
	}
}

// Search embeds the query once per selected content type, queries each
// collection, and merges results by descending score, per spec §4.H.
func (s *Searcher) Search(ctx context.Context, query string, contentType models.ContentType, filters vectorstore.SearchFilters, topK int, collections map[models.ContentType]string) ([]models.SearchResult, error) {
	types := []models.ContentType{}
	switch contentType {
	case models.ContentTypeAll, "":
		types = []models.ContentType{models.ContentTypeCode, models.ContentTypeDocs}
	default:
		types = []models.ContentType{contentType}
	}

	var all []models.SearchResult
	for _, ct := range types {
		client, ok := s.embedders[ct]
		if !ok {
			return nil, fmt.Errorf("searchcli: no embedder configured for content type %q", ct)
		}
		vectors, err := client.EmbedTexts(ctx, []string{query}, 0)
		if err != nil {
			return nil, fmt.Errorf("searchcli: embedding query: %w", err)
		}

		collection := collections[ct]
		points, err := s.store.Search(ctx, collection, vectors[0], filters, topK, false)
		if err != nil {
			return nil, fmt.Errorf("searchcli: searching %q: %w", collection, err)
		}

		for _, p := range points {
			all = append(all, s.toSearchResult(p, ct))
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if len(all) > topK {
		all = all[:topK]
	}
	return all, nil
}

func (s *Searcher) toSearchResult(p models.VectorPoint, ct models.ContentType) models.SearchResult {
	payload := p.Payload

	result := models.SearchResult{
		Path:        asString(payload["path"]),
		Repo:        asString(payload["repo_root"]),
		StartLine:   asInt(payload["start_line"]),
		EndLine:     asInt(payload["end_line"]),
		Score:       p.Score,
		Language:    asString(payload["language"]),
		ContentType: ct,
	}
	result.Snippet = s.resolveSnippet(payload, result)
	return result
}

// resolveSnippet normalizes the stored text payload, falling back to a
// disk read within the recorded repo_root when text is absent.
func (s *Searcher) resolveSnippet(payload map[string]any, result models.SearchResult) string {
	if text := asString(payload["text"]); text != "" {
		return normalizeSnippet(text, s.runtimeCfg.SearchSnippetMaxChars)
	}

	lines, err := s.readLinesCached(result.Repo, result.Path)
	if err != nil || len(lines) == 0 {
		return "(no text payload)"
	}

	start, end := result.StartLine-1, result.EndLine
	if start < 0 || end > len(lines) || start >= end {
		return "(no text payload)"
	}

	return normalizeSnippet(strings.Join(lines[start:end], "\n"), s.runtimeCfg.SearchSnippetMaxChars)
}

func (s *Searcher) readLinesCached(repoRoot, relPath string) ([]string, error) {
	key := repoRoot + "|" + relPath

	s.lineCacheMu.Lock()
	if cached, ok := s.lineCache[key]; ok {
		s.lineCacheMu.Unlock()
		return cached, nil
	}
	s.lineCacheMu.Unlock()

	absPath := filepath.Join(repoRoot, relPath)
	rel, err := filepath.Rel(repoRoot, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("searchcli: path escapes repo root")
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("searchcli: reading %s: %w", absPath, err)
	}

	lines := chunker.SplitLines(string(raw))

	s.lineCacheMu.Lock()
	s.lineCache[key] = lines
	s.lineCacheMu.Unlock()

	return lines, nil
}

func normalizeSnippet(text string, maxChars int) string {
	collapsed := strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	if len(collapsed) <= maxChars {
		return collapsed
	}
	if maxChars <= 3 {
		return collapsed[:maxChars]
	}
	return collapsed[:maxChars-3] + "..."
}

// BuildAskArguments lowers an AskInput into the ask_code tool's argument map.
func BuildAskArguments(in models.AskInput) map[string]any {
	args := map[string]any{"query": in.Query}

	switch in.Scope.Type {
	case "repo":
		args["scope"] = map[string]any{"type": "repo", "repo": in.Scope.Repo}
	case "repos":
		args["scope"] = map[string]any{"type": "repos", "repos": in.Scope.Repos}
	default:
		args["scope"] = map[string]any{"type": "all"}
	}

	if in.TopK > 0 {
		args["topK"] = in.TopK
	}
	if in.MinScore > 0 {
		args["minScore"] = in.MinScore
	}
	if in.LLMModel != "" {
		args["llmModel"] = in.LLMModel
	}
	if in.PathPrefix != "" {
		args["pathPrefix"] = in.PathPrefix
	}
	if in.Language != "" {
		args["language"] = in.Language
	}
	if in.HasGrounded {
		args["grounded"] = in.Grounded
	}
	if in.ContentType != "" {
		args["contentType"] = in.ContentType
	}
	if in.Strict {
		args["strict"] = in.Strict
	}

	return args
}

// Bridge is the narrow slice of *mcpbridge.Bridge that Ask needs, so
// callers can exercise the ask_code round trip against a fake in tests
// without spawning a real child process.
type Bridge interface {
	AskCode(ctx context.Context, arguments map[string]any, cancel <-chan struct{}) (map[string]any, error)
}

// Ask spawns/reuses the MCP bridge, calls ask_code, and parses the result.
func Ask(ctx context.Context, bridge Bridge, in models.AskInput, cancel <-chan struct{}) (*models.AskOutput, error) {
	raw, err := bridge.AskCode(ctx, BuildAskArguments(in), cancel)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("searchcli: re-encoding ask_code response: %w", err)
	}

	var out models.AskOutput
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, fmt.Errorf("searchcli: decoding ask_code response: %w", err)
	}
	return &out, nil
}

// FormatResults renders search hits as human-readable text.
func FormatResults(results []models.SearchResult) string {
	if len(results) == 0 {
		return "no results"
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s:%d-%d (%.4f)\n   %s\n", i+1, r.Path, r.StartLine, r.EndLine, r.Score, r.Snippet)
	}
	return b.String()
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		parsed, _ := strconv.Atoi(n)
		return parsed
	default:
		return 0
	}
}

