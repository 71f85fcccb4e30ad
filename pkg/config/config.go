// Package config resolves the typed configuration objects used across the
// pipeline: explicit caller arguments take precedence over environment
// variables, which take precedence over an optional config.yaml bootstrap
// file, which takes precedence over compiled-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ScanConfig controls the Scanner (component B).
type ScanConfig struct {
	RepoRoot       string
	IgnoreDirs     []string
	AllowExts      []string
	IgnorePatterns []string
	MaxFiles       int
}

// ChunkConfig controls the Chunker (component C).
type ChunkConfig struct {
	ChunkLines int
	Overlap    int
}

// RuntimeConfig controls the Classifier, search snippets, and the indexer's
// coverage gate (components D, G, H).
type RuntimeConfig struct {
	ExcludedContextPathParts []string
	SearchSnippetMaxChars    int
	DocExtensions            []string
	DocPathHints             []string
	ContentTypes             []string
	MinFileCoverage          float64
}

// EmbedderConfig controls the Embedder Client (component E), one per
// content-type bucket.
type EmbedderConfig struct {
	OllamaURL      string
	Model          string
	BatchSize      int
	MaxRetries     int
	BackoffBaseMs  int
	TimeoutSeconds int
	Provider       string
	APIURL         string
	APIKey         string
}

// QdrantConfig controls the Vector Store Client (component F).
type QdrantConfig struct {
	URL             string
	APIKey          string
	CollectionBase  string
	Distance        string
	UpsertBatchSize int
}

var (
	defaultIgnoreDirs = []string{
		".git", "node_modules", "dist", "build", ".next",
		".qdrant_storage", "coverage", ".venv", "venv",
		"__pycache__", ".pytest_cache", ".mypy_cache", ".ruff_cache",
	}
	defaultAllowExts = []string{
		".ts", ".tsx", ".js", ".jsx", ".py", ".go",
		".md", ".json", ".yaml", ".yml",
	}
	defaultExcludedContextPathParts = []string{
		"/.venv/", "/venv/", "/__pycache__/",
		"/.pytest_cache/", "/.mypy_cache/", "/.ruff_cache/",
	}
	defaultDocExtensions = []string{".md", ".mdx", ".rst", ".adoc", ".txt"}
	defaultDocPathHints  = []string{
		"/docs/", "/documentation/", "/adr", "/wiki/",
		"/changelog", "/contributing", "/license", "/readme",
	}
	defaultContentTypes = []string{"code", "docs"}
)

const (
	defaultChunkLines              = 120
	defaultOverlapLines             = 20
	defaultSearchSnippetMaxChars    = 300
	defaultMinFileCoverage          = 0.95
	defaultOllamaURL                = "http://localhost:11434"
	defaultEmbeddingModel           = "nomic-embed-text"
	defaultEmbeddingBatchSize       = 16
	defaultEmbeddingMaxRetries      = 5
	defaultEmbeddingBackoffBaseMs   = 500
	defaultEmbeddingTimeoutSeconds  = 120
	defaultQdrantURL                = "http://localhost:6333"
	defaultQdrantCollectionBase     = "code_compass"
	defaultQdrantDistance           = "cosine"
	defaultQdrantUpsertBatch        = 100
)

// fileConfig is the legacy config.yaml bootstrap schema, carried over from
// the teacher's nested Server/Chunking/Indexing/Search/Embeddings/VectorDB/
// Ignore/Languages sections. It sits beneath environment variables and
// above compiled-in defaults in every Resolve* precedence chain; an absent
// or unparsable file is silently treated as empty, never an error, since
// the file itself is optional.
type fileConfig struct {
	Scan struct {
		IgnoreDirs     []string `yaml:"ignore_dirs"`
		AllowExts      []string `yaml:"allow_exts"`
		IgnorePatterns []string `yaml:"ignore_patterns"`
	} `yaml:"scan"`
	Chunking struct {
		MaxLines     int `yaml:"max_lines"`
		OverlapLines int `yaml:"overlap_lines"`
	} `yaml:"chunking"`
	Search struct {
		SnippetMaxChars int `yaml:"snippet_max_chars"`
	} `yaml:"search"`
	Indexing struct {
		MinFileCoverage float64 `yaml:"min_file_coverage"`
	} `yaml:"indexing"`
	Embeddings struct {
		Model          string `yaml:"model"`
		OllamaURL      string `yaml:"ollama_url"`
		BatchSize      int    `yaml:"batch_size"`
		MaxRetries     int    `yaml:"max_retries"`
		BackoffBaseMs  int    `yaml:"backoff_base_ms"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"embeddings"`
	VectorDB struct {
		URL             string `yaml:"url"`
		CollectionBase  string `yaml:"collection_base"`
		Distance        string `yaml:"distance"`
		UpsertBatchSize int    `yaml:"upsert_batch_size"`
	} `yaml:"vector_db"`
	Languages struct {
		DocExtensions []string `yaml:"doc_extensions"`
		DocPathHints  []string `yaml:"doc_path_hints"`
	} `yaml:"languages"`
}

var (
	fileConfigOnce  sync.Once
	fileConfigCache fileConfig
)

// loadedFileConfig reads CONFIG_FILE (or ./config.yaml) once per process.
// A missing file is the common case and is not an error; a present but
// malformed file is likewise ignored, since this layer is best-effort
// bootstrap and explicit args/env always remain available to override it.
func loadedFileConfig() fileConfig {
	fileConfigOnce.Do(func() {
		path := firstNonEmpty(os.Getenv("CONFIG_FILE"), "config.yaml")
		data, err := os.ReadFile(path)
		if err != nil {
			return
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err == nil {
			fileConfigCache = fc
		}
	})
	return fileConfigCache
}

// ScanOverrides carries explicit caller arguments for ResolveScanConfig; a
// nil pointer field means "not explicitly set by the caller", falling
// through to env then default.
type ScanOverrides struct {
	RepoRoot       *string
	IgnoreDirs     []string
	AllowExts      []string
	IgnorePatterns []string
	MaxFiles       *int
}

// ResolveScanConfig merges explicit overrides, environment variables, and
// defaults, in that precedence order.
func ResolveScanConfig(o ScanOverrides) (*ScanConfig, error) {
	repoRoot := firstNonEmpty(derefString(o.RepoRoot), os.Getenv("REPO_ROOT"), ".")
	resolvedRoot, err := resolveRepoRoot(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("config: resolving repo root: %w", err)
	}

	fc := loadedFileConfig()
	ignoreDirs := firstNonEmptyList(o.IgnoreDirs, parseCSVEnv("SCAN_IGNORE_DIRS"), fc.Scan.IgnoreDirs, defaultIgnoreDirs)
	allowExts := firstNonEmptyList(o.AllowExts, parseCSVEnv("SCAN_ALLOW_EXTS"), fc.Scan.AllowExts, defaultAllowExts)
	ignorePatterns := firstNonEmptyList(o.IgnorePatterns, parseCSVEnv("SCAN_IGNORE_PATTERNS"), fc.Scan.IgnorePatterns, nil)

	maxFiles, err := resolveIntConfig(o.MaxFiles, "", 0)
	if err != nil {
		return nil, fmt.Errorf("config: MaxFiles: %w", err)
	}

	return &ScanConfig{
		RepoRoot:       resolvedRoot,
		IgnoreDirs:     normalizeIgnoreDirs(ignoreDirs),
		AllowExts:      normalizeExts(allowExts),
		IgnorePatterns: ignorePatterns,
		MaxFiles:       maxFiles,
	}, nil
}

// ChunkOverrides carries explicit caller arguments for ResolveChunkConfig.
type ChunkOverrides struct {
	ChunkLines *int
	Overlap    *int
}

// ResolveChunkConfig merges explicit overrides, environment variables, and
// defaults. Fails construction if CHUNK_LINES/CHUNK_OVERLAP_LINES are set
// but not parseable integers.
func ResolveChunkConfig(o ChunkOverrides) (*ChunkConfig, error) {
	fc := loadedFileConfig()
	lines, err := resolveIntConfigWithFile(o.ChunkLines, "CHUNK_LINES", fc.Chunking.MaxLines, defaultChunkLines)
	if err != nil {
		return nil, fmt.Errorf("config: CHUNK_LINES: %w", err)
	}
	overlap, err := resolveIntConfigWithFile(o.Overlap, "CHUNK_OVERLAP_LINES", fc.Chunking.OverlapLines, defaultOverlapLines)
	if err != nil {
		return nil, fmt.Errorf("config: CHUNK_OVERLAP_LINES: %w", err)
	}
	if lines < 1 {
		return nil, fmt.Errorf("config: chunkLines must be >= 1, got %d", lines)
	}
	if overlap < 0 || overlap >= lines {
		return nil, fmt.Errorf("config: overlap must be in [0, chunkLines), got %d (chunkLines=%d)", overlap, lines)
	}
	return &ChunkConfig{ChunkLines: lines, Overlap: overlap}, nil
}

// ResolveRuntimeConfig merges environment variables and defaults for the
// classifier and search/indexer ambient settings.
func ResolveRuntimeConfig() (*RuntimeConfig, error) {
	fc := loadedFileConfig()
	maxChars, err := resolveIntConfigWithFile(nil, "SEARCH_SNIPPET_MAX_CHARS", fc.Search.SnippetMaxChars, defaultSearchSnippetMaxChars)
	if err != nil {
		return nil, fmt.Errorf("config: SEARCH_SNIPPET_MAX_CHARS: %w", err)
	}

	coverage := defaultMinFileCoverage
	if fc.Indexing.MinFileCoverage > 0 {
		coverage = fc.Indexing.MinFileCoverage
	}
	if raw := os.Getenv("INDEX_MIN_FILE_COVERAGE"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("config: INDEX_MIN_FILE_COVERAGE: %w", err)
		}
		coverage = parsed
	}

	return &RuntimeConfig{
		ExcludedContextPathParts: normalizeExclusionMarkers(firstNonEmptyList(nil, parseCSVEnv("EXCLUDED_CONTEXT_PATH_PARTS"), defaultExcludedContextPathParts)),
		SearchSnippetMaxChars:    maxChars,
		DocExtensions:            normalizeExts(firstNonEmptyList(nil, parseCSVEnv("DOC_EXTENSIONS"), fc.Languages.DocExtensions, defaultDocExtensions)),
		DocPathHints:             normalizePathHints(firstNonEmptyList(nil, parseCSVEnv("DOC_PATH_HINTS"), fc.Languages.DocPathHints, defaultDocPathHints)),
		ContentTypes:             firstNonEmptyList(nil, parseCSVEnv("CONTENT_TYPES"), defaultContentTypes),
		MinFileCoverage:          coverage,
	}, nil
}

// ResolveEmbedderConfig merges per-bucket environment variables
// (EMBEDDING_MODEL_{CODE,DOCS}, EMBEDDING_PROVIDER_{CODE,DOCS},
// ..._API_URL, ..._API_KEY), the shared EMBEDDING_* variables, the
// config.yaml embeddings section, and defaults; it takes no caller overrides.
// bucket is "CODE" or "DOCS".
func ResolveEmbedderConfig(bucket string) (*EmbedderConfig, error) {
	fc := loadedFileConfig()
	batchSize, err := resolveIntConfigWithFile(nil, "EMBEDDING_BATCH_SIZE", fc.Embeddings.BatchSize, defaultEmbeddingBatchSize)
	if err != nil {
		return nil, fmt.Errorf("config: EMBEDDING_BATCH_SIZE: %w", err)
	}
	maxRetries, err := resolveIntConfigWithFile(nil, "EMBEDDING_MAX_RETRIES", fc.Embeddings.MaxRetries, defaultEmbeddingMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("config: EMBEDDING_MAX_RETRIES: %w", err)
	}
	backoffBase, err := resolveIntConfigWithFile(nil, "EMBEDDING_BACKOFF_BASE_MS", fc.Embeddings.BackoffBaseMs, defaultEmbeddingBackoffBaseMs)
	if err != nil {
		return nil, fmt.Errorf("config: EMBEDDING_BACKOFF_BASE_MS: %w", err)
	}
	timeout, err := resolveIntConfigWithFile(nil, "EMBEDDING_TIMEOUT_SECONDS", fc.Embeddings.TimeoutSeconds, defaultEmbeddingTimeoutSeconds)
	if err != nil {
		return nil, fmt.Errorf("config: EMBEDDING_TIMEOUT_SECONDS: %w", err)
	}

	model := firstNonEmpty(os.Getenv("EMBEDDING_MODEL_"+bucket), os.Getenv("EMBEDDING_MODEL"), fc.Embeddings.Model, defaultEmbeddingModel)
	provider := os.Getenv("EMBEDDING_PROVIDER_" + bucket)
	apiURL := firstNonEmpty(os.Getenv("EMBEDDING_PROVIDER_"+bucket+"_API_URL"), os.Getenv("OLLAMA_URL"), fc.Embeddings.OllamaURL, defaultOllamaURL)
	apiKey := os.Getenv("EMBEDDING_PROVIDER_" + bucket + "_API_KEY")

	return &EmbedderConfig{
		OllamaURL:      apiURL,
		Model:          model,
		BatchSize:      batchSize,
		MaxRetries:     maxRetries,
		BackoffBaseMs:  backoffBase,
		TimeoutSeconds: timeout,
		Provider:       provider,
		APIURL:         apiURL,
		APIKey:         apiKey,
	}, nil
}

// ResolveQdrantConfig merges environment variables and defaults for the
// vector store client.
func ResolveQdrantConfig() (*QdrantConfig, error) {
	fc := loadedFileConfig()
	upsertBatch, err := resolveIntConfigWithFile(nil, "QDRANT_UPSERT_BATCH", fc.VectorDB.UpsertBatchSize, defaultQdrantUpsertBatch)
	if err != nil {
		return nil, fmt.Errorf("config: QDRANT_UPSERT_BATCH: %w", err)
	}

	distance := firstNonEmpty(os.Getenv("QDRANT_DISTANCE"), fc.VectorDB.Distance, defaultQdrantDistance)
	switch distance {
	case "cosine", "euclid", "dot", "manhattan":
	default:
		return nil, fmt.Errorf("config: unknown QDRANT_DISTANCE %q", distance)
	}

	return &QdrantConfig{
		URL:             firstNonEmpty(os.Getenv("QDRANT_URL"), fc.VectorDB.URL, defaultQdrantURL),
		APIKey:          os.Getenv("QDRANT_API_KEY"),
		CollectionBase:  firstNonEmpty(os.Getenv("QDRANT_COLLECTION_BASE"), fc.VectorDB.CollectionBase, defaultQdrantCollectionBase),
		Distance:        distance,
		UpsertBatchSize: upsertBatch,
	}, nil
}

func resolveRepoRoot(raw string) (string, error) {
	if strings.HasPrefix(raw, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding ~: %w", err)
		}
		raw = filepath.Join(home, strings.TrimPrefix(raw, "~"))
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Repo root may not exist yet (e.g. dry runs); fall back to the
		// absolute, unresolved path rather than failing construction.
		return abs, nil
	}
	return resolved, nil
}

// resolveIntConfig implements the spec's precedence rule for integer
// settings: explicit value wins, then the named env var (if envKey is
// non-empty), then def. A non-parseable env value fails construction.
func resolveIntConfig(explicit *int, envKey string, def int) (int, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if envKey != "" {
		if raw := os.Getenv(envKey); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return 0, fmt.Errorf("parsing %s=%q: %w", envKey, raw, err)
			}
			return v, nil
		}
	}
	return def, nil
}

// resolveIntConfigWithFile extends resolveIntConfig with the config.yaml
// bootstrap layer, consulted after env and before def. A zero fileVal is
// treated as "not set in the file", same tolerance the rest of this
// package already accepts for optional integer settings.
func resolveIntConfigWithFile(explicit *int, envKey string, fileVal, def int) (int, error) {
	if fileVal != 0 {
		def = fileVal
	}
	return resolveIntConfig(explicit, envKey, def)
}

func parseCSVEnv(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	return parseCSV(raw)
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeIgnoreDirs(dirs []string) []string {
	out := make([]string, len(dirs))
	for i, d := range dirs {
		out[i] = filepath.Base(filepath.ToSlash(d))
	}
	return out
}

func normalizeExts(exts []string) []string {
	out := make([]string, len(exts))
	for i, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out[i] = e
	}
	return out
}

func normalizePathHints(hints []string) []string {
	out := make([]string, len(hints))
	for i, h := range hints {
		h = strings.ToLower(strings.TrimSpace(h))
		if !strings.HasPrefix(h, "/") {
			h = "/" + h
		}
		out[i] = h
	}
	return out
}

// normalizeExclusionMarkers normalizes EXCLUDED_CONTEXT_PATH_PARTS entries:
// leading and trailing "/", per spec §4.A ("exclusion markers additionally
// end with /").
func normalizeExclusionMarkers(markers []string) []string {
	out := make([]string, len(markers))
	for i, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if !strings.HasPrefix(m, "/") {
			m = "/" + m
		}
		if !strings.HasSuffix(m, "/") {
			m = m + "/"
		}
		out[i] = m
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptyList(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
