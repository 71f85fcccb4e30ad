package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestResolveChunkConfig_Defaults(t *testing.T) {
	cfg, err := ResolveChunkConfig(ChunkOverrides{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ChunkLines != defaultChunkLines || cfg.Overlap != defaultOverlapLines {
		t.Errorf("got %+v, want defaults %d/%d", cfg, defaultChunkLines, defaultOverlapLines)
	}
}

func TestResolveChunkConfig_EnvOverridesDefault(t *testing.T) {
	t.Setenv("CHUNK_LINES", "200")
	cfg, err := ResolveChunkConfig(ChunkOverrides{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ChunkLines != 200 {
		t.Errorf("got %d, want 200", cfg.ChunkLines)
	}
}

func TestResolveChunkConfig_ExplicitOverridesEnv(t *testing.T) {
	t.Setenv("CHUNK_LINES", "200")
	explicit := 80
	cfg, err := ResolveChunkConfig(ChunkOverrides{ChunkLines: &explicit})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ChunkLines != 80 {
		t.Errorf("got %d, want explicit 80", cfg.ChunkLines)
	}
}

func TestResolveChunkConfig_RejectsInvalidOverlap(t *testing.T) {
	lines, overlap := 10, 10
	if _, err := ResolveChunkConfig(ChunkOverrides{ChunkLines: &lines, Overlap: &overlap}); err == nil {
		t.Error("expected error when overlap >= chunkLines")
	}
}

func withConfigFile(t *testing.T, yamlBody string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("writing config.yaml: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	resetFileConfigCache(t)
}

// resetFileConfigCache clears the package-level sync.Once so each test can
// load its own config.yaml; loadedFileConfig is otherwise cached for the
// lifetime of the process.
func resetFileConfigCache(t *testing.T) {
	t.Helper()
	fileConfigOnce = sync.Once{}
	t.Cleanup(func() { fileConfigOnce = sync.Once{} })
}

func TestLoadedFileConfig_BootstrapsChunkingLayer(t *testing.T) {
	withConfigFile(t, "chunking:\n  max_lines: 64\n  overlap_lines: 8\n")

	cfg, err := ResolveChunkConfig(ChunkOverrides{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ChunkLines != 64 || cfg.Overlap != 8 {
		t.Errorf("got %+v, want file-sourced 64/8", cfg)
	}
}

func TestLoadedFileConfig_EnvStillBeatsFile(t *testing.T) {
	withConfigFile(t, "chunking:\n  max_lines: 64\n")
	t.Setenv("CHUNK_LINES", "32")

	cfg, err := ResolveChunkConfig(ChunkOverrides{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ChunkLines != 32 {
		t.Errorf("got %d, want env-sourced 32", cfg.ChunkLines)
	}
}

func TestLoadedFileConfig_MissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "does-not-exist.yaml"))
	resetFileConfigCache(t)

	if _, err := ResolveChunkConfig(ChunkOverrides{}); err != nil {
		t.Fatalf("missing config.yaml should not fail resolution: %v", err)
	}
}

func TestResolveQdrantConfig_RejectsUnknownDistance(t *testing.T) {
	t.Setenv("QDRANT_DISTANCE", "hamming")
	if _, err := ResolveQdrantConfig(); err == nil {
		t.Error("expected error for unknown distance metric")
	}
}

func TestResolveScanConfig_ExpandsHomeDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	wantRoot, err := filepath.EvalSymlinks(home)
	if err != nil {
		t.Fatalf("resolving temp home: %v", err)
	}

	repoRoot := "~"
	cfg, err := ResolveScanConfig(ScanOverrides{RepoRoot: &repoRoot})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !filepath.IsAbs(cfg.RepoRoot) {
		t.Errorf("expected absolute repo root, got %q", cfg.RepoRoot)
	}
	if cfg.RepoRoot != wantRoot {
		t.Errorf("expected ~ to expand to %q, got %q", wantRoot, cfg.RepoRoot)
	}
}
