package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/codecompass/core/pkg/config"
)

func resolveTestConfigs(t *testing.T, repoRoot string) (*config.ScanConfig, *config.ChunkConfig, *config.RuntimeConfig) {
	t.Helper()
	scanCfg, err := config.ResolveScanConfig(config.ScanOverrides{RepoRoot: &repoRoot, AllowExts: []string{".ts"}})
	if err != nil {
		t.Fatalf("resolve scan config: %v", err)
	}
	chunkCfg, err := config.ResolveChunkConfig(config.ChunkOverrides{})
	if err != nil {
		t.Fatalf("resolve chunk config: %v", err)
	}
	runtimeCfg, err := config.ResolveRuntimeConfig()
	if err != nil {
		t.Fatalf("resolve runtime config: %v", err)
	}
	return scanCfg, chunkCfg, runtimeCfg
}

func TestIndex_EmptyRepoYieldsEmptyStatus(t *testing.T) {
	tmpDir := t.TempDir()
	scanCfg, chunkCfg, runtimeCfg := resolveTestConfigs(t, tmpDir)

	ix := New(scanCfg, chunkCfg, runtimeCfg, nil, nil)
	report, err := ix.Index(context.Background())
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if report.Status != StatusEmpty {
		t.Errorf("expected status %q, got %q", StatusEmpty, report.Status)
	}
	if report.FileCoverage != 1.0 {
		t.Errorf("expected coverage 1.0 for zero files, got %v", report.FileCoverage)
	}
}

func TestIndex_ZeroChunksYieldsEmptyStatus(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "empty.ts"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	scanCfg, chunkCfg, runtimeCfg := resolveTestConfigs(t, tmpDir)

	ix := New(scanCfg, chunkCfg, runtimeCfg, nil, nil)
	report, err := ix.Index(context.Background())
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if report.Status != StatusEmpty {
		t.Errorf("expected status %q, got %q", StatusEmpty, report.Status)
	}
	if report.FilesScanned != 1 {
		t.Errorf("expected 1 file scanned, got %d", report.FilesScanned)
	}
}
