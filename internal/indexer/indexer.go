// Package indexer drives the Scanner, Chunker, Classifier, Embedder, and
// Vector Store Client through one indexing pass.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codecompass/core/internal/chunker"
	"github.com/codecompass/core/internal/classifier"
	"github.com/codecompass/core/internal/embedder"
	"github.com/codecompass/core/internal/models"
	"github.com/codecompass/core/internal/scanner"
	"github.com/codecompass/core/internal/vectorstore"
	"github.com/codecompass/core/pkg/config"
)

// Status values for the JSON report, per spec §6.
const (
	StatusSuccess             = "success"
	StatusEmpty                = "empty"
	StatusInsufficientCoverage = "insufficient_coverage"
)

// Report is the single JSON report emitted after an indexing run.
type Report struct {
	Status              string         `json:"status"`
	FilesScanned        int            `json:"files_scanned"`
	FilesIndexed        int            `json:"files_indexed"`
	FileCoverage        float64        `json:"file_coverage"`
	ChunksTotal         int            `json:"chunks_total"`
	ChunksByType        map[string]int `json:"chunks_by_type"`
	EmbeddingsGenerated int            `json:"embeddings_generated"`
	PointsUpserted      int            `json:"points_upserted"`
	UpsertByType        map[string]int `json:"upsert_by_type"`
	Collections         map[string]string `json:"collections"`
	ElapsedMs           int64          `json:"elapsed_ms"`
}

// Indexer wires the A→B→C→D→E→F pipeline for one repository.
type Indexer struct {
	scanCfg    *config.ScanConfig
	chunkCfg   *config.ChunkConfig
	runtimeCfg *config.RuntimeConfig

	classifier *classifier.Classifier
	chunkerIm  *chunker.Chunker
	store      *vectorstore.Store
	embedders  map[models.ContentType]*embedder.Client

	logger *slog.Logger
}

// New wires an Indexer from resolved configs and one Embedder Client per
// content-type bucket.
func New(
	scanCfg *config.ScanConfig,
	chunkCfg *config.ChunkConfig,
	runtimeCfg *config.RuntimeConfig,
	store *vectorstore.Store,
	embedders map[models.ContentType]*embedder.Client,
) *Indexer {
	return &Indexer{
		scanCfg:    scanCfg,
		chunkCfg:   chunkCfg,
		runtimeCfg: runtimeCfg,
		classifier: classifier.New(runtimeCfg),
		chunkerIm:  chunker.New(chunkCfg),
		store:      store,
		embedders:  embedders,
		logger:     slog.Default(),
	}
}

type chunkedFile struct {
	contentType models.ContentType
	chunks      []models.Chunk
}

// Index runs one full indexing pass and returns the report described in
// spec §4.G/§6.
func (ix *Indexer) Index(ctx context.Context) (*Report, error) {
	start := time.Now()

	scanResult, err := scanner.New(ix.scanCfg).Scan()
	if err != nil {
		return nil, fmt.Errorf("indexer: scanning: %w", err)
	}
	ix.logger.Info("scan complete", "files", len(scanResult.Files))

	if len(scanResult.Files) == 0 {
		return &Report{
			Status:       StatusEmpty,
			FilesScanned: 0,
			FileCoverage: 1.0,
			ChunksByType: map[string]int{},
			UpsertByType: map[string]int{},
			ElapsedMs:    time.Since(start).Milliseconds(),
		}, nil
	}

	chunksByType := map[models.ContentType][]models.Chunk{
		models.ContentTypeCode: nil,
		models.ContentTypeDocs: nil,
	}

	indexedFiles := 0
	for _, relPath := range scanResult.Files {
		absPath := filepath.Join(ix.scanCfg.RepoRoot, relPath)
		contentType, _ := ix.classifier.Classify(relPath)
		ext := strings.ToLower(filepath.Ext(relPath))
		language := models.LanguageFromExt(ext)

		info, err := os.Stat(absPath)
		if err != nil {
			ix.logger.Warn("indexer: stat failed, skipping file", "path", relPath, "err", err)
			continue
		}

		result, err := ix.chunkerIm.ChunkFile(absPath, ix.scanCfg.RepoRoot, language, contentType)
		if err != nil {
			ix.logger.Warn("indexer: chunking failed, skipping file", "path", relPath, "err", err)
			continue
		}
		for i := range result.Chunks {
			result.Chunks[i].Repo = ix.scanCfg.RepoRoot
			result.Chunks[i].RepoName = filepath.Base(ix.scanCfg.RepoRoot)
			result.Chunks[i].Ext = ext
			result.Chunks[i].ModTimeUnix = info.ModTime().Unix()
			result.Chunks[i].SizeBytes = info.Size()
			result.Chunks[i].Source = result.Source
		}

		chunksByType[contentType] = append(chunksByType[contentType], result.Chunks...)
		indexedFiles++
	}

	fileCoverage := 1.0
	if len(scanResult.Files) > 0 {
		fileCoverage = float64(indexedFiles) / float64(len(scanResult.Files))
	}

	if fileCoverage < ix.runtimeCfg.MinFileCoverage {
		return &Report{
			Status:       StatusInsufficientCoverage,
			FilesScanned: len(scanResult.Files),
			FilesIndexed: indexedFiles,
			FileCoverage: fileCoverage,
			ChunksByType: map[string]int{},
			UpsertByType: map[string]int{},
			ElapsedMs:    time.Since(start).Milliseconds(),
		}, nil
	}

	chunksTotal := len(chunksByType[models.ContentTypeCode]) + len(chunksByType[models.ContentTypeDocs])
	if chunksTotal == 0 {
		return &Report{
			Status:       StatusEmpty,
			FilesScanned: len(scanResult.Files),
			FilesIndexed: indexedFiles,
			FileCoverage: fileCoverage,
			ChunksByType: map[string]int{"code": 0, "docs": 0},
			UpsertByType: map[string]int{},
			ElapsedMs:    time.Since(start).Milliseconds(),
		}, nil
	}

	codeCollection, docsCollection := ix.store.ResolveSplitCollectionNames(0, "")

	embeddingsGenerated := 0
	pointsUpserted := 0
	upsertByType := map[string]int{}

	g, gctx := errgroup.WithContext(ctx)
	var codePoints, docsPoints int

	g.Go(func() error {
		n, err := ix.embedAndUpsert(gctx, models.ContentTypeCode, codeCollection, chunksByType[models.ContentTypeCode])
		codePoints = n
		return err
	})
	g.Go(func() error {
		n, err := ix.embedAndUpsert(gctx, models.ContentTypeDocs, docsCollection, chunksByType[models.ContentTypeDocs])
		docsPoints = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("indexer: embedding/upsert: %w", err)
	}

	upsertByType["code"] = codePoints
	upsertByType["docs"] = docsPoints
	pointsUpserted = codePoints + docsPoints
	embeddingsGenerated = pointsUpserted

	return &Report{
		Status:              StatusSuccess,
		FilesScanned:        len(scanResult.Files),
		FilesIndexed:        indexedFiles,
		FileCoverage:        fileCoverage,
		ChunksTotal:         chunksTotal,
		ChunksByType:        map[string]int{"code": len(chunksByType[models.ContentTypeCode]), "docs": len(chunksByType[models.ContentTypeDocs])},
		EmbeddingsGenerated: embeddingsGenerated,
		PointsUpserted:      pointsUpserted,
		UpsertByType:        upsertByType,
		Collections:         map[string]string{"code": codeCollection, "docs": docsCollection},
		ElapsedMs:           time.Since(start).Milliseconds(),
	}, nil
}

// embedAndUpsert embeds one content-type bucket's chunks and upserts the
// resulting points into its collection. It first probes the vector size
// and ensures the collection (and its keyword payload index) exists.
func (ix *Indexer) embedAndUpsert(ctx context.Context, contentType models.ContentType, collection string, chunks []models.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	client, ok := ix.embedders[contentType]
	if !ok {
		return 0, fmt.Errorf("indexer: no embedder configured for content type %q", contentType)
	}

	dim, err := client.ProbeVectorSize(ctx)
	if err != nil {
		return 0, fmt.Errorf("indexer: probing vector size for %q: %w", contentType, err)
	}

	if err := ix.store.EnsureCollection(ctx, collection, dim); err != nil {
		return 0, fmt.Errorf("indexer: ensuring collection %q: %w", collection, err)
	}
	if err := ix.store.EnsurePayloadKeywordIndex(ctx, collection, "content_type"); err != nil {
		return 0, fmt.Errorf("indexer: ensuring payload index on %q: %w", collection, err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := client.EmbedTextsBatched(ctx, texts, dim)
	if err != nil {
		return 0, fmt.Errorf("indexer: embedding %q chunks: %w", contentType, err)
	}

	points := make([]models.VectorPoint, len(chunks))
	for i, c := range chunks {
		points[i] = models.VectorPoint{
			ID:     chunker.PointID(c.Path, c.ChunkIndex, c.ContentHash),
			Vector: vectors[i],
			Payload: map[string]any{
				"repo":         c.RepoName,
				"path":         c.Path,
				"chunk_index":  c.ChunkIndex,
				"content_hash": c.ContentHash,
				"ext":          c.Ext,
				"mtime":        c.ModTimeUnix,
				"size_bytes":   c.SizeBytes,
				"text_len":     len(c.Content),
				"start_line":   c.StartLine,
				"end_line":     c.EndLine,
				"language":     c.Language,
				"content_type": string(c.ContentType),
				"source":       c.Source,
				"repo_root":    c.Repo,
				"text":         c.Content,
			},
		}
	}

	upserted, _, err := ix.store.Upsert(ctx, collection, points)
	if err != nil {
		return 0, fmt.Errorf("indexer: upserting %q points: %w", contentType, err)
	}
	return upserted, nil
}
