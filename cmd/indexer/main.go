// Command indexer is the CLI surface over the scan/chunk/init/index/
// search/ask pipeline.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codecompass/core/internal/chunker"
	"github.com/codecompass/core/internal/embedder"
	"github.com/codecompass/core/internal/indexer"
	"github.com/codecompass/core/internal/mcpbridge"
	"github.com/codecompass/core/internal/models"
	"github.com/codecompass/core/internal/scanner"
	"github.com/codecompass/core/internal/searchcli"
	"github.com/codecompass/core/internal/vectorstore"
	"github.com/codecompass/core/pkg/config"
)

func main() {
	root := &cobra.Command{
		Use:   "indexer",
		Short: "Code-aware retrieval pipeline CLI",
	}

	root.AddCommand(scanCmd(), chunkCmd(), initCmd(), indexCmd(), searchCmd(), askCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func printJSON(v any) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error encoding output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(encoded))
}

func scanCmd() *cobra.Command {
	var repoRoot string
	var maxFiles int

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a repository and list indexable files",
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := config.ScanOverrides{}
			if repoRoot != "" {
				overrides.RepoRoot = &repoRoot
			}
			if maxFiles > 0 {
				overrides.MaxFiles = &maxFiles
			}

			cfg, err := config.ResolveScanConfig(overrides)
			if err != nil {
				return err
			}

			result, err := scanner.New(cfg).Scan()
			if err != nil {
				return err
			}

			ignoreDirs := append([]string(nil), cfg.IgnoreDirs...)
			allowExts := append([]string(nil), cfg.AllowExts...)
			sort.Strings(ignoreDirs)
			sort.Strings(allowExts)

			printJSON(map[string]any{
				"repoRoot":   cfg.RepoRoot,
				"ignoreDirs": ignoreDirs,
				"allowExts":  allowExts,
				"stats":      result.Stats,
				"files":      result.Files,
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&repoRoot, "repo-root", "", "repository root to scan")
	cmd.Flags().IntVar(&maxFiles, "max-files", 0, "truncate the returned file list")
	return cmd
}

func chunkCmd() *cobra.Command {
	var file, repoRoot string
	var chunkLines, overlapLines int

	cmd := &cobra.Command{
		Use:   "chunk",
		Short: "Chunk a single file and print its windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := config.ChunkOverrides{}
			if chunkLines > 0 {
				overrides.ChunkLines = &chunkLines
			}
			if overlapLines > 0 {
				overrides.Overlap = &overlapLines
			}

			cfg, err := config.ResolveChunkConfig(overrides)
			if err != nil {
				return err
			}

			root := repoRoot
			if root == "" {
				var err error
				root, err = os.Getwd()
				if err != nil {
					return err
				}
			}

			absFile, err := filepath.Abs(file)
			if err != nil {
				return err
			}

			ext := strings.ToLower(filepath.Ext(absFile))
			result, err := chunker.New(cfg).ChunkFile(absFile, root, models.LanguageFromExt(ext), models.ContentTypeCode)
			if err != nil {
				return err
			}

			printJSON(map[string]any{
				"file":         absFile,
				"repoRoot":     root,
				"path":         result.Path,
				"chunkLines":   cfg.ChunkLines,
				"overlapLines": cfg.Overlap,
				"totalLines":   result.TotalLines,
				"encoding":     result.Source,
				"chunks":       result.Chunks,
				"stats":        map[string]int{"chunks": len(result.Chunks)},
				"warnings":     result.Warnings,
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "file to chunk")
	cmd.Flags().StringVar(&repoRoot, "repo-root", "", "repository root")
	cmd.Flags().IntVar(&chunkLines, "chunk-lines", 0, "lines per chunk")
	cmd.Flags().IntVar(&overlapLines, "overlap-lines", 0, "overlap lines")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create both content-type collections without indexing",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			qdrantCfg, err := config.ResolveQdrantConfig()
			if err != nil {
				return err
			}
			store, err := vectorstore.New(qdrantCfg)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, bucket := range []string{"CODE", "DOCS"} {
				embedCfg, err := config.ResolveEmbedderConfig(bucket)
				if err != nil {
					return err
				}
				client := embedder.New(embedCfg)

				dim, err := client.ProbeVectorSize(ctx)
				if err != nil {
					return fmt.Errorf("probing vector size for %s: %w", bucket, err)
				}

				code, docs := store.ResolveSplitCollectionNames(dim, embedCfg.Model)
				collection := code
				if bucket == "DOCS" {
					collection = docs
				}

				if err := store.EnsureCollection(ctx, collection, dim); err != nil {
					return err
				}
				if err := store.EnsurePayloadKeywordIndex(ctx, collection, "content_type"); err != nil {
					return err
				}
				slog.Info("collection ready", "collection", collection, "dim", dim)
			}
			return nil
		},
	}
}

func indexCmd() *cobra.Command {
	var repoRoot string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Run one full indexing pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			scanOverrides := config.ScanOverrides{}
			if repoRoot != "" {
				scanOverrides.RepoRoot = &repoRoot
			}
			scanCfg, err := config.ResolveScanConfig(scanOverrides)
			if err != nil {
				return err
			}
			chunkCfg, err := config.ResolveChunkConfig(config.ChunkOverrides{})
			if err != nil {
				return err
			}
			runtimeCfg, err := config.ResolveRuntimeConfig()
			if err != nil {
				return err
			}
			qdrantCfg, err := config.ResolveQdrantConfig()
			if err != nil {
				return err
			}

			store, err := vectorstore.New(qdrantCfg)
			if err != nil {
				return err
			}
			defer store.Close()

			embedders := map[models.ContentType]*embedder.Client{}
			for ct, bucket := range map[models.ContentType]string{models.ContentTypeCode: "CODE", models.ContentTypeDocs: "DOCS"} {
				embedCfg, err := config.ResolveEmbedderConfig(bucket)
				if err != nil {
					return err
				}
				embedders[ct] = embedder.New(embedCfg)
			}

			ix := indexer.New(scanCfg, chunkCfg, runtimeCfg, store, embedders)
			report, err := ix.Index(ctx)
			if err != nil {
				return err
			}

			printJSON(report)
			if report.Status == indexer.StatusInsufficientCoverage {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repoRoot, "repo-root", "", "repository root to index")
	return cmd
}

func searchCmd() *cobra.Command {
	var query, contentType, pathPrefix, language string
	var topK int

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the indexed collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			runtimeCfg, err := config.ResolveRuntimeConfig()
			if err != nil {
				return err
			}
			qdrantCfg, err := config.ResolveQdrantConfig()
			if err != nil {
				return err
			}
			store, err := vectorstore.New(qdrantCfg)
			if err != nil {
				return err
			}
			defer store.Close()

			embedders := map[models.ContentType]*embedder.Client{}
			for ct, bucket := range map[models.ContentType]string{models.ContentTypeCode: "CODE", models.ContentTypeDocs: "DOCS"} {
				embedCfg, err := config.ResolveEmbedderConfig(bucket)
				if err != nil {
					return err
				}
				embedders[ct] = embedder.New(embedCfg)
			}

			dim, err := embedders[models.ContentTypeCode].ProbeVectorSize(ctx)
			if err != nil {
				return err
			}
			code, docs := store.ResolveSplitCollectionNames(dim, "")
			collections := map[models.ContentType]string{models.ContentTypeCode: code, models.ContentTypeDocs: docs}

			searcher := searchcli.New(runtimeCfg, store, embedders)
			results, err := searcher.Search(ctx, query, models.ContentType(contentType), vectorstore.SearchFilters{
				PathPrefix: pathPrefix,
				Language:   language,
			}, topK, collections)
			if err != nil {
				return err
			}

			fmt.Print(searchcli.FormatResults(results))
			return nil
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "search query")
	cmd.Flags().StringVar(&contentType, "content-type", "all", "code|docs|all")
	cmd.Flags().StringVar(&pathPrefix, "path-prefix", "", "filter by path prefix")
	cmd.Flags().StringVar(&language, "language", "", "filter by language")
	cmd.Flags().IntVar(&topK, "top-k", 10, "number of results")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func askCmd() *cobra.Command {
	var query, repo string

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask a question via the external tool server",
		RunE: func(cmd *cobra.Command, args []string) error {
			mcpCommand := strings.Fields(os.Getenv("MCP_COMMAND"))
			if len(mcpCommand) == 0 {
				return fmt.Errorf("MCP_COMMAND must name the tool server executable and arguments")
			}

			bridge := mcpbridge.New(mcpbridge.Config{Command: mcpCommand, Env: os.Environ()})
			ctx := context.Background()
			defer bridge.Close(ctx)

			scope := models.Scope{Type: "all"}
			if repo != "" {
				scope = models.Scope{Type: "repo", Repo: repo}
			}

			out, err := searchcli.Ask(ctx, bridge, models.AskInput{Query: query, Scope: scope}, nil)
			if err != nil {
				return err
			}

			printJSON(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "question to ask")
	cmd.Flags().StringVar(&repo, "repo", "", "repository scope")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}
