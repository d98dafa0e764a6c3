package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/studyforge/studyforge/internal/chunker"
	"github.com/studyforge/studyforge/internal/config"
	"github.com/studyforge/studyforge/internal/ingest"
	"github.com/studyforge/studyforge/internal/llm"
	"github.com/studyforge/studyforge/internal/progress"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Index study documents into per-document collections",
	Long: `Scans a notes directory, chunks every document, embeds the chunks,
and stores them in per-document vector collections for retrieval.
Unchanged documents are skipped on subsequent runs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Bool("force", false, "reindex documents even when unchanged")
	ingestCmd.Flags().Bool("dry-run", false, "estimate chunk counts and embedding cost without making API calls")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := context.Background()

	force, _ := cmd.Flags().GetBool("force")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	rootDir := "."
	if len(args) > 0 {
		rootDir = args[0]
	}

	// Dry run chunks locally and needs no API keys or data store.
	if dryRun {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		docs, err := discoverDocuments(cfg, rootDir)
		if err != nil {
			return err
		}
		return printIngestEstimate(cfg, docs)
	}

	st, err := buildStack()
	if err != nil {
		return err
	}
	defer st.Close()

	if verbose {
		fmt.Fprintf(os.Stderr, "Scanning documents in %s...\n", rootDir)
	}

	docs, err := discoverDocuments(st.cfg, rootDir)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No documents found to index.")
		return nil
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Found %d documents\n", len(docs))
	}

	ix := ingest.NewIndexer(st.svc, progress.NewReporter())
	ix.Force = force

	sum := ix.IndexAll(ctx, docs)

	duration := time.Since(start)
	fmt.Println()
	fmt.Println("Indexing complete!")
	fmt.Printf("  Documents indexed: %d\n", sum.Indexed)
	fmt.Printf("  Documents skipped: %d (unchanged)\n", sum.Skipped)
	fmt.Printf("  Documents failed:  %d\n", sum.Failed)
	fmt.Printf("  Chunks embedded:   %d\n", sum.Chunks)
	if sum.Degraded > 0 {
		fmt.Printf("  Degraded:          %d (indexed without embeddings)\n", sum.Degraded)
	}
	fmt.Printf("  Duration:          %s\n", duration.Round(time.Millisecond))

	fmt.Println()
	fmt.Println("Documents:")
	for _, d := range docs {
		fmt.Printf("  %s  %s\n", d.ID, d.RelPath)
	}
	return nil
}

func discoverDocuments(cfg *config.Config, rootDir string) ([]ingest.Document, error) {
	docs, err := ingest.Discover(ingest.Config{
		RootDir: rootDir,
		Include: cfg.Include,
		Exclude: cfg.Exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("discovering documents: %w", err)
	}
	return docs, nil
}

// printIngestEstimate chunks every document locally and reports what a
// real ingest run would embed.
func printIngestEstimate(cfg *config.Config, docs []ingest.Document) error {
	if len(docs) == 0 {
		fmt.Println("No documents found to index.")
		return nil
	}

	opts := chunker.Options{
		MaxChunkTokens: cfg.Chunking.MaxChunkTokens,
		OverlapTokens:  cfg.Chunking.OverlapTokens,
		Semantic:       cfg.Chunking.Semantic,
		Analysis:       cfg.Chunking.AnalysisLevel,
	}

	var totalChunks, totalTokens, failed int
	for _, d := range docs {
		data, err := os.ReadFile(d.Path)
		if err != nil {
			failed++
			continue
		}
		result := chunker.Split(string(data), opts)
		totalChunks += len(result.Chunks)
		for _, c := range result.Chunks {
			totalTokens += llm.EstimateTokens(c.Content)
		}
	}

	provider := cfg.EmbeddingProvider
	if provider == "" {
		provider = cfg.Provider
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = config.GetPreset(provider, cfg.Quality).EmbeddingModel
	}

	fmt.Println("Ingest Estimate (dry run)")
	fmt.Println("=========================")
	fmt.Printf("  Documents found:   %d\n", len(docs))
	if failed > 0 {
		fmt.Printf("  Unreadable:        %d\n", failed)
	}
	fmt.Printf("  Chunks to embed:   %d\n", totalChunks)
	fmt.Printf("  Estimated tokens:  %d\n", totalTokens)
	if cost := llm.EstimateEmbeddingCost(model, totalTokens); cost > 0 {
		fmt.Printf("  Estimated cost:    $%.4f (%s)\n", cost, model)
	}
	return nil
}
