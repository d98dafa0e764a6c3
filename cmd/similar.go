package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/studyforge/studyforge/internal/rag"
)

var similarCmd = &cobra.Command{
	Use:   "similar [document] [query]",
	Short: "Find passages similar to a query within a document",
	Args:  cobra.ExactArgs(2),
	RunE:  runSimilar,
}

func init() {
	similarCmd.Flags().Int("limit", 5, "maximum number of results")
	similarCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(similarCmd)
}

func runSimilar(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	st, err := buildStack()
	if err != nil {
		return err
	}
	defer st.Close()

	results, err := st.svc.GetSimilarContent(ctx, resolveDocID(args[0]), args[1], limit)
	if err != nil {
		if errors.Is(err, rag.ErrContextNotFound) {
			return fmt.Errorf("document %q is not indexed; run `studyforge ingest` first", args[0])
		}
		return fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	fmt.Printf("Found %d results:\n\n", len(results))
	for i, r := range results {
		fmt.Printf("  %d. [%.1f%%] %s\n", i+1, r.Relevance*100, r.ChunkID)
		fmt.Printf("     Type: %s\n", r.Type)
		fmt.Printf("     %s\n\n", truncate(r.Content, 120))
	}
	return nil
}
