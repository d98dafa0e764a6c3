package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/studyforge/studyforge/internal/llm"
	"github.com/studyforge/studyforge/internal/rag"
)

var askCmd = &cobra.Command{
	Use:   "ask [document] [question]",
	Short: "Ask a question about an indexed document",
	Long: `Answers a question using retrieval over one indexed document. The
document may be given as its id or as the path it was ingested from.`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().Bool("no-cache", false, "bypass the semantic answer cache")
	askCmd.Flags().Int("context-tokens", 0, "context token budget (overrides config)")
	askCmd.Flags().Bool("json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	docID := resolveDocID(args[0])
	question := args[1]

	noCache, _ := cmd.Flags().GetBool("no-cache")
	budget, _ := cmd.Flags().GetInt("context-tokens")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	st, err := buildStack()
	if err != nil {
		return err
	}
	defer st.Close()

	answer, err := st.svc.AnswerQuestion(ctx, docID, question, rag.AskOptions{
		MaxContextTokens: budget,
		SkipCache:        noCache,
	})
	if err != nil {
		if errors.Is(err, rag.ErrContextNotFound) {
			return fmt.Errorf("document %q is not indexed; run `studyforge ingest` first", args[0])
		}
		return fmt.Errorf("answering question: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}

	printAnswer(answer)

	if verbose {
		cost := llm.EstimateCost(answer.Model, answer.InputTokens, answer.OutputTokens)
		fmt.Fprintf(os.Stderr, "\nTokens: %d input, %d output", answer.InputTokens, answer.OutputTokens)
		if cost > 0 {
			fmt.Fprintf(os.Stderr, " (~$%.4f)", cost)
		}
		fmt.Fprintln(os.Stderr)
	}
	return nil
}

func printAnswer(a *rag.Answer) {
	fmt.Println(a.Answer)

	if len(a.Sources) > 0 {
		fmt.Printf("\nSources (%d):\n", len(a.Sources))
		for i, src := range a.Sources {
			fmt.Printf("  %d. [%.1f%%] %s\n", i+1, src.Similarity*100, src.ChunkID)
			fmt.Printf("     %s\n", truncate(src.Content, 120))
		}
	}

	status := fmt.Sprintf("confidence %.0f%%", a.Confidence*100)
	if a.Cached {
		status += ", cached"
	}
	if a.Degraded {
		status += ", degraded"
	}
	fmt.Printf("\n(%s)\n", status)
}
