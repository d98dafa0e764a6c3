package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/studyforge/studyforge/internal/rag"
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance [file]",
	Short: "Enrich a note using retrieval over its own content",
	Long: `Reads a note, indexes it into a throwaway collection, retrieves the
passages most relevant to its focus, and prints an enriched version.
The collection is discarded afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnhance,
}

func init() {
	enhanceCmd.Flags().String("focus", "", "topic to focus the enrichment on")
	rootCmd.AddCommand(enhanceCmd)
}

func runEnhance(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	focus, _ := cmd.Flags().GetString("focus")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading note: %w", err)
	}

	st, err := buildStack()
	if err != nil {
		return err
	}
	defer st.Close()

	answer, err := st.svc.EnhanceContent(ctx, string(data), rag.EnhanceOptions{Focus: focus})
	if err != nil {
		return fmt.Errorf("enhancing note: %w", err)
	}

	fmt.Println(answer.Answer)

	if verbose {
		fmt.Fprintf(os.Stderr, "\nConfidence: %.0f%%, %d source passages\n",
			answer.Confidence*100, len(answer.Sources))
	}
	return nil
}
