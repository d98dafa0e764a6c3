package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/studyforge/studyforge/internal/rag"
)

var studyCmd = &cobra.Command{
	Use:   "study [document]",
	Short: "Generate study questions from an indexed document",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudy,
}

func init() {
	studyCmd.Flags().Int("count", 5, "number of questions to generate")
	studyCmd.Flags().String("difficulty", "", "difficulty: easy, medium, or hard")
	rootCmd.AddCommand(studyCmd)
}

func runStudy(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	count, _ := cmd.Flags().GetInt("count")
	difficulty, _ := cmd.Flags().GetString("difficulty")

	st, err := buildStack()
	if err != nil {
		return err
	}
	defer st.Close()

	questions, err := st.svc.GenerateStudyQuestions(ctx, resolveDocID(args[0]), count, difficulty)
	if err != nil {
		if errors.Is(err, rag.ErrContextNotFound) {
			return fmt.Errorf("document %q is not indexed; run `studyforge ingest` first", args[0])
		}
		return fmt.Errorf("generating questions: %w", err)
	}
	if len(questions) == 0 {
		fmt.Println("No study questions could be generated from this document.")
		return nil
	}

	for i, q := range questions {
		fmt.Printf("%d. %s\n", i+1, q.Question)
		fmt.Printf("   Answer: %s\n", q.Answer)
		fmt.Printf("   Difficulty: %s\n\n", q.Difficulty)
	}
	return nil
}
