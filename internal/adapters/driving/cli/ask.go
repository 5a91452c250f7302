package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragkb/internal/core/domain"
)

var (
	askTopK      int
	askThreshold float64
	askNoContext bool
	askSources   bool
	askJSON      bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the indexed documents",
	Long: `Retrieves the chunks most similar to the question and asks the language
model to answer from them. With --no-context the model answers on its own.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", domain.DefaultTopK, "number of chunks to retrieve (1-20)")
	askCmd.Flags().Float64Var(&askThreshold, "threshold", domain.DefaultScoreThreshold, "minimum similarity score (0-1)")
	askCmd.Flags().BoolVar(&askNoContext, "no-context", false, "answer without retrieval")
	askCmd.Flags().BoolVarP(&askSources, "sources", "s", false, "show the chunks used")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if answerService == nil {
		return errors.New("answer service not configured")
	}

	req := domain.QueryRequest{Question: strings.Join(args, " ")}
	// Copies, so the request does not alias flag storage.
	if cmd.Flags().Changed("top-k") {
		topK := askTopK
		req.TopK = &topK
	}
	if cmd.Flags().Changed("threshold") {
		threshold := askThreshold
		req.ScoreThreshold = &threshold
	}
	if askNoContext {
		useContext := false
		req.UseContext = &useContext
	}

	answer, err := answerService.Answer(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("failed to answer question: %w", err)
	}

	if askJSON {
		data, err := json.MarshalIndent(answer, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	st := newStyles(cmd.OutOrStdout())
	cmd.Println(st.Answer(answer.Answer))
	cmd.Println()
	cmd.Println(st.Muted(fmt.Sprintf("%s · %d chunks · similarity %.2f · %.2fs",
		answer.Model, answer.ChunksRetrieved, answer.AvgSimilarity, answer.ResponseSeconds())))

	if askSources && len(answer.ChunksUsed) > 0 {
		cmd.Println()
		cmd.Println(st.Heading("Sources:"))
		for i, c := range answer.ChunksUsed {
			title := c.DocumentTitle
			if title == "" {
				title = c.DocumentID
			}
			cmd.Printf("  [%d] %s #%d (%.2f)\n", i+1, title, c.ChunkIndex, c.Score)
			cmd.Printf("      %s\n", st.Muted(snippet(c.Text, 160)))
		}
	}
	return nil
}

// snippet shortens text to at most n runes on one line.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
