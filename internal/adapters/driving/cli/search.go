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
	searchTopK      int
	searchThreshold float64
	searchContext   int
	searchText      bool
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documents",
	Long: `Returns the chunks most similar to the query without generating an answer.

Use --context to include neighbouring chunks around each hit, or --text for a
plain substring search that needs no embedding backend.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", domain.DefaultTopK, "maximum number of results (1-20)")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", domain.DefaultSearchThreshold, "minimum similarity score (0-1)")
	searchCmd.Flags().IntVarP(&searchContext, "context", "c", 0, "neighbouring chunks to include on each side")
	searchCmd.Flags().BoolVar(&searchText, "text", false, "substring search instead of similarity")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	query := strings.Join(args, " ")
	ctx := cmd.Context()

	if searchText {
		chunks, err := searchService.TextSearch(ctx, query, searchTopK)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if searchJSON {
			return outputJSON(cmd, chunks)
		}
		return outputTextMatches(cmd, chunks)
	}

	req := domain.SearchRequest{Query: query}
	// Copies, so the request does not alias flag storage.
	if cmd.Flags().Changed("top-k") {
		topK := searchTopK
		req.TopK = &topK
	}
	if cmd.Flags().Changed("threshold") {
		threshold := searchThreshold
		req.ScoreThreshold = &threshold
	}

	if searchContext > 0 {
		hits, err := searchService.SearchWithNeighbours(ctx, req, searchContext)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if searchJSON {
			return outputJSON(cmd, hits)
		}
		return outputNeighbours(cmd, hits)
	}

	resp, err := searchService.Search(ctx, req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if searchJSON {
		return outputJSON(cmd, resp)
	}
	return outputSearchTable(cmd, resp.Results)
}

func outputJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.ScoredChunk) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	st := newStyles(cmd.OutOrStdout())
	cmd.Println(st.Heading("Results:"))
	cmd.Println()
	for i := range results {
		r := &results[i]
		cmd.Printf("  [%d] %s #%d (%.2f)\n", i+1, titleOf(r.DocumentTitle, r.Chunk.DocumentID), r.Chunk.Index, r.Score)
		cmd.Printf("      %s\n", snippet(r.Chunk.Text, 200))
		cmd.Println()
	}
	return nil
}

func outputNeighbours(cmd *cobra.Command, hits []domain.NeighbourChunks) error {
	if len(hits) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	st := newStyles(cmd.OutOrStdout())
	for i := range hits {
		h := &hits[i]
		cmd.Println(st.Heading(fmt.Sprintf("[%d] %s #%d (%.2f)",
			i+1, titleOf(h.DocumentTitle, h.Chunk.DocumentID), h.Chunk.Index, h.Score)))
		for _, c := range h.Context {
			line := fmt.Sprintf("  #%d %s", c.Index, snippet(c.Text, 200))
			if c.ID != h.Chunk.ID {
				line = st.Muted(line)
			}
			cmd.Println(line)
		}
		cmd.Println()
	}
	return nil
}

func outputTextMatches(cmd *cobra.Command, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i := range chunks {
		cmd.Printf("  [%d] %s #%d\n", i+1, chunks[i].DocumentID, chunks[i].Index)
		cmd.Printf("      %s\n", snippet(chunks[i].Text, 200))
	}
	return nil
}

func titleOf(title, id string) string {
	if title == "" {
		return id
	}
	return title
}
