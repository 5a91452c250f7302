package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	if statsService == nil {
		return errors.New("stats service not configured")
	}

	stats, err := statsService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	if statsJSON {
		return outputJSON(cmd, stats)
	}

	st := newStyles(cmd.OutOrStdout())
	cmd.Println(st.Title("Knowledge base"))
	cmd.Println()
	cmd.Printf("  Documents:          %d\n", stats.TotalDocuments)
	cmd.Printf("  Chunks:             %d\n", stats.TotalChunks)
	cmd.Printf("  Chunks per doc:     %.2f\n", stats.AvgChunksPerDoc)
	cmd.Printf("  Queries:            %d\n", stats.TotalQueries)
	cmd.Printf("  Avg response time:  %.2fs\n", stats.AvgResponseTime)
	cmd.Println()
	cmd.Println(st.Heading("Vector index"))
	cmd.Printf("  Collection:         %s\n", stats.CollectionName)
	cmd.Printf("  Vector size:        %d\n", stats.VectorSize)
	cmd.Printf("  Indexed vectors:    %d\n", stats.IndexedVectors)
	return nil
}
