package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driving"
)

var (
	ingestTitle    string
	ingestContent  string
	ingestSource   string
	ingestType     string
	ingestManifest string
	ingestDir      string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Add documents to the knowledge base",
	Long: `Adds documents to the knowledge base. Exactly one input is used:

  ragkb ingest notes/guide.md                 # one file (text, markdown, html, pdf)
  ragkb ingest --title T --content "..."      # inline text, "-" reads stdin
  ragkb ingest --manifest documents.yaml      # bulk, from a YAML or JSON list
  ragkb ingest --dir ./docs                   # every supported file under a directory

Ingesting a file whose path is already known updates that document in place.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestTitle, "title", "t", "", "document title (inline mode)")
	ingestCmd.Flags().StringVar(&ingestContent, "content", "", `document text, or "-" for stdin (inline mode)`)
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "document source (inline mode)")
	ingestCmd.Flags().StringVar(&ingestType, "type", "", "document type tag (inline mode)")
	ingestCmd.Flags().StringVarP(&ingestManifest, "manifest", "m", "", "path to a manifest of documents")
	ingestCmd.Flags().StringVarP(&ingestDir, "dir", "d", "", "directory to synchronise")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	modes := 0
	for _, set := range []bool{len(args) == 1, ingestContent != "", ingestManifest != "", ingestDir != ""} {
		if set {
			modes++
		}
	}
	switch {
	case modes == 0:
		return errors.New("nothing to ingest: pass a file, --content, --manifest or --dir")
	case modes > 1:
		return errors.New("pass only one of a file, --content, --manifest or --dir")
	}

	switch {
	case len(args) == 1:
		return ingestFile(cmd, args[0])
	case ingestManifest != "":
		return ingestFromManifest(cmd, ingestManifest)
	case ingestDir != "":
		return ingestDirectory(cmd, ingestDir)
	default:
		return ingestInline(cmd)
	}
}

func ingestFile(cmd *cobra.Command, path string) error {
	if syncService == nil {
		return errors.New("sync service not configured")
	}

	doc, err := syncService.IngestFile(cmd.Context(), path)
	if err != nil {
		return fmt.Errorf("failed to ingest %s: %w", path, err)
	}
	printIngested(cmd, doc)
	return nil
}

func ingestInline(cmd *cobra.Command) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}

	content := ingestContent
	if content == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		content = string(data)
	}

	doc, err := ingestionService.Ingest(cmd.Context(), domain.IngestRequest{
		Title:   ingestTitle,
		Content: content,
		Source:  ingestSource,
		DocType: ingestType,
	})
	if err != nil {
		return fmt.Errorf("failed to ingest document: %w", err)
	}
	printIngested(cmd, doc)
	return nil
}

func ingestFromManifest(cmd *cobra.Command, path string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}

	result, err := ingestionService.IngestManifest(cmd.Context(), path)
	if err != nil {
		return fmt.Errorf("failed to ingest manifest: %w", err)
	}

	st := newStyles(cmd.OutOrStdout())
	for i := range result.Documents {
		printIngested(cmd, &result.Documents[i])
	}
	for _, f := range result.Failures {
		cmd.Println(st.Failure(fmt.Sprintf("  entry %d (%s): %v", f.Index, f.Title, f.Err)))
	}
	cmd.Printf("Ingested %d documents, %d failed.\n", len(result.Documents), len(result.Failures))

	if len(result.Failures) > 0 {
		return fmt.Errorf("%d manifest entries failed", len(result.Failures))
	}
	return nil
}

func ingestDirectory(cmd *cobra.Command, dir string) error {
	if syncService == nil {
		return errors.New("sync service not configured")
	}

	cmd.Printf("Synchronising %s...\n", dir)
	status, err := syncService.Sync(cmd.Context(), dir)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	printSyncStatus(cmd, status)
	return nil
}

func printIngested(cmd *cobra.Command, doc *domain.Document) {
	st := newStyles(cmd.OutOrStdout())
	cmd.Printf("%s %s %s (%d chunks)\n", st.Success("✓"), doc.ID, doc.Title, doc.ChunkCount)
}

func printSyncStatus(cmd *cobra.Command, status *driving.SyncStatus) {
	cmd.Printf("Ingested: %d  Reindexed: %d  Deleted: %d  Unchanged: %d  Skipped: %d  Errors: %d\n",
		status.Ingested, status.Reindexed, status.Deleted, status.Unchanged, status.Skipped, status.ErrorCount)
}
