package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragkb/internal/core/domain"
)

const timeLayout = "2006-01-02 15:04:05"

var documentCmd = &cobra.Command{
	Use:     "document",
	Aliases: []string{"doc"},
	Short:   "Manage indexed documents",
	Long:    `List, view, update, reindex, or delete indexed documents.`,
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents, newest first",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show document info",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentGet,
}

var documentContentCmd = &cobra.Command{
	Use:   "content [doc-id]",
	Short: "Print document content",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentContent,
}

var documentChunksCmd = &cobra.Command{
	Use:   "chunks [doc-id]",
	Short: "List a document's chunks in order",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentChunks,
}

var documentUpdateCmd = &cobra.Command{
	Use:   "update [doc-id]",
	Short: "Replace a document's title and content",
	Long: `Replaces a document's fields and re-chunks it. The document keeps its ID,
and flags left unset keep their current value.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocumentUpdate,
}

var documentReindexCmd = &cobra.Command{
	Use:   "reindex [doc-id]",
	Short: "Re-chunk and re-embed a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentReindex,
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentDelete,
}

var (
	listSkip  int
	listLimit int

	updateTitle   string
	updateContent string
	updateSource  string
	updateType    string
)

func init() {
	documentListCmd.Flags().IntVar(&listSkip, "skip", 0, "number of documents to skip")
	documentListCmd.Flags().IntVarP(&listLimit, "limit", "n", 10, "maximum number of documents")

	documentUpdateCmd.Flags().StringVarP(&updateTitle, "title", "t", "", "new title")
	documentUpdateCmd.Flags().StringVar(&updateContent, "content", "", "new content")
	documentUpdateCmd.Flags().StringVar(&updateSource, "source", "", "new source")
	documentUpdateCmd.Flags().StringVar(&updateType, "type", "", "new type tag")

	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentGetCmd)
	documentCmd.AddCommand(documentContentCmd)
	documentCmd.AddCommand(documentChunksCmd)
	documentCmd.AddCommand(documentUpdateCmd)
	documentCmd.AddCommand(documentReindexCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}

	docs, err := ingestionService.List(cmd.Context(), domain.ListOptions{Offset: listSkip, Limit: listLimit})
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}

	st := newStyles(cmd.OutOrStdout())
	cmd.Println(st.Heading("Documents:"))
	cmd.Println()
	for i := range docs {
		cmd.Printf("  %s\n", docs[i].ID)
		cmd.Printf("    Title:  %s\n", docs[i].Title)
		if docs[i].Source != "" {
			cmd.Printf("    Source: %s\n", docs[i].Source)
		}
		cmd.Printf("    %s\n", st.Muted(fmt.Sprintf("%s · %d chunks · %s",
			docs[i].DocType, docs[i].ChunkCount, docs[i].CreatedAt.Format(timeLayout))))
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}

	doc, err := ingestionService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  Title:    %s\n", doc.Title)
	if doc.Source != "" {
		cmd.Printf("  Source:   %s\n", doc.Source)
	}
	cmd.Printf("  Type:     %s\n", doc.DocType)
	cmd.Printf("  Chunks:   %d\n", doc.ChunkCount)
	cmd.Printf("  Created:  %s\n", doc.CreatedAt.Format(timeLayout))
	cmd.Printf("  Updated:  %s\n", doc.UpdatedAt.Format(timeLayout))
	return nil
}

func runDocumentContent(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}

	doc, err := ingestionService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document content: %w", err)
	}

	cmd.Println(doc.Content)
	return nil
}

func runDocumentChunks(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}

	chunks, err := ingestionService.Chunks(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}

	st := newStyles(cmd.OutOrStdout())
	for _, c := range chunks {
		cmd.Println(st.Heading(fmt.Sprintf("#%d", c.Index)) + " " + st.Muted(fmt.Sprintf("(%d chars)", c.Size)))
		cmd.Println(c.Text)
		cmd.Println()
	}
	cmd.Printf("Total: %d chunks\n", len(chunks))
	return nil
}

func runDocumentUpdate(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}

	ctx := cmd.Context()
	current, err := ingestionService.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	req := domain.IngestRequest{
		Title:   current.Title,
		Content: current.Content,
		Source:  current.Source,
		DocType: current.DocType,
	}
	if cmd.Flags().Changed("title") {
		req.Title = updateTitle
	}
	if cmd.Flags().Changed("content") {
		req.Content = updateContent
	}
	if cmd.Flags().Changed("source") {
		req.Source = updateSource
	}
	if cmd.Flags().Changed("type") {
		req.DocType = updateType
	}

	doc, err := ingestionService.Update(ctx, args[0], req)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	cmd.Printf("Document %s updated (%d chunks).\n", doc.ID, doc.ChunkCount)
	return nil
}

func runDocumentReindex(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}

	docID := args[0]
	cmd.Printf("Reindexing document %s...\n", docID)

	doc, err := ingestionService.Reindex(cmd.Context(), docID)
	if err != nil {
		return fmt.Errorf("failed to reindex document: %w", err)
	}

	cmd.Printf("Document %s reindexed successfully (%d chunks).\n", doc.ID, doc.ChunkCount)
	return nil
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}

	docID := args[0]
	if err := ingestionService.Delete(cmd.Context(), docID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	cmd.Printf("Document %s deleted.\n", docID)
	return nil
}
