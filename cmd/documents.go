package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage ingested documents",
	RunE:  runDocumentsList,
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document and everything derived from it",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsDelete,
}

func init() {
	documentsCmd.AddCommand(documentsDeleteCmd)
	rootCmd.AddCommand(documentsCmd)
}

func runDocumentsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	docs, err := a.store.ListDocuments(ctx, 100, 0)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		cmd.Println("No documents. Use 'docvault ingest <file>' to add one.")
		return nil
	}

	for _, doc := range docs {
		name := doc.Title
		if name == "" {
			name = doc.Filename
		}
		line := fmt.Sprintf("%s  %-10s  %s (%d chunks)", doc.ID, doc.Status, name, doc.ChunkCount)
		if doc.Status == "failed" && doc.ErrorMessage != "" {
			line += "  — " + doc.ErrorMessage
		}
		cmd.Println(line)
	}
	return nil
}

func runDocumentsDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	documentID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid document ID %q: %w", args[0], err)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if err := a.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	cmd.Printf("Deleted document %s\n", documentID)
	return nil
}
