package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docvault/docvault/internal/ingest"
)

var ingestFlags struct {
	title string
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a document for chat",
	Long: `Read a text document, split it into chunks, embed them, and store
everything. The document is ready for chat once ingestion finishes.

Supported formats: .txt, .md`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFlags.title, "title", "", "display title (default: filename)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	pages, contentType, err := ingest.ExtractFile(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	doc, err := a.store.CreateDocument(ctx, filepath.Base(path), ingestFlags.title, contentType, info.Size())
	if err != nil {
		return err
	}

	count, err := a.processor.Process(ctx, doc.ID, pages)
	if err != nil {
		return fmt.Errorf("processing %s: %w", path, err)
	}

	cmd.Printf("Ingested %s\n", filepath.Base(path))
	cmd.Printf("  document: %s\n", doc.ID)
	cmd.Printf("  chunks:   %d\n", count)
	return nil
}
