package cli

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/normalisers"
	"github.com/custodia-labs/lectern/internal/normalisers/docx"
)

var materialCmd = &cobra.Command{
	Use:   "material",
	Short: "Manage course materials",
	Long:  `Ingest, inspect, reprocess and delete the materials of a school.`,
}

var materialIngestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a material from a file",
	Long: `Stores the file, converts it to text, splits it into chunks and indexes
their embeddings. Plain text, Markdown, HTML and Word (.docx) files are
supported. Form feeds in plain text separate pages.`,
	Args: cobra.ExactArgs(1),
	RunE: runMaterialIngest,
}

var materialStatusCmd = &cobra.Command{
	Use:   "status [material-id]",
	Short: "Show ingestion progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runMaterialStatus,
}

var materialReprocessCmd = &cobra.Command{
	Use:   "reprocess [material-id]",
	Short: "Re-chunk and re-index a material",
	Args:  cobra.ExactArgs(1),
	RunE:  runMaterialReprocess,
}

var materialDeleteCmd = &cobra.Command{
	Use:   "delete [material-id]",
	Short: "Delete a material and its vectors",
	Args:  cobra.ExactArgs(1),
	RunE:  runMaterialDelete,
}

var materialListCmd = &cobra.Command{
	Use:   "list",
	Short: "List materials",
	RunE:  runMaterialList,
}

var (
	ingestID          string
	ingestTitle       string
	ingestContentType string
)

// extensionTypes covers upload formats the mime package does not know.
var extensionTypes = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".htm":      "text/html",
	".html":     "text/html",
	".csv":      "text/csv",
	".docx":     docx.MIMEType,
}

func init() {
	materialIngestCmd.Flags().StringVar(&ingestID, "id", "", "material ID (generated when empty)")
	materialIngestCmd.Flags().StringVarP(&ingestTitle, "title", "t", "", "material title (taken from the file when empty)")
	materialIngestCmd.Flags().StringVar(&ingestContentType, "type", "", "MIME type (detected from the extension when empty)")

	materialCmd.AddCommand(materialIngestCmd)
	materialCmd.AddCommand(materialStatusCmd)
	materialCmd.AddCommand(materialReprocessCmd)
	materialCmd.AddCommand(materialDeleteCmd)
	materialCmd.AddCommand(materialListCmd)
	rootCmd.AddCommand(materialCmd)
}

// contentTypeFor guesses a MIME type from a file name.
func contentTypeFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return normalisers.DefaultMIMEType
}

func runMaterialIngest(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}
	p, err := principal()
	if err != nil {
		return err
	}

	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	contentType := ingestContentType
	if contentType == "" {
		contentType = contentTypeFor(path)
	}

	status, err := ingestionService.Ingest(cmd.Context(), p, driving.IngestRequest{
		MaterialID:  ingestID,
		Title:       ingestTitle,
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Content:     content,
	})
	if err != nil {
		return fmt.Errorf("failed to ingest material: %w", err)
	}

	cmd.Printf("Ingested material: %s\n", status.MaterialID)
	printIngestionStatus(cmd, status)
	return nil
}

func runMaterialStatus(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}
	p, err := principal()
	if err != nil {
		return err
	}

	status, err := ingestionService.Status(cmd.Context(), p, args[0])
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	cmd.Printf("Material: %s\n", status.MaterialID)
	printIngestionStatus(cmd, status)
	return nil
}

func runMaterialReprocess(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}
	p, err := principal()
	if err != nil {
		return err
	}

	status, err := ingestionService.Reprocess(cmd.Context(), p, args[0])
	if err != nil {
		return fmt.Errorf("failed to reprocess material: %w", err)
	}

	cmd.Printf("Reprocessed material: %s\n", status.MaterialID)
	printIngestionStatus(cmd, status)
	return nil
}

func runMaterialDelete(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}
	p, err := principal()
	if err != nil {
		return err
	}

	if err := ingestionService.Delete(cmd.Context(), p, args[0]); err != nil {
		return fmt.Errorf("failed to delete material: %w", err)
	}

	cmd.Printf("Deleted material: %s\n", args[0])
	return nil
}

func runMaterialList(cmd *cobra.Command, _ []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}
	p, err := principal()
	if err != nil {
		return err
	}

	materials, err := ingestionService.List(cmd.Context(), p)
	if err != nil {
		return fmt.Errorf("failed to list materials: %w", err)
	}

	if len(materials) == 0 {
		cmd.Println("No materials found.")
		return nil
	}

	cmd.Printf("Materials for %s:\n\n", p.TenantID)
	for i := range materials {
		cmd.Printf("  %s\n", materials[i].ID)
		cmd.Printf("    Title: %s\n", materials[i].Title)
		cmd.Printf("    Type:  %s\n", materials[i].ContentType)
		cmd.Println()
	}
	cmd.Printf("Total: %d materials\n", len(materials))
	return nil
}

func printIngestionStatus(cmd *cobra.Command, status *driving.IngestionStatus) {
	if status.Running {
		cmd.Println("  Running: yes")
	}
	rec := status.Record
	if rec == nil {
		cmd.Println("  Status:  not processed")
		return
	}
	cmd.Printf("  Status:  %s\n", rec.Status)
	cmd.Printf("  Chunks:  %d/%d processed, %d failed\n", rec.ProcessedChunks, rec.TotalChunks, rec.FailedChunks)
	if rec.EmbeddingModel != "" {
		cmd.Printf("  Model:   %s\n", rec.EmbeddingModel)
	}
	if rec.LastError != "" {
		cmd.Printf("  Error:   %s\n", rec.LastError)
	}
}
