package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/connectors/filesystem"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
)

var watchOnce bool

var materialWatchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Keep a folder of materials ingested",
	Long: `Ingests every supported file under the folder, then watches it. New and
edited files are re-ingested and removed files are deleted. Material IDs are
derived from each file's path relative to the folder, so "Unit 1/Cells.md"
becomes "unit-1-cells". Hidden files and directories are ignored.

With --once the folder is ingested and the command exits.`,
	Args: cobra.ExactArgs(1),
	RunE: runMaterialWatch,
}

func init() {
	materialWatchCmd.Flags().BoolVar(&watchOnce, "once", false, "ingest the folder and exit without watching")
	materialCmd.AddCommand(materialWatchCmd)
}

// supportedFile reports whether a file has an extension the ingestion
// pipeline can convert.
func supportedFile(path string) bool {
	_, ok := extensionTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

func runMaterialWatch(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}
	p, err := principal()
	if err != nil {
		return err
	}

	folder := filesystem.New(args[0], filesystem.WithFilter(supportedFile))
	defer folder.Close()

	ctx := cmd.Context()
	existing, err := folder.Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", args[0], err)
	}
	var failed int
	for _, c := range existing {
		if !applyChange(ctx, cmd, p, c) {
			failed++
		}
	}
	cmd.Printf("Ingested %d of %d materials from %s\n", len(existing)-failed, len(existing), args[0])
	if watchOnce {
		if failed > 0 {
			return fmt.Errorf("%d materials failed to ingest", failed)
		}
		return nil
	}

	changes, err := folder.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", args[0], err)
	}
	cmd.Printf("Watching %s (Ctrl+C to stop)\n", args[0])
	for c := range changes {
		applyChange(ctx, cmd, p, c)
	}
	return nil
}

// applyChange mirrors one folder change into the ingestion service and
// reports whether it succeeded. Failures are printed, not returned, so
// one bad file does not stop the watch.
func applyChange(ctx context.Context, cmd *cobra.Command, p domain.Principal, c filesystem.Change) bool {
	log := logger.With("watch")

	if c.Type == filesystem.ChangeDeleted {
		err := ingestionService.Delete(ctx, p, c.MaterialID)
		switch {
		case err == nil:
			cmd.Printf("Deleted material: %s\n", c.MaterialID)
		case errors.Is(err, domain.ErrNotFound):
			log.Debug("%s was never ingested", c.MaterialID)
		default:
			cmd.PrintErrf("Failed to delete %s: %v\n", c.MaterialID, err)
			return false
		}
		return true
	}

	content, err := os.ReadFile(c.Path)
	if err != nil {
		cmd.PrintErrf("Failed to read %s: %v\n", c.Path, err)
		return false
	}
	if len(content) == 0 {
		// Editors often create the file before writing it.
		log.Debug("skipping empty file %s", c.Path)
		return true
	}

	status, err := ingestionService.Ingest(ctx, p, driving.IngestRequest{
		MaterialID:  c.MaterialID,
		Filename:    filepath.Base(c.Path),
		ContentType: contentTypeFor(c.Path),
		Content:     content,
	})
	if err != nil {
		cmd.PrintErrf("Failed to ingest %s: %v\n", c.Path, err)
		return false
	}
	cmd.Printf("Ingested material: %s (%s)\n", status.MaterialID, c.Type)
	return true
}
