package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

var (
	retrieveTopK int
	retrieveJSON bool
)

// snippetLength is the number of characters of chunk content shown per result.
const snippetLength = 160

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [material-id] [query]",
	Short: "Find the excerpts of a material relevant to a query",
	Long: `Embeds the query and returns the most similar chunks of one material,
ranked by score. Only materials of your school can be searched.`,
	Args: cobra.ExactArgs(2),
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().IntVarP(&retrieveTopK, "top-k", "k", 5, "maximum number of excerpts")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}
	p, err := principal()
	if err != nil {
		return err
	}

	chunks, err := retrievalService.Search(cmd.Context(), p, args[0], args[1], retrieveTopK)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	if retrieveJSON {
		data, err := json.MarshalIndent(chunks, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(chunks) == 0 {
		cmd.Println("No excerpts found.")
		return nil
	}

	cmd.Println("Excerpts:")
	cmd.Println()
	printExcerpts(cmd, chunks)
	return nil
}

// printExcerpts prints one numbered line per chunk followed by a snippet.
func printExcerpts(cmd *cobra.Command, chunks []domain.RetrievedChunk) {
	for i := range chunks {
		meta := chunks[i].Metadata
		label := meta.SectionTitle
		if label == "" {
			label = chunks[i].ChunkID
		}
		if meta.PageNumber != nil {
			label = fmt.Sprintf("%s (page %d)", label, *meta.PageNumber)
		}
		cmd.Printf("[%d] %s - %.3f\n", i+1, label, chunks[i].Score)
		cmd.Printf("    %s\n", snippet(meta.Content, snippetLength))
	}
}

// snippet flattens whitespace and cuts s to at most n runes.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
