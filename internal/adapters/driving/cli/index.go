package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the vector index",
	Long:  `Create the vector collection and inspect its health.`,
}

var indexInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Create or verify the vector collection",
	Annotations: skipIndex,
	RunE:        runIndexInit,
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vector index statistics",
	RunE:  runIndexStats,
}

func init() {
	indexCmd.AddCommand(indexInitCmd)
	indexCmd.AddCommand(indexStatsCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexInit(cmd *cobra.Command, _ []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	if err := indexService.Initialize(cmd.Context()); err != nil {
		return fmt.Errorf("failed to initialise index: %w", err)
	}

	stats, err := indexService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get index stats: %w", err)
	}
	cmd.Printf("Index %s is %s (%d dimensions)\n", stats.Collection, stats.State, stats.Dimension)
	return nil
}

func runIndexStats(cmd *cobra.Command, _ []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	stats, err := indexService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get index stats: %w", err)
	}
	printIndexStats(cmd, stats)
	return nil
}

func printIndexStats(cmd *cobra.Command, stats *domain.IndexStats) {
	cmd.Println("Vector Index")
	cmd.Println("============")
	cmd.Printf("  Collection: %s\n", stats.Collection)
	cmd.Printf("  State:      %s\n", stats.State)
	cmd.Printf("  Dimension:  %d\n", stats.Dimension)
	cmd.Printf("  Metric:     %s\n", stats.Metric)
	cmd.Printf("  Records:    %d\n", stats.RecordCount)
}
