package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Manage application settings",
	Long:        `View the effective settings or write a settings file with the defaults.`,
	Annotations: skipIndex,
	RunE:        runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Show current settings",
	Annotations: skipIndex,
	RunE:        runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write the default settings file",
	Annotations: skipIndex,
	RunE:        runConfigInit,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the configured AI providers are reachable",
	Long: `Sends a lightweight request to the embedding and chat providers with the
effective settings, to catch a wrong API key or base URL before ingesting.`,
	Annotations: skipIndex,
	RunE:        runConfigCheck,
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing settings file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	if path := settingsService.Path(); path != "" {
		cmd.Printf("File: %s\n", path)
	}
	cmd.Println()

	cmd.Println("[Embedding]")
	cmd.Printf("  Model: %s (%d dimensions)\n", settings.Embedding.Model, settings.Embedding.Dimension)
	if settings.Embedding.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	}
	cmd.Printf("  API Key: %s\n", maskAPIKey(settings.Embedding.APIKey))
	cmd.Printf("  Batch size: %d\n", settings.Embedding.BatchSize)
	cmd.Printf("  Rate limit: %.1f req/s (burst %d)\n", settings.Embedding.RequestsPerSecond, settings.Embedding.Burst)
	cmd.Println()

	cmd.Println("[Index]")
	cmd.Printf("  Provider: %s\n", settings.Index.Provider.Description())
	cmd.Printf("  Collection: %s\n", settings.Index.CollectionName())
	if settings.Index.Provider == domain.VectorProviderRedis {
		cmd.Printf("  Redis: %s (db %d)\n", settings.Index.RedisAddr, settings.Index.RedisDB)
	}
	cmd.Println()

	cmd.Println("[Chat]")
	cmd.Printf("  Model: %s\n", settings.Chat.Model)
	cmd.Printf("  API Key: %s\n", maskAPIKey(settings.Chat.APIKey))
	cmd.Printf("  Top K: %d\n", settings.Chat.TopK)
	cmd.Printf("  Context budget: %d tokens\n", settings.Chat.ContextTokenBudget)
	cmd.Println()

	cmd.Println("[Chunking]")
	cmd.Printf("  Chunk size: %d\n", settings.Chunking.ChunkSize)
	cmd.Printf("  Overlap: %d\n", settings.Chunking.Overlap)
	cmd.Printf("  Processors: %s\n", strings.Join(settings.Chunking.Processors, ", "))
	cmd.Println()

	cmd.Println("[Usage]")
	cmd.Printf("  Daily tokens: %s\n", limitString(settings.Usage.DailyTokens))
	cmd.Printf("  Weekly messages: %s\n", limitString(settings.Usage.WeeklyMessages))
	cmd.Println()

	cmd.Println("[Server]")
	cmd.Printf("  Address: %s\n", settings.Server.Addr)
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	path := settingsService.Path()
	if path != "" && !configForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("settings file %s already exists (use --force to overwrite)", path)
		}
	}

	defaults := settingsService.GetDefaults()
	if err := settingsService.Save(&defaults); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	if path != "" {
		cmd.Printf("Wrote default settings to %s\n", path)
	} else {
		cmd.Println("Saved default settings.")
	}
	return nil
}

func runConfigCheck(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	checks, err := settingsService.Check(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to check providers: %w", err)
	}

	var failed int
	for _, c := range checks {
		if c.Err != nil {
			failed++
			cmd.Printf("  %-9s %s: FAILED (%v)\n", c.Provider, c.Model, c.Err)
			continue
		}
		cmd.Printf("  %-9s %s: ok\n", c.Provider, c.Model)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d providers failed", failed, len(checks))
	}
	return nil
}

func maskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func limitString(n int) string {
	if n <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}
