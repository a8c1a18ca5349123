// Package cli provides the lectern command line interface.
package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
)

// Environment variables consulted when --user or --tenant is not given.
const (
	EnvUser   = "LECTERN_USER"
	EnvTenant = "LECTERN_TENANT"
)

// skipIndexAnnotation marks commands that run without an initialised index.
const skipIndexAnnotation = "lectern/skip-index"

var (
	version = "dev"

	verbose  bool
	userID   string
	tenantID string
)

var (
	ingestionService    driving.IngestionService
	retrievalService    driving.RetrievalService
	conversationService driving.ConversationService
	indexService        driving.VectorIndexService
	settingsService     driving.SettingsService
)

// Services are the driving ports the CLI calls.
type Services struct {
	Ingestion    driving.IngestionService
	Retrieval    driving.RetrievalService
	Conversation driving.ConversationService
	Index        driving.VectorIndexService
	Settings     driving.SettingsService
}

var rootCmd = &cobra.Command{
	Use:   "lectern",
	Short: "Grounded study chat over course materials",
	Long: `Lectern ingests course materials, indexes them as embeddings and answers
student questions using only the excerpts retrieved from a material.

Commands act on behalf of a user in a school (tenant). Pass --user and
--tenant, or set LECTERN_USER and LECTERN_TENANT.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: preRun,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "user to act as (default $"+EnvUser+")")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "school the user belongs to (default $"+EnvTenant+")")
}

// SetServices injects the services commands run against.
func SetServices(s Services) {
	ingestionService = s.Ingestion
	retrievalService = s.Retrieval
	conversationService = s.Conversation
	indexService = s.Index
	settingsService = s.Settings
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// preRun applies --verbose and brings the vector index to READY for
// commands that need it.
func preRun(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	if cmd.Annotations[skipIndexAnnotation] == "true" || cmd.Name() == "help" {
		return nil
	}
	if indexService == nil || indexService.State() == domain.IndexReady {
		return nil
	}
	logger.Debug("initialising vector index for %s", cmd.CommandPath())
	return indexService.Initialize(cmd.Context())
}

var skipIndex = map[string]string{skipIndexAnnotation: "true"}

// principal resolves the acting user from flags, then the environment.
func principal() (domain.Principal, error) {
	p := domain.Principal{UserID: userID, TenantID: tenantID}
	if p.UserID == "" {
		p.UserID = os.Getenv(EnvUser)
	}
	if p.TenantID == "" {
		p.TenantID = os.Getenv(EnvTenant)
	}
	if p.UserID == "" || p.TenantID == "" {
		return domain.Principal{}, errors.New("--user and --tenant are required (or set " + EnvUser + " and " + EnvTenant + ")")
	}
	return p, nil
}
