// Command lectern runs the grounded study chat pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/custodia-labs/lectern/internal/adapters/driven/ai"
	"github.com/custodia-labs/lectern/internal/adapters/driven/authz"
	"github.com/custodia-labs/lectern/internal/adapters/driven/blob"
	"github.com/custodia-labs/lectern/internal/adapters/driven/config/file"
	"github.com/custodia-labs/lectern/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/lectern/internal/adapters/driven/usage"
	"github.com/custodia-labs/lectern/internal/adapters/driving/cli"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/services"
	"github.com/custodia-labs/lectern/internal/logger"
	"github.com/custodia-labs/lectern/internal/normalisers"
	"github.com/custodia-labs/lectern/internal/postprocessors"
	"github.com/custodia-labs/lectern/internal/ratelimit"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := file.LoadEnvFile(os.Getenv("LECTERN_ENV_FILE")); err != nil {
		return err
	}

	settingsStore, err := file.NewSettingsStore(os.Getenv("LECTERN_CONFIG_DIR"))
	if err != nil {
		return fmt.Errorf("settings store: %w", err)
	}
	settingsService := services.NewSettingsService(settingsStore, services.WithValidator(ai.NewConfigValidator()))

	cli.SetVersion(version)

	settings, err := settingsService.Get()
	if err != nil {
		// Config commands still work, so the file can be fixed.
		logger.Warn("settings unavailable: %v", err)
		cli.SetServices(cli.Services{Settings: settingsService})
		return cli.Execute(ctx)
	}

	app, err := wire(ctx, settings)
	if err != nil {
		logger.Error("%v", err)
		cli.SetServices(cli.Services{Settings: settingsService})
		return cli.Execute(ctx)
	}
	defer app.close()

	app.services.Settings = settingsService
	cli.SetServices(app.services)
	return cli.Execute(ctx)
}

// application holds wired services and the resources to release on exit.
type application struct {
	services cli.Services
	closers  []func() error
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("shutdown: %v", err)
		}
	}
}

// wire builds every adapter and service from settings. Services that
// need an OpenAI key are left unset when none is configured.
func wire(ctx context.Context, settings *domain.Settings) (*application, error) {
	app := &application{}

	store, err := sqlite.NewStore(settings.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app.closers = append(app.closers, store.Close)

	blobDir := settings.Storage.BlobDir
	if blobDir == "" {
		blobDir = filepath.Join(filepath.Dir(store.Path()), "blobs")
	}
	blobs, err := blob.NewFileStore(blobDir)
	if err != nil {
		app.close()
		return nil, err
	}

	prompts, err := file.NewPromptStore(os.Getenv("LECTERN_PROMPT_DIR"))
	if err != nil {
		app.close()
		return nil, fmt.Errorf("prompt store: %w", err)
	}

	providers, err := ai.Init(ctx, settings, prompts)
	if err != nil {
		app.close()
		return nil, err
	}
	app.closers = append(app.closers, providers.Close)
	for _, w := range providers.Warnings {
		logger.Warn("%s", w)
	}

	index := services.NewVectorIndex(providers.Vectors, services.VectorIndexConfigFrom(settings.Index, settings.Embedding.Dimension))
	app.closers = append(app.closers, func() error {
		return index.Shutdown(context.Background())
	})
	app.services.Index = index

	if providers.Embedding == nil {
		return app, nil
	}

	materials := store.MaterialStore()
	authorizer := authz.NewTenantAuthorizer()

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: settings.Embedding.RequestsPerSecond,
		Burst:             settings.Embedding.Burst,
	})
	embedder := services.NewEmbeddingGenerator(providers.Embedding, limiter, services.EmbeddingConfigFrom(settings.Embedding))

	chunks, err := postprocessors.FromSettings(settings.Chunking)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("chunk pipeline: %w", err)
	}

	tracker := services.NewProcessingTracker(store.ProcessingStore())
	app.services.Ingestion = services.NewIngestionPipeline(
		materials,
		blobs,
		chunks,
		embedder,
		index,
		tracker,
		authorizer,
		services.WithNormalisers(normalisers.DefaultRegistry()),
	)

	var retrievalOpts []services.RetrievalOption
	retrievalOpts = append(retrievalOpts, services.WithDefaultTopK(settings.Chat.TopK))
	if settings.Chat.HeadingBoost > 0 {
		retrievalOpts = append(retrievalOpts, services.WithReranker(services.HeadingBoost{Boost: settings.Chat.HeadingBoost}))
	}
	retrieval := services.NewRetrievalEngine(embedder, index, materials, authorizer, retrievalOpts...)
	app.services.Retrieval = retrieval

	app.services.Conversation = services.NewConversationOrchestrator(
		store.ConversationStore(),
		materials,
		retrieval,
		providers.Generator,
		usage.NewLimiter(usage.Limits{
			DailyTokens:    settings.Usage.DailyTokens,
			WeeklyMessages: settings.Usage.WeeklyMessages,
		}),
		authorizer,
		services.ConversationConfigFrom(settings.Chat),
	)

	return app, nil
}
