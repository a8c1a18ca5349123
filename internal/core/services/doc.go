// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The ingestion path is IngestionPipeline → EmbeddingGenerator →
// VectorIndex, with progress kept by ProcessingTracker. The chat path is
// ConversationOrchestrator → RetrievalEngine → VectorIndex.
//
// Services are pure Go with no CGO dependencies.
package services
