// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - EmbeddingProvider: Turns text into fixed-dimension vectors
//   - VectorStoreProvider: Remote or in-process nearest-neighbour collection
//   - MaterialStore: Material and chunk persistence
//   - ProcessingStore: Ingestion progress persistence
//   - ConversationStore: Conversation and message persistence
//   - ChunkPipeline: Splits material text into chunks
//
// # Collaborators
//
// These are owned by other parts of the platform and consumed through
// narrow contracts:
//
//   - Generator: Produces the answer text for a chat turn
//   - Authorizer: Decides whether a principal may access a resource
//   - UsageLimiter: Tracks per-user quotas
//   - BlobStore: Holds the original uploaded bytes (optional)
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or postprocessor package
package driven
