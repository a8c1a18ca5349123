// Package sqlite persists materials, chunks, processing records and
// conversations in a single SQLite database using the pure Go
// modernc.org/sqlite driver.
//
// One Store owns the connection and hands out the MaterialStore,
// ProcessingStore and ConversationStore views. Deleting a material
// cascades to its chunks and deleting a conversation cascades to its
// messages. Processing records are removed by the tracker.
//
// The schema lives in migrations/ as numbered .up.sql/.down.sql pairs,
// applied in order when the store opens. The database file is
// <data dir>/lectern.db, ~/.lectern/data by default. WAL mode lets
// readers proceed while an ingestion writes.
package sqlite
