package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/lectern/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides access to
// all persistence interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.lectern/data/lectern.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".lectern", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "lectern.db")

	// WAL for concurrent readers; foreign keys are per connection so they go in the DSN.
	db, err := sql.Open("sqlite", dbPath+
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// MaterialStore returns a MaterialStore interface backed by this store.
func (s *Store) MaterialStore() driven.MaterialStore {
	return &materialStore{store: s}
}

// ProcessingStore returns a ProcessingStore interface backed by this store.
func (s *Store) ProcessingStore() driven.ProcessingStore {
	return &processingStore{store: s}
}

// ConversationStore returns a ConversationStore interface backed by this store.
func (s *Store) ConversationStore() driven.ConversationStore {
	return &conversationStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Material Store ====================

// materialStore implements driven.MaterialStore.
type materialStore struct {
	store *Store
}

var _ driven.MaterialStore = (*materialStore)(nil)

// SaveMaterial stores or updates a material.
func (s *materialStore) SaveMaterial(ctx context.Context, m *domain.Material) error {
	if err := m.Validate(); err != nil {
		return err
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO materials (id, tenant_id, title, blob_key, content_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			title = excluded.title,
			blob_key = excluded.blob_key,
			content_type = excluded.content_type,
			updated_at = excluded.updated_at
	`, m.ID, m.TenantID, m.Title, m.BlobKey, m.ContentType, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving material: %w", err)
	}
	return nil
}

// SaveChunks replaces the chunks of a material in one transaction.
func (s *materialStore) SaveChunks(ctx context.Context, materialID string, chunks []domain.Chunk) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM materials WHERE id = ?", materialID).
		Scan(&exists); err != nil {
		return fmt.Errorf("checking material: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: material %s", domain.ErrNotFound, materialID)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE material_id = ?", materialID); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, material_id, tenant_id, chunk_index, chunk_type, content,
			token_count, char_count, page_number, section_title)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, materialID, c.TenantID, c.Index, string(c.Type),
			c.Content, c.TokenCount, c.CharCount, nullInt(c.PageNumber), c.SectionTitle); err != nil {
			return fmt.Errorf("saving chunk %d: %w", c.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetMaterial retrieves a material by ID.
func (s *materialStore) GetMaterial(ctx context.Context, id string) (*domain.Material, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, title, blob_key, content_type, created_at, updated_at
		FROM materials WHERE id = ?
	`, id)

	m, err := scanMaterial(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return m, err
}

// GetChunks retrieves all chunks for a material ordered by index.
func (s *materialStore) GetChunks(ctx context.Context, materialID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, material_id, tenant_id, chunk_index, chunk_type, content,
			token_count, char_count, page_number, section_title
		FROM chunks WHERE material_id = ?
		ORDER BY chunk_index
	`, materialID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return chunks, nil
}

// GetChunk retrieves a specific chunk by ID.
func (s *materialStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, material_id, tenant_id, chunk_index, chunk_type, content,
			token_count, char_count, page_number, section_title
		FROM chunks WHERE id = ?
	`, id)

	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return chunk, err
}

// DeleteMaterial removes a material; its chunks cascade.
func (s *materialStore) DeleteMaterial(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM materials WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting material: %w", err)
	}
	return nil
}

// ListMaterials returns the materials of a tenant, newest first.
func (s *materialStore) ListMaterials(ctx context.Context, tenantID string) ([]domain.Material, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, tenant_id, title, blob_key, content_type, created_at, updated_at
		FROM materials WHERE tenant_id = ?
		ORDER BY created_at DESC, id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying materials: %w", err)
	}
	defer rows.Close()

	materials := make([]domain.Material, 0)
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		materials = append(materials, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating materials: %w", err)
	}

	return materials, nil
}

// ==================== Processing Store ====================

// processingStore implements driven.ProcessingStore.
type processingStore struct {
	store *Store
}

var _ driven.ProcessingStore = (*processingStore)(nil)

// Save stores or updates a record.
func (s *processingStore) Save(ctx context.Context, r *domain.ProcessingRecord) error {
	var completedAt sql.NullTime
	if r.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *r.CompletedAt, Valid: true}
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO processing_records (material_id, status, total_chunks, processed_chunks,
			failed_chunks, embedding_model, last_error, started_at, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(material_id) DO UPDATE SET
			status = excluded.status,
			total_chunks = excluded.total_chunks,
			processed_chunks = excluded.processed_chunks,
			failed_chunks = excluded.failed_chunks,
			embedding_model = excluded.embedding_model,
			last_error = excluded.last_error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at
	`, r.MaterialID, string(r.Status), r.TotalChunks, r.ProcessedChunks, r.FailedChunks,
		r.EmbeddingModel, r.LastError, r.StartedAt, completedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving processing record: %w", err)
	}
	return nil
}

// Get retrieves the record of a material.
func (s *processingStore) Get(ctx context.Context, materialID string) (*domain.ProcessingRecord, error) {
	var r domain.ProcessingRecord
	var status string
	var completedAt sql.NullTime

	err := s.store.db.QueryRowContext(ctx, `
		SELECT material_id, status, total_chunks, processed_chunks, failed_chunks,
			embedding_model, last_error, started_at, completed_at, updated_at
		FROM processing_records WHERE material_id = ?
	`, materialID).Scan(&r.MaterialID, &status, &r.TotalChunks, &r.ProcessedChunks, &r.FailedChunks,
		&r.EmbeddingModel, &r.LastError, &r.StartedAt, &completedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning processing record: %w", err)
	}

	r.Status = domain.ProcessingStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

// Delete removes the record of a material.
func (s *processingStore) Delete(ctx context.Context, materialID string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM processing_records WHERE material_id = ?", materialID)
	if err != nil {
		return fmt.Errorf("deleting processing record: %w", err)
	}
	return nil
}

// ==================== Conversation Store ====================

// conversationStore implements driven.ConversationStore.
type conversationStore struct {
	store *Store
}

var _ driven.ConversationStore = (*conversationStore)(nil)

// SaveConversation stores or updates a conversation.
func (s *conversationStore) SaveConversation(ctx context.Context, c *domain.Conversation) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, tenant_id, material_id, title, status,
			total_messages, last_activity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			total_messages = excluded.total_messages,
			last_activity = excluded.last_activity
	`, c.ID, c.UserID, c.TenantID, c.MaterialID, c.Title, string(c.Status),
		c.TotalMessages, c.LastActivity, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *conversationStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, user_id, tenant_id, material_id, title, status, total_messages, last_activity, created_at
		FROM conversations WHERE id = ?
	`, id)

	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return c, err
}

// ListConversations returns a user's conversations, most recent first.
func (s *conversationStore) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, user_id, tenant_id, material_id, title, status, total_messages, last_activity, created_at
		FROM conversations WHERE user_id = ?
		ORDER BY last_activity DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	convs := make([]domain.Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	return convs, nil
}

// DeleteConversation removes a conversation; its messages cascade.
func (s *conversationStore) DeleteConversation(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}

// AppendMessage stores a new message. Messages are never updated.
func (s *conversationStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	refs := msg.ContextChunks
	if refs == nil {
		refs = []domain.ContextChunk{}
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("marshalling context chunks: %w", err)
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations WHERE id = ?", msg.ConversationID).
		Scan(&count); err != nil {
		return fmt.Errorf("checking conversation: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: conversation %s", domain.ErrNotFound, msg.ConversationID)
	}

	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE id = ?", msg.ID).
		Scan(&count); err != nil {
		return fmt.Errorf("checking message: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: message %s", domain.ErrAlreadyExists, msg.ID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, context_chunks,
			tokens_used, response_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, string(msg.Role), msg.Content, string(refsJSON),
		msg.TokensUsed, msg.ResponseTimeMs, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ListMessages returns the latest limit messages, oldest first.
func (s *conversationStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, context_chunks, tokens_used, response_time_ms, created_at
		FROM (
			SELECT * FROM messages WHERE conversation_id = ?
			ORDER BY seq DESC LIMIT ?
		) ORDER BY seq
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		var role, refsJSON string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &refsJSON,
			&m.TokensUsed, &m.ResponseTimeMs, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = domain.Role(role)
		if err := json.Unmarshal([]byte(refsJSON), &m.ContextChunks); err != nil {
			return nil, fmt.Errorf("unmarshalling context chunks: %w", err)
		}
		if len(m.ContextChunks) == 0 {
			m.ContextChunks = nil
		}
		msgs = append(msgs, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return msgs, nil
}

// ==================== Helper Functions ====================

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

// scanMaterial scans a single material row.
func scanMaterial(row scanner) (*domain.Material, error) {
	var m domain.Material
	if err := row.Scan(&m.ID, &m.TenantID, &m.Title, &m.BlobKey, &m.ContentType,
		&m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning material: %w", err)
	}
	return &m, nil
}

// scanChunk scans a single chunk row.
func scanChunk(row scanner) (*domain.Chunk, error) {
	var c domain.Chunk
	var chunkType string
	var page sql.NullInt64

	if err := row.Scan(&c.ID, &c.MaterialID, &c.TenantID, &c.Index, &chunkType, &c.Content,
		&c.TokenCount, &c.CharCount, &page, &c.SectionTitle); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	c.Type = domain.ChunkType(chunkType)
	if page.Valid {
		n := int(page.Int64)
		c.PageNumber = &n
	}
	return &c, nil
}

// scanConversation scans a single conversation row.
func scanConversation(row scanner) (*domain.Conversation, error) {
	var c domain.Conversation
	var status string

	if err := row.Scan(&c.ID, &c.UserID, &c.TenantID, &c.MaterialID, &c.Title, &status,
		&c.TotalMessages, &c.LastActivity, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	c.Status = domain.ConversationStatus(status)
	return &c, nil
}
