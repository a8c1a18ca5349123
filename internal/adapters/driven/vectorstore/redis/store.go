// Package redis provides a vector store on Redis with the RediSearch module.
// Each collection is an HNSW index over hashes sharing the key prefix
// "<collection>:". Isolation fields are TAG fields so filters are exact.
package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.VectorStoreProvider = (*Store)(nil)

const (
	// Default index configuration
	defaultEFConstruction = 200
	defaultM              = 16

	// deletePageSize bounds each FT.SEARCH page while deleting.
	deletePageSize = 500

	// specKeyPrefix holds declared collection shapes outside any index prefix.
	specKeyPrefix = "__lectern:collection:"
)

// Field names in the Redis hash.
const (
	fieldVector       = "vector"
	fieldTenantID     = "tenant_id"
	fieldMaterialID   = "material_id"
	fieldChunkType    = "chunk_type"
	fieldChunkIndex   = "chunk_index"
	fieldContent      = "content"
	fieldPageNumber   = "page_number"
	fieldSectionTitle = "section_title"
	fieldTokenCount   = "token_count"
	fieldCharCount    = "char_count"
	fieldDistance     = "dist"
)

var returnFields = []string{
	fieldTenantID, fieldMaterialID, fieldChunkType, fieldChunkIndex, fieldContent,
	fieldPageNumber, fieldSectionTitle, fieldTokenCount, fieldCharCount, fieldDistance,
}

// Config holds Redis connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Store implements driven.VectorStoreProvider on RediSearch.
type Store struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
		// FT.* replies are parsed as RESP2 arrays.
		Protocol: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewFromClient(client), nil
}

// NewFromClient wraps an existing client. The client must use RESP2.
func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// CreateCollection creates the HNSW index and records its declared shape.
func (s *Store) CreateCollection(ctx context.Context, spec driven.CollectionSpec) error {
	if spec.Metric != "" && spec.Metric != domain.MetricCosine {
		return fmt.Errorf("%w: unsupported metric %q", domain.ErrValidation, spec.Metric)
	}

	exists, err := s.client.Exists(ctx, specKey(spec.Name)).Result()
	if err != nil {
		return err
	}
	if exists > 0 {
		return fmt.Errorf("%w: collection %s", domain.ErrAlreadyExists, spec.Name)
	}

	// FT.CREATE <name> ON HASH PREFIX 1 <name>:
	//   SCHEMA vector VECTOR HNSW 10 TYPE FLOAT32 DIM <d> DISTANCE_METRIC COSINE EF_CONSTRUCTION 200 M 16
	//          tenant_id TAG material_id TAG chunk_type TAG chunk_index NUMERIC content TEXT
	_, err = s.client.Do(ctx, "FT.CREATE", spec.Name,
		"ON", "HASH",
		"PREFIX", "1", keyPrefix(spec.Name),
		"SCHEMA",
		fieldVector, "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(spec.Dimension),
		"DISTANCE_METRIC", "COSINE",
		"EF_CONSTRUCTION", strconv.Itoa(defaultEFConstruction),
		"M", strconv.Itoa(defaultM),
		fieldTenantID, "TAG",
		fieldMaterialID, "TAG",
		fieldChunkType, "TAG",
		fieldChunkIndex, "NUMERIC",
		fieldContent, "TEXT",
	).Result()
	if err != nil {
		return fmt.Errorf("create index %s: %w", spec.Name, err)
	}

	return s.client.HSet(ctx, specKey(spec.Name),
		"dimension", spec.Dimension,
		"metric", string(domain.MetricCosine),
	).Err()
}

// DescribeCollection returns the declared shape of a collection.
func (s *Store) DescribeCollection(ctx context.Context, name string) (*driven.CollectionSpec, error) {
	fields, err := s.client.HGetAll(ctx, specKey(name)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: collection %s", domain.ErrNotFound, name)
	}

	dim, err := strconv.Atoi(fields["dimension"])
	if err != nil {
		return nil, fmt.Errorf("collection %s has malformed dimension %q", name, fields["dimension"])
	}
	return &driven.CollectionSpec{
		Name:      name,
		Dimension: dim,
		Metric:    domain.DistanceMetric(fields["metric"]),
	}, nil
}

// Upsert writes records as hashes in one pipeline.
func (s *Store) Upsert(ctx context.Context, collection string, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	spec, err := s.DescribeCollection(ctx, collection)
	if err != nil {
		return err
	}
	for _, r := range records {
		if len(r.Values) != spec.Dimension {
			return fmt.Errorf("record %s has dimension %d, collection has %d", r.ID, len(r.Values), spec.Dimension)
		}
	}

	pipe := s.client.Pipeline()
	for _, r := range records {
		pipe.HSet(ctx, keyPrefix(collection)+r.ID, recordFields(r)...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert %d records: %w", len(records), err)
	}
	return nil
}

// Query runs a filtered KNN search. Score is cosine similarity.
func (s *Store) Query(ctx context.Context, collection string, q driven.VectorQuery) ([]domain.VectorMatch, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}

	// FT.SEARCH <name> "(@tenant_id:{t})=>[KNN 5 @vector $vec AS dist]"
	//   PARAMS 2 vec <bytes> SORTBY dist RETURN n ... LIMIT 0 5 DIALECT 2
	args := []any{
		"FT.SEARCH", collection, knnQuery(q.Filter, topK),
		"PARAMS", "2", "vec", encodeVector(q.Vector),
		"SORTBY", fieldDistance,
		"RETURN", strconv.Itoa(len(returnFields)),
	}
	for _, f := range returnFields {
		args = append(args, f)
	}
	args = append(args, "LIMIT", "0", strconv.Itoa(topK), "DIALECT", "2")

	res, err := s.client.Do(ctx, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return parseSearchResults(keyPrefix(collection), res)
}

// Delete removes every record matching filter. An empty filter is refused.
func (s *Store) Delete(ctx context.Context, collection string, filter domain.VectorFilter) (int, error) {
	if filter.IsEmpty() {
		return 0, fmt.Errorf("%w: refusing to delete with an empty filter", domain.ErrValidation)
	}

	deleted := 0
	for {
		res, err := s.client.Do(ctx, "FT.SEARCH", collection, filterQuery(filter),
			"NOCONTENT",
			"LIMIT", "0", strconv.Itoa(deletePageSize),
			"DIALECT", "2",
		).Result()
		if err != nil {
			return deleted, fmt.Errorf("find records to delete: %w", err)
		}

		keys := parseKeys(res)
		if len(keys) == 0 {
			return deleted, nil
		}
		n, err := s.client.Del(ctx, keys...).Result()
		if err != nil {
			return deleted, fmt.Errorf("delete records: %w", err)
		}
		deleted += int(n)
		if len(keys) < deletePageSize {
			return deleted, nil
		}
	}
}

// DescribeStats returns the index document count.
func (s *Store) DescribeStats(ctx context.Context, collection string) (*domain.IndexStats, error) {
	spec, err := s.DescribeCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	info, err := s.client.Do(ctx, "FT.INFO", collection).Result()
	if err != nil {
		return nil, fmt.Errorf("get index info: %w", err)
	}
	count, err := parseNumDocs(info)
	if err != nil {
		return nil, err
	}

	return &domain.IndexStats{
		Collection:  collection,
		Dimension:   spec.Dimension,
		Metric:      spec.Metric,
		RecordCount: count,
	}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func keyPrefix(collection string) string {
	return collection + ":"
}

func specKey(collection string) string {
	return specKeyPrefix + collection
}

// recordFields flattens a record into HSET field/value pairs.
func recordFields(r domain.VectorRecord) []any {
	m := r.Metadata
	page := ""
	if m.PageNumber != nil {
		page = strconv.Itoa(*m.PageNumber)
	}
	return []any{
		fieldVector, encodeVector(r.Values),
		fieldTenantID, m.TenantID,
		fieldMaterialID, m.MaterialID,
		fieldChunkType, string(m.ChunkType),
		fieldChunkIndex, m.ChunkIndex,
		fieldContent, m.Content,
		fieldPageNumber, page,
		fieldSectionTitle, m.SectionTitle,
		fieldTokenCount, m.TokenCount,
		fieldCharCount, m.CharCount,
	}
}

// encodeVector packs a vector as little-endian FLOAT32 bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// filterQuery renders the equality filter as RediSearch TAG clauses.
func filterQuery(f domain.VectorFilter) string {
	var parts []string
	if f.TenantID != "" {
		parts = append(parts, fmt.Sprintf("@%s:{%s}", fieldTenantID, escapeTag(f.TenantID)))
	}
	if f.MaterialID != "" {
		parts = append(parts, fmt.Sprintf("@%s:{%s}", fieldMaterialID, escapeTag(f.MaterialID)))
	}
	if f.ChunkType != "" {
		parts = append(parts, fmt.Sprintf("@%s:{%s}", fieldChunkType, escapeTag(string(f.ChunkType))))
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

func knnQuery(f domain.VectorFilter, topK int) string {
	filter := filterQuery(f)
	if filter != "*" {
		filter = "(" + filter + ")"
	}
	return fmt.Sprintf("%s=>[KNN %d @%s $vec AS %s]", filter, topK, fieldVector, fieldDistance)
}

// escapeTag escapes every character RediSearch treats as TAG syntax.
// IDs are UUIDs, so hyphens are the common case.
func escapeTag(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// parseSearchResults parses an FT.SEARCH reply: [total, key, [field, value, ...], ...].
func parseSearchResults(prefix string, res any) ([]domain.VectorMatch, error) {
	values, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected search reply %T", res)
	}

	matches := make([]domain.VectorMatch, 0, len(values)/2)
	for i := 1; i+1 < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			continue
		}
		fields, ok := values[i+1].([]any)
		if !ok {
			continue
		}
		match, err := parseMatch(strings.TrimPrefix(key, prefix), fields)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func parseMatch(id string, fields []any) (domain.VectorMatch, error) {
	match := domain.VectorMatch{ID: id}
	m := &match.Metadata
	for i := 0; i+1 < len(fields); i += 2 {
		name, _ := fields[i].(string)
		value := toString(fields[i+1])
		switch name {
		case fieldTenantID:
			m.TenantID = value
		case fieldMaterialID:
			m.MaterialID = value
		case fieldChunkType:
			m.ChunkType = domain.ChunkType(value)
		case fieldChunkIndex:
			m.ChunkIndex, _ = strconv.Atoi(value)
		case fieldContent:
			m.Content = value
		case fieldPageNumber:
			if value != "" {
				if n, err := strconv.Atoi(value); err == nil {
					m.PageNumber = &n
				}
			}
		case fieldSectionTitle:
			m.SectionTitle = value
		case fieldTokenCount:
			m.TokenCount, _ = strconv.Atoi(value)
		case fieldCharCount:
			m.CharCount, _ = strconv.Atoi(value)
		case fieldDistance:
			dist, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return match, fmt.Errorf("record %s has malformed distance %q", id, value)
			}
			// COSINE distance is 1 - cosine similarity.
			match.Score = 1 - dist
		}
	}
	return match, nil
}

// parseKeys returns the document keys of an FT.SEARCH NOCONTENT reply.
func parseKeys(res any) []string {
	values, ok := res.([]any)
	if !ok || len(values) < 2 {
		return nil
	}
	keys := make([]string, 0, len(values)-1)
	for _, v := range values[1:] {
		if key, ok := v.(string); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// parseNumDocs extracts num_docs from an FT.INFO reply.
func parseNumDocs(info any) (int64, error) {
	values, ok := info.([]any)
	if !ok {
		return 0, fmt.Errorf("unexpected info reply %T", info)
	}
	for i := 0; i+1 < len(values); i += 2 {
		if key, ok := values[i].(string); ok && key == "num_docs" {
			return strconv.ParseInt(toString(values[i+1]), 10, 64)
		}
	}
	return 0, errors.New("num_docs missing from index info")
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
