package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/zero-day-ai/crucible/internal/types"
	"go.opentelemetry.io/otel/attribute"
)

// EmbeddingRecord is a vector computed from the converted value of a text piece.
// ID equals the piece id.
type EmbeddingRecord struct {
	ID                types.ID  `json:"id"`
	Embedding         []float64 `json:"embedding"`
	EmbeddingTypeName string    `json:"embedding_type_name"`
	CreatedAt         time.Time `json:"created_at"`
}

// SimilarPiece is a search hit returned by SimilarPieces.
type SimilarPiece struct {
	Piece      Piece   `json:"piece"`
	Similarity float64 `json:"similarity"`
}

// indexEmbeddings embeds the text pieces of a committed insert. Failures are
// logged and swallowed; the pieces themselves are already durable.
func (s *SQLiteStore) indexEmbeddings(ctx context.Context, pieces []*Piece) {
	if s.embedder == nil {
		return
	}

	var targets []*Piece
	var texts []string
	for _, p := range pieces {
		if p.ConvertedValueDataType != types.DataTypeText || strings.TrimSpace(p.ConvertedValue) == "" {
			continue
		}
		targets = append(targets, p)
		texts = append(texts, p.ConvertedValue)
	}
	if len(targets) == 0 {
		return
	}

	ctx, span := s.tracer.Start(ctx, "MemoryStore.IndexEmbeddings")
	defer span.End()
	span.SetAttributes(
		attribute.Int("memory.embedding.count", len(texts)),
		attribute.String("memory.embedding.model", s.embedder.Model()),
	)

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		recordSpanError(span, err)
		s.logger.Warn("embedding generation failed, pieces stored without embeddings",
			"pieces", len(targets),
			"model", s.embedder.Model(),
			"error", err,
		)
		return
	}
	if len(vectors) != len(targets) {
		s.logger.Warn("embedder returned unexpected vector count",
			"expected", len(targets),
			"got", len(vectors),
		)
		return
	}

	now := time.Now().UTC().Format(timeFormat)
	model := s.embedder.Model()

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for i, p := range targets {
			blob, err := serializeEmbedding(vectors[i])
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO embeddings (id, embedding, dimensions, embedding_type_name, created_at)
				VALUES (?, ?, ?, ?, ?)`,
				p.ID.String(), blob, len(vectors[i]), model, now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert embedding for piece %s: %w", p.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		s.logger.Warn("failed to persist embeddings", "pieces", len(targets), "error", err)
	}
}

// QueryEmbeddings returns embedding records matching filter.
func (s *SQLiteStore) QueryEmbeddings(ctx context.Context, filter EmbeddingFilter) ([]EmbeddingRecord, error) {
	ctx, span := s.tracer.Start(ctx, "MemoryStore.QueryEmbeddings")
	defer span.End()

	var where []string
	var args []interface{}

	if len(filter.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(filter.IDs))+")")
		for _, id := range filter.IDs {
			args = append(args, id.String())
		}
	}
	if filter.Model != "" {
		where = append(where, "embedding_type_name = ?")
		args = append(args, filter.Model)
	}

	query := "SELECT id, embedding, dimensions, embedding_type_name, created_at FROM embeddings"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, recordSpanError(span, NewStoreError("failed to query embeddings", err))
	}
	defer rows.Close()

	records := make([]EmbeddingRecord, 0)
	for rows.Next() {
		var rec EmbeddingRecord
		var id, createdAt string
		var blob []byte
		var dims int

		if err := rows.Scan(&id, &blob, &dims, &rec.EmbeddingTypeName, &createdAt); err != nil {
			return nil, NewStoreError("failed to scan embedding", err)
		}

		rec.ID = types.ID(id)
		if rec.Embedding, err = deserializeEmbedding(blob, dims); err != nil {
			return nil, types.WrapError(ErrCodeEmbeddingFailed, "failed to decode embedding "+id, err)
		}
		if rec.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse embedding timestamp: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, NewStoreError("error iterating embeddings", err)
	}
	return records, nil
}

// SimilarPieces embeds text and returns the stored pieces closest to it by
// cosine similarity, best first. Only embeddings produced by the configured
// embedder model are compared.
func (s *SQLiteStore) SimilarPieces(ctx context.Context, text string, limit int) ([]SimilarPiece, error) {
	if s.embedder == nil {
		return nil, types.NewError(ErrCodeEmbeddingFailed, "store has no embedder configured")
	}
	if limit <= 0 {
		limit = 10
	}

	query, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, types.WrapError(ErrCodeEmbeddingFailed, "failed to embed query", err)
	}

	records, err := s.QueryEmbeddings(ctx, EmbeddingFilter{Model: s.embedder.Model()})
	if err != nil {
		return nil, err
	}

	type hit struct {
		id    types.ID
		score float64
	}
	hits := make([]hit, 0, len(records))
	for _, rec := range records {
		hits = append(hits, hit{id: rec.ID, score: cosineSimilarity(query, rec.Embedding)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	if len(hits) == 0 {
		return []SimilarPiece{}, nil
	}

	ids := make([]types.ID, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	pieces, err := s.QueryPieces(ctx, PieceFilter{IDs: ids})
	if err != nil {
		return nil, err
	}
	byID := make(map[types.ID]Piece, len(pieces))
	for _, p := range pieces {
		byID[p.ID] = p
	}

	results := make([]SimilarPiece, 0, len(hits))
	for _, h := range hits {
		if p, ok := byID[h.id]; ok {
			results = append(results, SimilarPiece{Piece: p, Similarity: h.score})
		}
	}
	return results, nil
}

// serializeEmbedding encodes a vector as little-endian float64 values.
func serializeEmbedding(embedding []float64) ([]byte, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("embedding cannot be empty")
	}

	buf := make([]byte, len(embedding)*8)
	for i, val := range embedding {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(val))
	}
	return buf, nil
}

func deserializeEmbedding(buf []byte, dims int) ([]float64, error) {
	if len(buf) != dims*8 {
		return nil, fmt.Errorf("invalid embedding length: expected %d bytes, got %d", dims*8, len(buf))
	}

	embedding := make([]float64, dims)
	for i := range embedding {
		embedding[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return embedding, nil
}

// cosineSimilarity returns (a . b) / (|a| |b|), or 0 for mismatched or zero vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
