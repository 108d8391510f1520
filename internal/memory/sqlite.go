package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zero-day-ai/crucible/internal/database"
	"github.com/zero-day-ai/crucible/internal/memory/embedder"
	"github.com/zero-day-ai/crucible/internal/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// timeFormat is fixed width so stored timestamps compare correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const pieceColumns = `
	id, role, conversation_id, sequence, timestamp,
	labels, prompt_metadata, converter_identifiers,
	prompt_target_identifier, orchestrator_identifier, orchestrator_id,
	original_value_data_type, original_value, original_value_sha256,
	converted_value_data_type, converted_value, converted_value_sha256,
	response_error`

const scoreColumns = `
	id, score_value, score_value_description, score_type, score_category,
	score_rationale, score_metadata, scorer_class_identifier,
	prompt_request_response_id, timestamp`

// queryer is satisfied by both *database.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// StoreOption configures a SQLiteStore.
type StoreOption func(*SQLiteStore)

// WithEmbedder enables best-effort embedding of text pieces on insert.
// Without it no embeddings are generated.
func WithEmbedder(e embedder.Embedder) StoreOption {
	return func(s *SQLiteStore) {
		s.embedder = e
	}
}

// WithLogger sets the logger used for best-effort failures.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *SQLiteStore) {
		s.logger = logger
	}
}

// WithTracer sets the tracer used for store spans.
func WithTracer(tracer trace.Tracer) StoreOption {
	return func(s *SQLiteStore) {
		s.tracer = tracer
	}
}

// SQLiteStore implements Store on top of the SQLite database.
//
// Concurrent writers are serialized by SQLite itself (WAL journal, immediate
// transactions and a busy timeout); the store keeps no in-process lock.
type SQLiteStore struct {
	db       *database.DB
	embedder embedder.Embedder
	logger   *slog.Logger
	tracer   trace.Tracer
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store over an already migrated database.
func NewSQLiteStore(db *database.DB, opts ...StoreOption) *SQLiteStore {
	s := &SQLiteStore{
		db:     db,
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("memory"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert appends pieces in a single transaction.
func (s *SQLiteStore) Insert(ctx context.Context, pieces ...*Piece) error {
	if len(pieces) == 0 {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "MemoryStore.Insert",
		trace.WithAttributes(attribute.Int("memory.pieces", len(pieces))))
	defer span.End()

	for i, p := range pieces {
		if p == nil {
			return recordSpanError(span, NewInvalidPieceError("", fmt.Sprintf("piece %d of %d is nil", i+1, len(pieces))))
		}
		prepareForInsert(p)
		if err := p.Validate(); err != nil {
			return recordSpanError(span, err)
		}
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO prompt_pieces (`+pieceColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, p := range pieces {
			args, err := encodePiece(p)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				if database.IsUniqueViolation(err) {
					return NewPersistenceConflictError("piece", p.ID, err)
				}
				return NewStoreError(fmt.Sprintf("failed to insert piece %s", p.ID), err)
			}
		}
		return nil
	})
	if err != nil {
		return recordSpanError(span, err)
	}

	s.indexEmbeddings(ctx, pieces)
	return nil
}

func prepareForInsert(p *Piece) {
	if p.ID.IsZero() {
		p.ID = types.NewID()
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	if p.OriginalValueDataType == "" {
		p.OriginalValueDataType = types.DataTypeText
	}
	if p.ConvertedValueDataType == "" {
		p.ConvertedValueDataType = p.OriginalValueDataType
	}
	if p.ResponseError == "" {
		p.ResponseError = ResponseErrorNone
	}
	p.ComputeHashes()
}

// QueryPieces returns pieces matching filter.
func (s *SQLiteStore) QueryPieces(ctx context.Context, filter PieceFilter) ([]Piece, error) {
	ctx, span := s.tracer.Start(ctx, "MemoryStore.QueryPieces")
	defer span.End()

	pieces, err := queryPieces(ctx, s.db, filter)
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	span.SetAttributes(attribute.Int("memory.results", len(pieces)))
	return pieces, nil
}

func queryPieces(ctx context.Context, q queryer, filter PieceFilter) ([]Piece, error) {
	var where []string
	var args []interface{}

	if len(filter.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(filter.IDs))+")")
		for _, id := range filter.IDs {
			args = append(args, id.String())
		}
	}
	if filter.ConversationID != "" {
		where = append(where, "conversation_id = ?")
		args = append(args, filter.ConversationID)
	}
	if filter.OrchestratorID != "" {
		where = append(where, "orchestrator_id = ?")
		args = append(args, filter.OrchestratorID)
	}
	if len(filter.Roles) > 0 {
		where = append(where, "role IN ("+placeholders(len(filter.Roles))+")")
		for _, r := range filter.Roles {
			args = append(args, string(r))
		}
	}
	if filter.OriginalValueSHA256 != "" {
		where = append(where, "original_value_sha256 = ?")
		args = append(args, filter.OriginalValueSHA256)
	}
	if filter.ConvertedValueSHA256 != "" {
		where = append(where, "converted_value_sha256 = ?")
		args = append(args, filter.ConvertedValueSHA256)
	}
	if !filter.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(timeFormat))
	}
	if !filter.Until.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, filter.Until.UTC().Format(timeFormat))
	}

	query := "SELECT " + pieceColumns + " FROM prompt_pieces"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY conversation_id, sequence, timestamp"

	// label matching happens in Go, so the limit must too
	if filter.Limit > 0 && len(filter.Labels) == 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewStoreError("failed to query pieces", err)
	}
	defer rows.Close()

	pieces := make([]Piece, 0)
	for rows.Next() {
		p, err := scanPiece(rows)
		if err != nil {
			return nil, err
		}
		if !filter.matchesLabels(&p) {
			continue
		}
		pieces = append(pieces, p)
		if filter.Limit > 0 && len(pieces) == filter.Limit {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, NewStoreError("error iterating pieces", err)
	}
	return pieces, nil
}

// UpdatePieces merges update into every piece matching filter.
func (s *SQLiteStore) UpdatePieces(ctx context.Context, filter PieceFilter, update PieceUpdate) (bool, error) {
	if filter.IsEmpty() {
		return false, types.NewError(ErrCodeInvalidFilter, "refusing to update with an empty filter")
	}
	if update.IsEmpty() {
		return false, types.NewError(types.INVALID_ARGUMENT, "update changes no fields")
	}
	if update.ConvertedValueDataType != nil && !update.ConvertedValueDataType.IsValid() {
		return false, types.NewError(types.INVALID_ARGUMENT, "unknown data type "+string(*update.ConvertedValueDataType))
	}
	if update.ResponseError != nil && !update.ResponseError.IsValid() {
		return false, types.NewError(types.INVALID_ARGUMENT, "unknown response error "+string(*update.ResponseError))
	}

	ctx, span := s.tracer.Start(ctx, "MemoryStore.UpdatePieces")
	defer span.End()

	updated := 0
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		pieces, err := queryPieces(ctx, tx, filter)
		if err != nil {
			return err
		}

		for i := range pieces {
			p := &pieces[i]
			update.apply(p)

			labels, err := marshalJSON(p.Labels, "{}")
			if err != nil {
				return err
			}
			metadata, err := marshalJSON(p.Metadata, "{}")
			if err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx, `
				UPDATE prompt_pieces
				SET labels = ?, prompt_metadata = ?, response_error = ?,
					converted_value = ?, converted_value_data_type = ?, converted_value_sha256 = ?
				WHERE id = ?`,
				labels, metadata, string(p.ResponseError),
				p.ConvertedValue, string(p.ConvertedValueDataType), p.ConvertedValueSHA256,
				p.ID.String(),
			)
			if err != nil {
				return NewStoreError(fmt.Sprintf("failed to update piece %s", p.ID), err)
			}
			updated++
		}
		return nil
	})
	if err != nil {
		s.logger.Error("piece update rolled back", "error", err)
		return false, recordSpanError(span, err)
	}

	span.SetAttributes(attribute.Int("memory.updated", updated))
	return updated > 0, nil
}

// GetConversation returns the conversation grouped by sequence, ascending.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) ([]Turn, error) {
	pieces, err := s.QueryPieces(ctx, PieceFilter{ConversationID: conversationID})
	if err != nil {
		return nil, err
	}
	return GroupTurns(pieces), nil
}

// GetByOrchestration returns every piece owned by the orchestration.
func (s *SQLiteStore) GetByOrchestration(ctx context.Context, orchestratorID string) ([]Piece, error) {
	if orchestratorID == "" {
		return nil, types.NewError(ErrCodeInvalidFilter, "orchestrator id is required")
	}

	pieces, err := s.QueryPieces(ctx, PieceFilter{OrchestratorID: orchestratorID})
	if err != nil {
		return nil, err
	}
	SortPieces(pieces)
	return pieces, nil
}

// AddScores persists scores in one transaction.
func (s *SQLiteStore) AddScores(ctx context.Context, scores ...*Score) error {
	if len(scores) == 0 {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "MemoryStore.AddScores",
		trace.WithAttributes(attribute.Int("memory.scores", len(scores))))
	defer span.End()

	for i, sc := range scores {
		if sc == nil {
			return recordSpanError(span, NewInvalidScoreError("", fmt.Sprintf("score %d of %d is nil", i+1, len(scores))))
		}
		if sc.ID.IsZero() {
			sc.ID = types.NewID()
		}
		if sc.Timestamp.IsZero() {
			sc.Timestamp = time.Now().UTC()
		}
		if err := sc.Validate(); err != nil {
			return recordSpanError(span, err)
		}
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO scores (`+scoreColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, sc := range scores {
			scorer, err := marshalJSON(sc.ScorerIdentifier, "{}")
			if err != nil {
				return err
			}

			_, err = stmt.ExecContext(ctx,
				sc.ID.String(),
				sc.Value,
				sc.ValueDescription,
				string(sc.Type),
				sc.Category,
				sc.Rationale,
				sc.Metadata,
				scorer,
				sc.PieceID.String(),
				sc.Timestamp.UTC().Format(timeFormat),
			)
			if err != nil {
				switch {
				case database.IsUniqueViolation(err):
					return NewPersistenceConflictError("score", sc.ID, err)
				case database.IsForeignKeyViolation(err):
					return types.WrapError(ErrCodePieceNotFound,
						fmt.Sprintf("score %s references unknown piece %s", sc.ID, sc.PieceID), err)
				default:
					return NewStoreError(fmt.Sprintf("failed to insert score %s", sc.ID), err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return recordSpanError(span, err)
	}
	return nil
}

// GetScoresByPieceIDs returns all scores attached to the given pieces.
func (s *SQLiteStore) GetScoresByPieceIDs(ctx context.Context, ids ...types.ID) ([]Score, error) {
	if len(ids) == 0 {
		return []Score{}, nil
	}
	return s.QueryScores(ctx, ScoreFilter{PieceIDs: ids})
}

// QueryScores returns scores matching filter, oldest first.
func (s *SQLiteStore) QueryScores(ctx context.Context, filter ScoreFilter) ([]Score, error) {
	ctx, span := s.tracer.Start(ctx, "MemoryStore.QueryScores")
	defer span.End()

	var where []string
	var args []interface{}

	if len(filter.PieceIDs) > 0 {
		where = append(where, "prompt_request_response_id IN ("+placeholders(len(filter.PieceIDs))+")")
		for _, id := range filter.PieceIDs {
			args = append(args, id.String())
		}
	}
	if filter.Type != "" {
		where = append(where, "score_type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Category != "" {
		where = append(where, "score_category = ?")
		args = append(args, filter.Category)
	}

	query := "SELECT " + scoreColumns + " FROM scores"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, recordSpanError(span, NewStoreError("failed to query scores", err))
	}
	defer rows.Close()

	scores := make([]Score, 0)
	for rows.Next() {
		var sc Score
		var id, scoreType, scorer, pieceID, ts string

		if err := rows.Scan(&id, &sc.Value, &sc.ValueDescription, &scoreType, &sc.Category,
			&sc.Rationale, &sc.Metadata, &scorer, &pieceID, &ts); err != nil {
			return nil, NewStoreError("failed to scan score", err)
		}

		sc.ID = types.ID(id)
		sc.Type = ScoreType(scoreType)
		sc.PieceID = types.ID(pieceID)
		if sc.Timestamp, err = time.Parse(timeFormat, ts); err != nil {
			return nil, fmt.Errorf("failed to parse score timestamp: %w", err)
		}
		if err := json.Unmarshal([]byte(scorer), &sc.ScorerIdentifier); err != nil {
			return nil, fmt.Errorf("failed to decode scorer identifier: %w", err)
		}

		scores = append(scores, sc)
	}

	if err := rows.Err(); err != nil {
		return nil, NewStoreError("error iterating scores", err)
	}
	return scores, nil
}

// DuplicateConversation copies a conversation under a fresh id. When
// excludeLastTurn is set the final exchange (an assistant reply and the user
// prompt that produced it) is left out.
func (s *SQLiteStore) DuplicateConversation(ctx context.Context, conversationID string, excludeLastTurn bool) (string, error) {
	turns, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return "", err
	}
	if len(turns) == 0 {
		return "", types.NewError(ErrCodePieceNotFound, "conversation not found: "+conversationID)
	}

	if excludeLastTurn {
		turns = dropLastExchange(turns)
	}

	newID := types.NewID().String()
	var copies []*Piece
	for _, turn := range turns {
		for _, p := range turn.Pieces {
			cp := p
			cp.ID = types.NewID()
			cp.ConversationID = newID
			cp.Labels = copyMap(p.Labels)
			cp.Metadata = copyMap(p.Metadata)
			copies = append(copies, &cp)
		}
	}

	if err := s.Insert(ctx, copies...); err != nil {
		return "", err
	}
	return newID, nil
}

func dropLastExchange(turns []Turn) []Turn {
	last := turns[len(turns)-1]
	turns = turns[:len(turns)-1]
	if last.Role() == RoleAssistant && len(turns) > 0 && turns[len(turns)-1].Role() == RoleUser {
		turns = turns[:len(turns)-1]
	}
	return turns
}

func encodePiece(p *Piece) ([]interface{}, error) {
	labels, err := marshalJSON(p.Labels, "{}")
	if err != nil {
		return nil, err
	}
	metadata, err := marshalJSON(p.Metadata, "{}")
	if err != nil {
		return nil, err
	}
	converters, err := marshalJSON(p.ConverterIdentifiers, "[]")
	if err != nil {
		return nil, err
	}
	target, err := marshalJSON(p.TargetIdentifier, "{}")
	if err != nil {
		return nil, err
	}
	orchestrator, err := marshalJSON(p.OrchestratorIdentifier, "{}")
	if err != nil {
		return nil, err
	}

	return []interface{}{
		p.ID.String(),
		string(p.Role),
		p.ConversationID,
		p.Sequence,
		p.Timestamp.UTC().Format(timeFormat),
		labels,
		metadata,
		converters,
		target,
		orchestrator,
		p.OrchestratorID(),
		string(p.OriginalValueDataType),
		p.OriginalValue,
		p.OriginalValueSHA256,
		string(p.ConvertedValueDataType),
		p.ConvertedValue,
		p.ConvertedValueSHA256,
		string(p.ResponseError),
	}, nil
}

func scanPiece(rows *sql.Rows) (Piece, error) {
	var p Piece
	var id, role, ts, labels, metadata, converters, target, orchestrator, orchestratorID string
	var originalType, convertedType, responseError string

	err := rows.Scan(
		&id, &role, &p.ConversationID, &p.Sequence, &ts,
		&labels, &metadata, &converters,
		&target, &orchestrator, &orchestratorID,
		&originalType, &p.OriginalValue, &p.OriginalValueSHA256,
		&convertedType, &p.ConvertedValue, &p.ConvertedValueSHA256,
		&responseError,
	)
	if err != nil {
		return p, NewStoreError("failed to scan piece", err)
	}

	p.ID = types.ID(id)
	p.Role = Role(role)
	p.OriginalValueDataType = types.DataType(originalType)
	p.ConvertedValueDataType = types.DataType(convertedType)
	p.ResponseError = ResponseError(responseError)

	if p.Timestamp, err = time.Parse(timeFormat, ts); err != nil {
		return p, fmt.Errorf("failed to parse piece timestamp: %w", err)
	}

	decode := []struct {
		raw  string
		into interface{}
	}{
		{labels, &p.Labels},
		{metadata, &p.Metadata},
		{converters, &p.ConverterIdentifiers},
		{target, &p.TargetIdentifier},
		{orchestrator, &p.OrchestratorIdentifier},
	}
	for _, d := range decode {
		if err := json.Unmarshal([]byte(d.raw), d.into); err != nil {
			return p, fmt.Errorf("failed to decode piece %s: %w", id, err)
		}
	}

	// empty JSON objects decode to empty maps; normalise to nil
	if len(p.Labels) == 0 {
		p.Labels = nil
	}
	if len(p.Metadata) == 0 {
		p.Metadata = nil
	}
	if len(p.ConverterIdentifiers) == 0 {
		p.ConverterIdentifiers = nil
	}
	if len(p.TargetIdentifier) == 0 {
		p.TargetIdentifier = nil
	}
	if len(p.OrchestratorIdentifier) == 0 {
		p.OrchestratorIdentifier = nil
	}

	return p, nil
}

func marshalJSON(v interface{}, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode column: %w", err)
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func recordSpanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
