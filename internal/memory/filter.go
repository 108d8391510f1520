package memory

import (
	"time"

	"github.com/zero-day-ai/crucible/internal/types"
)

// EntityKind names the record kinds held by the store.
type EntityKind string

const (
	EntityPieces     EntityKind = "prompt_pieces"
	EntityScores     EntityKind = "scores"
	EntityEmbeddings EntityKind = "embeddings"
)

// PieceFilter selects pieces. Zero-valued fields do not constrain the result;
// all set fields must match.
type PieceFilter struct {
	IDs                  []types.ID
	ConversationID       string
	OrchestratorID       string
	Roles                []Role
	OriginalValueSHA256  string
	ConvertedValueSHA256 string
	Labels               map[string]string
	Since                time.Time
	Until                time.Time
	Limit                int
}

// IsEmpty reports whether the filter would match every piece.
func (f PieceFilter) IsEmpty() bool {
	return len(f.IDs) == 0 && f.ConversationID == "" && f.OrchestratorID == "" &&
		len(f.Roles) == 0 && f.OriginalValueSHA256 == "" && f.ConvertedValueSHA256 == "" &&
		len(f.Labels) == 0 && f.Since.IsZero() && f.Until.IsZero()
}

func (f PieceFilter) matchesLabels(p *Piece) bool {
	for k, v := range f.Labels {
		if p.Labels[k] != v {
			return false
		}
	}
	return true
}

// ScoreFilter selects scores.
type ScoreFilter struct {
	PieceIDs []types.ID
	Type     ScoreType
	Category string
}

// EmbeddingFilter selects embedding records.
type EmbeddingFilter struct {
	IDs   []types.ID
	Model string
}

// PieceUpdate lists the fields an administrative update may change. Nil
// fields are left untouched. Labels and Metadata are merged key by key.
type PieceUpdate struct {
	Labels                 map[string]string
	Metadata               map[string]string
	ResponseError          *ResponseError
	ConvertedValue         *string
	ConvertedValueDataType *types.DataType
}

// IsEmpty reports whether the update changes nothing.
func (u PieceUpdate) IsEmpty() bool {
	return len(u.Labels) == 0 && len(u.Metadata) == 0 && u.ResponseError == nil &&
		u.ConvertedValue == nil && u.ConvertedValueDataType == nil
}

func (u PieceUpdate) apply(p *Piece) {
	if len(u.Labels) > 0 {
		if p.Labels == nil {
			p.Labels = make(map[string]string, len(u.Labels))
		}
		for k, v := range u.Labels {
			p.Labels[k] = v
		}
	}
	if len(u.Metadata) > 0 {
		if p.Metadata == nil {
			p.Metadata = make(map[string]string, len(u.Metadata))
		}
		for k, v := range u.Metadata {
			p.Metadata[k] = v
		}
	}
	if u.ResponseError != nil {
		p.ResponseError = *u.ResponseError
	}
	if u.ConvertedValue != nil {
		p.ConvertedValue = *u.ConvertedValue
		p.ConvertedValueSHA256 = HashContent(p.ConvertedValue)
	}
	if u.ConvertedValueDataType != nil {
		p.ConvertedValueDataType = *u.ConvertedValueDataType
	}
}
