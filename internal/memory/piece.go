package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/zero-day-ai/crucible/internal/types"
)

// Role is the speaker of a piece.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid checks if the Role is a known value
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// ResponseError marks a response piece that did not carry a normal reply.
type ResponseError string

const (
	ResponseErrorNone       ResponseError = "none"
	ResponseErrorBlocked    ResponseError = "blocked"
	ResponseErrorProcessing ResponseError = "processing"
	ResponseErrorEmpty      ResponseError = "empty"
	ResponseErrorUnknown    ResponseError = "unknown"
)

// IsValid checks if the ResponseError is a known value
func (e ResponseError) IsValid() bool {
	switch e {
	case ResponseErrorNone, ResponseErrorBlocked, ResponseErrorProcessing, ResponseErrorEmpty, ResponseErrorUnknown:
		return true
	default:
		return false
	}
}

// Piece is one unit of content exchanged in a conversation turn.
//
// Pieces are created once, by the attack loop or a transformer, and are not
// modified afterwards except through Store.UpdatePieces. Several pieces may
// share a sequence number when a turn has more than one part.
type Piece struct {
	ID             types.ID  `json:"id"`
	Role           Role      `json:"role"`
	ConversationID string    `json:"conversation_id"`
	Sequence       int       `json:"sequence"`
	Timestamp      time.Time `json:"timestamp"`

	Labels   map[string]string `json:"labels,omitempty"`
	Metadata map[string]string `json:"prompt_metadata,omitempty"`

	ConverterIdentifiers   []types.Identifier `json:"converter_identifiers,omitempty"`
	TargetIdentifier       types.Identifier   `json:"prompt_target_identifier,omitempty"`
	OrchestratorIdentifier types.Identifier   `json:"orchestrator_identifier,omitempty"`

	OriginalValue         string         `json:"original_value"`
	OriginalValueDataType types.DataType `json:"original_value_data_type"`
	OriginalValueSHA256   string         `json:"original_value_sha256"`

	ConvertedValue         string         `json:"converted_value"`
	ConvertedValueDataType types.DataType `json:"converted_value_data_type"`
	ConvertedValueSHA256   string         `json:"converted_value_sha256"`

	ResponseError ResponseError `json:"response_error"`
}

// NewPiece creates a piece whose converted value starts equal to the original.
// Hashes are computed immediately.
func NewPiece(role Role, conversationID string, sequence int, value string, dataType types.DataType) *Piece {
	p := &Piece{
		ID:                     types.NewID(),
		Role:                   role,
		ConversationID:         conversationID,
		Sequence:               sequence,
		Timestamp:              time.Now().UTC(),
		OriginalValue:          value,
		OriginalValueDataType:  dataType,
		ConvertedValue:         value,
		ConvertedValueDataType: dataType,
		ResponseError:          ResponseErrorNone,
	}
	p.ComputeHashes()
	return p
}

// ComputeHashes sets both SHA-256 digests from the current values.
func (p *Piece) ComputeHashes() {
	p.OriginalValueSHA256 = HashContent(p.OriginalValue)
	p.ConvertedValueSHA256 = HashContent(p.ConvertedValue)
}

// OrchestratorID returns the id of the owning orchestration, if any.
func (p *Piece) OrchestratorID() string {
	return p.OrchestratorIdentifier.ID()
}

// HasError reports whether the piece carries a response error marker.
func (p *Piece) HasError() bool {
	return p.ResponseError != "" && p.ResponseError != ResponseErrorNone
}

// Validate checks the fields the store relies on.
func (p *Piece) Validate() error {
	if err := p.ID.Validate(); err != nil {
		return NewInvalidPieceError(p.ID, err.Error())
	}
	if !p.Role.IsValid() {
		return NewInvalidPieceError(p.ID, "unknown role "+string(p.Role))
	}
	if p.ConversationID == "" {
		return NewInvalidPieceError(p.ID, "conversation id is required")
	}
	if p.Sequence < 0 {
		return NewInvalidPieceError(p.ID, "sequence must be non-negative")
	}
	if !p.OriginalValueDataType.IsValid() {
		return NewInvalidPieceError(p.ID, "unknown original data type "+string(p.OriginalValueDataType))
	}
	if !p.ConvertedValueDataType.IsValid() {
		return NewInvalidPieceError(p.ID, "unknown converted data type "+string(p.ConvertedValueDataType))
	}
	if p.ResponseError != "" && !p.ResponseError.IsValid() {
		return NewInvalidPieceError(p.ID, "unknown response error "+string(p.ResponseError))
	}
	return nil
}

// HashContent returns the hex SHA-256 digest of the UTF-8 bytes of value.
func HashContent(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
