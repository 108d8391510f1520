package memory

import "sort"

// Turn groups the pieces of one conversation that share a sequence number.
type Turn struct {
	Sequence int     `json:"sequence"`
	Pieces   []Piece `json:"pieces"`
}

// Role returns the role of the first piece in the turn.
func (t Turn) Role() Role {
	if len(t.Pieces) == 0 {
		return ""
	}
	return t.Pieces[0].Role
}

// GroupTurns groups pieces by sequence, ascending. Pieces within a group keep
// timestamp order. The input slice is not modified.
func GroupTurns(pieces []Piece) []Turn {
	sorted := make([]Piece, len(pieces))
	copy(sorted, pieces)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Sequence != sorted[j].Sequence {
			return sorted[i].Sequence < sorted[j].Sequence
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var turns []Turn
	for _, p := range sorted {
		if n := len(turns); n > 0 && turns[n-1].Sequence == p.Sequence {
			turns[n-1].Pieces = append(turns[n-1].Pieces, p)
			continue
		}
		turns = append(turns, Turn{Sequence: p.Sequence, Pieces: []Piece{p}})
	}
	return turns
}

// SortPieces orders pieces by conversation id and then sequence, which is the
// only ordering the store guarantees to be meaningful.
func SortPieces(pieces []Piece) {
	sort.SliceStable(pieces, func(i, j int) bool {
		if pieces[i].ConversationID != pieces[j].ConversationID {
			return pieces[i].ConversationID < pieces[j].ConversationID
		}
		if pieces[i].Sequence != pieces[j].Sequence {
			return pieces[i].Sequence < pieces[j].Sequence
		}
		return pieces[i].Timestamp.Before(pieces[j].Timestamp)
	})
}

// NextSequence returns the sequence number following the last turn.
func NextSequence(turns []Turn) int {
	if len(turns) == 0 {
		return 0
	}
	return turns[len(turns)-1].Sequence + 1
}
