package view

import (
	"fmt"

	"github.com/ofertalabs/waboard/internal/domain"
)

// Signature is a cheap fingerprint of a row list, used only to skip applying
// a snapshot identical to the one already rendered. It carries no identity
// beyond the current render cycle.
type Signature struct {
	Count     int
	LastID    int64
	LastStamp string
}

func ComputeSignature(rows []domain.ConversationRow) Signature {
	if len(rows) == 0 {
		return Signature{}
	}
	last := rows[len(rows)-1]
	return Signature{Count: len(rows), LastID: last.MessageID, LastStamp: last.CreatedAt}
}

func (s Signature) String() string {
	if s.Count == 0 {
		return "0"
	}
	return fmt.Sprintf("%d:%d:%s", s.Count, s.LastID, s.LastStamp)
}
