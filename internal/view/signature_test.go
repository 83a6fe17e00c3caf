package view

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ofertalabs/waboard/internal/domain"
)

func TestComputeSignatureEmpty(t *testing.T) {
	assert.Equal(t, Signature{}, ComputeSignature(nil))
	assert.Equal(t, "0", ComputeSignature(nil).String())
}

func TestComputeSignatureUsesLastRow(t *testing.T) {
	rows := []domain.ConversationRow{
		{ConversationID: 1, MessageID: 10, CreatedAt: "2026-08-01T10:00:00Z"},
		{ConversationID: 1, MessageID: 11, CreatedAt: "2026-08-01T10:05:00Z"},
	}
	sig := ComputeSignature(rows)
	assert.Equal(t, Signature{Count: 2, LastID: 11, LastStamp: "2026-08-01T10:05:00Z"}, sig)
	assert.Equal(t, "2:11:2026-08-01T10:05:00Z", sig.String())
}

func TestSignatureDetectsAppendAndChange(t *testing.T) {
	rows := []domain.ConversationRow{
		{ConversationID: 1, MessageID: 10, CreatedAt: "2026-08-01T10:00:00Z"},
	}
	base := ComputeSignature(rows)

	same := ComputeSignature([]domain.ConversationRow{
		{ConversationID: 1, MessageID: 10, CreatedAt: "2026-08-01T10:00:00Z"},
	})
	assert.Equal(t, base, same)

	grown := ComputeSignature(append(rows, domain.ConversationRow{
		ConversationID: 1, MessageID: 11, CreatedAt: "2026-08-01T10:05:00Z",
	}))
	assert.NotEqual(t, base, grown)
}
