package domain

// ConversationState mirrors the delivery lifecycle reported by the backend.
type ConversationState string

const (
	StateInitial   ConversationState = "initial"
	StateSent      ConversationState = "sent"
	StateDelivered ConversationState = "delivered"
	StateRead      ConversationState = "read"
	StateFailed    ConversationState = "failed"
)

const (
	InitiatedBySystem = "SYSTEM"
	InitiatedByClient = "CLIENT"
)

// ConversationRow is one message observation inside a conversation, either
// mapped from the backend snapshot or reconstructed from a live hub event.
type ConversationRow struct {
	ConversationID int64  `json:"conversationId"`
	State          string `json:"state,omitempty"`
	InitiatedBy    string `json:"initiatedBy,omitempty"`
	MessageID      int64  `json:"messageId"`
	Content        string `json:"content"`
	CreatedAt      string `json:"messageCreatedAt"`
	Origin         string `json:"origin,omitempty"`
	ConvCreatedAt  string `json:"convCreatedAt,omitempty"`
	ConvUpdatedAt  string `json:"convUpdatedAt,omitempty"`
	WaMessageID    string `json:"waMessageId,omitempty"`
}

// ConversationGroup is the per-conversation bucket a chat view renders.
type ConversationGroup struct {
	ID    int64             `json:"id"`
	Items []ConversationRow `json:"items"`
}
