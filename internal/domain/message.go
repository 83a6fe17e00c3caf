package domain

// BackendConversation is the conversation record embedded in message listings.
type BackendConversation struct {
	ID          int64  `json:"id"`
	Phone       string `json:"phone,omitempty"`
	CodCli      string `json:"codCli,omitempty"`
	State       string `json:"state,omitempty"`
	Context     string `json:"context,omitempty"`
	InitiatedBy string `json:"initiatedBy,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

// BackendMessage is one row of the paginated messages listing.
type BackendMessage struct {
	ID             int64                `json:"id"`
	ConversationID int64                `json:"conversationId"`
	Conversation   *BackendConversation `json:"conversation,omitempty"`
	Channel        string               `json:"channel,omitempty"`
	Content        string               `json:"content"`
	Origin         string               `json:"origin,omitempty"`
	CreatedAt      string               `json:"createdAt"`
}

// MessagePage is the backend's paginated envelope.
type MessagePage struct {
	Items      []BackendMessage `json:"items"`
	TotalItems int64            `json:"totalItems"`
	PageNumber int              `json:"pageNumber"`
	PageSize   int              `json:"pageSize"`
}

// BackendUser is a dashboard operator account held by the external API.
type BackendUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// AuthResult is the backend's response to Users/auth. Authorization carries
// the Basic header value the dashboard stores in the session cookie.
type AuthResult struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	Role          string `json:"role"`
	Authorization string `json:"authorization"`
}

// Template is a WhatsApp message template from the Graph API.
type Template struct {
	ID         string                   `json:"id"`
	Name       string                   `json:"name"`
	Language   string                   `json:"language"`
	Status     string                   `json:"status"`
	Category   string                   `json:"category"`
	Components []map[string]interface{} `json:"components,omitempty"`
}
