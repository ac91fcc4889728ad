package domain

// RawChat is a chat record as returned by the history endpoint
type RawChat struct {
	ID       string       `json:"_id"`
	Title    string       `json:"title"`
	Messages []RawMessage `json:"messages"`
}

// RawMessage is a message record as stored by the backend.
// Older records carry a Mongo "_id", newer ones an "id".
type RawMessage struct {
	ID         string   `json:"id,omitempty"`
	MongoID    string   `json:"_id,omitempty"`
	Role       string   `json:"role"`
	Type       string   `json:"type,omitempty"`
	Content    string   `json:"content,omitempty"`
	Label      string   `json:"label,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// AnalyzeResponse is the reply of an analyze endpoint.
// A new chat yields ChatID; an existing chat yields AIMessage.
type AnalyzeResponse struct {
	ChatID    string      `json:"chat_id,omitempty"`
	AIMessage *RawMessage `json:"ai_message,omitempty"`
}
