package domain

// Role identifies who authored a message in a chat timeline
type Role string

const (
	RoleUser      Role = "user"
	RoleAIdentify Role = "aidentify"
)

// MediaType is the coarse media classification of an uploaded artifact
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

// Result is the derived verdict of a detection
type Result string

const (
	ResultAI   Result = "AI"
	ResultReal Result = "Real"
)

// UntitledChat is the display name of a chat without a title
const UntitledChat = "Untitled"

// Chat represents a persistent, server-backed detection session
type Chat struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
}

// Message is one entry in a chat timeline.
// User messages carry the artifact; aidentify messages carry the verdict.
type Message struct {
	ID         string      `json:"id"`
	Role       Role        `json:"role"`
	Type       MediaType   `json:"type,omitempty"`
	File       *Attachment `json:"-"`
	Content    string      `json:"content,omitempty"`
	Result     Result      `json:"result,omitempty"`
	Label      string      `json:"label,omitempty"`
	Confidence float64     `json:"confidence,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// DisplayName returns the chat name or the untitled placeholder
func (c *Chat) DisplayName() string {
	if c.Name == "" {
		return UntitledChat
	}
	return c.Name
}

// LatestResult returns the result of the newest verdict in the chat, or "" if none
func (c *Chat) LatestResult() Result {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAIdentify {
			return c.Messages[i].Result
		}
	}
	return ""
}

// Clone returns a deep copy of the chat. Attachments are shared, they are immutable once staged.
func (c Chat) Clone() Chat {
	out := c
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		copy(out.Messages, c.Messages)
	}
	return out
}

// Preview returns the reference a presentation layer should render for a user message
func (m *Message) Preview() string {
	if m.Content != "" {
		return m.Content
	}
	if m.File != nil {
		return m.File.PreviewURI()
	}
	return ""
}

// ChatSummary is a sidebar entry for a chat
type ChatSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Result   Result `json:"result,omitempty"`
	Messages int    `json:"messages"`
}

// Summarize builds the sidebar entry for a chat
func (c *Chat) Summarize() ChatSummary {
	return ChatSummary{
		ID:       c.ID,
		Name:     c.DisplayName(),
		Result:   c.LatestResult(),
		Messages: len(c.Messages),
	}
}
