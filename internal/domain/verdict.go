package domain

import (
	"math"
	"strings"
)

// DeriveResult computes the verdict from the raw classifier label.
// The result is AI iff the lower-cased label contains "ai".
func DeriveResult(label string) Result {
	if strings.Contains(strings.ToLower(label), "ai") {
		return ResultAI
	}
	return ResultReal
}

// NormalizeConfidence brings a confidence into [0,1].
// Values above 1 are read as percentages.
func NormalizeConfidence(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	if v > 1 {
		v /= 100
	}
	if v > 1 {
		return 1
	}
	return v
}

// NormalizeMessage converts a raw backend message into the local shape.
// Verdict fields are only kept on aidentify messages, where result is derived from label.
func NormalizeMessage(raw RawMessage) Message {
	msg := Message{
		ID:      raw.ID,
		Role:    Role(raw.Role),
		Type:    MediaType(raw.Type),
		Content: raw.Content,
	}
	if msg.ID == "" {
		msg.ID = raw.MongoID
	}
	if msg.Role == "" {
		if raw.Label != "" {
			msg.Role = RoleAIdentify
		} else {
			msg.Role = RoleUser
		}
	}
	if msg.Role != RoleAIdentify {
		return msg
	}

	msg.Label = raw.Label
	msg.Result = DeriveResult(raw.Label)
	msg.Reason = raw.Reason
	if raw.Confidence != nil {
		msg.Confidence = NormalizeConfidence(*raw.Confidence)
	}
	return msg
}

// NormalizeVerdict converts the ai_message of an analyze response.
// The payload carries no role, it is always a verdict.
func NormalizeVerdict(raw RawMessage) Message {
	raw.Role = string(RoleAIdentify)
	return NormalizeMessage(raw)
}

// NormalizeChat converts a raw history record into a Chat
func NormalizeChat(raw RawChat) Chat {
	chat := Chat{
		ID:       raw.ID,
		Name:     raw.Title,
		Messages: make([]Message, 0, len(raw.Messages)),
	}
	for _, m := range raw.Messages {
		chat.Messages = append(chat.Messages, NormalizeMessage(m))
	}
	return chat
}

// NormalizeHistory converts the full history payload
func NormalizeHistory(raw []RawChat) []Chat {
	chats := make([]Chat, 0, len(raw))
	for _, c := range raw {
		chats = append(chats, NormalizeChat(c))
	}
	return chats
}
