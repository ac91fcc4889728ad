package dashboard

import (
	"github.com/liliang-cn/aidentify/internal/domain"
	"github.com/liliang-cn/aidentify/internal/service"
)

// messageView adds the render reference to a message
type messageView struct {
	domain.Message
	Preview  string `json:"preview,omitempty"`
	Artifact string `json:"artifact_url,omitempty"`
}

type chatView struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Result   domain.Result `json:"result,omitempty"`
	Messages []messageView `json:"messages"`
}

type chatsResponse struct {
	User           string               `json:"user"`
	SelectedChatID string               `json:"selected_chat_id"`
	Chats          []domain.ChatSummary `json:"chats"`
	Selected       *chatView            `json:"selected,omitempty"`
}

type uploadStateResponse struct {
	State          service.UploadState `json:"state"`
	IsAnalyzing    bool                `json:"is_analyzing"`
	Staged         *domain.Attachment  `json:"staged,omitempty"`
	SelectedChatID string              `json:"selected_chat_id"`
	User           string              `json:"user"`
}

type submitResponse struct {
	Outcome     service.Outcome `json:"outcome"`
	ChatID      string          `json:"chat_id,omitempty"`
	UserMessage *messageView    `json:"user_message,omitempty"`
	Verdict     *messageView    `json:"verdict,omitempty"`
}

func newMessageView(chatID string, m domain.Message) messageView {
	v := messageView{Message: m, Preview: m.Preview()}
	if m.File != nil {
		v.Artifact = "/api/chats/" + chatID + "/messages/" + m.ID + "/artifact"
	}
	return v
}

func newChatView(c domain.Chat) chatView {
	v := chatView{
		ID:       c.ID,
		Name:     c.DisplayName(),
		Result:   c.LatestResult(),
		Messages: make([]messageView, 0, len(c.Messages)),
	}
	for _, m := range c.Messages {
		v.Messages = append(v.Messages, newMessageView(c.ID, m))
	}
	return v
}

func newSubmitResponse(r *service.SubmitResult) submitResponse {
	out := submitResponse{Outcome: r.Outcome, ChatID: r.ChatID}
	if r.UserMessage != nil {
		v := newMessageView(r.ChatID, *r.UserMessage)
		out.UserMessage = &v
	}
	if r.Verdict != nil {
		v := newMessageView(r.ChatID, *r.Verdict)
		out.Verdict = &v
	}
	return out
}
