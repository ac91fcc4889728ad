package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/aidentify/internal/backend"
	"github.com/liliang-cn/aidentify/internal/domain"
	"github.com/liliang-cn/aidentify/internal/notify"
	"github.com/liliang-cn/aidentify/internal/service"
	"go.uber.org/zap"
)

// Handler exposes the session store and upload orchestrator to a presentation layer
type Handler struct {
	store   *service.SessionStore
	uploads *service.UploadOrchestrator
	feed    *notify.Feed
	logger  *zap.Logger
}

// NewHandler creates a new dashboard handler
func NewHandler(store *service.SessionStore, uploads *service.UploadOrchestrator, feed *notify.Feed, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:   store,
		uploads: uploads,
		feed:    feed,
		logger:  logger,
	}
}

// RegisterRoutes registers dashboard routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.PUT("/session/user", h.SetUser)

	chats := r.Group("/chats")
	chats.GET("", h.ListChats)
	chats.POST("/refresh", h.RefreshChats)
	chats.POST("/new", h.NewChat)
	chats.GET("/:id", h.GetChat)
	chats.PUT("/:id/select", h.SelectChat)
	chats.POST("/:id/reload", h.ReloadChat)
	chats.DELETE("/:id", h.DeleteChat)
	chats.GET("/:id/messages/:msg/artifact", h.Artifact)

	upload := r.Group("/upload")
	upload.POST("/attach", h.Attach)
	upload.DELETE("/attach", h.Cancel)
	upload.POST("/submit", h.Submit)
	upload.GET("/state", h.UploadState)

	r.GET("/notifications", h.Notifications)
	r.GET("/notifications/stream", h.NotificationStream)
}

type setUserRequest struct {
	Email string `json:"email"`
}

// SetUser sets or clears the signed-in identity
func (h *Handler) SetUser(c *gin.Context) {
	var req setUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := strings.TrimSpace(req.Email)
	if err := h.store.SetUser(c.Request.Context(), email); err != nil {
		// identity is applied even when the first fetch fails
		h.writeError(c, err)
		return
	}
	h.ListChats(c)
}

// ListChats returns the sidebar and the selected chat
func (h *Handler) ListChats(c *gin.Context) {
	chats := h.store.Chats()
	resp := chatsResponse{
		User:           h.store.UserKey(),
		SelectedChatID: h.store.SelectedChatID(),
		Chats:          make([]domain.ChatSummary, 0, len(chats)),
	}
	for i := range chats {
		resp.Chats = append(resp.Chats, chats[i].Summarize())
	}
	if selected, ok := h.store.SelectedChat(); ok {
		v := newChatView(selected)
		resp.Selected = &v
	}
	c.JSON(http.StatusOK, resp)
}

// RefreshChats refetches the history
func (h *Handler) RefreshChats(c *gin.Context) {
	if _, err := h.store.FetchHistory(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}
	h.ListChats(c)
}

// NewChat clears the selection
func (h *Handler) NewChat(c *gin.Context) {
	h.store.CreateNewChat()
	c.JSON(http.StatusOK, gin.H{"selected_chat_id": ""})
}

// GetChat returns one chat with its timeline
func (h *Handler) GetChat(c *gin.Context) {
	chat, ok := h.store.Chat(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	c.JSON(http.StatusOK, newChatView(chat))
}

// SelectChat selects a chat. The id is not checked against the collection.
func (h *Handler) SelectChat(c *gin.Context) {
	id := c.Param("id")
	h.store.SelectChat(id)
	c.JSON(http.StatusOK, gin.H{"selected_chat_id": id})
}

// ReloadChat refetches a single chat from the backend
func (h *Handler) ReloadChat(c *gin.Context) {
	chat, err := h.store.ReloadChat(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newChatView(chat))
}

// DeleteChat deletes a chat remotely and refreshes the history
func (h *Handler) DeleteChat(c *gin.Context) {
	if err := h.store.DeleteChat(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": service.DeletedChatMessage})
}

// Artifact serves the bytes of a locally attached file, or redirects to the stored artifact
func (h *Handler) Artifact(c *gin.Context) {
	chat, ok := h.store.Chat(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}

	msgID := c.Param("msg")
	for _, m := range chat.Messages {
		if m.ID != msgID {
			continue
		}
		switch {
		case m.File != nil:
			c.Data(http.StatusOK, m.File.MIMEType, m.File.Data)
		case strings.HasPrefix(m.Content, "http://"), strings.HasPrefix(m.Content, "https://"):
			c.Redirect(http.StatusFound, m.Content)
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "message has no artifact"})
		}
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
}

// Attach stages the uploaded multipart file
func (h *Handler) Attach(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("read upload: %v", err)})
		return
	}

	declared := c.PostForm("mime_type")
	if declared == "" {
		declared = fh.Header.Get("Content-Type")
	}

	if err := h.uploads.Attach(domain.NewAttachment(fh.Filename, declared, data)); err != nil {
		h.writeError(c, err)
		return
	}
	h.UploadState(c)
}

// Cancel detaches the staged file
func (h *Handler) Cancel(c *gin.Context) {
	if err := h.uploads.Cancel(); err != nil {
		h.writeError(c, err)
		return
	}
	h.UploadState(c)
}

// Submit sends the staged file for detection and waits for the verdict
func (h *Handler) Submit(c *gin.Context) {
	// a submission is not cancellable once issued
	ctx := context.WithoutCancel(c.Request.Context())

	result, err := h.uploads.Submit(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSubmitResponse(result))
}

// UploadState returns the orchestrator state
func (h *Handler) UploadState(c *gin.Context) {
	c.JSON(http.StatusOK, uploadStateResponse{
		State:          h.uploads.State(),
		IsAnalyzing:    h.uploads.IsAnalyzing(),
		Staged:         h.uploads.Staged(),
		SelectedChatID: h.store.SelectedChatID(),
		User:           h.store.UserKey(),
	})
}

// Notifications drains the buffered notifications
func (h *Handler) Notifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notifications": h.feed.Drain()})
}

// NotificationStream pushes notifications as server-sent events
func (h *Handler) NotificationStream(c *gin.Context) {
	ch, cancel := h.feed.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// the stream outlives the server's write timeout
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("Write deadline not cleared for notification stream", zap.Error(err))
	}

	c.SSEvent("ready", gin.H{"user": h.store.UserKey()})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case n, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(n.Level), n)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// writeError maps core errors onto HTTP statuses
func (h *Handler) writeError(c *gin.Context, err error) {
	var se *domain.SubmitError
	switch {
	case errors.Is(err, domain.ErrNoUser):
		c.JSON(http.StatusUnauthorized, gin.H{"error": service.NoUserMessage})
	case errors.Is(err, domain.ErrUnsupportedMedia):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": service.RejectedFileMessage, "detail": err.Error()})
	case errors.Is(err, domain.ErrNothingStaged), errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrSubmissionInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &se):
		c.JSON(http.StatusBadGateway, failureBody(se))
	default:
		var statusErr *backend.StatusError
		if errors.Is(err, backend.ErrUnreachable) || errors.As(err, &statusErr) {
			c.JSON(http.StatusBadGateway, failureBody(backend.Classify(err)))
			return
		}
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func failureBody(se *domain.SubmitError) gin.H {
	body := gin.H{
		"error": service.FailureMessage(se),
		"kind":  se.Kind,
	}
	if se.Status != 0 {
		body["status"] = se.Status
	}
	if se.Detail != "" {
		body["detail"] = se.Detail
	}
	return body
}
