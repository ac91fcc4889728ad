package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/liliang-cn/aidentify/internal/backend"
	"github.com/liliang-cn/aidentify/internal/domain"
	"github.com/liliang-cn/aidentify/internal/notify"
	"go.uber.org/zap"
)

// User-facing failure texts
const (
	UnreachableMessage  = "Backend not reachable. Is it running?"
	UploadFailedMessage = "Upload failed"
	NoUserMessage       = "Sign in to analyze media"
)

// UploadState is the state of the orchestrator between submissions
type UploadState string

const (
	StateIdle       UploadState = "idle"
	StateAttached   UploadState = "attached"
	StateSubmitting UploadState = "submitting"
)

// Outcome is how a submission resolved
type Outcome string

const (
	OutcomeNewChat Outcome = "new_chat"
	OutcomeAppend  Outcome = "append"
	OutcomeFailed  Outcome = "failed"
)

// Analyzer uploads media for detection
type Analyzer interface {
	Analyze(ctx context.Context, req *backend.AnalyzeRequest) (*domain.AnalyzeResponse, error)
}

// ChatSessions is the part of the session store the orchestrator drives
type ChatSessions interface {
	UserKey() string
	SelectedChat() (domain.Chat, bool)
	SelectChat(id string)
	AddMessageToChat(chatID string, msg domain.Message) bool
	FetchHistory(ctx context.Context) ([]domain.Chat, error)
}

// SubmitResult describes a resolved submission
type SubmitResult struct {
	Outcome     Outcome         `json:"outcome"`
	ChatID      string          `json:"chat_id,omitempty"`
	UserMessage *domain.Message `json:"user_message,omitempty"`
	Verdict     *domain.Message `json:"verdict,omitempty"`
}

// UploadOrchestrator drives one file from staged to verdict appended.
// It owns no chat data; every timeline change goes through the session store.
type UploadOrchestrator struct {
	mu        sync.Mutex
	state     UploadState
	staged    *domain.Attachment
	analyzing bool

	sessions ChatSessions
	analyzer Analyzer
	notifier notify.Notifier
	logger   *zap.Logger
	newID    func() string
}

// NewUploadOrchestrator creates an orchestrator in the idle state
func NewUploadOrchestrator(sessions ChatSessions, analyzer Analyzer, notifier notify.Notifier, logger *zap.Logger) *UploadOrchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewLog(logger)
	}
	return &UploadOrchestrator{
		state:    StateIdle,
		sessions: sessions,
		analyzer: analyzer,
		notifier: notifier,
		logger:   logger,
		newID:    func() string { return uuid.New().String() },
	}
}

// State returns the current state
func (o *UploadOrchestrator) State() UploadState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// IsAnalyzing reports whether a submission is outstanding
func (o *UploadOrchestrator) IsAnalyzing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.analyzing
}

// Staged returns the staged file, nil when idle
func (o *UploadOrchestrator) Staged() *domain.Attachment {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.staged
}

// Attach validates a file and stages it, replacing any staged file.
// A rejected file leaves the state untouched.
func (o *UploadOrchestrator) Attach(file *domain.Attachment) error {
	if file == nil {
		return fmt.Errorf("attach: %w", domain.ErrInvalidRequest)
	}

	mt, err := ResolveMediaType(file.Name, file.MIMEType, file.Data)
	if err != nil {
		o.logger.Info("File rejected", zap.String("file", file.Name), zap.Error(err))
		o.notifier.Notify(notify.LevelError, RejectedFileMessage)
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateSubmitting {
		return domain.ErrSubmissionInFlight
	}

	staged := *file
	staged.MIMEType = mt
	staged.Size = int64(len(staged.Data))
	if staged.ID == "" {
		staged.ID = o.newID()
	}
	o.staged = &staged
	o.state = StateAttached

	o.logger.Debug("File staged", zap.String("file", staged.Name), zap.String("mime_type", mt))
	return nil
}

// Cancel detaches the staged file
func (o *UploadOrchestrator) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateSubmitting {
		return domain.ErrSubmissionInFlight
	}
	o.staged = nil
	o.state = StateIdle
	return nil
}

// Submit sends the staged file for detection.
//
// With a chat selected, the user message is appended before the request is
// issued and the verdict is appended when it arrives. Without a selection
// the backend creates the chat, history is refetched and the new chat is
// selected. The orchestrator returns to idle whatever the outcome.
func (o *UploadOrchestrator) Submit(ctx context.Context) (*SubmitResult, error) {
	email := o.sessions.UserKey()

	o.mu.Lock()
	switch {
	case o.state == StateSubmitting:
		o.mu.Unlock()
		return nil, domain.ErrSubmissionInFlight
	case o.staged == nil:
		o.mu.Unlock()
		return nil, domain.ErrNothingStaged
	case email == "":
		o.mu.Unlock()
		o.notifier.Notify(notify.LevelError, NoUserMessage)
		return nil, domain.ErrNoUser
	}
	file := o.staged
	o.state = StateSubmitting
	o.analyzing = true
	o.mu.Unlock()

	defer o.reset()

	// a stale selection counts as none, so the backend starts a new chat
	var chatID string
	if selected, ok := o.sessions.SelectedChat(); ok {
		chatID = selected.ID
	}
	mediaType := file.MediaType()
	result := &SubmitResult{ChatID: chatID}

	if chatID != "" {
		userMsg := domain.Message{
			ID:   o.newID(),
			Role: domain.RoleUser,
			Type: mediaType,
			File: file,
		}
		o.sessions.AddMessageToChat(chatID, userMsg)
		result.UserMessage = &userMsg
	}

	logger := o.logger.With(
		zap.String("file", file.Name),
		zap.String("mime_type", file.MIMEType),
		zap.String("chat_id", chatID),
	)
	logger.Info("Submitting media", zap.String("endpoint", backend.EndpointFor(mediaType)))

	resp, err := o.analyzer.Analyze(ctx, &backend.AnalyzeRequest{
		File:   file,
		Email:  email,
		ChatID: chatID,
	})
	if err != nil {
		return o.fail(logger, result, err)
	}

	switch {
	case chatID != "" && resp.AIMessage != nil:
		verdict := domain.NormalizeVerdict(*resp.AIMessage)
		if verdict.ID == "" {
			verdict.ID = o.newID()
		}
		if verdict.Type == "" {
			verdict.Type = mediaType
		}
		o.sessions.AddMessageToChat(chatID, verdict)
		result.Outcome = OutcomeAppend
		result.Verdict = &verdict

	case resp.ChatID != "" || resp.AIMessage != nil:
		target := resp.ChatID
		if target == "" {
			target = chatID
		}
		if _, err := o.sessions.FetchHistory(ctx); err != nil {
			logger.Warn("History refresh after detection failed", zap.Error(err))
		}
		if target != "" {
			o.sessions.SelectChat(target)
		}
		result.Outcome = OutcomeNewChat
		result.ChatID = target

	default:
		return o.fail(logger, result, domain.ErrMalformedResponse)
	}

	logger.Info("Detection resolved", zap.String("outcome", string(result.Outcome)), zap.String("result_chat_id", result.ChatID))
	return result, nil
}

func (o *UploadOrchestrator) fail(logger *zap.Logger, result *SubmitResult, err error) (*SubmitResult, error) {
	se := backend.Classify(err)
	result.Outcome = OutcomeFailed

	logger.Warn("Upload failed", zap.String("kind", string(se.Kind)), zap.Error(err))
	o.notifier.Notify(notify.LevelError, FailureMessage(se))
	return result, se
}

func (o *UploadOrchestrator) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.staged = nil
	o.analyzing = false
	o.state = StateIdle
}

// FailureMessage renders a failed submission for the user
func FailureMessage(err error) string {
	var se *domain.SubmitError
	if !errors.As(err, &se) {
		return UploadFailedMessage
	}
	switch se.Kind {
	case domain.FailureConnectivity:
		return UnreachableMessage
	case domain.FailureServer:
		detail := se.Detail
		if detail == "" {
			detail = "Unknown"
		}
		return fmt.Sprintf("Error %d: %s", se.Status, detail)
	default:
		return UploadFailedMessage
	}
}
