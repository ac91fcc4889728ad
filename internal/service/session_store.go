package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/liliang-cn/aidentify/internal/domain"
	"github.com/liliang-cn/aidentify/internal/notify"
	"go.uber.org/zap"
)

// DeletedChatMessage is shown after a chat was deleted remotely
const DeletedChatMessage = "Chat deleted successfully"

// HistoryClient is the remote history store
type HistoryClient interface {
	History(ctx context.Context, email string) ([]domain.RawChat, error)
	Chat(ctx context.Context, chatID string) (*domain.RawChat, error)
	DeleteChat(ctx context.Context, email, chatID string) error
}

// HistoryCache persists the last fetched history locally
type HistoryCache interface {
	SaveSnapshot(ctx context.Context, email string, chats []domain.Chat) error
	LoadSnapshot(ctx context.Context, email string) ([]domain.Chat, error)
	DeleteSnapshot(ctx context.Context, email string) error
}

// SessionStore is the single source of truth for chats and the selected chat
type SessionStore struct {
	mu         sync.RWMutex
	chats      []domain.Chat
	selectedID string
	userKey    string

	client   HistoryClient
	cache    HistoryCache
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewSessionStore creates a session store. cache may be nil.
func NewSessionStore(client HistoryClient, cache HistoryCache, notifier notify.Notifier, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewLog(logger)
	}
	return &SessionStore{
		chats:    []domain.Chat{},
		client:   client,
		cache:    cache,
		notifier: notifier,
		logger:   logger,
	}
}

// SetUser updates the identity. A newly present identity triggers a history fetch;
// switching or clearing the identity drops the local chats and selection first.
// Signing out also drops the cached snapshot of the previous user.
func (s *SessionStore) SetUser(ctx context.Context, email string) error {
	s.mu.Lock()
	prev := s.userKey
	if email == prev {
		s.mu.Unlock()
		return nil
	}
	s.userKey = email
	if prev != "" {
		s.chats = []domain.Chat{}
		s.selectedID = ""
	}
	s.mu.Unlock()

	if email == "" {
		s.logger.Info("User signed out")
		// a signed-out user leaves no history behind on this machine
		if s.cache != nil && prev != "" {
			if err := s.cache.DeleteSnapshot(ctx, prev); err != nil {
				s.logger.Warn("Failed to drop cached history", zap.Error(err))
			}
		}
		return nil
	}

	s.logger.Info("User signed in", zap.String("email", email))
	_, err := s.FetchHistory(ctx)
	return err
}

// UserKey returns the current identity, "" when signed out
func (s *SessionStore) UserKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userKey
}

// FetchHistory replaces the local collection with the remote history.
// On failure the local collection is left untouched.
func (s *SessionStore) FetchHistory(ctx context.Context) ([]domain.Chat, error) {
	email := s.UserKey()
	if email == "" {
		return nil, domain.ErrNoUser
	}

	raw, err := s.client.History(ctx, email)
	if err != nil {
		s.logger.Warn("Failed to fetch history", zap.String("email", email), zap.Error(err))
		return nil, err
	}
	chats := domain.NormalizeHistory(raw)

	s.mu.Lock()
	if s.userKey != email {
		// identity changed while the request was in flight
		s.mu.Unlock()
		return nil, fmt.Errorf("history for %s discarded: user changed", email)
	}
	s.chats = chats
	out := cloneChats(s.chats)
	s.mu.Unlock()

	s.logger.Debug("History fetched", zap.String("email", email), zap.Int("chats", len(chats)))

	if s.cache != nil {
		if err := s.cache.SaveSnapshot(ctx, email, out); err != nil {
			s.logger.Warn("Failed to cache history", zap.Error(err))
		}
	}

	return out, nil
}

// Restore loads the cached history when nothing has been fetched yet.
// It returns the number of chats restored.
func (s *SessionStore) Restore(ctx context.Context) (int, error) {
	email := s.UserKey()
	if s.cache == nil || email == "" {
		return 0, nil
	}

	chats, err := s.cache.LoadSnapshot(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("load cached history: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userKey != email || len(s.chats) > 0 {
		return 0, nil
	}
	if chats == nil {
		chats = []domain.Chat{}
	}
	s.chats = chats
	return len(chats), nil
}

// ReloadChat refetches a single chat and replaces it in place, or appends it if unknown locally
func (s *SessionStore) ReloadChat(ctx context.Context, chatID string) (domain.Chat, error) {
	raw, err := s.client.Chat(ctx, chatID)
	if err != nil {
		s.logger.Warn("Failed to reload chat", zap.String("chat_id", chatID), zap.Error(err))
		return domain.Chat{}, err
	}
	chat := domain.NormalizeChat(*raw)
	if chat.ID == "" {
		chat.ID = chatID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(chat.ID); i >= 0 {
		s.chats[i] = chat
	} else {
		s.chats = append(s.chats, chat)
	}
	return chat.Clone(), nil
}

// CreateNewChat clears the selection. The chat itself materializes on the server's first reply.
func (s *SessionStore) CreateNewChat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedID = ""
}

// SelectChat points the selection at id without checking that it exists
func (s *SessionStore) SelectChat(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedID = id
}

// SelectedChatID returns the selected id, "" when none
func (s *SessionStore) SelectedChatID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedID
}

// SelectedChat returns the selected chat; a stale id behaves like no selection
func (s *SessionStore) SelectedChat() (domain.Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selectedID == "" {
		return domain.Chat{}, false
	}
	i := s.indexOf(s.selectedID)
	if i < 0 {
		return domain.Chat{}, false
	}
	return s.chats[i].Clone(), true
}

// Chat returns a copy of the chat with the given id
func (s *SessionStore) Chat(id string) (domain.Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return domain.Chat{}, false
	}
	return s.chats[i].Clone(), true
}

// Chats returns a copy of the collection
func (s *SessionStore) Chats() []domain.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneChats(s.chats)
}

// AddMessageToChat appends msg to the chat with chatID.
// It is a silent no-op when the chat is unknown; the result reports whether it applied.
func (s *SessionStore) AddMessageToChat(chatID string, msg domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(chatID)
	if i < 0 {
		s.logger.Debug("Message dropped for unknown chat", zap.String("chat_id", chatID))
		return false
	}
	// copy-on-write so slices handed out earlier never observe the append
	msgs := make([]domain.Message, len(s.chats[i].Messages), len(s.chats[i].Messages)+1)
	copy(msgs, s.chats[i].Messages)
	s.chats[i].Messages = append(msgs, msg)
	return true
}

// DeleteChat deletes a chat remotely, clears the selection if it pointed at the chat,
// and always refetches history afterwards.
func (s *SessionStore) DeleteChat(ctx context.Context, chatID string) error {
	email := s.UserKey()
	if email == "" {
		return domain.ErrNoUser
	}

	err := s.client.DeleteChat(ctx, email, chatID)
	if err != nil {
		s.logger.Warn("Failed to delete chat", zap.String("chat_id", chatID), zap.Error(err))
	}

	s.mu.Lock()
	if s.selectedID == chatID {
		s.selectedID = ""
	}
	s.mu.Unlock()

	// failures are logged by FetchHistory
	_, _ = s.FetchHistory(ctx)

	if err != nil {
		return err
	}
	s.notifier.Notify(notify.LevelSuccess, DeletedChatMessage)
	return nil
}

func (s *SessionStore) indexOf(id string) int {
	for i := range s.chats {
		if s.chats[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneChats(in []domain.Chat) []domain.Chat {
	out := make([]domain.Chat, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
