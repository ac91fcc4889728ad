package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/liliang-cn/aidentify/internal/domain"
)

// HistoryRepository stores the last fetched chat history of each user
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// SaveSnapshot replaces the cached history of a user
func (r *HistoryRepository) SaveSnapshot(ctx context.Context, email string, chats []domain.Chat) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteSnapshot(ctx, tx, email); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	now := time.Now()
	seen := make(map[string]struct{}, len(chats))
	position := 0
	for _, chat := range chats {
		// chats without an id, or repeating one, cannot be addressed; the first one wins
		if _, dup := seen[chat.ID]; dup || chat.ID == "" {
			continue
		}
		seen[chat.ID] = struct{}{}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chats (user_email, id, title, position, fetched_at)
			VALUES (?, ?, ?, ?, ?)
		`, email, chat.ID, chat.Name, position, now); err != nil {
			return fmt.Errorf("insert chat %s: %w", chat.ID, err)
		}

		for j, m := range chat.Messages {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO messages (user_email, chat_id, position, id, role, type, content, label, confidence, reason)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, email, chat.ID, j, m.ID, string(m.Role), string(m.Type), m.Preview(),
				m.Label, m.Confidence, m.Reason); err != nil {
				return fmt.Errorf("insert message %d of chat %s: %w", j, chat.ID, err)
			}
		}
		position++
	}

	return tx.Commit()
}

// LoadSnapshot returns the cached history of a user in its original order
func (r *HistoryRepository) LoadSnapshot(ctx context.Context, email string) ([]domain.Chat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title FROM chats WHERE user_email = ? ORDER BY position ASC
	`, email)
	if err != nil {
		return nil, err
	}

	var chats []domain.Chat
	index := make(map[string]int)
	for rows.Next() {
		var chat domain.Chat
		var title sql.NullString
		if err := rows.Scan(&chat.ID, &title); err != nil {
			rows.Close()
			return nil, err
		}
		chat.Name = title.String
		chat.Messages = []domain.Message{}
		index[chat.ID] = len(chats)
		chats = append(chats, chat)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	msgRows, err := r.db.QueryContext(ctx, `
		SELECT chat_id, id, role, type, content, label, confidence, reason
		FROM messages WHERE user_email = ?
		ORDER BY chat_id, position ASC
	`, email)
	if err != nil {
		return nil, err
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var (
			chatID                                string
			id, role, typ, content, label, reason sql.NullString
			confidence                            sql.NullFloat64
		)
		if err := msgRows.Scan(&chatID, &id, &role, &typ, &content, &label, &confidence, &reason); err != nil {
			return nil, err
		}
		i, ok := index[chatID]
		if !ok {
			continue
		}
		chats[i].Messages = append(chats[i].Messages, domain.Message{
			ID:         id.String,
			Role:       domain.Role(role.String),
			Type:       domain.MediaType(typ.String),
			Content:    content.String,
			Label:      label.String,
			Result:     resultFor(domain.Role(role.String), label.String),
			Confidence: confidence.Float64,
			Reason:     reason.String,
		})
	}

	return chats, msgRows.Err()
}

// DeleteSnapshot drops the cached history of a user
func (r *HistoryRepository) DeleteSnapshot(ctx context.Context, email string) error {
	return deleteSnapshot(ctx, r.db, email)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func deleteSnapshot(ctx context.Context, db execer, email string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM messages WHERE user_email = ?`, email); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `DELETE FROM chats WHERE user_email = ?`, email)
	return err
}

func resultFor(role domain.Role, label string) domain.Result {
	if role != domain.RoleAIdentify {
		return ""
	}
	return domain.DeriveResult(label)
}
