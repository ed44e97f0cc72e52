package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/suPer8Hu/ai-chat/internal/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrForbidden    = errors.New("chat is not owned by caller")
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateChat(ctx context.Context, c *Chat) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// ListChatsByOwner returns the owner's chats, newest first.
func (r *Repo) ListChatsByOwner(ctx context.Context, ownerID string) ([]Chat, error) {
	chats := make([]Chat, 0)
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&chats).Error; err != nil {
		return nil, err
	}
	return chats, nil
}

// GetOwnedChat looks the chat up scoped to its owner. A missing chat and a
// chat owned by someone else both yield ErrForbidden.
func (r *Repo) GetOwnedChat(ctx context.Context, chatID, ownerID string) (*Chat, error) {
	var c Chat
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", chatID, ownerID).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	return &c, nil
}

// ListMessages returns the whole conversation, oldest first.
func (r *Repo) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	msgs := make([]Message, 0)
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListRecentMessagesDesc returns the most recent messages (newest -> oldest).
func (r *Repo) ListRecentMessagesDesc(ctx context.Context, chatID string, limit int) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// AppendUserMessage checks ownership and stores a user message. The first
// message of a chat also replaces its title. Both writes commit together.
func (r *Repo) AppendUserMessage(ctx context.Context, chatID, callerID, content string) (*Message, error) {
	msg, err := newMessage(chatID, RoleUser, content)
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c Chat
		// row lock serializes concurrent first messages on mysql/postgres
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", chatID).First(&c).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrChatNotFound
			}
			return err
		}
		if c.UserID != callerID {
			return ErrForbidden
		}

		var n int64
		if err := tx.Model(&Message{}).Where("chat_id = ?", chatID).Count(&n).Error; err != nil {
			return err
		}
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		if n == 0 {
			return tx.Model(&Chat{}).
				Where("id = ?", chatID).
				Update("title", truncateRunes(content, titleRunes)).Error
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrChatNotFound) || errors.Is(err, ErrForbidden) {
			return nil, err
		}
		return nil, fmt.Errorf("append user message: %w", err)
	}
	return msg, nil
}

// AppendAssistantMessage stores a reply. Callers must have authorized the
// chat already.
func (r *Repo) AppendAssistantMessage(ctx context.Context, chatID, content string) (*Message, error) {
	msg, err := newMessage(chatID, RoleAssistant, content)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("append assistant message: %w", err)
	}
	return msg, nil
}

func newMessage(chatID, role, content string) (*Message, error) {
	id, err := common.NewULID()
	if err != nil {
		return nil, fmt.Errorf("new message id: %w", err)
	}
	return &Message{ID: id, ChatID: chatID, Role: role, Content: content}, nil
}
