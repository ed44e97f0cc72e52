package chat

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	DefaultTitle = "New Chat"
	// titleRunes is how much of the first message becomes the chat title.
	titleRunes = 30
	// maxTitleRunes keeps explicit titles inside the column.
	maxTitleRunes = 255
)

type Chat struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);not null;index:idx_chats_user_created,priority:1" json:"-"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	CreatedAt time.Time `gorm:"index:idx_chats_user_created,priority:2" json:"created_at"`
}

func (Chat) TableName() string { return "chats" }

type Message struct {
	ID        string    `gorm:"type:varchar(26);primaryKey" json:"id"` // ULID length
	ChatID    string    `gorm:"type:varchar(36);not null;index:idx_chat_messages_chat_created,priority:1" json:"chat_id"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index:idx_chat_messages_chat_created,priority:2" json:"timestamp"`
}

func (Message) TableName() string { return "chat_messages" }

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
