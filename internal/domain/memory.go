package domain

import (
	"context"
	"time"
)

// TranscriptStore persists the chat history owned by the caller of the dispatcher.
type TranscriptStore interface {
	CreateConversation(ctx context.Context, conv Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, limit int) ([]Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	AddMessage(ctx context.Context, msg MessageRecord) error
	GetMessages(ctx context.Context, convID string, limit int) ([]MessageRecord, error)

	Close() error
}

type Conversation struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	ChatID    string    `json:"chat_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageRecord mirrors one chat message. Type is "text" or "skill"; skill
// messages carry the skill name and its structured data as JSON.
type MessageRecord struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"` // user | assistant
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	SkillName      string    `json:"skill_name,omitempty"`
	SkillData      string    `json:"skill_data,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
