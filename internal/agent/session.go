package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"skillbot/internal/domain"
)

// Message types stored in the transcript.
const (
	MessageText  = "text"
	MessageSkill = "skill"
)

// SessionManager maps channel chats to transcript conversations and records
// each exchange.
type SessionManager struct {
	store  domain.TranscriptStore
	logger *slog.Logger
	mu     sync.Mutex
}

func NewSessionManager(store domain.TranscriptStore, logger *slog.Logger) *SessionManager {
	return &SessionManager{store: store, logger: logger}
}

func sessionKey(channel, chatID string) string {
	return fmt.Sprintf("%s:%s", channel, chatID)
}

// GetOrCreateConversation returns the conversation ID for a chat, creating the
// conversation on first contact and titling it from the first message.
func (sm *SessionManager) GetOrCreateConversation(ctx context.Context, channel, chatID, firstMessage string) (string, error) {
	key := sessionKey(channel, chatID)

	sm.mu.Lock()
	defer sm.mu.Unlock()

	conv, err := sm.store.GetConversation(ctx, key)
	if err != nil {
		return "", err
	}
	if conv != nil {
		return conv.ID, nil
	}

	now := time.Now()
	if err := sm.store.CreateConversation(ctx, domain.Conversation{
		ID:        key,
		Channel:   channel,
		ChatID:    chatID,
		Title:     generateTitle(firstMessage),
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return "", err
	}

	sm.logger.Info("created new conversation", "session", key)
	return key, nil
}

// RecordExchange stores the user's input and the reply it produced.
func (sm *SessionManager) RecordExchange(ctx context.Context, convID, input string, result domain.DispatchResult) error {
	now := time.Now()
	if err := sm.store.AddMessage(ctx, domain.MessageRecord{
		ConversationID: convID,
		Sender:         "user",
		Content:        input,
		Type:           MessageText,
		CreatedAt:      now,
	}); err != nil {
		return fmt.Errorf("save user message: %w", err)
	}

	reply := domain.MessageRecord{
		ConversationID: convID,
		Sender:         "assistant",
		Content:        result.Text,
		Type:           MessageText,
		CreatedAt:      now,
	}
	if result.Matched {
		reply.Type = MessageSkill
		reply.SkillName = result.SkillName
		if result.Data != nil {
			data, err := json.Marshal(result.Data)
			if err != nil {
				sm.logger.Warn("cannot encode skill data", "skill", result.SkillName, "err", err)
			} else {
				reply.SkillData = string(data)
			}
		}
	}
	if err := sm.store.AddMessage(ctx, reply); err != nil {
		return fmt.Errorf("save assistant message: %w", err)
	}
	return nil
}

// History returns the most recent messages of a chat, oldest first.
func (sm *SessionManager) History(ctx context.Context, channel, chatID string, limit int) ([]domain.MessageRecord, error) {
	return sm.store.GetMessages(ctx, sessionKey(channel, chatID), limit)
}

// ClearSession deletes a chat's conversation and its messages.
func (sm *SessionManager) ClearSession(ctx context.Context, channel, chatID string) error {
	key := sessionKey(channel, chatID)

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err := sm.store.DeleteConversation(ctx, key); err != nil {
		return err
	}
	sm.logger.Info("session cleared", "session", key)
	return nil
}

func generateTitle(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "New conversation"
	}
	if idx := strings.IndexAny(msg, "\n\r"); idx > 0 {
		msg = msg[:idx]
	}
	if len(msg) > 60 {
		cut := strings.LastIndex(msg[:60], " ")
		if cut < 20 {
			cut = 60
		}
		msg = msg[:cut] + "..."
	}
	return msg
}
