package agent

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"skillbot/internal/domain"
	"skillbot/internal/expr"
)

// memStore is an in-memory TranscriptStore for loop and session tests.
type memStore struct {
	mu       sync.Mutex
	convs    map[string]domain.Conversation
	messages map[string][]domain.MessageRecord
	failAdd  bool
}

func newMemStore() *memStore {
	return &memStore{
		convs:    make(map[string]domain.Conversation),
		messages: make(map[string][]domain.MessageRecord),
	}
}

func (m *memStore) CreateConversation(_ context.Context, conv domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[conv.ID] = conv
	return nil
}

func (m *memStore) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memStore) ListConversations(_ context.Context, limit int) ([]domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Conversation
	for _, c := range m.convs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) DeleteConversation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.convs, id)
	delete(m.messages, id)
	return nil
}

func (m *memStore) AddMessage(_ context.Context, msg domain.MessageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAdd {
		return errors.New("disk full")
	}
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
	return nil
}

func (m *memStore) GetMessages(_ context.Context, convID string, limit int) ([]domain.MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[convID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.MessageRecord(nil), msgs...), nil
}

func (m *memStore) Close() error { return nil }

var _ domain.TranscriptStore = (*memStore)(nil)

func TestSessionManager_CreatesConversationOnce(t *testing.T) {
	store := newMemStore()
	sm := NewSessionManager(store, testLogger())
	ctx := context.Background()

	id1, err := sm.GetOrCreateConversation(ctx, "telegram", "42", "what's the weather in Paris")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id2, err := sm.GetOrCreateConversation(ctx, "telegram", "42", "second message")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if id1 != id2 || id1 != "telegram:42" {
		t.Fatalf("expected stable id 'telegram:42', got %q and %q", id1, id2)
	}

	conv, _ := store.GetConversation(ctx, id1)
	if conv.Title != "what's the weather in Paris" {
		t.Fatalf("expected title from first message, got %q", conv.Title)
	}
	if conv.Channel != "telegram" || conv.ChatID != "42" {
		t.Fatalf("unexpected conversation %+v", conv)
	}
}

func TestSessionManager_RecordExchange(t *testing.T) {
	store := newMemStore()
	sm := NewSessionManager(store, testLogger())
	ctx := context.Background()

	convID, _ := sm.GetOrCreateConversation(ctx, "cli", "local", "/calc 1+1")
	err := sm.RecordExchange(ctx, convID, "/calc 1+1", domain.DispatchResult{
		Matched:   true,
		SkillName: "calc",
		Text:      "1+1 = 2",
		Data:      expr.Calculation{Expression: "1+1", Result: "2"},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	msgs, _ := sm.History(ctx, "cli", "local", 10)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Sender != "user" || msgs[0].Type != MessageText {
		t.Fatalf("unexpected user record %+v", msgs[0])
	}
	reply := msgs[1]
	if reply.Type != MessageSkill || reply.SkillName != "calc" {
		t.Fatalf("unexpected reply record %+v", reply)
	}
	if reply.SkillData != `{"expression":"1+1","result":"2"}` {
		t.Fatalf("unexpected skill data %q", reply.SkillData)
	}
}

func TestSessionManager_ClearSession(t *testing.T) {
	store := newMemStore()
	sm := NewSessionManager(store, testLogger())
	ctx := context.Background()

	convID, _ := sm.GetOrCreateConversation(ctx, "cli", "local", "hi")
	sm.RecordExchange(ctx, convID, "hi", domain.DispatchResult{Text: greetingReply})

	if err := sm.ClearSession(ctx, "cli", "local"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	msgs, _ := sm.History(ctx, "cli", "local", 10)
	if len(msgs) != 0 {
		t.Fatalf("expected no messages after clear, got %d", len(msgs))
	}
}

func TestGenerateTitle(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"empty", "", "New conversation"},
		{"whitespace", "   ", "New conversation"},
		{"short", "/weather Tokyo", "/weather Tokyo"},
		{"multiline", "define\nserendipity", "define"},
		{"exactly sixty", "123456789012345678901234567890123456789012345678901234567890", "123456789012345678901234567890123456789012345678901234567890"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := generateTitle(tt.in); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}

	long := generateTitle("what is the weather like in a city with a really long name that goes on and on")
	if len(long) > 63 || long[len(long)-3:] != "..." {
		t.Fatalf("expected truncated title with ellipsis, got %q", long)
	}
}
