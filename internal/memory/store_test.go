package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"skillbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testStore(t *testing.T, maxHistory int) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "skillbot.db"), maxHistory, testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_ConversationRoundTrip(t *testing.T) {
	store := testStore(t, 0)
	ctx := context.Background()

	conv := domain.Conversation{ID: "cli:local", Channel: "cli", ChatID: "local", Title: "/calc 1+1"}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Creating again is ignored.
	if err := store.CreateConversation(ctx, domain.Conversation{ID: "cli:local", Title: "other"}); err != nil {
		t.Fatalf("create duplicate: %v", err)
	}

	got, err := store.GetConversation(ctx, "cli:local")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Title != "/calc 1+1" || got.Channel != "cli" || got.ChatID != "local" {
		t.Fatalf("unexpected conversation %+v", got)
	}

	missing, err := store.GetConversation(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil conversation without error, got %+v, %v", missing, err)
	}
}

func TestStore_MessagesInOrder(t *testing.T) {
	store := testStore(t, 0)
	ctx := context.Background()
	store.CreateConversation(ctx, domain.Conversation{ID: "c1"})

	for i := 0; i < 5; i++ {
		if err := store.AddMessage(ctx, domain.MessageRecord{
			ConversationID: "c1",
			Sender:         "user",
			Content:        fmt.Sprintf("msg %d", i),
		}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	msgs, err := store.GetMessages(ctx, "c1", 3)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"msg 2", "msg 3", "msg 4"} {
		if msgs[i].Content != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, msgs[i].Content)
		}
		if msgs[i].ID == "" || msgs[i].Type != "text" {
			t.Fatalf("expected generated id and default type, got %+v", msgs[i])
		}
	}
}

func TestStore_SkillMessages(t *testing.T) {
	store := testStore(t, 0)
	ctx := context.Background()
	store.CreateConversation(ctx, domain.Conversation{ID: "c1"})

	store.AddMessage(ctx, domain.MessageRecord{ConversationID: "c1", Sender: "user", Content: "/calc 2*2"})
	store.AddMessage(ctx, domain.MessageRecord{
		ConversationID: "c1",
		Sender:         "assistant",
		Content:        "2*2 = 4",
		Type:           "skill",
		SkillName:      "calc",
		SkillData:      `{"expression":"2*2","result":"4"}`,
	})

	msgs, _ := store.GetMessages(ctx, "c1", 0)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[1].SkillName != "calc" || msgs[1].SkillData != `{"expression":"2*2","result":"4"}` {
		t.Fatalf("skill fields not preserved: %+v", msgs[1])
	}

	usage, err := store.SkillUsage(ctx)
	if err != nil {
		t.Fatalf("skill usage: %v", err)
	}
	if usage["calc"] != 1 || len(usage) != 1 {
		t.Fatalf("unexpected usage %v", usage)
	}
}

func TestStore_MaxHistoryPrunes(t *testing.T) {
	store := testStore(t, 4)
	ctx := context.Background()
	store.CreateConversation(ctx, domain.Conversation{ID: "c1"})
	store.CreateConversation(ctx, domain.Conversation{ID: "c2"})

	for i := 0; i < 10; i++ {
		store.AddMessage(ctx, domain.MessageRecord{ConversationID: "c1", Sender: "user", Content: fmt.Sprint(i)})
	}
	store.AddMessage(ctx, domain.MessageRecord{ConversationID: "c2", Sender: "user", Content: "other"})

	msgs, _ := store.GetMessages(ctx, "c1", 100)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages after pruning, got %d", len(msgs))
	}
	if msgs[0].Content != "6" || msgs[3].Content != "9" {
		t.Fatalf("expected newest messages kept, got %q..%q", msgs[0].Content, msgs[3].Content)
	}
	if other, _ := store.GetMessages(ctx, "c2", 100); len(other) != 1 {
		t.Fatalf("pruning leaked into another conversation: %d messages", len(other))
	}
}

func TestStore_DeleteConversation(t *testing.T) {
	store := testStore(t, 0)
	ctx := context.Background()
	store.CreateConversation(ctx, domain.Conversation{ID: "c1"})
	store.AddMessage(ctx, domain.MessageRecord{ConversationID: "c1", Sender: "user", Content: "hi"})

	if err := store.DeleteConversation(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if conv, _ := store.GetConversation(ctx, "c1"); conv != nil {
		t.Fatal("expected conversation to be gone")
	}
	if msgs, _ := store.GetMessages(ctx, "c1", 0); len(msgs) != 0 {
		t.Fatalf("expected messages to be gone, got %d", len(msgs))
	}
}

func TestStore_ListConversations(t *testing.T) {
	store := testStore(t, 0)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		store.CreateConversation(ctx, domain.Conversation{ID: id})
	}

	convs, err := store.ListConversations(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
}

func TestStore_MessageRequiresConversation(t *testing.T) {
	store := testStore(t, 0)
	err := store.AddMessage(context.Background(), domain.MessageRecord{ConversationID: "ghost", Sender: "user"})
	if err == nil {
		t.Fatal("expected foreign key violation for unknown conversation")
	}
}

func TestRunMigrations_FreshAndIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if v, _ := GetSchemaVersion(db); v != 0 {
		t.Fatalf("expected version 0 on fresh db, got %d", v)
	}
	for i := 0; i < 2; i++ {
		if err := RunMigrations(db, testLogger()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	v, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if v != schemaVersion {
		t.Fatalf("expected schema version %d, got %d", schemaVersion, v)
	}
}

func TestRunMigrations_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if err := RunMigrations(db, testLogger()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO schema_version (version, description) VALUES (?, 'future')`, schemaVersion+1); err != nil {
		t.Fatalf("insert future version: %v", err)
	}
	db.Close()

	_, err = NewSQLiteStore(path, 0, testLogger())
	if !errors.Is(err, ErrSchemaTooNew) {
		t.Fatalf("expected ErrSchemaTooNew, got %v", err)
	}
}

func TestStore_SchemaVersion(t *testing.T) {
	store := testStore(t, 0)
	v, err := store.SchemaVersion()
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if v != schemaVersion {
		t.Fatalf("expected schema version %d, got %d", schemaVersion, v)
	}
}

func TestRunMigrations_HalfAppliedStep(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	// Simulate a v1 database where one v2 column was added by hand.
	if err := applyMigration(db, migrations[0], testLogger()); err != nil {
		t.Fatalf("apply v1: %v", err)
	}
	if _, err := db.Exec(`ALTER TABLE messages ADD COLUMN skill_name TEXT DEFAULT ''`); err != nil {
		t.Fatalf("manual alter: %v", err)
	}

	if err := RunMigrations(db, testLogger()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.Exec(`SELECT skill_name, skill_data FROM messages`); err != nil {
		t.Fatalf("expected v2 columns: %v", err)
	}
}

func TestSplitSQL(t *testing.T) {
	got := splitSQL("  CREATE TABLE a (x INT);\n\n;  DROP TABLE b ; ")
	if len(got) != 2 || got[0] != "CREATE TABLE a (x INT)" || got[1] != "DROP TABLE b" {
		t.Fatalf("unexpected split %q", got)
	}
}
