package domain

import "context"

// Channel is a user-facing transport (CLI, Telegram, WebSocket, HTTP API).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	Send(ctx context.Context, chatID string, content string) error
}
