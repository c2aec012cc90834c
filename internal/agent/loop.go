// Package agent routes chat input to skills: the Dispatcher picks a skill,
// the Fallback answers what no skill claims, and the Loop connects both to
// the message bus and the transcript.
package agent

import (
	"context"
	"log/slog"
	"time"

	"skillbot/internal/domain"
)

// Loop consumes inbound messages from the bus one at a time, dispatches them
// and publishes the replies.
type Loop struct {
	dispatcher *Dispatcher
	sessions   *SessionManager
	bus        domain.MessageBus
	logger     *slog.Logger
}

// LoopConfig holds all dependencies for the loop.
type LoopConfig struct {
	Dispatcher *Dispatcher
	Sessions   *SessionManager // optional: nil disables the transcript
	Bus        domain.MessageBus
	Logger     *slog.Logger
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		dispatcher: cfg.Dispatcher,
		sessions:   cfg.Sessions,
		bus:        cfg.Bus,
		logger:     cfg.Logger,
	}
}

// Run processes inbound messages sequentially until ctx is done or the bus
// is closed. The next message is not read until the current reply is sent.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("dispatch loop started")

	inbound := l.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("dispatch loop stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound channel closed, dispatch loop stopping")
				return
			}
			l.processMessage(ctx, msg)
		}
	}
}

// ProcessDirect handles one message synchronously and returns the result.
// Used by the route command and the HTTP API.
func (l *Loop) ProcessDirect(ctx context.Context, content, channel, chatID string) domain.DispatchResult {
	return l.handleMessage(ctx, domain.InboundMessage{
		Channel:   channel,
		ChatID:    chatID,
		SenderID:  "user",
		Content:   content,
		Timestamp: time.Now(),
	})
}

func (l *Loop) processMessage(ctx context.Context, msg domain.InboundMessage) {
	l.logger.Info("processing message",
		"channel", msg.Channel,
		"sender", msg.SenderID,
		"content_len", len(msg.Content),
	)

	result := l.handleMessage(ctx, msg)

	l.bus.SendOutbound(domain.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: result.Text,
		Format:  "markdown",
		Result:  &result,
	})
}

func (l *Loop) handleMessage(ctx context.Context, msg domain.InboundMessage) domain.DispatchResult {
	if cmd := ParseCommand(msg.Content); cmd != nil {
		if res := l.HandleCommand(ctx, cmd, msg); res.Handled {
			return domain.DispatchResult{Text: res.Response}
		}
	}

	result := l.dispatcher.Route(ctx, msg.Content)
	l.record(ctx, msg, result)
	return result
}

// record persists the exchange. Failures are logged only; the reply is sent
// regardless.
func (l *Loop) record(ctx context.Context, msg domain.InboundMessage, result domain.DispatchResult) {
	if l.sessions == nil {
		return
	}
	convID, err := l.sessions.GetOrCreateConversation(ctx, msg.Channel, msg.ChatID, msg.Content)
	if err != nil {
		l.logger.Warn("session error, transcript not saved", "channel", msg.Channel, "err", err)
		return
	}
	if err := l.sessions.RecordExchange(ctx, convID, msg.Content, result); err != nil {
		l.logger.Warn("failed to save transcript", "convID", convID, "err", err)
	}
}
