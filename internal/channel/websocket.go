package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"skillbot/internal/domain"
)

const wsWriteTimeout = 10 * time.Second

// WSConfig configures the WebSocket channel.
type WSConfig struct {
	Host   string
	Port   int
	Path   string // endpoint path (default: /ws)
	Logger *slog.Logger
}

// WebSocketChannel lets browser clients chat over a persistent connection.
// Each connection belongs to a chat, given by the chat_id query parameter or
// generated on connect.
type WebSocketChannel struct {
	addr   string
	path   string
	bus    domain.MessageBus
	logger *slog.Logger
	server *http.Server

	mu      sync.RWMutex
	clients map[string]*wsClient
}

type wsClient struct {
	conn   *websocket.Conn
	chatID string
	mu     sync.Mutex
}

// WSMessage is the JSON frame exchanged with clients. Inbound frames use
// type "message" with content; replies add the matched skill and its data.
type WSMessage struct {
	Type    string `json:"type"` // "message" | "status" | "error"
	Content string `json:"content,omitempty"`
	ChatID  string `json:"chat_id,omitempty"`
	UserID  string `json:"user_id,omitempty"`
	Skill   string `json:"skill,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// wsMaxFrameSize caps inbound frames; larger frames close the connection.
const wsMaxFrameSize = apiMaxBodySize

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func NewWebSocketChannel(cfg WSConfig) *WebSocketChannel {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.Port == 0 {
		cfg.Port = 8081
	}
	return &WebSocketChannel{
		addr:    net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		path:    cfg.Path,
		logger:  cfg.Logger,
		clients: make(map[string]*wsClient),
	}
}

func (ws *WebSocketChannel) Name() string { return "websocket" }

// Handler registers the outbound route on bus and returns the upgrade
// handler. Start calls it; tests mount it on an httptest server.
func (ws *WebSocketChannel) Handler(bus domain.MessageBus) http.Handler {
	ws.bus = bus
	bus.OnOutbound("websocket", func(msg domain.OutboundMessage) {
		reply := WSMessage{Type: "message", Content: msg.Content, ChatID: msg.ChatID}
		if msg.Result != nil {
			reply.Skill = msg.Result.SkillName
			reply.Data = msg.Result.Data
		}
		ws.sendToChat(msg.ChatID, reply)
	})

	mux := http.NewServeMux()
	mux.HandleFunc(ws.path, ws.handleUpgrade)
	return mux
}

// Start serves the WebSocket endpoint until ctx is cancelled.
func (ws *WebSocketChannel) Start(ctx context.Context, bus domain.MessageBus) error {
	ws.server = &http.Server{
		Addr:              ws.addr,
		Handler:           ws.Handler(bus),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ws.logger.Info("websocket server starting", "addr", ws.addr, "path", ws.path)

	errCh := make(chan error, 1)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ws.closeAllClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ws.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (ws *WebSocketChannel) Stop() error {
	ws.closeAllClients()
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}

// Send pushes a plain message to every connection of chatID.
func (ws *WebSocketChannel) Send(ctx context.Context, chatID string, content string) error {
	if n := ws.sendToChat(chatID, WSMessage{Type: "message", Content: content, ChatID: chatID}); n == 0 {
		return fmt.Errorf("no websocket client for chat %s", chatID)
	}
	return nil
}

func (ws *WebSocketChannel) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(wsMaxFrameSize)

	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		chatID = "ws-" + uuid.NewString()
	}

	client := &wsClient{conn: conn, chatID: chatID}
	clientID := fmt.Sprintf("%s-%p", chatID, conn)
	ws.mu.Lock()
	ws.clients[clientID] = client
	ws.mu.Unlock()

	ws.logger.Info("websocket client connected", "client_id", clientID, "chat_id", chatID)
	client.send(WSMessage{Type: "status", Content: "connected", ChatID: chatID})

	defer func() {
		ws.mu.Lock()
		delete(ws.clients, clientID)
		ws.mu.Unlock()
		conn.Close()
		ws.logger.Info("websocket client disconnected", "client_id", clientID)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Error("websocket read error", "err", err)
			}
			return
		}

		var in WSMessage
		if err := json.Unmarshal(raw, &in); err != nil {
			ws.logger.Warn("invalid websocket message", "err", err)
			client.send(WSMessage{Type: "error", Content: "invalid JSON frame"})
			continue
		}

		switch in.Type {
		case "message":
			ws.bus.Publish(domain.InboundMessage{
				Channel:   "websocket",
				ChatID:    chatID,
				SenderID:  in.UserID,
				Content:   in.Content,
				Timestamp: time.Now(),
			})
		default:
			ws.logger.Debug("ignoring websocket frame", "type", in.Type, "chat_id", chatID)
		}
	}
}

// sendToChat writes msg to every connection of chatID and returns how many
// connections it reached.
func (ws *WebSocketChannel) sendToChat(chatID string, msg WSMessage) int {
	ws.mu.RLock()
	var targets []*wsClient
	for _, c := range ws.clients {
		if c.chatID == chatID {
			targets = append(targets, c)
		}
	}
	ws.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if err := c.send(msg); err != nil {
			ws.logger.Debug("websocket write failed", "chat_id", chatID, "err", err)
			continue
		}
		sent++
	}
	return sent
}

func (c *wsClient) send(msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (ws *WebSocketChannel) closeAllClients() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for id, client := range ws.clients {
		client.conn.Close()
		delete(ws.clients, id)
	}
}
