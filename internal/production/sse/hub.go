package sse

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/bitfantasy/printops/internal/shared/events"
	"go.uber.org/zap"
)

// Event 一条 Server-Sent Event
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client 已连接的控制台
type Client struct {
	ID     string
	UserID string
	Events chan Event
}

// Hub 管理所有 SSE 连接，广播不阻塞
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("sse client registered",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID),
		zap.Int("total", len(h.clients)),
	)
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Debug("sse client unregistered", zap.String("client_id", clientID), zap.Int("total", len(h.clients)))
	}
}

// Count 当前连接数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast 发送给所有客户端，缓冲区满的客户端跳过
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("sse client buffer full, skipping event", zap.String("client_id", client.ID))
		}
	}
}

// Publish 将生产事件转发给控制台，实现 events.Publisher
func (h *Hub) Publish(ctx context.Context, evs ...events.Event) error {
	for _, e := range evs {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		h.Broadcast(Event{EventType: e.Type, Data: string(data)})
	}
	return nil
}
