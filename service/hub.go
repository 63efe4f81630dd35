package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/utils"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 推送事件类型
const (
	EventCatalog   = "catalog"
	EventIndicator = "indicator"
	EventPhase     = "phase"
)

// Event 推送给浏览器的消息
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// IndicatorFrame 分割按钮文字动画的一帧
type IndicatorFrame struct {
	Image string `json:"image"`
	Text  string `json:"text"`
}

// PhaseChange 分割状态变化
type PhaseChange struct {
	Image string             `json:"image"`
	From  model.SegmentPhase `json:"from"`
	To    model.SegmentPhase `json:"to"`
}

// Conn 可推送的连接，*websocket.Conn 满足该接口
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

const hubBacklog = 64

// Hub 管理 WebSocket 客户端并广播工作区变化
type Hub struct {
	clients    map[Conn]bool
	broadcast  chan []byte
	register   chan Conn
	unregister chan Conn
	quit       chan struct{}
	mutex      sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[Conn]bool),
		broadcast:  make(chan []byte, hubBacklog),
		register:   make(chan Conn),
		unregister: make(chan Conn),
		quit:       make(chan struct{}),
	}
}

// Run 事件循环，ctx 结束时关闭全部连接
func (h *Hub) Run(ctx context.Context) {
	defer close(h.quit)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			utils.Logger.Info("websocket client connected", zap.Int("total", total))

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			utils.Logger.Info("websocket client disconnected", zap.Int("total", total))

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					utils.Logger.Warn("failed to push message", zap.Error(err))
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Register 加入客户端，Run 已退出时直接关闭连接
func (h *Hub) Register(client Conn) {
	select {
	case h.register <- client:
	case <-h.quit:
		client.Close()
	}
}

func (h *Hub) Unregister(client Conn) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// Publish 编码并排队广播，队列已满时丢弃
func (h *Hub) Publish(eventType string, data any) {
	message, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		utils.Logger.Error("failed to encode event", zap.String("type", eventType), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- message:
	default:
		utils.Logger.Warn("event dropped, broadcast queue full", zap.String("type", eventType))
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
