package ws

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

// GameTopic is the hub topic carrying the events of one game.
func GameTopic(gameId uint64) string {
	return fmt.Sprintf("game/%d", gameId)
}

type WebSocketNotificationHub struct {
	mu        sync.Mutex
	listeners map[string][]*websocket.Conn
}

func NewNotificationHub() *WebSocketNotificationHub {
	return &WebSocketNotificationHub{
		listeners: make(map[string][]*websocket.Conn),
	}
}

func (hub *WebSocketNotificationHub) RegisterListener(topic string, conn *websocket.Conn) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	hub.listeners[topic] = append(hub.listeners[topic], conn)
}

func (hub *WebSocketNotificationHub) UnregisterListener(topic string, conn *websocket.Conn) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	hub.remove(topic, conn)
}

func (hub *WebSocketNotificationHub) remove(topic string, conn *websocket.Conn) {
	listeners := hub.listeners[topic]
	for i, listener := range listeners {
		if listener == conn {
			listeners = append(listeners[:i], listeners[i+1:]...)
			break
		}
	}
	if len(listeners) == 0 {
		delete(hub.listeners, topic)
		return
	}
	hub.listeners[topic] = listeners
}

// Publish writes event as JSON to every listener of targetTopic. Listeners
// that fail the write are dropped.
func (hub *WebSocketNotificationHub) Publish(targetTopic string, event any) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for _, listener := range append([]*websocket.Conn(nil), hub.listeners[targetTopic]...) {
		_ = listener.SetWriteDeadline(time.Now().Add(writeWait))
		if err := listener.WriteJSON(event); err != nil {
			log.Debug().Err(err).Str("topic", targetTopic).Msg("Dropping websocket listener")
			hub.remove(targetTopic, listener)
			_ = listener.Close()
		}
	}
}

// ListenerCount returns how many connections listen on topic.
func (hub *WebSocketNotificationHub) ListenerCount(topic string) int {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	return len(hub.listeners[topic])
}
