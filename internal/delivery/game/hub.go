package game

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"board_sync/internal/domain/game"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	subscriberSend = 32
)

// Hub pushes domain events to every connected overlay. Publish never
// blocks: a subscriber that cannot keep up is disconnected.
type Hub struct {
	log *zap.SugaredLogger

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		log:         log,
		subscribers: make(map[*subscriber]struct{}),
	}
}

func (h *Hub) Publish(ev game.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Errorw("failed to marshal event", "type", ev.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subscribers {
		select {
		case s.send <- data:
		default:
			h.log.Warnw("event subscriber too slow, disconnecting", "remote", s.conn.RemoteAddr().String())
			delete(h.subscribers, s)
			s.close()
		}
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Serve owns conn until the peer goes away. It returns after both the
// read and the write side have stopped.
func (h *Hub) Serve(conn *websocket.Conn) {
	s := &subscriber{conn: conn, send: make(chan []byte, subscriberSend)}

	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	h.mu.Unlock()
	h.log.Infow("event subscriber connected", "remote", conn.RemoteAddr().String())

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(s)
	}()

	h.readLoop(s)

	h.mu.Lock()
	delete(h.subscribers, s)
	h.mu.Unlock()
	s.close()
	<-done
	h.log.Infow("event subscriber disconnected", "remote", conn.RemoteAddr().String())
}

// readLoop only drains control frames; overlays never send data here.
func (h *Hub) readLoop(s *subscriber) {
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Debugw("event write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subscribers {
		delete(h.subscribers, s)
		s.close()
	}
}
