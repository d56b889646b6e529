package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"swap_go/internal/domain"
	"swap_go/internal/event"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsSendBuffer   = 256
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin:      func(r *http.Request) bool { return true },
}

// eventMessage is the wire shape of one order event pushed to stream
// subscribers.
type eventMessage struct {
	OrderID string             `json:"orderId"`
	Status  domain.OrderStatus `json:"status"`
	Payload any                `json:"payload,omitempty"`
	Ts      int64              `json:"ts,omitempty"`
}

func newEventMessage(ev event.OrderEvent) eventMessage {
	return eventMessage{
		OrderID: ev.OrderID,
		Status:  ev.Status,
		Payload: ev.Payload,
		Ts:      ev.TsUnixM,
	}
}

// wsSession owns one upgraded connection. All writes go through the
// send channel into a single writer goroutine, which also keeps the
// connection alive with pings.
type wsSession struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSSession(conn *websocket.Conn) *wsSession {
	return &wsSession{
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
		done: make(chan struct{}),
	}
}

func (s *wsSession) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// enqueue hands a message to the writer without blocking. The engine
// loop calls this; a slow consumer loses messages rather than stalling
// order processing.
func (s *wsSession) enqueue(msg []byte) {
	select {
	case s.send <- msg:
	case <-s.done:
	default:
		slog.Warn("WS send buffer full, dropping event")
	}
}

func (s *wsSession) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Warn("WS write error", "err", err)
				s.close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Warn("WS ping error", "err", err)
				s.close()
				return
			}
		}
	}
}

// handleStream upgrades the connection, replays the order's history and
// pushes every further event until the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("orderId")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WS upgrade failed", "err", err)
		return
	}

	session := newWSSession(conn)
	defer session.close()
	go session.writeLoop()

	if orderID == "" {
		msg, _ := json.Marshal(map[string]string{"type": "error", "message": "orderId is required"})
		session.enqueue(msg)
		// Give the writer a moment to flush before tearing down.
		time.Sleep(100 * time.Millisecond)
		return
	}

	slog.Info("WS stream started", "order_id", orderID)

	unsubscribe, err := s.engine.Subscribe(r.Context(), orderID, func(ev event.OrderEvent) {
		msg, merr := json.Marshal(newEventMessage(ev))
		if merr != nil {
			slog.Warn("WS marshal error", "err", merr)
			return
		}
		session.enqueue(msg)
	})
	if err != nil {
		slog.Warn("WS subscribe failed", "order_id", orderID, "err", err)
		return
	}
	defer unsubscribe()

	// Read loop only exists to notice the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			slog.Info("WS stream closed", "order_id", orderID)
			return
		}
	}
}
