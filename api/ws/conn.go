package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 64
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
	maxFrameBytes = 4096
)

// Frame is the JSON envelope exchanged with chat clients.
type Frame struct {
	Type     string   `json:"type"`
	Text     string   `json:"text,omitempty"`
	Error    string   `json:"error,omitempty"`
	Messages any      `json:"messages,omitempty"`
	Online   []string `json:"online,omitempty"`
}

// conn owns a WebSocket and its write goroutine.
type conn struct {
	ws     *websocket.Conn
	userID string
	send   chan []byte
	done   chan struct{}
	logger *zap.Logger
}

func newConn(ws *websocket.Conn, userID string, logger *zap.Logger) *conn {
	c := &conn{
		ws:     ws,
		userID: userID,
		send:   make(chan []byte, sendChanBuf),
		done:   make(chan struct{}),
		logger: logger,
	}
	go c.writePump()
	return c
}

// writePump drains send and pings the peer so dead sockets are noticed.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.ws.Close()
	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("ws write error", zap.String("user_id", c.userID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes f and queues it. Drops when the queue is full or closed.
func (c *conn) Send(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.SendRaw(data)
}

// SendRaw queues pre-encoded data without blocking.
func (c *conn) SendRaw(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.logger.Warn("ws send queue full, dropping frame", zap.String("user_id", c.userID))
	}
}

// Close signals the write goroutine to shut down.
func (c *conn) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *conn) setReadDeadline() {
	_ = c.ws.SetReadDeadline(time.Now().Add(readDeadline))
}
