package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const writeWait = 10 * time.Second

// WebSocketChannel pushes messages to the browser tabs a user has open.
// Clients connect with GET /ws?user_id=...; the connection is write-only.
type WebSocketChannel struct {
	conns          map[string]map[*websocket.Conn]struct{}
	originPatterns []string
	mu             sync.RWMutex
}

// NewWebSocketChannel creates a websocket channel. originPatterns are the
// cross-origin hosts allowed to connect.
func NewWebSocketChannel(originPatterns ...string) *WebSocketChannel {
	return &WebSocketChannel{
		conns:          make(map[string]map[*websocket.Conn]struct{}),
		originPatterns: originPatterns,
	}
}

// ServeHTTP upgrades the request and holds the connection until the client
// goes away.
func (c *WebSocketChannel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: c.originPatterns,
	})
	if err != nil {
		slog.Warn("websocket accept failed", "user_id", userID, "error", err)
		return
	}

	c.add(userID, conn)
	defer c.remove(userID, conn)
	slog.Debug("websocket connected", "user_id", userID)

	ctx := conn.CloseRead(r.Context())
	<-ctx.Done()
	conn.Close(websocket.StatusNormalClosure, "")
}

// Send writes msg to every connection of msg.UserID. A user without open
// connections is not an error.
func (c *WebSocketChannel) Send(ctx context.Context, msg Message) error {
	c.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(c.conns[msg.UserID]))
	for conn := range c.conns[msg.UserID] {
		conns = append(conns, conn)
	}
	c.mu.RUnlock()

	var failed int
	for _, conn := range conns {
		wctx, cancel := context.WithTimeout(ctx, writeWait)
		err := wsjson.Write(wctx, conn, msg)
		cancel()
		if err != nil {
			failed++
			slog.Warn("websocket write failed", "user_id", msg.UserID, "error", err)
			c.remove(msg.UserID, conn)
			conn.Close(websocket.StatusInternalError, "write failed")
		}
	}
	if failed > 0 && failed == len(conns) {
		return fmt.Errorf("websocket: all %d connections of %s failed", failed, msg.UserID)
	}
	return nil
}

// Connections returns the number of open connections of a user.
func (c *WebSocketChannel) Connections(userID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conns[userID])
}

// Close disconnects every client.
func (c *WebSocketChannel) Close() error {
	c.mu.Lock()
	all := c.conns
	c.conns = make(map[string]map[*websocket.Conn]struct{})
	c.mu.Unlock()

	for _, conns := range all {
		for conn := range conns {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
	}
	return nil
}

func (c *WebSocketChannel) add(userID string, conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conns[userID] == nil {
		c.conns[userID] = make(map[*websocket.Conn]struct{})
	}
	c.conns[userID][conn] = struct{}{}
}

func (c *WebSocketChannel) remove(userID string, conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns[userID], conn)
	if len(c.conns[userID]) == 0 {
		delete(c.conns, userID)
	}
}
