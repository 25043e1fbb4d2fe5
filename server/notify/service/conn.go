package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"workhub/server/notify/domain"
)

const writeWait = 5 * time.Second

// WSConn is the registry handle for a websocket client. Writes are
// serialized because gorilla connections allow only one concurrent writer.
type WSConn struct {
	id       string
	userID   string
	tenantID string
	role     string
	conn     *websocket.Conn
	mu       sync.Mutex
}

func NewWSConn(conn *websocket.Conn, userID, tenantID, role string) *WSConn {
	return &WSConn{id: uuid.NewString(), userID: userID, tenantID: tenantID, role: role, conn: conn}
}

func (c *WSConn) ID() string       { return c.id }
func (c *WSConn) UserID() string   { return c.userID }
func (c *WSConn) TenantID() string { return c.tenantID }
func (c *WSConn) Role() string     { return c.role }

func (c *WSConn) Send(event domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(event)
}

func (c *WSConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// CloseWith sends a close frame carrying code and reason, then closes the
// socket.
func (c *WSConn) CloseWith(code int, reason string) {
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	c.mu.Unlock()
	_ = c.conn.Close()
}

func (c *WSConn) Close() error {
	return c.conn.Close()
}
