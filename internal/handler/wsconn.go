package handler

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// wsConn adapts a fiber websocket connection to the hub Conn
// interface. The write mutex serializes WriteMessage across the hubs'
// broadcast goroutines.
type wsConn struct {
	id           string
	userID       int64
	name         string
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

func newWSConn(id string, userID int64, name string, conn *websocket.Conn, writeTimeout time.Duration) *wsConn {
	return &wsConn{
		id:           id,
		userID:       userID,
		name:         name,
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (c *wsConn) ID() string    { return c.id }
func (c *wsConn) UserID() int64 { return c.userID }
func (c *wsConn) Name() string  { return c.name }

func (c *wsConn) Send(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
