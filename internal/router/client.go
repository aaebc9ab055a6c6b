// Package router implements the Event Router (C4): one connection-scoped
// handler per socket, dispatching validated events against the Registry
// and fanning out to the correct recipients.
package router

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/vucinatim/air-jam/backend/go/internal/registry"
)

// wsConnection is the subset of *websocket.Conn the router depends on,
// kept narrow so tests can supply an in-memory double.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// clientRole is unknown until the connection's first register/join message
// arrives; it never changes afterward for the life of the connection.
type clientRole int

const (
	roleUnknown clientRole = iota
	roleHostMaster
	roleHostChild
	roleController
)

// Client is the Router's per-socket state: connection identity, role, and
// whatever indices are needed to clean up on disconnect. Its fields are
// only ever touched from the connection's own readPump goroutine, which
// processes messages strictly in arrival order — no internal locking is
// needed here (§5 ordering guarantee 1).
type Client struct {
	conn wsConnection
	send chan []byte

	id registry.ConnID

	role         clientRole
	roomCode     registry.RoomCode
	controllerID registry.ControllerID
}

func newClient(conn wsConnection, id registry.ConnID) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, 256),
		id:   id,
		role: roleUnknown,
	}
}

const writeWait = 10 * time.Second

// readPump runs for the life of the connection in its own goroutine,
// reading and dispatching one frame at a time.
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.handleDisconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(h.cfg.HeartbeatTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(h.cfg.HeartbeatTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.dispatch(c, data)
	}
}

// writePump owns all writes to the connection: outgoing messages plus the
// heartbeat ping, so two goroutines never race on the same socket.
func (c *Client) writePump(h *Hub) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
