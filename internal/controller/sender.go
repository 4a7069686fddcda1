package controller

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/snapbooth/server/internal/protocol"
)

func (c *controller) writeToConn(ctx context.Context, conn *websocket.Conn, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	muAny, _ := c.connWriteLocks.LoadOrStore(conn, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *controller) broadcast(ctx context.Context, conns []*websocket.Conn, msg protocol.Message) error {
	for _, conn := range conns {
		if err := c.writeToConn(ctx, conn, msg); err != nil {
			// a broken occupant connection must not block delivery to the
			// remaining occupant; its own read loop handles the teardown
			c.logger.WarnContext(ctx, "failed to write to conn", "error", err)
		}
	}

	return nil
}

func (c *controller) writeError(ctx context.Context, conn *websocket.Conn, err error) {
	if werr := c.writeToConn(ctx, conn, protocol.Error{Message: err.Error()}); werr != nil {
		c.logger.WarnContext(ctx, "failed to write error", "error", werr)
	}
}

func (c *controller) releaseConn(conn *websocket.Conn) {
	c.connWriteLocks.Delete(conn)
}
