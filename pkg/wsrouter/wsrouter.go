package wsrouter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type HandlerFunc[T any] func(ctx context.Context, conn *websocket.Conn, input T) error

type Middleware func(next HandlerFunc[any]) HandlerFunc[any]

type ErrorHandlerFunc func(ctx context.Context, conn *websocket.Conn, err error)

type WSRouter struct {
	routes       map[string]HandlerFunc[any]
	middlewares  []Middleware
	errorHandler ErrorHandlerFunc
}

func New() *WSRouter {
	return &WSRouter{
		routes:       make(map[string]HandlerFunc[any]),
		errorHandler: func(context.Context, *websocket.Conn, error) {},
	}
}

func (r *WSRouter) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

// SetErrorHandler registers the callback invoked when a handler returns an
// error. Handler errors never terminate the serve loop.
func (r *WSRouter) SetErrorHandler(h ErrorHandlerFunc) {
	r.errorHandler = h
}

// Handle registers a handler for a message type. The raw payload is
// unmarshaled into T before the handler is called.
func Handle[T any](r *WSRouter, messageType string, handler HandlerFunc[T]) {
	r.routes[messageType] = func(ctx context.Context, conn *websocket.Conn, input any) error {
		raw, _ := input.(json.RawMessage)

		var typed T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &typed); err != nil {
				return fmt.Errorf("unmarshal %s payload: %w", messageType, err)
			}
		}

		return handler(ctx, conn, typed)
	}
}

// ServeConn reads messages from the connection and routes them until the
// connection errors. The returned error is always the read error.
func (r *WSRouter) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		handler, exists := r.routes[msg.Type]
		if !exists {
			r.errorHandler(ctx, conn, fmt.Errorf("unknown message type %q", msg.Type))
			continue
		}

		for i := len(r.middlewares) - 1; i >= 0; i-- {
			handler = r.middlewares[i](handler)
		}

		msgCtx := context.WithValue(ctx, messageTypeKey, msg.Type)
		if err := handler(msgCtx, conn, json.RawMessage(msg.Payload)); err != nil {
			r.errorHandler(msgCtx, conn, err)
		}
	}
}
