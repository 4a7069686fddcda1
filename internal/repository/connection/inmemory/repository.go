package inmemory

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/snapbooth/server/internal/repository/connection"
)

type repo struct {
	connList map[*websocket.Conn]string
	idList   map[string]*websocket.Conn
	logger   *slog.Logger
	mu       sync.RWMutex
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		connList: make(map[*websocket.Conn]string),
		idList:   make(map[string]*websocket.Conn),
		logger:   logger,
	}
}

func (r *repo) Add(conn *websocket.Conn, userId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connList[conn] != "" || r.idList[userId] != nil {
		r.logger.Debug("connection.inmemory.Add", "error", connection.ErrAlreadyExists)
		return connection.ErrAlreadyExists
	}

	r.connList[conn] = userId
	r.idList[userId] = conn

	return nil
}

func (r *repo) RemoveByConn(conn *websocket.Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	userId, ok := r.connList[conn]
	if !ok {
		return connection.ErrNotFound
	}

	delete(r.connList, conn)
	delete(r.idList, userId)

	return nil
}

func (r *repo) RemoveByUserId(userId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.idList[userId]
	if !ok {
		return connection.ErrNotFound
	}

	delete(r.connList, conn)
	delete(r.idList, userId)

	return nil
}

func (r *repo) GetUserId(conn *websocket.Conn) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userId, ok := r.connList[conn]
	if !ok {
		return "", connection.ErrNotFound
	}

	return userId, nil
}

func (r *repo) GetConn(userId string) (*websocket.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.idList[userId]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}
