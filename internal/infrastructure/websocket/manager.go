package websocket

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"bookmarket/internal/infrastructure/metrics"
	"bookmarket/internal/usecase"
	"bookmarket/pkg/logger"
)

// SessionFactory opens the chat session for a new connection.
type SessionFactory func(ctx context.Context, userID string, renderer usecase.Renderer) Session

// Manager tracks live connections. A user may hold several; each gets its own session.
type Manager struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex

	newSession SessionFactory
	metrics    *metrics.Metrics
	baseCtx    context.Context
}

func NewManager(newSession SessionFactory, m *metrics.Metrics) *Manager {
	return &Manager{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		newSession: newSession,
		metrics:    m,
		baseCtx:    context.Background(),
	}
}

// Start runs the registry loop until ctx is done, then closes every connection.
func (m *Manager) Start(ctx context.Context) {
	m.baseCtx = ctx
	go func() {
		for {
			select {
			case client := <-m.register:
				m.mutex.Lock()
				set, ok := m.clients[client.UserID]
				if !ok {
					set = make(map[*Client]struct{})
					m.clients[client.UserID] = set
				}
				set[client] = struct{}{}
				m.mutex.Unlock()
				m.metrics.ConnectionOpened()
				logger.Info("Client registered: %s (%s)", client.UserID, client.ID)

			case client := <-m.unregister:
				m.mutex.Lock()
				if set, ok := m.clients[client.UserID]; ok {
					if _, ok := set[client]; ok {
						delete(set, client)
						m.metrics.ConnectionClosed()
					}
					if len(set) == 0 {
						delete(m.clients, client.UserID)
					}
				}
				m.mutex.Unlock()
				logger.Info("Client unregistered: %s (%s)", client.UserID, client.ID)

			case <-ctx.Done():
				m.mutex.Lock()
				for _, set := range m.clients {
					for client := range set {
						client.Close()
					}
				}
				m.clients = make(map[string]map[*Client]struct{})
				m.mutex.Unlock()
				return
			}
		}
	}()
}

// Serve runs a connection until the peer goes away. It blocks.
func (m *Manager) Serve(userID string, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(m.baseCtx)
	defer cancel()

	client := newClient(userID, conn)
	client.session = m.newSession(ctx, userID, client)

	select {
	case m.register <- client:
	case <-ctx.Done():
		client.session.Close()
		client.Close()
		return
	}

	go client.writePump()
	client.readPump(ctx)

	client.session.Close()
	client.Close()
	select {
	case m.unregister <- client:
	case <-m.baseCtx.Done():
	}
}

// ConnectionCount returns the number of live connections for userID, or all connections when
// userID is empty.
func (m *Manager) ConnectionCount(userID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if userID != "" {
		return len(m.clients[userID])
	}
	n := 0
	for _, set := range m.clients {
		n += len(set)
	}
	return n
}
