// Package proxy implements the proxy frontend: a TCP acceptor that frames
// inbound connections like internal/wire, dispatches by numeric message ID,
// and tracks live connections so a pushed message addressed to a client_id
// can be routed to the right socket.
package proxy

import (
	"net"
	"sync"

	"github.com/google/uuid"
)

// ConnectionManager assigns each accepted connection a UUID and maintains
// uuid->connection and client_id->uuid mappings, so a message addressed to
// a client_id (e.g. pushed via a pub/sub collaborator) can be routed to the
// live socket that client is holding open.
type ConnectionManager struct {
	mu          sync.Mutex
	connections map[uuid.UUID]net.Conn
	byClientID  map[string]uuid.UUID
}

// NewConnectionManager constructs an empty ConnectionManager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[uuid.UUID]net.Conn),
		byClientID:  make(map[string]uuid.UUID),
	}
}

// Add registers conn under a fresh UUID and returns it.
func (m *ConnectionManager) Add(conn net.Conn) uuid.UUID {
	id := uuid.New()

	m.mu.Lock()
	m.connections[id] = conn
	m.mu.Unlock()

	return id
}

// BindClientID associates clientID with an already-registered connection
// UUID, so future pushes to clientID reach that socket.
func (m *ConnectionManager) BindClientID(clientID string, id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byClientID[clientID] = id
}

// Get returns the connection registered under id, if still live.
func (m *ConnectionManager) Get(id uuid.UUID) (net.Conn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.connections[id]
	return conn, ok
}

// GetByClientID returns the connection currently bound to clientID.
func (m *ConnectionManager) GetByClientID(clientID string) (net.Conn, bool) {
	m.mu.Lock()
	id, ok := m.byClientID[clientID]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	return m.Get(id)
}

// Len reports the number of currently tracked connections, for tests and
// diagnostics.
func (m *ConnectionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.connections)
}

// Remove drops the uuid->connection mapping for id.
func (m *ConnectionManager) Remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, id)
}

// RemoveByClientID purges both mappings for clientID.
func (m *ConnectionManager) RemoveByClientID(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byClientID[clientID]
	if !ok {
		return
	}
	delete(m.byClientID, clientID)
	delete(m.connections, id)
}
