package server

import (
	"sync"
)

// ConnectionRegistry is the source of truth for which connections are live
// and which user each one is bound to. A user may hold several bindings at
// once (one per device); a connection is bound to at most one user.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[string]*Client
	users map[int]map[string]*Client
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[string]*Client),
		users: make(map[int]map[string]*Client),
	}
}

// Bind registers the connection under userId. It reports whether this is the
// user's first live connection, which drives the presence ONLINE transition.
// Binding the same connection twice to the same user is a no-op; binding it
// to a different user is rejected.
func (r *ConnectionRegistry) Bind(c *Client, userId int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.conns[c.id]; ok {
		if existing.user.Id != userId {
			return false, ErrAlreadyBound
		}
		return false, nil
	}

	r.conns[c.id] = c
	first := r.users[userId] == nil
	if first {
		r.users[userId] = make(map[string]*Client)
	}
	r.users[userId][c.id] = c

	return first, nil
}

// Unbind removes the connection's binding and reports the user it was bound
// to along with whether it was that user's last live connection. Unbinding a
// connection that was never bound, or was already unbound by a concurrent
// disconnect handler, reports ok=false.
func (r *ConnectionRegistry) Unbind(connId string) (userId int, last, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connId]
	if !ok {
		return 0, false, false
	}

	delete(r.conns, connId)
	userId = c.user.Id

	if userConns, ok := r.users[userId]; ok {
		delete(userConns, connId)
		if len(userConns) == 0 {
			delete(r.users, userId)
			last = true
		}
	}

	return userId, last, true
}

// Resolve returns all live connections bound to userId.
func (r *ConnectionRegistry) Resolve(userId int) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.users[userId]))
	for _, c := range r.users[userId] {
		clients = append(clients, c)
	}

	return clients
}

func (r *ConnectionRegistry) IsOnline(userId int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.users[userId]) > 0
}

// Get returns the client for a connection id, if still live.
func (r *ConnectionRegistry) Get(connId string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connId]
	return c, ok
}

// All returns a snapshot of every live bound connection.
func (r *ConnectionRegistry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.conns))
	for _, c := range r.conns {
		clients = append(clients, c)
	}

	return clients
}
