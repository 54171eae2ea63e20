package server

import (
	"log"
	"strconv"
	"sync"

	"github.com/acameron/go-chat-relay/internal/stats"
)

// personalGroup names the broadcast group carrying direct notifications for
// a single user, such as new_chat. Every connection joins its user's
// personal group at setup.
func personalGroup(userId int) string {
	return "user:" + strconv.Itoa(userId)
}

// RoomMultiplexer manages named broadcast groups of connections. Delivery is
// fire-and-forget per member: a full or closing peer is logged and skipped,
// never surfaced to the broadcaster.
type RoomMultiplexer struct {
	mu     sync.RWMutex
	groups map[string]map[*Client]struct{}
	byConn map[string]map[string]struct{}
	log    *log.Logger
	stats  stats.StatsProvider
}

func NewRoomMultiplexer(logger *log.Logger, st stats.StatsProvider) *RoomMultiplexer {
	return &RoomMultiplexer{
		groups: make(map[string]map[*Client]struct{}),
		byConn: make(map[string]map[string]struct{}),
		log:    logger,
		stats:  st,
	}
}

// Join adds the connection to the group's delivery set. No-op if already a
// member.
func (m *RoomMultiplexer) Join(c *Client, group string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.groups[group]
	if !ok {
		members = make(map[*Client]struct{})
		m.groups[group] = members
		m.stats.Incr("NumActiveGroups")
	}

	if _, ok := members[c]; ok {
		return
	}
	members[c] = struct{}{}

	if m.byConn[c.id] == nil {
		m.byConn[c.id] = make(map[string]struct{})
	}
	m.byConn[c.id][group] = struct{}{}
}

func (m *RoomMultiplexer) Leave(c *Client, group string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.leaveLocked(c, group)
}

// LeaveAll removes the connection from every group it belongs to. Invoked on
// disconnect so membership cannot leak; safe when the connection never
// joined anything.
func (m *RoomMultiplexer) LeaveAll(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for group := range m.byConn[c.id] {
		m.leaveLocked(c, group)
	}
}

func (m *RoomMultiplexer) leaveLocked(c *Client, group string) {
	members, ok := m.groups[group]
	if !ok {
		return
	}

	delete(members, c)
	if len(members) == 0 {
		delete(m.groups, group)
		m.stats.Decr("NumActiveGroups")
	}

	if groups, ok := m.byConn[c.id]; ok {
		delete(groups, group)
		if len(groups) == 0 {
			delete(m.byConn, c.id)
		}
	}
}

// Member reports whether the connection is currently in the group.
func (m *RoomMultiplexer) Member(c *Client, group string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.groups[group][c]
	return ok
}

// Broadcast queues msg on every current member of the group except
// msg.SkipClient. Broadcasts submitted sequentially from one origin are
// queued per member in submission order; failed deliveries are dropped.
func (m *RoomMultiplexer) Broadcast(group string, msg *ServerMessage) {
	m.mu.RLock()
	members := make([]*Client, 0, len(m.groups[group]))
	for c := range m.groups[group] {
		members = append(members, c)
	}
	m.mu.RUnlock()

	for _, c := range members {
		if c == msg.SkipClient {
			continue
		}

		if !c.queueMessage(msg) {
			m.log.Printf("dropped broadcast to connection %q in group %q", c.id, group)
		}
	}
}
