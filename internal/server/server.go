package server

import (
	"context"
	"log"
	"sync"

	"github.com/acameron/go-chat-relay/internal/database"
	"github.com/acameron/go-chat-relay/internal/stats"
	"github.com/acameron/go-chat-relay/internal/types"
)

// RelayServer wires the presence, room, messaging and call components
// together and owns the set of live connections.
type RelayServer struct {
	log      *log.Logger
	db       database.ChatRepository
	stats    stats.StatsProvider
	registry *ConnectionRegistry
	rooms    *RoomMultiplexer
	presence *PresencePublisher
	router   *MessageRouter
	calls    *CallRelay

	clients     map[*Client]struct{}
	clientsLock sync.Mutex
	wg          sync.WaitGroup
}

func NewRelayServer(logger *log.Logger, db database.ChatRepository, st stats.StatsProvider) (*RelayServer, error) {
	registry := NewConnectionRegistry()
	rooms := NewRoomMultiplexer(logger, st)

	rs := &RelayServer{
		log:      logger,
		db:       db,
		stats:    st,
		registry: registry,
		rooms:    rooms,
		presence: NewPresencePublisher(registry, db, logger),
		router:   NewMessageRouter(db, rooms, logger, st),
		calls:    NewCallRelay(registry, logger, st),
		clients:  make(map[*Client]struct{}),
	}

	st.RegisterMetric("NumActiveConnections")
	st.RegisterMetric("NumActiveGroups")
	st.RegisterMetric("NumActiveCalls")
	st.RegisterMetric("NumMessagesRouted")

	return rs, nil
}

// RegisterClient performs connection setup: bind the connection to its user,
// join the user's personal group and run the presence ONLINE transition if
// this is the user's first connection. The presence store write happens
// after the registry work so no lock is held across it.
func (rs *RelayServer) RegisterClient(c *Client) error {
	first, err := rs.registry.Bind(c, c.user.Id)
	if err != nil {
		return err
	}

	rs.rooms.Join(c, personalGroup(c.user.Id))

	rs.clientsLock.Lock()
	rs.clients[c] = struct{}{}
	rs.clientsLock.Unlock()
	rs.wg.Add(1)
	rs.stats.Incr("NumActiveConnections")

	if first {
		rs.presence.UserOnline(c)
	}

	return nil
}

// DeregisterClient tears a connection down: unbind, leave every group, run
// the presence OFFLINE transition if this was the user's last connection,
// and end any call the connection was party to. Safe to call for a
// connection that never completed registration.
func (rs *RelayServer) DeregisterClient(c *Client) {
	userId, last, ok := rs.registry.Unbind(c.id)
	rs.rooms.LeaveAll(c)

	rs.clientsLock.Lock()
	_, registered := rs.clients[c]
	delete(rs.clients, c)
	rs.clientsLock.Unlock()

	if !registered {
		return
	}

	rs.wg.Done()
	rs.stats.Decr("NumActiveConnections")

	if ok {
		if last {
			rs.presence.UserOffline(userId)
		}
		rs.calls.HandleDisconnect(c)
	}
}

// Registry exposes the connection registry for read-side queries such as
// presence checks.
func (rs *RelayServer) Registry() *ConnectionRegistry {
	return rs.registry
}

// SendMessage routes a request-borne chat message. See MessageRouter.Send.
func (rs *RelayServer) SendMessage(senderId int, chatExternalId, content string, kind types.MessageKind) (*types.Message, error) {
	return rs.router.Send(senderId, chatExternalId, content, kind)
}

// MarkRead routes a request-borne read receipt. See MessageRouter.MarkRead.
func (rs *RelayServer) MarkRead(readerId int, chatExternalId string) error {
	return rs.router.MarkRead(readerId, chatExternalId)
}

// BroadcastNewChat notifies every member's personal group that a chat was
// created, reaching each of their connections.
func (rs *RelayServer) BroadcastNewChat(chat types.Chat) {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Chat:        &chat,
	}

	for _, member := range chat.Members {
		rs.rooms.Broadcast(personalGroup(member.Id), msg)
	}
}

// Shutdown stops every live connection and waits for their handlers to
// finish cleanup, or until ctx expires.
func (rs *RelayServer) Shutdown(ctx context.Context) error {
	rs.clientsLock.Lock()
	for c := range rs.clients {
		c.stopClient()
	}
	rs.clientsLock.Unlock()

	done := make(chan struct{})
	go func() {
		rs.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
