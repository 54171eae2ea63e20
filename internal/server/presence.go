package server

import (
	"log"

	"github.com/acameron/go-chat-relay/internal/database"
)

// PresencePublisher mirrors online/offline transitions into the store and
// announces them to every other connection. The store write is best-effort:
// presence is an availability signal, so a persistence outage must not block
// the broadcast.
type PresencePublisher struct {
	registry *ConnectionRegistry
	db       database.ChatRepository
	log      *log.Logger
}

func NewPresencePublisher(registry *ConnectionRegistry, db database.ChatRepository, logger *log.Logger) *PresencePublisher {
	return &PresencePublisher{
		registry: registry,
		db:       db,
		log:      logger,
	}
}

// UserOnline handles the OFFLINE -> ONLINE transition for c's user. The
// caller has already established that c is the user's first live connection.
func (p *PresencePublisher) UserOnline(c *Client) {
	if err := p.db.SetAccountPresence(c.user.Id, true, Now()); err != nil {
		p.log.Printf("persist online for user %d: %v", c.user.Id, err)
	}

	p.publish(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			Presence: &Presence{
				UserId: c.user.Id,
				Online: true,
			},
		},
		SkipClient: c,
	})
}

// UserOffline handles the ONLINE -> OFFLINE transition. The caller has
// already established that the user's last connection unbound, so concurrent
// disconnects of a multi-device user reach here exactly once.
func (p *PresencePublisher) UserOffline(userId int) {
	lastSeen := Now()
	if err := p.db.SetAccountPresence(userId, false, lastSeen); err != nil {
		p.log.Printf("persist offline for user %d: %v", userId, err)
	}

	p.publish(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: lastSeen},
		Notification: &Notification{
			Presence: &Presence{
				UserId:     userId,
				Online:     false,
				LastSeenAt: &lastSeen,
			},
		},
	})
}

func (p *PresencePublisher) publish(msg *ServerMessage) {
	for _, c := range p.registry.All() {
		if c == msg.SkipClient {
			continue
		}

		if !c.queueMessage(msg) {
			p.log.Printf("dropped presence event to connection %q", c.id)
		}
	}
}
