package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/acameron/go-chat-relay/internal/stats"
	"github.com/acameron/go-chat-relay/internal/types"
	"github.com/google/uuid"
)

type callState int

const (
	callRinging callState = iota
	callAccepted
	callEnded
)

// callSession pairs a caller connection with a callee. While ringing the
// callee side is a user (any of their devices may answer); once accepted it
// narrows to the answering connection. The signaling payload is opaque and
// relayed verbatim.
type callSession struct {
	id           string
	callerConnId string
	callerUserId int
	callerName   string
	calleeUserId int
	calleeConnId string
	kind         types.CallKind
	state        callState
	startedAt    time.Time
}

// CallRelay forwards signaling payloads between two connected peers and
// tracks just enough per-call state to tear sessions down when either party
// disconnects.
type CallRelay struct {
	mu       sync.Mutex
	sessions map[string]*callSession
	registry *ConnectionRegistry
	log      *log.Logger
	stats    stats.StatsProvider
}

func NewCallRelay(registry *ConnectionRegistry, logger *log.Logger, st stats.StatsProvider) *CallRelay {
	return &CallRelay{
		sessions: make(map[string]*callSession),
		registry: registry,
		log:      logger,
		stats:    st,
	}
}

// Initiate resolves the callee and rings every one of their connections with
// the caller's payload. First to answer wins; the relay does not enforce
// single-answer beyond forwarding. Fails without creating a session when the
// callee has no live connection.
func (cr *CallRelay) Initiate(caller *Client, calleeUserId int, callerName string, signal json.RawMessage, kind types.CallKind) error {
	callees := cr.registry.Resolve(calleeUserId)
	if len(callees) == 0 {
		return ErrUserUnreachable
	}

	cr.mu.Lock()
	var prevNotify []*Client
	if prev, ok := cr.sessions[caller.id]; ok && prev.state != callEnded {
		// a caller connection carries at most one call attempt
		cr.log.Printf("replacing call session %q for connection %q", prev.id, caller.id)
		cr.endLocked(prev)
		prevNotify = cr.otherPartyLocked(prev, caller.id)
	}

	session := &callSession{
		id:           uuid.NewString(),
		callerConnId: caller.id,
		callerUserId: caller.user.Id,
		callerName:   callerName,
		calleeUserId: calleeUserId,
		kind:         kind,
		state:        callRinging,
		startedAt:    Now(),
	}
	cr.sessions[caller.id] = session
	cr.mu.Unlock()

	cr.notifyEnded(prevNotify, caller.id)
	cr.stats.Incr("NumActiveCalls")

	msg := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: session.startedAt},
		Notification: &Notification{
			Call: &CallEvent{
				Incoming: &CallIncoming{
					CallerUserId:       session.callerUserId,
					CallerName:         callerName,
					CallerConnectionId: caller.id,
					Kind:               kind,
					Signal:             signal,
				},
			},
		},
	}
	for _, callee := range callees {
		if !callee.queueMessage(msg) {
			cr.log.Printf("dropped call_user to connection %q", callee.id)
		}
	}

	return nil
}

// Answer accepts the ringing session initiated by callerConnId and relays
// the answer payload to the caller's connection only.
func (cr *CallRelay) Answer(callee *Client, callerConnId string, signal json.RawMessage) error {
	cr.mu.Lock()
	session, ok := cr.sessions[callerConnId]
	if !ok || session.state != callRinging || session.calleeUserId != callee.user.Id {
		cr.mu.Unlock()
		return ErrUnknownCallSession
	}

	session.state = callAccepted
	session.calleeConnId = callee.id
	cr.mu.Unlock()

	caller, ok := cr.registry.Get(callerConnId)
	if !ok {
		// caller vanished between ring and answer
		cr.End(callee, callerConnId, 0)
		return ErrUserUnreachable
	}

	caller.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			Call: &CallEvent{
				Accepted: &CallAccepted{
					CalleeConnectionId: callee.id,
					Signal:             signal,
				},
			},
		},
	})

	return nil
}

// End terminates the session between c and the other party, identified by
// connection id or user id, and notifies the other party's connections.
// Ending an unknown or already-ended session is a no-op.
func (cr *CallRelay) End(c *Client, otherConnId string, otherUserId int) {
	cr.mu.Lock()
	session := cr.findSessionLocked(c, otherConnId, otherUserId)
	if session == nil || session.state == callEnded {
		cr.mu.Unlock()
		return
	}

	cr.endLocked(session)
	notify := cr.otherPartyLocked(session, c.id)
	cr.mu.Unlock()

	cr.notifyEnded(notify, c.id)
}

// HandleDisconnect tears down any session the connection is party to,
// notifying the remaining side. Called after the connection has been unbound
// from the registry, so a multi-device callee keeps ringing on their other
// connections.
func (cr *CallRelay) HandleDisconnect(c *Client) {
	cr.mu.Lock()
	var affected []*callSession
	for _, session := range cr.sessions {
		if session.state == callEnded {
			continue
		}

		switch {
		case session.callerConnId == c.id:
			affected = append(affected, session)
		case session.state == callAccepted && session.calleeConnId == c.id:
			affected = append(affected, session)
		case session.state == callRinging && session.calleeUserId == c.user.Id && !cr.registry.IsOnline(session.calleeUserId):
			affected = append(affected, session)
		}
	}

	notify := make(map[*callSession][]*Client, len(affected))
	for _, session := range affected {
		cr.endLocked(session)
		notify[session] = cr.otherPartyLocked(session, c.id)
	}
	cr.mu.Unlock()

	for _, clients := range notify {
		cr.notifyEnded(clients, c.id)
	}
}

// findSessionLocked locates the live session involving c: as caller, or as
// callee referencing the caller's connection or user.
func (cr *CallRelay) findSessionLocked(c *Client, otherConnId string, otherUserId int) *callSession {
	if session, ok := cr.sessions[c.id]; ok {
		return session
	}

	if otherConnId != "" {
		if session, ok := cr.sessions[otherConnId]; ok && session.calleeUserId == c.user.Id {
			return session
		}
	}

	for _, session := range cr.sessions {
		if session.calleeUserId != c.user.Id {
			continue
		}
		if session.callerUserId == otherUserId || session.calleeConnId == c.id {
			return session
		}
	}

	return nil
}

// otherPartyLocked returns the connections of the session party opposite
// endingConnId.
func (cr *CallRelay) otherPartyLocked(session *callSession, endingConnId string) []*Client {
	if session.callerConnId == endingConnId {
		if session.calleeConnId != "" {
			if callee, ok := cr.registry.Get(session.calleeConnId); ok {
				return []*Client{callee}
			}
			return nil
		}
		return cr.registry.Resolve(session.calleeUserId)
	}

	if caller, ok := cr.registry.Get(session.callerConnId); ok {
		return []*Client{caller}
	}
	return nil
}

func (cr *CallRelay) endLocked(session *callSession) {
	session.state = callEnded
	delete(cr.sessions, session.callerConnId)
	cr.stats.Decr("NumActiveCalls")
}

func (cr *CallRelay) notifyEnded(clients []*Client, endingConnId string) {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			Call: &CallEvent{
				Ended: &CallEnded{ConnectionId: endingConnId},
			},
		},
	}

	for _, c := range clients {
		if !c.queueMessage(msg) {
			cr.log.Printf("dropped call_ended to connection %q", c.id)
		}
	}
}
