package server

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/acameron/go-chat-relay/internal/types"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one live network connection bound to an authenticated user.
// Event handling within a client is sequential; clients run in parallel.
type Client struct {
	id       string
	conn     *websocket.Conn
	server   *RelayServer
	log      *log.Logger
	user     types.User
	send     chan *ServerMessage
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, rs *RelayServer, l *log.Logger) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		server: rs,
		log:    l,
		user:   user,
		send:   make(chan *ServerMessage, 256),
		stop:   make(chan struct{}),
	}
}

// ConnectionId returns the ephemeral identifier for this connection.
func (c *Client) ConnectionId() string {
	return c.id
}

func (c *Client) User() types.User {
	return c.user
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.client = c
		msg.UserId = c.user.Id
		msg.Timestamp = Now()

		c.dispatch(&msg)
	}
}

// dispatch routes a parsed frame. A malformed or rejected event degrades
// only this connection's request, never the connection itself.
func (c *Client) dispatch(msg *ClientMessage) {
	switch {
	case msg.JoinChat != nil:
		c.handleJoinChat(msg)
	case msg.LeaveChat != nil:
		c.server.rooms.Leave(c, msg.LeaveChat.ChatId)
		c.queueMessage(NoErrOK(msg.Id, nil))
	case msg.CallUser != nil:
		c.handleCallUser(msg)
	case msg.AnswerCall != nil:
		c.handleAnswerCall(msg)
	case msg.EndCall != nil:
		c.server.calls.End(c, msg.EndCall.ConnectionId, msg.EndCall.UserId)
		c.queueMessage(NoErrOK(msg.Id, nil))
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

// handleJoinChat adds this connection to a conversation group after
// verifying the user actually belongs to the conversation.
func (c *Client) handleJoinChat(msg *ClientMessage) {
	chat, err := c.server.router.lookupChatForMember(msg.JoinChat.ChatId, c.user.Id)
	if err != nil {
		c.queueMessage(c.errFrame(msg.Id, err))
		return
	}

	c.server.rooms.Join(c, chat.ExternalId)
	c.queueMessage(NoErrOK(msg.Id, nil))
}

func (c *Client) handleCallUser(msg *ClientMessage) {
	call := msg.CallUser
	callerName := call.CallerName
	if callerName == "" {
		callerName = c.user.Username
	}

	if err := c.server.calls.Initiate(c, call.CalleeUserId, callerName, call.Signal, call.Kind); err != nil {
		c.queueMessage(c.errFrame(msg.Id, err))
		return
	}

	c.queueMessage(NoErrAccepted(msg.Id))
}

func (c *Client) handleAnswerCall(msg *ClientMessage) {
	if err := c.server.calls.Answer(c, msg.AnswerCall.CallerConnectionId, msg.AnswerCall.Signal); err != nil {
		c.queueMessage(c.errFrame(msg.Id, err))
		return
	}

	c.queueMessage(NoErrOK(msg.Id, nil))
}

func (c *Client) errFrame(id int, err error) *ServerMessage {
	switch {
	case errors.Is(err, ErrNoSuchChat):
		return ErrChatNotFound(id)
	case errors.Is(err, ErrNotChatMember):
		return ErrNotAMember(id)
	case errors.Is(err, ErrUserUnreachable):
		return ErrUnreachable(id)
	case errors.Is(err, ErrUnknownCallSession):
		return ErrUnknownCall(id)
	default:
		c.log.Printf("connection %q: %v", c.id, err)
		return ErrInternalError(id)
	}
}

// queueMessage is a non-blocking enqueue onto the client's bounded outbound
// queue. A full queue means the peer is slow or gone; the event is dropped
// so one unresponsive client cannot stall delivery to a group.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("send queue full for connection %q, dropping message", c.id)
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.server.DeregisterClient(c)
	c.stopClient()
}
