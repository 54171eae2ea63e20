package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/acameron/go-chat-relay/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the tagged union of frames a client may send over the
// socket. Exactly one of the pointer fields is set. Message sends and
// read receipts arrive over the HTTP API, not the socket.
type ClientMessage struct {
	BaseMessage
	JoinChat   *JoinChat   `json:"join_chat,omitempty"`
	LeaveChat  *LeaveChat  `json:"leave_chat,omitempty"`
	CallUser   *CallUser   `json:"call_user,omitempty"`
	AnswerCall *AnswerCall `json:"answer_call,omitempty"`
	EndCall    *EndCall    `json:"end_call,omitempty"`
	UserId     int         `json:"-"`
	client     *Client     `json:"-"`
}

type JoinChat struct {
	ChatId string `json:"chat_id"`
}

type LeaveChat struct {
	ChatId string `json:"chat_id"`
}

type CallUser struct {
	CalleeUserId int             `json:"callee_user_id"`
	CallerName   string          `json:"caller_name,omitempty"`
	Kind         types.CallKind  `json:"kind"`
	Signal       json.RawMessage `json:"signal"`
}

type AnswerCall struct {
	CallerConnectionId string          `json:"caller_connection_id"`
	Signal             json.RawMessage `json:"signal"`
}

// EndCall identifies the other party either by connection id (known once a
// call is accepted) or by user id (while still ringing).
type EndCall struct {
	ConnectionId string `json:"connection_id,omitempty"`
	UserId       int    `json:"user_id,omitempty"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Chat         *types.Chat    `json:"chat,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	SkipClient   *Client        `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type Notification struct {
	Presence     *Presence     `json:"presence,omitempty"`
	MessagesRead *MessagesRead `json:"messages_read,omitempty"`
	Call         *CallEvent    `json:"call,omitempty"`
}

type Presence struct {
	UserId     int        `json:"user_id"`
	Online     bool       `json:"online"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

type MessagesRead struct {
	ChatId string `json:"chat_id"`
	UserId int    `json:"user_id"`
}

type CallEvent struct {
	Incoming *CallIncoming `json:"incoming,omitempty"`
	Accepted *CallAccepted `json:"accepted,omitempty"`
	Ended    *CallEnded    `json:"ended,omitempty"`
}

type CallIncoming struct {
	CallerUserId       int             `json:"caller_user_id"`
	CallerName         string          `json:"caller_name,omitempty"`
	CallerConnectionId string          `json:"caller_connection_id"`
	Kind               types.CallKind  `json:"kind"`
	Signal             json.RawMessage `json:"signal"`
}

type CallAccepted struct {
	CalleeConnectionId string          `json:"callee_connection_id"`
	Signal             json.RawMessage `json:"signal"`
}

type CallEnded struct {
	ConnectionId string `json:"connection_id,omitempty"`
}

func (cm *ClientMessage) GetUserId() int {
	if cm.UserId != 0 {
		return cm.UserId
	}

	if cm.client != nil {
		return cm.client.user.Id
	}

	return 0
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrChatNotFound(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "chat not found",
		},
	}
}

func ErrNotAMember(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "not a member of chat",
		},
	}
}

func ErrUnreachable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "user unreachable",
		},
	}
}

func ErrUnknownCall(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "unknown call session",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
