package server

import "errors"

var (
	// ErrAlreadyBound is returned when a live connection attempts to bind
	// to a second user. The first binding stands.
	ErrAlreadyBound = errors.New("connection already bound to another user")
	// ErrNoSuchChat is returned when a chat external id resolves to nothing.
	ErrNoSuchChat = errors.New("chat not found")
	// ErrNotChatMember is returned when the acting user is not a member of
	// the target chat.
	ErrNotChatMember = errors.New("not a member of chat")
	// ErrUserUnreachable is returned when a call targets a user with no
	// live connections.
	ErrUserUnreachable = errors.New("user unreachable")
	// ErrUnknownCallSession is returned when answering a call that does not
	// exist or is no longer ringing.
	ErrUnknownCallSession = errors.New("unknown call session")
)
