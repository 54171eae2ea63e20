package types

import (
	"time"
)

type User struct {
	Id           int        `json:"id"`
	Username     string     `json:"username"`
	EmailAddress string     `json:"email_address,omitempty"`
	Password     string     `json:"-"`
	Online       bool       `json:"online,omitempty"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at,omitempty"`
}

type Chat struct {
	Id             int       `json:"id"`
	ExternalId     string    `json:"external_id"`
	Name           string    `json:"name,omitempty"`
	OwnerId        int       `json:"owner_id,omitempty"`
	Members        []User    `json:"members,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// MessageKind identifies what the message content refers to. Media and
// voice messages carry a reference to an externally stored object, not
// the object itself.
type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindMedia MessageKind = "media"
	MessageKindVoice MessageKind = "voice"
)

func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindMedia, MessageKindVoice:
		return true
	}
	return false
}

type Message struct {
	Id        int         `json:"id"`
	ChatId    string      `json:"chat_id"`
	SenderId  int         `json:"sender_id"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
}

type CallKind string

const (
	CallKindAudio CallKind = "audio"
	CallKindVideo CallKind = "video"
)
