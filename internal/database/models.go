package database

import (
	"database/sql"
	"time"
)

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	Online       bool
	LastSeenAt   sql.NullTime
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Chat struct {
	Id             int
	ExternalId     string
	Name           string
	OwnerId        int
	LastActivityAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Members        []User
}

type Message struct {
	Id        int
	ChatId    int
	SenderId  int
	Content   string
	Kind      string
	CreatedAt time.Time
}

// Receipt statuses are stored as their rank so a monotonic upsert is a
// single comparison in SQL. A receipt never moves to a lower rank.
const (
	ReceiptStatusSent = iota
	ReceiptStatusDelivered
	ReceiptStatusRead
)

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type UpdateAccountParams struct {
	UserId       int
	Username     string
	PasswordHash string
}

type CreateChatParams struct {
	Name       string
	ExternalId string
	OwnerId    int
	MemberIds  []int
}
