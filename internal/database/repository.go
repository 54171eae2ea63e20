package database

import "time"

type ChatRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	UpdateAccount(params UpdateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	SetAccountPresence(accountId int, online bool, lastSeenAt time.Time) error
	CreateChat(params CreateChatParams) (Chat, error)
	GetChatByExternalId(externalId string) (Chat, error)
	ListChatsForAccount(accountId int) ([]Chat, error)
	IsChatMember(chatId, accountId int) (bool, error)
	GetChatMembers(chatId int) ([]User, error)
	CreateMessage(msg Message) (Message, error)
	GetMessages(chatId, before, limit int) ([]Message, error)
	TouchChat(chatId int, at time.Time) error
	UnreadMessageIds(chatId, readerId int) ([]int, error)
	UpsertReadReceipt(messageId, readerId, status int) error
}
