package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) SetAccountPresence(accountId int, online bool, lastSeenAt time.Time) error {
	args := m.Called(accountId, online, lastSeenAt)
	return args.Error(0)
}
func (m *MockChatRepository) CreateChat(params CreateChatParams) (Chat, error) {
	args := m.Called(params)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockChatRepository) GetChatByExternalId(externalId string) (Chat, error) {
	args := m.Called(externalId)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockChatRepository) ListChatsForAccount(accountId int) ([]Chat, error) {
	args := m.Called(accountId)
	return args.Get(0).([]Chat), args.Error(1)
}
func (m *MockChatRepository) IsChatMember(chatId, accountId int) (bool, error) {
	args := m.Called(chatId, accountId)
	return args.Bool(0), args.Error(1)
}
func (m *MockChatRepository) GetChatMembers(chatId int) ([]User, error) {
	args := m.Called(chatId)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockChatRepository) CreateMessage(msg Message) (Message, error) {
	args := m.Called(msg)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetMessages(chatId, before, limit int) ([]Message, error) {
	args := m.Called(chatId, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) TouchChat(chatId int, at time.Time) error {
	args := m.Called(chatId, at)
	return args.Error(0)
}
func (m *MockChatRepository) UnreadMessageIds(chatId, readerId int) ([]int, error) {
	args := m.Called(chatId, readerId)
	return args.Get(0).([]int), args.Error(1)
}
func (m *MockChatRepository) UpsertReadReceipt(messageId, readerId, status int) error {
	args := m.Called(messageId, readerId, status)
	return args.Error(0)
}
