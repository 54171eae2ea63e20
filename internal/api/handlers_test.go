package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/acameron/go-chat-relay/internal/config"
	"github.com/acameron/go-chat-relay/internal/database"
	"github.com/acameron/go-chat-relay/internal/server"
	"github.com/acameron/go-chat-relay/internal/stats"
	"github.com/acameron/go-chat-relay/internal/testutil"
	"github.com/acameron/go-chat-relay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// newTestApp builds a RelayApp backed by mocks for handler tests
func newTestApp(t *testing.T, db *database.MockChatRepository, su *stats.MockStatsUpdater) *RelayApp {
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(4)

	logger := testutil.TestLogger(t)
	rs, err := server.NewRelayServer(logger, db, su)
	if err != nil {
		t.Fatalf("failed to create test RelayServer: %v", err)
	}

	cfg := &config.Config{
		ServerAddr:     "localhost:8080",
		DatabaseDSN:    "dsn",
		SigningKey:     []byte("test-signing-key"),
		AllowedOrigins: []string{"http://localhost:3000"},
	}

	return NewRelayApp(http.NewServeMux(), logger, rs, db, su, cfg)
}

func authedRequest(method, target string, body []byte, userId int) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	return req.WithContext(WithUserId(req.Context(), userId))
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("Ping").Return(nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &stats.MockStatsUpdater{})

		rr := httptest.NewRecorder()
		app.healthCheck(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "OK", rr.Body.String())
	})

	t.Run("database down", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("Ping").Return(errors.New("db down")).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &stats.MockStatsUpdater{})

		rr := httptest.NewRecorder()
		app.healthCheck(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestCreateAccount(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		now := time.Now().UTC()
		db := &database.MockChatRepository{}
		db.On("CreateAccount", mock.MatchedBy(func(p database.CreateAccountParams) bool {
			return p.Username == "alice" && p.EmailAddress == "alice@example.com" && p.PasswordHash != ""
		})).Return(database.User{Id: 1, Username: "alice", EmailAddress: "alice@example.com", CreatedAt: now, UpdatedAt: now}, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &stats.MockStatsUpdater{})

		body := []byte(`{"email":"alice@example.com","username":"alice","password":"s3cret"}`)
		rr := httptest.NewRecorder()
		app.createAccount(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body)))

		assert.Equal(t, http.StatusCreated, rr.Code)

		var u types.User
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
		assert.Equal(t, 1, u.Id, "expected created user id")
		assert.Equal(t, "alice", u.Username, "expected created username")
	})

	t.Run("invalid email", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})

		body := []byte(`{"email":"not-an-email","username":"alice","password":"s3cret"}`)
		rr := httptest.NewRecorder()
		app.createAccount(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body)))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})

		rr := httptest.NewRecorder()
		app.createAccount(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader([]byte("{"))))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestLogin(t *testing.T) {
	hash, err := hashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	dbUser := database.User{Id: 1, Username: "alice", EmailAddress: "alice@example.com", PasswordHash: hash}

	t.Run("success", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetAccountByEmail", "alice@example.com").Return(dbUser, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &stats.MockStatsUpdater{})

		body := []byte(`{"email":"alice@example.com","password":"s3cret"}`)
		rr := httptest.NewRecorder()
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))

		assert.Equal(t, http.StatusOK, rr.Code)

		cookies := rr.Result().Cookies()
		var tokenCookie *http.Cookie
		for _, c := range cookies {
			if c.Name == tokenCookieKey {
				tokenCookie = c
			}
		}
		assert.NotNil(t, tokenCookie, "expected session cookie to be set")
		assert.NotEmpty(t, tokenCookie.Value, "expected session cookie to carry a token")
	})

	t.Run("wrong password", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetAccountByEmail", "alice@example.com").Return(dbUser, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &stats.MockStatsUpdater{})

		body := []byte(`{"email":"alice@example.com","password":"wrong"}`)
		rr := httptest.NewRecorder()
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown email", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetAccountByEmail", "nobody@example.com").Return(database.User{}, sql.ErrNoRows).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &stats.MockStatsUpdater{})

		body := []byte(`{"email":"nobody@example.com","password":"s3cret"}`)
		rr := httptest.NewRecorder()
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestSession(t *testing.T) {
	t.Run("authenticated", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetAccountById", 1).Return(database.User{Id: 1, Username: "alice"}, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &stats.MockStatsUpdater{})

		rr := httptest.NewRecorder()
		app.session(rr, authedRequest(http.MethodGet, "/api/auth/session", nil, 1))

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})

		rr := httptest.NewRecorder()
		app.session(rr, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestAccount(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetAccountById", 1).Return(database.User{Id: 1, Username: "alice"}, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &stats.MockStatsUpdater{})

		rr := httptest.NewRecorder()
		app.account(rr, authedRequest(http.MethodGet, "/api/account", nil, 1))

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("update", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetAccountById", 1).Return(database.User{Id: 1, Username: "alice"}, nil).Once()
		db.On("UpdateAccount", mock.MatchedBy(func(p database.UpdateAccountParams) bool {
			return p.UserId == 1 && p.Username == "alice2" && p.PasswordHash != ""
		})).Return(database.User{Id: 1, Username: "alice2"}, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &stats.MockStatsUpdater{})

		body := []byte(`{"username":"alice2","password":"newpass"}`)
		rr := httptest.NewRecorder()
		app.account(rr, authedRequest(http.MethodPut, "/api/account", body, 1))

		assert.Equal(t, http.StatusOK, rr.Code)

		var u types.User
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
		assert.Equal(t, "alice2", u.Username, "expected updated username")
	})

	t.Run("method not allowed", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})

		rr := httptest.NewRecorder()
		app.account(rr, authedRequest(http.MethodDelete, "/api/account", nil, 1))

		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})
}

func TestLogout(t *testing.T) {
	app := newTestApp(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})

	rr := httptest.NewRecorder()
	app.logout(rr, authedRequest(http.MethodGet, "/api/auth/logout", nil, 1))

	assert.Equal(t, http.StatusNoContent, rr.Code)

	cookies := rr.Result().Cookies()
	assert.Len(t, cookies, 1, "expected cookie to be rewritten")
	assert.Empty(t, cookies[0].Value, "expected cookie value to be cleared")
	assert.True(t, cookies[0].Expires.Before(time.Now()), "expected cookie to be expired")
}

func TestCreateChat(t *testing.T) {
	now := time.Now().UTC()
	dbChat := database.Chat{
		Id:         1,
		ExternalId: "abc123",
		Name:       "test chat",
		OwnerId:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
		Members:    []database.User{{Id: 1, Username: "alice"}, {Id: 2, Username: "bob"}},
	}

	db := &database.MockChatRepository{}
	db.On("CreateChat", database.CreateChatParams{
		Name:       "test chat",
		ExternalId: "abc123",
		OwnerId:    1,
		MemberIds:  []int{2},
	}).Return(dbChat, nil).Once()
	defer db.AssertExpectations(t)

	app := newTestApp(t, db, &stats.MockStatsUpdater{})
	app.generateShortId = func() (string, error) { return "abc123", nil }

	body := []byte(`{"name":"test chat","member_ids":[2]}`)
	rr := httptest.NewRecorder()
	app.createChat(rr, authedRequest(http.MethodPost, "/api/chats", body, 1))

	assert.Equal(t, http.StatusCreated, rr.Code)

	var chat types.Chat
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&chat))
	assert.Equal(t, "abc123", chat.ExternalId, "expected chat external id")
	assert.Len(t, chat.Members, 2, "expected both members on the chat")
}

func TestListChats(t *testing.T) {
	db := &database.MockChatRepository{}
	db.On("ListChatsForAccount", 1).Return([]database.Chat{
		{Id: 1, ExternalId: "chat-1", Name: "one"},
		{Id: 2, ExternalId: "chat-2", Name: "two"},
	}, nil).Once()
	defer db.AssertExpectations(t)

	app := newTestApp(t, db, &stats.MockStatsUpdater{})

	rr := httptest.NewRecorder()
	app.listChats(rr, authedRequest(http.MethodGet, "/api/chats", nil, 1))

	assert.Equal(t, http.StatusOK, rr.Code)

	var chats []types.Chat
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&chats))
	assert.Len(t, chats, 2, "expected both chats to be listed")
}

func TestSendMessage(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		now := time.Now().UTC()
		db := &database.MockChatRepository{}
		db.On("GetChatByExternalId", "chat-1").Return(database.Chat{Id: 1, ExternalId: "chat-1"}, nil).Once()
		db.On("IsChatMember", 1, 1).Return(true, nil).Once()
		db.On("CreateMessage", database.Message{ChatId: 1, SenderId: 1, Content: "hi", Kind: "text"}).
			Return(database.Message{Id: 7, ChatId: 1, SenderId: 1, Content: "hi", Kind: "text", CreatedAt: now}, nil).Once()
		db.On("TouchChat", 1, now).Return(nil).Once()
		defer db.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		su.On("Incr", "NumMessagesRouted").Once()
		defer su.AssertExpectations(t)

		app := newTestApp(t, db, su)

		body := []byte(`{"chat_id":"chat-1","content":"hi"}`)
		rr := httptest.NewRecorder()
		app.sendMessage(rr, authedRequest(http.MethodPost, "/api/messages", body, 1))

		assert.Equal(t, http.StatusCreated, rr.Code)

		var msg types.Message
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&msg))
		assert.Equal(t, 7, msg.Id, "expected stored message id")
		assert.Equal(t, types.MessageKindText, msg.Kind, "expected kind to default to text")
	})

	t.Run("not a member", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetChatByExternalId", "chat-1").Return(database.Chat{Id: 1, ExternalId: "chat-1"}, nil).Once()
		db.On("IsChatMember", 1, 9).Return(false, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &stats.MockStatsUpdater{})

		body := []byte(`{"chat_id":"chat-1","content":"hi"}`)
		rr := httptest.NewRecorder()
		app.sendMessage(rr, authedRequest(http.MethodPost, "/api/messages", body, 9))

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("unknown chat", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetChatByExternalId", "nope").Return(database.Chat{}, sql.ErrNoRows).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &stats.MockStatsUpdater{})

		body := []byte(`{"chat_id":"nope","content":"hi"}`)
		rr := httptest.NewRecorder()
		app.sendMessage(rr, authedRequest(http.MethodPost, "/api/messages", body, 1))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("invalid kind", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})

		body := []byte(`{"chat_id":"chat-1","content":"hi","kind":"carrier-pigeon"}`)
		rr := httptest.NewRecorder()
		app.sendMessage(rr, authedRequest(http.MethodPost, "/api/messages", body, 1))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestMarkRead(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetChatByExternalId", "chat-1").Return(database.Chat{Id: 1, ExternalId: "chat-1"}, nil).Once()
		db.On("IsChatMember", 1, 1).Return(true, nil).Once()
		db.On("UnreadMessageIds", 1, 1).Return([]int{}, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &stats.MockStatsUpdater{})

		body := []byte(`{"chat_id":"chat-1"}`)
		rr := httptest.NewRecorder()
		app.markRead(rr, authedRequest(http.MethodPost, "/api/chats/read", body, 1))

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("not a member", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetChatByExternalId", "chat-1").Return(database.Chat{Id: 1, ExternalId: "chat-1"}, nil).Once()
		db.On("IsChatMember", 1, 9).Return(false, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &stats.MockStatsUpdater{})

		body := []byte(`{"chat_id":"chat-1"}`)
		rr := httptest.NewRecorder()
		app.markRead(rr, authedRequest(http.MethodPost, "/api/chats/read", body, 9))

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestGetMessages(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		now := time.Now().UTC()
		db := &database.MockChatRepository{}
		db.On("GetChatByExternalId", "chat-1").Return(database.Chat{Id: 1, ExternalId: "chat-1"}, nil).Once()
		db.On("IsChatMember", 1, 1).Return(true, nil).Once()
		db.On("GetMessages", 1, 0, 0).Return([]database.Message{
			{Id: 1, ChatId: 1, SenderId: 2, Content: "hey", Kind: "text", CreatedAt: now},
		}, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &stats.MockStatsUpdater{})

		rr := httptest.NewRecorder()
		app.getMessages(rr, authedRequest(http.MethodGet, "/api/messages?chat_id=chat-1", nil, 1))

		assert.Equal(t, http.StatusOK, rr.Code)

		var messages []types.Message
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&messages))
		assert.Len(t, messages, 1, "expected one message")
		assert.Equal(t, "hey", messages[0].Content, "expected message content")
		assert.Equal(t, "chat-1", messages[0].ChatId, "expected external chat id on message")
	})

	t.Run("missing chat id", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})

		rr := httptest.NewRecorder()
		app.getMessages(rr, authedRequest(http.MethodGet, "/api/messages", nil, 1))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("not a member", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetChatByExternalId", "chat-1").Return(database.Chat{Id: 1, ExternalId: "chat-1"}, nil).Once()
		db.On("IsChatMember", 1, 9).Return(false, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &stats.MockStatsUpdater{})

		rr := httptest.NewRecorder()
		app.getMessages(rr, authedRequest(http.MethodGet, "/api/messages?chat_id=chat-1", nil, 9))

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("invalid before param", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetChatByExternalId", "chat-1").Return(database.Chat{Id: 1, ExternalId: "chat-1"}, nil).Once()
		db.On("IsChatMember", 1, 1).Return(true, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &stats.MockStatsUpdater{})

		rr := httptest.NewRecorder()
		app.getMessages(rr, authedRequest(http.MethodGet, "/api/messages?chat_id=chat-1&before=abc", nil, 1))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestServeWs(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})

		rr := httptest.NewRecorder()
		app.serveWs(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("non-websocket request", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetAccountById", 1).Return(database.User{Id: 1, Username: "alice"}, nil).Once()
		defer db.AssertExpectations(t)

		app := newTestApp(t, db, &stats.MockStatsUpdater{})

		rr := httptest.NewRecorder()
		app.serveWs(rr, authedRequest(http.MethodGet, "/ws", nil, 1))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
