package server

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/acameron/go-chat-relay/internal/database"
	"github.com/acameron/go-chat-relay/internal/stats"
	"github.com/acameron/go-chat-relay/internal/types"
)

// MessageRouter accepts inbound chat events, validates them against chat
// membership, mirrors them into the store and fans them out through the
// multiplexer. The store is the system of record for history; the router
// only decides who to notify.
type MessageRouter struct {
	db    database.ChatRepository
	rooms *RoomMultiplexer
	log   *log.Logger
	stats stats.StatsProvider
}

func NewMessageRouter(db database.ChatRepository, rooms *RoomMultiplexer, logger *log.Logger, st stats.StatsProvider) *MessageRouter {
	return &MessageRouter{
		db:    db,
		rooms: rooms,
		log:   logger,
		stats: st,
	}
}

func (mr *MessageRouter) lookupChatForMember(chatExternalId string, userId int) (database.Chat, error) {
	chat, err := mr.db.GetChatByExternalId(chatExternalId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Chat{}, ErrNoSuchChat
		}
		return database.Chat{}, fmt.Errorf("get chat: %w", err)
	}

	member, err := mr.db.IsChatMember(chat.Id, userId)
	if err != nil {
		return database.Chat{}, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return database.Chat{}, ErrNotChatMember
	}

	return chat, nil
}

// Send persists a new message and broadcasts it to the chat's group. The
// sender must be a member of the chat; unverified sends are never broadcast.
// The chat's last-activity timestamp is a best-effort secondary update.
func (mr *MessageRouter) Send(senderId int, chatExternalId, content string, kind types.MessageKind) (*types.Message, error) {
	chat, err := mr.lookupChatForMember(chatExternalId, senderId)
	if err != nil {
		return nil, err
	}

	created, err := mr.db.CreateMessage(database.Message{
		ChatId:   chat.Id,
		SenderId: senderId,
		Content:  content,
		Kind:     string(kind),
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	if err := mr.db.TouchChat(chat.Id, created.CreatedAt); err != nil {
		mr.log.Printf("touch chat %q: %v", chat.ExternalId, err)
	}

	msg := &types.Message{
		Id:        created.Id,
		ChatId:    chat.ExternalId,
		SenderId:  senderId,
		Content:   created.Content,
		Kind:      kind,
		Timestamp: created.CreatedAt,
	}

	mr.rooms.Broadcast(chat.ExternalId, &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: created.CreatedAt},
		Message:     msg,
	})
	mr.stats.Incr("NumMessagesRouted")

	return msg, nil
}

// MarkRead advances every message in the chat not sent by the reader to a
// READ receipt, then broadcasts one messages_read event for the whole chat;
// clients reconcile their own message lists. Receipts are monotonic, so
// repeating the call is a no-op.
func (mr *MessageRouter) MarkRead(readerId int, chatExternalId string) error {
	chat, err := mr.lookupChatForMember(chatExternalId, readerId)
	if err != nil {
		return err
	}

	ids, err := mr.db.UnreadMessageIds(chat.Id, readerId)
	if err != nil {
		return fmt.Errorf("unread messages: %w", err)
	}

	for _, id := range ids {
		if err := mr.db.UpsertReadReceipt(id, readerId, database.ReceiptStatusRead); err != nil {
			return fmt.Errorf("upsert receipt for message %d: %w", id, err)
		}
	}

	mr.rooms.Broadcast(chat.ExternalId, &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			MessagesRead: &MessagesRead{
				ChatId: chat.ExternalId,
				UserId: readerId,
			},
		},
	})

	return nil
}
