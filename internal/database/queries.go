package database

import (
	"database/sql"
	"fmt"
	"time"
)

const addChatMemberQuery = "INSERT INTO chat_members (chat_id, account_id, created_at) VALUES ($1, $2, $3)"

func (db *PgChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, username, email, created_at, updated_at",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgChatRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"UPDATE accounts SET username = $2, password_hash = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING id, username, email, created_at, updated_at",
		params.UserId,
		params.Username,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgChatRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, online, last_seen_at, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.Online,
		&user.LastSeenAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgChatRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgChatRepository) SetAccountPresence(accountId int, online bool, lastSeenAt time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE accounts SET online = $2, last_seen_at = $3 WHERE id = $1",
		accountId,
		online,
		lastSeenAt,
	)

	return err
}

func (db *PgChatRepository) CreateChat(params CreateChatParams) (Chat, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO chats (external_id, name, owner_id, last_activity_at, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4, $4) RETURNING id, external_id, name, owner_id, last_activity_at, created_at, updated_at",
		params.ExternalId,
		params.Name,
		params.OwnerId,
		time.Now().UTC(),
	)

	var chat Chat
	err = res.Scan(
		&chat.Id,
		&chat.ExternalId,
		&chat.Name,
		&chat.OwnerId,
		&chat.LastActivityAt,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err != nil {
		return Chat{}, err
	}

	// the owner is always a member
	memberIds := append([]int{params.OwnerId}, params.MemberIds...)
	seen := make(map[int]struct{}, len(memberIds))
	for _, id := range memberIds {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		if _, err = tx.Exec(addChatMemberQuery, chat.Id, id, time.Now().UTC()); err != nil {
			return Chat{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Chat{}, err
	}

	chat.Members, err = db.GetChatMembers(chat.Id)
	return chat, err
}

func (db *PgChatRepository) GetChatByExternalId(externalId string) (Chat, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, owner_id, last_activity_at, created_at, updated_at FROM chats "+
			"WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var chat Chat
	err := row.Scan(
		&chat.Id,
		&chat.ExternalId,
		&chat.Name,
		&chat.OwnerId,
		&chat.LastActivityAt,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)

	return chat, err
}

func (db *PgChatRepository) ListChatsForAccount(accountId int) ([]Chat, error) {
	rows, err := db.conn.Query(
		"SELECT c.id, c.external_id, c.name, c.owner_id, c.last_activity_at, c.created_at, c.updated_at "+
			"FROM chat_members m JOIN chats c ON c.id = m.chat_id "+
			"WHERE m.account_id = $1 ORDER BY c.last_activity_at DESC",
		accountId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var chat Chat
		if err = rows.Scan(
			&chat.Id,
			&chat.ExternalId,
			&chat.Name,
			&chat.OwnerId,
			&chat.LastActivityAt,
			&chat.CreatedAt,
			&chat.UpdatedAt,
		); err != nil {
			break
		}

		chats = append(chats, chat)
	}

	return chats, err
}

func (db *PgChatRepository) IsChatMember(chatId, accountId int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT 1 FROM chat_members WHERE chat_id = $1 AND account_id = $2 LIMIT 1",
		chatId,
		accountId,
	)

	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}

	return err == nil, err
}

func (db *PgChatRepository) GetChatMembers(chatId int) ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT a.id, a.username, a.online, a.last_seen_at FROM chat_members AS m "+
			"JOIN accounts AS a ON m.account_id = a.id WHERE m.chat_id = $1",
		chatId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members = make([]User, 0)
	for rows.Next() {
		var member User
		if err = rows.Scan(&member.Id, &member.Username, &member.Online, &member.LastSeenAt); err != nil {
			break
		}

		members = append(members, member)
	}

	return members, err
}

func (db *PgChatRepository) CreateMessage(msg Message) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (chat_id, sender_id, content, kind, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, chat_id, sender_id, content, kind, created_at",
		msg.ChatId,
		msg.SenderId,
		msg.Content,
		msg.Kind,
		time.Now().UTC(),
	)

	var created Message
	err := res.Scan(
		&created.Id,
		&created.ChatId,
		&created.SenderId,
		&created.Content,
		&created.Kind,
		&created.CreatedAt,
	)

	return created, err
}

func (db *PgChatRepository) GetMessages(chatId, before, limit int) ([]Message, error) {
	var upper int = 1<<31 - 1
	if before > 0 {
		upper = before - 1
	}

	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(
		"SELECT id, chat_id, sender_id, content, kind, created_at FROM messages "+
			"WHERE chat_id = $1 AND id <= $2 ORDER BY id DESC LIMIT $3",
		chatId,
		upper,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.Id, &msg.ChatId, &msg.SenderId, &msg.Content, &msg.Kind, &msg.CreatedAt); err != nil {
			break
		}

		messages = append(messages, msg)
	}

	return messages, err
}

func (db *PgChatRepository) TouchChat(chatId int, at time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE chats SET last_activity_at = $2, updated_at = $2 WHERE id = $1",
		chatId,
		at,
	)

	return err
}

func (db *PgChatRepository) UnreadMessageIds(chatId, readerId int) ([]int, error) {
	rows, err := db.conn.Query(
		"SELECT m.id FROM messages m "+
			"LEFT JOIN message_receipts r ON r.message_id = m.id AND r.account_id = $2 "+
			"WHERE m.chat_id = $1 AND m.sender_id <> $2 AND (r.status IS NULL OR r.status < $3) "+
			"ORDER BY m.id",
		chatId,
		readerId,
		ReceiptStatusRead,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids = make([]int, 0)
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			break
		}

		ids = append(ids, id)
	}

	return ids, err
}

// UpsertReadReceipt records a receipt for (message, reader), creating it if
// absent and advancing the status if present. A receipt never regresses; an
// upsert with a lower or equal status is a no-op.
func (db *PgChatRepository) UpsertReadReceipt(messageId, readerId, status int) error {
	if status < ReceiptStatusSent || status > ReceiptStatusRead {
		return fmt.Errorf("invalid receipt status %d", status)
	}

	_, err := db.conn.Exec(
		"INSERT INTO message_receipts (message_id, account_id, status, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) "+
			"ON CONFLICT (message_id, account_id) DO UPDATE "+
			"SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at "+
			"WHERE message_receipts.status < EXCLUDED.status",
		messageId,
		readerId,
		status,
		time.Now().UTC(),
	)

	return err
}
