package chat

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"furriends-chat/internal/user"
)

const historyLimit = 200

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindConversationBetween returns the conversation shared by exactly the two
// users, or ErrConversationNotFound.
func (r *Repository) FindConversationBetween(ctx context.Context, userA, userB int) (*Conversation, error) {
	query := `
		SELECT c.id, c.created_at, c.updated_at
		FROM conversations c
		JOIN participants pa ON pa.conversation_id = c.id AND pa.user_id = $1
		JOIN participants pb ON pb.conversation_id = c.id AND pb.user_id = $2
		LIMIT 1
	`
	c := &Conversation{}
	err := r.db.QueryRowContext(ctx, query, userA, userB).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return c, nil
}

// CreateConversation inserts a conversation with both participants in one
// transaction.
func (r *Repository) CreateConversation(ctx context.Context, userA, userB int) (*Conversation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	c := &Conversation{}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO conversations DEFAULT VALUES RETURNING id, created_at, updated_at`).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO participants (conversation_id, user_id) VALUES ($1, $2), ($1, $3)`,
		c.ID, userA, userB)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Repository) IsParticipant(ctx context.Context, conversationID, userID int) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM participants WHERE conversation_id = $1 AND user_id = $2)`,
		conversationID, userID).Scan(&exists)
	return exists, err
}

func (r *Repository) OtherParticipant(ctx context.Context, conversationID, userID int) (int, error) {
	var other int
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id FROM participants WHERE conversation_id = $1 AND user_id <> $2 LIMIT 1`,
		conversationID, userID).Scan(&other)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrConversationNotFound
		}
		return 0, err
	}
	return other, nil
}

// InsertMessage appends a message and bumps the conversation's updated_at to
// the message's creation time, in one transaction. Returns the stored message
// and the new activity timestamp.
func (r *Repository) InsertMessage(ctx context.Context, conversationID, senderID int, content string) (*Message, time.Time, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer tx.Rollback()

	m := &Message{ConversationID: conversationID, SenderID: senderID, Content: content}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content)
         VALUES ($1, $2, $3) RETURNING id, created_at`,
		conversationID, senderID, content).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, time.Time{}, err
	}

	var updatedAt time.Time
	err = tx.QueryRowContext(ctx,
		`UPDATE conversations SET updated_at = $2 WHERE id = $1 RETURNING updated_at`,
		conversationID, m.CreatedAt).Scan(&updatedAt)
	if err != nil {
		return nil, time.Time{}, err
	}

	if err := tx.Commit(); err != nil {
		return nil, time.Time{}, err
	}
	return m, updatedAt, nil
}

func (r *Repository) GetMessage(ctx context.Context, id int) (*Message, error) {
	m := &Message{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, sender_id, content, created_at, read_at, edited_at, disabled
         FROM messages WHERE id = $1`, id).
		Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.CreatedAt,
			&m.ReadAt, &m.EditedAt, &m.Disabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return m, nil
}

// UpdateMessageContent replaces the content and stamps edited_at.
func (r *Repository) UpdateMessageContent(ctx context.Context, id int, content string) (*Message, error) {
	m := &Message{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE messages SET content = $2, edited_at = CURRENT_TIMESTAMP
         WHERE id = $1
         RETURNING id, conversation_id, sender_id, content, created_at, read_at, edited_at, disabled`,
		id, content).
		Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.CreatedAt,
			&m.ReadAt, &m.EditedAt, &m.Disabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return m, nil
}

// DisableMessage soft-deletes: the row stays for ordering and id stability,
// the disabled flag hides the content. There is no way back.
func (r *Repository) DisableMessage(ctx context.Context, id int) (*Message, error) {
	m := &Message{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE messages SET disabled = TRUE
         WHERE id = $1
         RETURNING id, conversation_id, sender_id, content, created_at, read_at, edited_at, disabled`,
		id).
		Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.CreatedAt,
			&m.ReadAt, &m.EditedAt, &m.Disabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return m, nil
}

// MarkConversationRead stamps read_at on every unread message in the
// conversation authored by someone other than the reader, and returns the
// affected rows so the caller can emit update events.
func (r *Repository) MarkConversationRead(ctx context.Context, conversationID, readerID int) ([]*Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE messages SET read_at = CURRENT_TIMESTAMP
         WHERE conversation_id = $1 AND sender_id <> $2 AND read_at IS NULL
         RETURNING id, conversation_id, sender_id, content, created_at, read_at, edited_at, disabled`,
		conversationID, readerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListMessages returns the conversation history in ascending creation order.
// Long conversations are capped at historyLimit from the newest end: the tail
// is what the open-conversation buffer renders and what realtime inserts
// append to.
func (r *Repository) ListMessages(ctx context.Context, conversationID int) ([]*Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender_id, content, created_at, read_at, edited_at, disabled
         FROM messages
         WHERE conversation_id = $1
         ORDER BY created_at DESC, id DESC
         LIMIT $2`,
		conversationID, historyLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, nil
}

// reverseMessages flips a newest-first window back into chronological order.
func reverseMessages(msgs []*Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

// ChatList builds the conversation list for a user: counterpart profile,
// unread count, ordered by latest activity first.
func (r *Repository) ChatList(ctx context.Context, userID int) ([]ChatListEntry, error) {
	query := `
		SELECT c.id, c.updated_at,
		       u.id, u.username, u.display_name, u.avatar_url,
		       COUNT(m.id) FILTER (WHERE m.sender_id <> $1 AND m.read_at IS NULL) AS unread
		FROM conversations c
		JOIN participants p  ON p.conversation_id = c.id AND p.user_id = $1
		JOIN participants po ON po.conversation_id = c.id AND po.user_id <> $1
		JOIN users u ON u.id = po.user_id
		LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id, c.updated_at, u.id, u.username, u.display_name, u.avatar_url
		ORDER BY c.updated_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ChatListEntry
	for rows.Next() {
		var e ChatListEntry
		var p user.Profile
		if err := rows.Scan(&e.ConversationID, &e.UpdatedAt,
			&p.ID, &p.Username, &p.DisplayName, &p.AvatarURL, &e.UnreadCount); err != nil {
			return nil, err
		}
		e.Other = p
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// TotalUnread counts unread messages addressed to the user across all their
// conversations. Consumed by the offline-notification worker.
func (r *Repository) TotalUnread(ctx context.Context, userID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN participants p ON p.conversation_id = m.conversation_id AND p.user_id = $1
		WHERE m.sender_id <> $1 AND m.read_at IS NULL
	`, userID).Scan(&count)
	return count, err
}

func scanMessages(rows *sql.Rows) ([]*Message, error) {
	var messages []*Message
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content,
			&m.CreatedAt, &m.ReadAt, &m.EditedAt, &m.Disabled); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
