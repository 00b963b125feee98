package chat

import (
	"time"

	"furriends-chat/internal/user"
)

// DeletedPlaceholder is what a soft-deleted message renders as. The original
// content stays in the row for ordering and id stability but is never shown.
const DeletedPlaceholder = "message deleted"

type Conversation struct {
	ID        int       `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID             int        `json:"id"`
	ConversationID int        `json:"conversation_id"`
	SenderID       int        `json:"sender_id"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	Disabled       bool       `json:"disabled"`
}

// DisplayContent gates rendering on the disabled flag. Edits to a disabled
// message never resurface its content.
func (m *Message) DisplayContent() string {
	if m.Disabled {
		return DeletedPlaceholder
	}
	return m.Content
}

// ChatListEntry is the per-conversation row of the chat list: the counterpart
// profile plus an unread count (counterpart messages with null read_at).
// It is a projection, never persisted.
type ChatListEntry struct {
	ConversationID int          `json:"conversation_id"`
	Other          user.Profile `json:"other"`
	UnreadCount    int          `json:"unread_count"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// SendRequest is what clients POST (or write on the socket) to send a message.
// ConversationID may be zero when OtherUserID is set: the conversation is
// created lazily on first send.
type SendRequest struct {
	Type           string `json:"type,omitempty"`
	ConversationID int    `json:"conversation_id"`
	OtherUserID    int    `json:"other_user_id,omitempty"`
	Content        string `json:"content"`
}

type EditRequest struct {
	Content string `json:"content"`
}

type StartConversationRequest struct {
	TargetID int `json:"target_id"`
}
