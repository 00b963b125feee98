package chat

import (
	"time"

	"furriends-chat/internal/user"
)

// Event types mirror the row-level change feed: inserts and updates on
// messages, plus activity bumps on conversations.
const (
	EventMessageInsert      = "message.insert"
	EventMessageUpdate      = "message.update"
	EventConversationUpdate = "conversation.update"
)

// Event is the wire envelope delivered over the websocket feed.
type Event struct {
	Type         string                `json:"type"`
	Message      *Message              `json:"message,omitempty"`
	Conversation *ConversationActivity `json:"conversation,omitempty"`
}

// ConversationActivity announces that a conversation moved to the top of the
// chat list. Other carries the counterpart profile as seen by the recipient,
// so a client that has never cached this conversation can synthesize a chat
// list entry without an extra fetch.
type ConversationActivity struct {
	ID        int           `json:"id"`
	UpdatedAt time.Time     `json:"updated_at"`
	Other     *user.Profile `json:"other,omitempty"`
}

// Envelope targets an event at a single user. Fan-out across server
// instances happens at envelope granularity so per-recipient payloads (the
// counterpart profile) stay correct.
type Envelope struct {
	UserID int   `json:"user_id"`
	Event  Event `json:"event"`
}
