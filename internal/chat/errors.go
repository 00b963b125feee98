package chat

import "errors"

var (
	ErrNotParticipant       = errors.New("chat: not a participant of this conversation")
	ErrNotAuthor            = errors.New("chat: only the author may modify a message")
	ErrEmptyContent         = errors.New("chat: no message received")
	ErrMessageDeleted       = errors.New("chat: message has been deleted")
	ErrMessageNotFound      = errors.New("chat: message not found")
	ErrConversationNotFound = errors.New("chat: conversation not found")
)
