package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"furriends-chat/internal/user"
)

// Store is the persistence surface the service needs. *Repository satisfies
// it; tests substitute a fake.
type Store interface {
	FindConversationBetween(ctx context.Context, userA, userB int) (*Conversation, error)
	CreateConversation(ctx context.Context, userA, userB int) (*Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID int) (bool, error)
	OtherParticipant(ctx context.Context, conversationID, userID int) (int, error)
	InsertMessage(ctx context.Context, conversationID, senderID int, content string) (*Message, time.Time, error)
	GetMessage(ctx context.Context, id int) (*Message, error)
	UpdateMessageContent(ctx context.Context, id int, content string) (*Message, error)
	DisableMessage(ctx context.Context, id int) (*Message, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID int) ([]*Message, error)
	ListMessages(ctx context.Context, conversationID int) ([]*Message, error)
	ChatList(ctx context.Context, userID int) ([]ChatListEntry, error)
}

// ProfileLookup resolves counterpart profiles for event payloads.
type ProfileLookup interface {
	GetProfile(ctx context.Context, id int) (*user.Profile, error)
}

// Notifier is the hub surface the service uses: event fan-out plus a
// presence probe for the offline-notification path.
type Notifier interface {
	Notify(env Envelope)
	IsOnline(userID int) bool
}

// OfflineNotifier enqueues background work for users with no live socket.
type OfflineNotifier interface {
	NotifyUnread(ctx context.Context, userID, conversationID int) error
}

type Service struct {
	store    Store
	profiles ProfileLookup
	notifier Notifier
	offline  OfflineNotifier
}

func NewService(store Store, profiles ProfileLookup, notifier Notifier, offline OfflineNotifier) *Service {
	return &Service{
		store:    store,
		profiles: profiles,
		notifier: notifier,
		offline:  offline,
	}
}

// StartConversation finds the conversation between the caller and target,
// creating it when the pair has never talked.
func (s *Service) StartConversation(ctx context.Context, userID, targetID int) (*Conversation, error) {
	if targetID == 0 || targetID == userID {
		return nil, errors.New("chat: invalid conversation target")
	}
	conv, err := s.store.FindConversationBetween(ctx, userID, targetID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return nil, err
	}
	return s.store.CreateConversation(ctx, userID, targetID)
}

func (s *Service) ChatList(ctx context.Context, userID int) ([]ChatListEntry, error) {
	return s.store.ChatList(ctx, userID)
}

// History returns the ascending message buffer for one conversation. The
// caller must be a participant.
func (s *Service) History(ctx context.Context, userID, conversationID int) ([]*Message, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}

// SendMessage persists a message, creating the conversation lazily on the
// first exchange, and fans out insert + activity events to both sides.
func (s *Service) SendMessage(ctx context.Context, senderID int, req SendRequest) (*Message, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	conversationID := req.ConversationID
	if conversationID == 0 {
		conv, err := s.StartConversation(ctx, senderID, req.OtherUserID)
		if err != nil {
			return nil, err
		}
		conversationID = conv.ID
	} else if err := s.requireParticipant(ctx, conversationID, senderID); err != nil {
		return nil, err
	}

	recipientID, err := s.store.OtherParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	msg, updatedAt, err := s.store.InsertMessage(ctx, conversationID, senderID, content)
	if err != nil {
		return nil, err
	}

	s.fanOutMessage(ctx, msg, updatedAt, senderID, recipientID)

	// Presence is instance-local; the worker only refreshes a badge cache,
	// so a false "offline" is harmless.
	if s.offline != nil && !s.notifier.IsOnline(recipientID) {
		if err := s.offline.NotifyUnread(ctx, recipientID, conversationID); err != nil {
			log.Printf("chat: offline notify failed: %v", err)
		}
	}

	return msg, nil
}

// EditMessage rewrites content and stamps edited_at. Empty content is
// rejected before touching storage; a deleted message stays deleted.
func (s *Service) EditMessage(ctx context.Context, userID, messageID int, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	current, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if current.SenderID != userID {
		return nil, ErrNotAuthor
	}
	if current.Disabled {
		return nil, ErrMessageDeleted
	}

	updated, err := s.store.UpdateMessageContent(ctx, messageID, content)
	if err != nil {
		return nil, err
	}

	s.fanOutUpdate(ctx, updated)
	return updated, nil
}

// DeleteMessage soft-deletes: the row survives for ordering, the content is
// hidden, and there is no undelete.
func (s *Service) DeleteMessage(ctx context.Context, userID, messageID int) (*Message, error) {
	current, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if current.SenderID != userID {
		return nil, ErrNotAuthor
	}
	if current.Disabled {
		return current, nil
	}

	disabled, err := s.store.DisableMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	s.fanOutUpdate(ctx, disabled)
	return disabled, nil
}

// MarkRead stamps read_at on every counterpart message still unread in the
// conversation and reports how many were affected.
func (s *Service) MarkRead(ctx context.Context, userID, conversationID int) (int, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return 0, err
	}

	affected, err := s.store.MarkConversationRead(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}

	for _, msg := range affected {
		s.fanOutUpdate(ctx, msg)
	}
	return len(affected), nil
}

func (s *Service) requireParticipant(ctx context.Context, conversationID, userID int) error {
	ok, err := s.store.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

// fanOutMessage emits message.insert plus conversation.update to both
// participants. Each side's activity event carries its own counterpart
// profile so a brand-new conversation can appear in the chat list without a
// fetch.
func (s *Service) fanOutMessage(ctx context.Context, msg *Message, updatedAt time.Time, senderID, recipientID int) {
	senderProfile := s.lookupProfile(ctx, senderID)
	recipientProfile := s.lookupProfile(ctx, recipientID)

	insert := Event{Type: EventMessageInsert, Message: msg}
	s.notifier.Notify(Envelope{UserID: senderID, Event: insert})
	s.notifier.Notify(Envelope{UserID: recipientID, Event: insert})

	s.notifier.Notify(Envelope{UserID: senderID, Event: Event{
		Type: EventConversationUpdate,
		Conversation: &ConversationActivity{
			ID:        msg.ConversationID,
			UpdatedAt: updatedAt,
			Other:     recipientProfile,
		},
	}})
	s.notifier.Notify(Envelope{UserID: recipientID, Event: Event{
		Type: EventConversationUpdate,
		Conversation: &ConversationActivity{
			ID:        msg.ConversationID,
			UpdatedAt: updatedAt,
			Other:     senderProfile,
		},
	}})
}

// fanOutUpdate emits message.update to both sides of the message's
// conversation.
func (s *Service) fanOutUpdate(ctx context.Context, msg *Message) {
	event := Event{Type: EventMessageUpdate, Message: msg}
	s.notifier.Notify(Envelope{UserID: msg.SenderID, Event: event})

	otherID, err := s.store.OtherParticipant(ctx, msg.ConversationID, msg.SenderID)
	if err != nil {
		log.Printf("chat: counterpart lookup failed for conversation %d: %v", msg.ConversationID, err)
		return
	}
	s.notifier.Notify(Envelope{UserID: otherID, Event: event})
}

func (s *Service) lookupProfile(ctx context.Context, id int) *user.Profile {
	p, err := s.profiles.GetProfile(ctx, id)
	if err != nil {
		log.Printf("chat: profile lookup failed for user %d: %v", id, err)
		return nil
	}
	return p
}
