package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"furriends-chat/internal/user"
)

type fakeStore struct {
	nextConvID   int
	nextMsgID    int
	participants map[int][]int
	messages     map[int]*Message
	updatedAt    map[int]time.Time
	disableCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextConvID:   1,
		nextMsgID:    1,
		participants: make(map[int][]int),
		messages:     make(map[int]*Message),
		updatedAt:    make(map[int]time.Time),
	}
}

func (f *fakeStore) addConversation(userA, userB int) int {
	id := f.nextConvID
	f.nextConvID++
	f.participants[id] = []int{userA, userB}
	f.updatedAt[id] = time.Now()
	return id
}

func (f *fakeStore) addMessage(conv, sender int, content string, readAt *time.Time) *Message {
	m := &Message{
		ID:             f.nextMsgID,
		ConversationID: conv,
		SenderID:       sender,
		Content:        content,
		CreatedAt:      time.Now(),
		ReadAt:         readAt,
	}
	f.nextMsgID++
	f.messages[m.ID] = m
	return m
}

func (f *fakeStore) FindConversationBetween(_ context.Context, userA, userB int) (*Conversation, error) {
	for id, p := range f.participants {
		if (p[0] == userA && p[1] == userB) || (p[0] == userB && p[1] == userA) {
			return &Conversation{ID: id, UpdatedAt: f.updatedAt[id]}, nil
		}
	}
	return nil, ErrConversationNotFound
}

func (f *fakeStore) CreateConversation(_ context.Context, userA, userB int) (*Conversation, error) {
	id := f.addConversation(userA, userB)
	return &Conversation{ID: id, UpdatedAt: f.updatedAt[id]}, nil
}

func (f *fakeStore) IsParticipant(_ context.Context, conversationID, userID int) (bool, error) {
	for _, p := range f.participants[conversationID] {
		if p == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) OtherParticipant(_ context.Context, conversationID, userID int) (int, error) {
	for _, p := range f.participants[conversationID] {
		if p != userID {
			return p, nil
		}
	}
	return 0, ErrConversationNotFound
}

func (f *fakeStore) InsertMessage(_ context.Context, conversationID, senderID int, content string) (*Message, time.Time, error) {
	m := f.addMessage(conversationID, senderID, content, nil)
	f.updatedAt[conversationID] = m.CreatedAt
	return m, m.CreatedAt, nil
}

func (f *fakeStore) GetMessage(_ context.Context, id int) (*Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	copied := *m
	return &copied, nil
}

func (f *fakeStore) UpdateMessageContent(_ context.Context, id int, content string) (*Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	now := time.Now()
	m.Content = content
	m.EditedAt = &now
	copied := *m
	return &copied, nil
}

func (f *fakeStore) DisableMessage(_ context.Context, id int) (*Message, error) {
	f.disableCalls++
	m, ok := f.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	m.Disabled = true
	copied := *m
	return &copied, nil
}

func (f *fakeStore) MarkConversationRead(_ context.Context, conversationID, readerID int) ([]*Message, error) {
	now := time.Now()
	var affected []*Message
	for _, m := range f.messages {
		if m.ConversationID == conversationID && m.SenderID != readerID && m.ReadAt == nil {
			m.ReadAt = &now
			copied := *m
			affected = append(affected, &copied)
		}
	}
	sort.Slice(affected, func(i, j int) bool { return affected[i].ID < affected[j].ID })
	return affected, nil
}

func (f *fakeStore) ListMessages(_ context.Context, conversationID int) ([]*Message, error) {
	var msgs []*Message
	for _, m := range f.messages {
		if m.ConversationID == conversationID {
			copied := *m
			msgs = append(msgs, &copied)
		}
	}
	// Same window as the real query: newest historyLimit rows, returned in
	// chronological order.
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID > msgs[j].ID })
	if len(msgs) > historyLimit {
		msgs = msgs[:historyLimit]
	}
	reverseMessages(msgs)
	return msgs, nil
}

func (f *fakeStore) ChatList(_ context.Context, userID int) ([]ChatListEntry, error) {
	return nil, nil
}

type fakeProfiles struct{}

func (fakeProfiles) GetProfile(_ context.Context, id int) (*user.Profile, error) {
	return &user.Profile{ID: id, Username: userName(id)}, nil
}

func userName(id int) string {
	return map[int]string{1: "usera", 2: "userb", 3: "userc"}[id]
}

type fakeNotifier struct {
	envelopes []Envelope
	online    map[int]bool
}

func (f *fakeNotifier) Notify(env Envelope) { f.envelopes = append(f.envelopes, env) }

func (f *fakeNotifier) IsOnline(userID int) bool { return f.online[userID] }

func (f *fakeNotifier) eventsFor(userID int) []Event {
	var events []Event
	for _, env := range f.envelopes {
		if env.UserID == userID {
			events = append(events, env.Event)
		}
	}
	return events
}

type fakeOffline struct {
	notified [][2]int
}

func (f *fakeOffline) NotifyUnread(_ context.Context, userID, conversationID int) error {
	f.notified = append(f.notified, [2]int{userID, conversationID})
	return nil
}

func newTestService() (*Service, *fakeStore, *fakeNotifier, *fakeOffline) {
	store := newFakeStore()
	notifier := &fakeNotifier{online: make(map[int]bool)}
	offline := &fakeOffline{}
	svc := NewService(store, fakeProfiles{}, notifier, offline)
	return svc, store, notifier, offline
}

func TestSendMessageCreatesConversationLazily(t *testing.T) {
	svc, store, notifier, offline := newTestService()
	ctx := context.Background()

	msg, err := svc.SendMessage(ctx, 1, SendRequest{OtherUserID: 2, Content: "hello"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if msg.ConversationID == 0 {
		t.Fatal("no conversation was created")
	}
	if _, err := store.FindConversationBetween(ctx, 1, 2); err != nil {
		t.Fatalf("conversation not persisted: %v", err)
	}

	// A second send reuses the same thread.
	msg2, err := svc.SendMessage(ctx, 1, SendRequest{OtherUserID: 2, Content: "again"})
	if err != nil {
		t.Fatalf("second send failed: %v", err)
	}
	if msg2.ConversationID != msg.ConversationID {
		t.Fatalf("second send created a new conversation: %d vs %d", msg2.ConversationID, msg.ConversationID)
	}

	// Recipient was offline: the notification task fired for them.
	if len(offline.notified) == 0 || offline.notified[0][0] != 2 {
		t.Fatalf("offline notify missing or mistargeted: %v", offline.notified)
	}

	// Both sides got an insert and an activity event carrying their own
	// counterpart.
	for _, uid := range []int{1, 2} {
		events := notifier.eventsFor(uid)
		var inserts, activities int
		for _, ev := range events {
			switch ev.Type {
			case EventMessageInsert:
				inserts++
			case EventConversationUpdate:
				activities++
				if ev.Conversation.Other == nil {
					t.Fatalf("activity event for %d lacks counterpart", uid)
				}
				if ev.Conversation.Other.ID == uid {
					t.Fatalf("activity event for %d names themselves as counterpart", uid)
				}
			}
		}
		if inserts == 0 || activities == 0 {
			t.Fatalf("user %d missing events: %d inserts, %d activities", uid, inserts, activities)
		}
	}
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	svc, store, _, _ := newTestService()

	_, err := svc.SendMessage(context.Background(), 1, SendRequest{OtherUserID: 2, Content: "   "})
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if len(store.messages) != 0 {
		t.Fatal("empty message reached storage")
	}
}

func TestSendMessageRequiresParticipant(t *testing.T) {
	svc, store, _, _ := newTestService()
	conv := store.addConversation(1, 2)

	_, err := svc.SendMessage(context.Background(), 3, SendRequest{ConversationID: conv, Content: "intruder"})
	if !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestSendSkipsOfflineNotifyWhenRecipientConnected(t *testing.T) {
	svc, store, notifier, offline := newTestService()
	conv := store.addConversation(1, 2)
	notifier.online[2] = true

	if _, err := svc.SendMessage(context.Background(), 1, SendRequest{ConversationID: conv, Content: "hi"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(offline.notified) != 0 {
		t.Fatalf("online recipient should not trigger offline notify: %v", offline.notified)
	}
}

func TestEditMessage(t *testing.T) {
	svc, store, notifier, _ := newTestService()
	conv := store.addConversation(1, 2)
	m := store.addMessage(conv, 1, "foo", nil)

	updated, err := svc.EditMessage(context.Background(), 1, m.ID, "bar")
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if updated.Content != "bar" || updated.EditedAt == nil {
		t.Fatalf("edit not applied: %+v", updated)
	}

	// Both participants learn about the update.
	if len(notifier.eventsFor(1)) == 0 || len(notifier.eventsFor(2)) == 0 {
		t.Fatal("edit event not fanned out to both sides")
	}
}

func TestEditMessageRejections(t *testing.T) {
	svc, store, _, _ := newTestService()
	conv := store.addConversation(1, 2)
	m := store.addMessage(conv, 1, "original", nil)

	if _, err := svc.EditMessage(context.Background(), 1, m.ID, "  "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("empty edit: got %v", err)
	}
	if _, err := svc.EditMessage(context.Background(), 2, m.ID, "hijack"); !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("non-author edit: got %v", err)
	}

	if _, err := svc.DeleteMessage(context.Background(), 1, m.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := svc.EditMessage(context.Background(), 1, m.ID, "revive"); !errors.Is(err, ErrMessageDeleted) {
		t.Fatalf("edit after delete: got %v", err)
	}
}

func TestDeleteMessageIsTerminal(t *testing.T) {
	svc, store, _, _ := newTestService()
	conv := store.addConversation(1, 2)
	m := store.addMessage(conv, 1, "bye", nil)

	deleted, err := svc.DeleteMessage(context.Background(), 1, m.ID)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !deleted.Disabled {
		t.Fatal("message not disabled")
	}
	if deleted.DisplayContent() != DeletedPlaceholder {
		t.Fatalf("deleted message renders %q", deleted.DisplayContent())
	}

	// Deleting again is a no-op, not an error and not another storage write.
	if _, err := svc.DeleteMessage(context.Background(), 1, m.ID); err != nil {
		t.Fatalf("second delete errored: %v", err)
	}
	if store.disableCalls != 1 {
		t.Fatalf("disable called %d times, want 1", store.disableCalls)
	}
}

func TestDeleteRequiresAuthor(t *testing.T) {
	svc, store, _, _ := newTestService()
	conv := store.addConversation(1, 2)
	m := store.addMessage(conv, 1, "mine", nil)

	if _, err := svc.DeleteMessage(context.Background(), 2, m.ID); !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("expected ErrNotAuthor, got %v", err)
	}
}

// A conversation longer than the history cap must keep the newest messages:
// the buffer renders the tail, so truncation drops the oldest end.
func TestHistoryKeepsNewestMessages(t *testing.T) {
	svc, store, _, _ := newTestService()
	conv := store.addConversation(1, 2)

	total := historyLimit + 50
	for i := 0; i < total; i++ {
		store.addMessage(conv, 1+i%2, fmt.Sprintf("msg %d", i), nil)
	}

	msgs, err := svc.History(context.Background(), 1, conv)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(msgs) != historyLimit {
		t.Fatalf("history length = %d, want %d", len(msgs), historyLimit)
	}
	if got := msgs[len(msgs)-1].ID; got != total {
		t.Fatalf("newest message missing: tail id = %d, want %d", got, total)
	}
	if got := msgs[0].ID; got != total-historyLimit+1 {
		t.Fatalf("window starts at id %d, want %d", got, total-historyLimit+1)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID < msgs[i-1].ID {
			t.Fatalf("history out of order at %d: %d after %d", i, msgs[i].ID, msgs[i-1].ID)
		}
	}
}

func TestMarkReadStampsOnlyCounterpartMessages(t *testing.T) {
	svc, store, _, _ := newTestService()
	conv := store.addConversation(1, 2)
	already := time.Now().Add(-time.Hour)
	unreadFromB := store.addMessage(conv, 2, "hi", nil)
	ownUnread := store.addMessage(conv, 1, "hello back", nil)
	store.addMessage(conv, 2, "old", &already)

	count, err := svc.MarkRead(context.Background(), 1, conv)
	if err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("marked %d messages, want 1", count)
	}
	if store.messages[unreadFromB.ID].ReadAt == nil {
		t.Fatal("counterpart message not stamped")
	}
	if store.messages[ownUnread.ID].ReadAt != nil {
		t.Fatal("viewer's own message was stamped")
	}
}

func TestMarkReadRequiresParticipant(t *testing.T) {
	svc, store, _, _ := newTestService()
	conv := store.addConversation(1, 2)

	if _, err := svc.MarkRead(context.Background(), 3, conv); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestStartConversationRejectsSelf(t *testing.T) {
	svc, _, _, _ := newTestService()

	if _, err := svc.StartConversation(context.Background(), 1, 1); err == nil {
		t.Fatal("conversation with oneself should be rejected")
	}
}
