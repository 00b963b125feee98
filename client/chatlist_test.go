package client

import (
	"testing"
	"time"

	"furriends-chat/internal/chat"
	"furriends-chat/internal/user"
)

func entry(conv int, other string, unread int, at time.Time) chat.ChatListEntry {
	return chat.ChatListEntry{
		ConversationID: conv,
		Other:          user.Profile{ID: conv * 10, Username: other},
		UnreadCount:    unread,
		UpdatedAt:      at,
	}
}

func TestChatListOrderedByRecency(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	list := NewChatListStore()
	list.Initialize([]chat.ChatListEntry{
		entry(1, "ana", 0, base.Add(1*time.Minute)),
		entry(2, "bob", 0, base.Add(3*time.Minute)),
		entry(3, "cat", 0, base.Add(2*time.Minute)),
	})

	entries := list.Entries()
	if entries[0].ConversationID != 2 || entries[1].ConversationID != 3 || entries[2].ConversationID != 1 {
		t.Fatalf("unexpected order: %v, %v, %v",
			entries[0].ConversationID, entries[1].ConversationID, entries[2].ConversationID)
	}
}

func TestChatListActivityMovesConversationToTop(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	list := NewChatListStore()
	list.Initialize([]chat.ChatListEntry{
		entry(1, "ana", 0, base.Add(2*time.Minute)),
		entry(2, "bob", 0, base.Add(1*time.Minute)),
	})

	list.UpsertFromRealtime(chat.ConversationActivity{ID: 2, UpdatedAt: base.Add(5 * time.Minute)})

	entries := list.Entries()
	if entries[0].ConversationID != 2 {
		t.Fatalf("most recently active conversation should be first, got %d", entries[0].ConversationID)
	}
}

func TestChatListSynthesizesUnseenConversation(t *testing.T) {
	list := NewChatListStore()
	list.Initialize(nil)

	other := user.Profile{ID: 42, Username: "newfriend", DisplayName: "New Friend"}
	list.UpsertFromRealtime(chat.ConversationActivity{
		ID:        9,
		UpdatedAt: time.Now(),
		Other:     &other,
	})

	entries := list.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected synthesized entry, got %d entries", len(entries))
	}
	if entries[0].ConversationID != 9 || entries[0].Other.Username != "newfriend" {
		t.Fatalf("synthesized entry wrong: %+v", entries[0])
	}
}

func TestChatListUnreadAccounting(t *testing.T) {
	base := time.Now()
	list := NewChatListStore()
	list.Initialize([]chat.ChatListEntry{
		entry(1, "ana", 2, base),
		entry(2, "bob", 1, base),
	})

	list.IncrementUnread(1)
	if got := list.UnreadCount(1); got != 3 {
		t.Fatalf("unread = %d, want 3", got)
	}

	// Clearing one conversation must not touch any other.
	list.ClearUnread(1)
	if got := list.UnreadCount(1); got != 0 {
		t.Fatalf("unread after clear = %d, want 0", got)
	}
	if got := list.UnreadCount(2); got != 1 {
		t.Fatalf("other conversation's unread changed: %d", got)
	}
}

func TestChatListIncrementSynthesizesPlaceholder(t *testing.T) {
	list := NewChatListStore()
	list.Initialize(nil)

	// First message of a brand-new conversation can arrive before the
	// activity event that carries the counterpart profile.
	list.IncrementUnread(7)
	if got := list.UnreadCount(7); got != 1 {
		t.Fatalf("unread = %d, want 1", got)
	}

	other := user.Profile{ID: 5, Username: "late"}
	list.UpsertFromRealtime(chat.ConversationActivity{ID: 7, UpdatedAt: time.Now(), Other: &other})

	entries := list.Entries()
	if len(entries) != 1 {
		t.Fatalf("placeholder should merge with activity, got %d entries", len(entries))
	}
	if entries[0].UnreadCount != 1 || entries[0].Other.Username != "late" {
		t.Fatalf("merged entry wrong: %+v", entries[0])
	}
}

func TestChatListTiesKeepInsertionOrder(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	list := NewChatListStore()
	list.Initialize([]chat.ChatListEntry{
		entry(1, "ana", 0, at),
		entry(2, "bob", 0, at),
		entry(3, "cat", 0, at),
	})

	entries := list.Entries()
	for i, want := range []int{1, 2, 3} {
		if entries[i].ConversationID != want {
			t.Fatalf("tie order broken at %d: got %d", i, entries[i].ConversationID)
		}
	}
}
