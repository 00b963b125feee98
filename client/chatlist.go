package client

import (
	"sort"
	"sync"

	"furriends-chat/internal/chat"
	"furriends-chat/internal/user"
)

// ChatListStore maintains the conversation list for the current user, each
// entry annotated with an unread badge. Most recently active conversation
// first; ties keep insertion order.
type ChatListStore struct {
	mu      sync.Mutex
	entries []chat.ChatListEntry
}

func NewChatListStore() *ChatListStore {
	return &ChatListStore{}
}

// Initialize seeds the list from a snapshot fetch (already sorted by the
// server, but re-sorted here so stale snapshots cannot break the ordering
// guarantee).
func (s *ChatListStore) Initialize(entries []chat.ChatListEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make([]chat.ChatListEntry, len(entries))
	copy(s.entries, entries)
	s.sortLocked()
}

// UpsertFromRealtime folds a conversation-activity event into the list. An
// unseen conversation id (first message of a brand-new thread) is
// synthesized from the counterpart profile carried by the event, no extra
// fetch needed.
func (s *ChatListStore) UpsertFromRealtime(activity chat.ConversationActivity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ConversationID == activity.ID {
			s.entries[i].UpdatedAt = activity.UpdatedAt
			if activity.Other != nil {
				s.entries[i].Other = *activity.Other
			}
			s.sortLocked()
			return
		}
	}

	entry := chat.ChatListEntry{
		ConversationID: activity.ID,
		UpdatedAt:      activity.UpdatedAt,
	}
	if activity.Other != nil {
		entry.Other = *activity.Other
	}
	s.entries = append(s.entries, entry)
	s.sortLocked()
}

// IncrementUnread bumps the badge for a conversation. A conversation the
// list has never seen gets a placeholder entry; the insert event can land
// before the activity event that carries the counterpart profile.
func (s *ChatListStore) IncrementUnread(conversationID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ConversationID == conversationID {
			s.entries[i].UnreadCount++
			return
		}
	}
	s.entries = append(s.entries, chat.ChatListEntry{
		ConversationID: conversationID,
		UnreadCount:    1,
	})
}

// ClearUnread zeroes the badge for one conversation and no other.
func (s *ChatListStore) ClearUnread(conversationID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ConversationID == conversationID {
			s.entries[i].UnreadCount = 0
			return
		}
	}
}

func (s *ChatListStore) UnreadCount(conversationID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ConversationID == conversationID {
			return s.entries[i].UnreadCount
		}
	}
	return 0
}

// Entries returns a snapshot copy, most recently active first.
func (s *ChatListStore) Entries() []chat.ChatListEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]chat.ChatListEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Other returns the counterpart profile for a conversation, if cached.
func (s *ChatListStore) Other(conversationID int) (user.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ConversationID == conversationID {
			return s.entries[i].Other, true
		}
	}
	return user.Profile{}, false
}

func (s *ChatListStore) sortLocked() {
	sort.SliceStable(s.entries, func(i, j int) bool {
		return s.entries[i].UpdatedAt.After(s.entries[j].UpdatedAt)
	})
}
