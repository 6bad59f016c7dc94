package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"social-realtime/mailer"
	"social-realtime/model"
	"social-realtime/repository"
)

type memStore struct {
	mu       sync.Mutex
	chats    map[string]*model.Chat
	messages []*model.Message
	seq      int

	// hideOnce makes the next FindPrivateChat miss, as if another request
	// created the chat right after our lookup.
	hideOnce bool
	saveErr  error
}

func newMemStore() *memStore {
	return &memStore{chats: map[string]*model.Chat{}}
}

func (s *memStore) addChat(kind string, members ...string) *model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	c := &model.Chat{ID: fmt.Sprintf("chat-%d", s.seq), Kind: kind}
	if kind == model.ChatPrivate {
		key := model.PairKey(members[0], members[1])
		c.PairKey = &key
	}
	for i, m := range members {
		c.Members = append(c.Members, model.ChatMember{ChatID: c.ID, UserID: m, Position: i})
	}
	s.chats[c.ID] = c
	return clone(c)
}

func clone(c *model.Chat) *model.Chat {
	out := *c
	out.Members = append([]model.ChatMember(nil), c.Members...)
	return &out
}

func (s *memStore) ChatByID(_ context.Context, id string) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(c), nil
}

func (s *memStore) FindPrivateChat(_ context.Context, a, b string) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hideOnce {
		s.hideOnce = false
		return nil, repository.ErrNotFound
	}
	key := model.PairKey(a, b)
	for _, c := range s.chats {
		if c.PairKey != nil && *c.PairKey == key {
			return clone(c), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) CreatePrivateChat(_ context.Context, a, b string) (*model.Chat, error) {
	s.mu.Lock()
	key := model.PairKey(a, b)
	for _, c := range s.chats {
		if c.PairKey != nil && *c.PairKey == key {
			s.mu.Unlock()
			return nil, repository.ErrDuplicate
		}
	}
	s.mu.Unlock()
	return s.addChat(model.ChatPrivate, a, b), nil
}

func (s *memStore) CountMessagesSince(_ context.Context, senderID string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages {
		if m.SenderID == senderID && !m.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) SaveMessage(_ context.Context, msg *model.Message, recipients []string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	c := s.chats[msg.ChatID]
	s.seq++
	msg.ID = fmt.Sprintf("msg-%d", s.seq)
	s.messages = append(s.messages, msg)
	c.LastMessageID = &msg.ID
	c.LastMessageAt = &msg.CreatedAt

	unread := map[string]int{}
	for _, userID := range recipients {
		for i := range c.Members {
			if c.Members[i].UserID == userID {
				c.Members[i].UnreadCount++
				unread[userID] = c.Members[i].UnreadCount
			}
		}
	}
	return unread, nil
}

func (s *memStore) MarkChatRead(_ context.Context, chatID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.chats[chatID]
	for i := range c.Members {
		if c.Members[i].UserID == userID {
			c.Members[i].UnreadCount = 0
		}
	}
	var marked int64
	for _, m := range s.messages {
		if m.ChatID == chatID && m.SenderID != userID && !m.Read {
			m.Read = true
			m.Status = model.StatusRead
			marked++
		}
	}
	return marked, nil
}

func (s *memStore) unread(chatID, userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chats[chatID].Unread(userID)
}

func (s *memStore) chatCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}

func (s *memStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type friendGraph map[string]bool

func (f friendGraph) AreFriends(_ context.Context, a, b string) (bool, error) {
	return f[model.PairKey(a, b)], nil
}

type entitlements map[string]bool

func (e entitlements) HasActiveSubscription(_ context.Context, userID string, _ time.Time) (bool, error) {
	return e[userID], nil
}

type directory map[string]*model.User

func (d directory) UserByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := d[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

type notifier struct {
	mu   sync.Mutex
	sent map[string][]*model.Notification
}

func (n *notifier) Notify(_ context.Context, recipientID string, notification *model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = map[string][]*model.Notification{}
	}
	n.sent[recipientID] = append(n.sent[recipientID], notification)
	return nil
}

type scheduler struct {
	mu        sync.Mutex
	scheduled []mailer.MissedMessage
	cancelled []string
}

func (s *scheduler) Schedule(msg mailer.MissedMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, msg)
	return true
}

func (s *scheduler) Cancel(chatID, recipientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, chatID+"/"+recipientID)
	return true
}
