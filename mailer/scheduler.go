package mailer

import (
	"context"
	"sync"
	"time"

	"github.com/zishang520/engine.io/v2/log"
)

var schedulerLog = log.NewLog("realtime:mailer")

// MissedMessage is what the recipient is told about when a message stays
// unread for the whole delay.
type MissedMessage struct {
	ChatID         string
	RecipientID    string
	RecipientEmail string
	RecipientName  string
	SenderName     string
	Snapshot       string
}

type UnreadCounter interface {
	UnreadCount(ctx context.Context, chatID, userID string) (int, error)
}

//go:generate mockgen -destination=mocks/mock_sender.go -package=mocks social-realtime/mailer Sender,Publisher
type Sender interface {
	SendMissedMessage(ctx context.Context, msg MissedMessage) error
}

type timerKey struct {
	chatID      string
	recipientID string
}

type pendingEmail struct {
	msg   MissedMessage
	timer *time.Timer
}

// Scheduler keeps at most one delayed email per (chat, recipient). A timer
// only sends if it is still the registered one when it fires, so Cancel
// always beats a concurrent fire.
type Scheduler struct {
	unread      UnreadCounter
	sender      Sender
	delay       time.Duration
	sendTimeout time.Duration

	mu      sync.Mutex
	timers  map[timerKey]*pendingEmail
	stopped bool
}

func NewScheduler(unread UnreadCounter, sender Sender, delay time.Duration) *Scheduler {
	return &Scheduler{
		unread:      unread,
		sender:      sender,
		delay:       delay,
		sendTimeout: 30 * time.Second,
		timers:      make(map[timerKey]*pendingEmail),
	}
}

// Schedule arms the timer for msg. It reports false when one is already
// armed for the same chat and recipient, or after Stop.
func (s *Scheduler) Schedule(msg MissedMessage) bool {
	key := timerKey{chatID: msg.ChatID, recipientID: msg.RecipientID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if _, armed := s.timers[key]; armed {
		return false
	}
	pending := &pendingEmail{msg: msg}
	pending.timer = time.AfterFunc(s.delay, func() { s.fire(key, pending) })
	s.timers[key] = pending
	schedulerLog.Debug("missed message email for %s in chat %s due in %s", msg.RecipientID, msg.ChatID, s.delay)
	return true
}

// Cancel disarms the timer of (chatID, recipientID). Cancelling twice or
// cancelling nothing is fine.
func (s *Scheduler) Cancel(chatID, recipientID string) bool {
	key := timerKey{chatID: chatID, recipientID: recipientID}

	s.mu.Lock()
	defer s.mu.Unlock()
	pending, armed := s.timers[key]
	if !armed {
		return false
	}
	pending.timer.Stop()
	delete(s.timers, key)
	return true
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every timer. Nothing is scheduled afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for key, pending := range s.timers {
		pending.timer.Stop()
		delete(s.timers, key)
	}
}

func (s *Scheduler) fire(key timerKey, pending *pendingEmail) {
	s.mu.Lock()
	if s.timers[key] != pending {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()

	count, err := s.unread.UnreadCount(ctx, key.chatID, key.recipientID)
	if err != nil {
		schedulerLog.Error("unread check for %s in chat %s failed: %v", key.recipientID, key.chatID, err)
		return
	}
	if count == 0 {
		schedulerLog.Debug("chat %s was read by %s, no email", key.chatID, key.recipientID)
		return
	}
	if err := s.sender.SendMissedMessage(ctx, pending.msg); err != nil {
		schedulerLog.Error("missed message email to %s failed: %v", key.recipientID, err)
		return
	}
	schedulerLog.Info("missed message email queued for %s (chat %s, %d unread)", key.recipientID, key.chatID, count)
}
