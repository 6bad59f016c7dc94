package chat

import (
	"context"

	"social-realtime/apperror"
)

const (
	EventTyping     = "typing"
	EventStopTyping = "stop-typing"
)

// SignalEvents are the call signaling events relayed between chat members.
var SignalEvents = []string{
	"call-invitation",
	"call-response",
	"join-call",
	"offer",
	"answer",
	"ice-candidate",
	"leave-call",
}

type TypingEvent struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// Typing relays a typing indicator of userID to the other members.
func (r *Relay) Typing(ctx context.Context, event TypingEvent, typing bool) error {
	if event.ChatID == "" {
		return apperror.ErrMissingChat
	}
	if event.UserID == "" {
		return apperror.ErrMissingUser
	}
	chat, err := r.memberChat(ctx, event.ChatID, event.UserID)
	if err != nil {
		return err
	}

	name := EventStopTyping
	if typing {
		name = EventTyping
	}
	for _, userID := range chat.Others(event.UserID) {
		r.emitter.ToUser(userID, name, event)
	}
	return nil
}

// Signal forwards a call signaling payload untouched. With a target only that
// member receives it, otherwise every member but the caller.
func (r *Relay) Signal(ctx context.Context, event, chatID, fromID, to string, payload any) error {
	if chatID == "" {
		return apperror.ErrMissingChat
	}
	if fromID == "" {
		return apperror.ErrMissingUser
	}
	chat, err := r.memberChat(ctx, chatID, fromID)
	if err != nil {
		return err
	}

	if to != "" {
		if to == fromID || !chat.HasMember(to) {
			return apperror.ErrInvalidSignalPeer
		}
		r.emitter.ToUser(to, event, payload)
		return nil
	}
	for _, userID := range chat.Others(fromID) {
		r.emitter.ToUser(userID, event, payload)
	}
	return nil
}
