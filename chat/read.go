package chat

import (
	"context"

	"social-realtime/apperror"
)

type MarkRead struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type UnreadResetEvent struct {
	ChatID string `json:"chatId"`
}

// MarkRead clears the unread state of req.UserID in req.ChatID, disarms the
// pending missed message email and syncs the user's other devices.
func (r *Relay) MarkRead(ctx context.Context, req MarkRead) error {
	if req.ChatID == "" {
		return apperror.ErrMissingChat
	}
	if req.UserID == "" {
		return apperror.ErrMissingUser
	}
	if _, err := r.memberChat(ctx, req.ChatID, req.UserID); err != nil {
		return err
	}

	marked, err := r.store.MarkChatRead(ctx, req.ChatID, req.UserID)
	if err != nil {
		return apperror.Internal("failed to mark chat as read", err)
	}
	r.missed.Cancel(req.ChatID, req.UserID)

	r.emitter.ToUser(req.UserID, EventUnreadReset, UnreadResetEvent{ChatID: req.ChatID})
	relayLog.Debug("user %s read chat %s (%d messages)", req.UserID, req.ChatID, marked)
	return nil
}
