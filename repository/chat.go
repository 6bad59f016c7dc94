package repository

import (
	"context"
	"time"

	"social-realtime/model"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

func preloadMembers(db *gorm.DB) *gorm.DB {
	return db.Preload("Members", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

func (r *Repository) ChatByID(ctx context.Context, id string) (*model.Chat, error) {
	chat := new(model.Chat)
	err := preloadMembers(r.db.WithContext(ctx)).Where("id = ?", id).First(chat).Error
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "chatRepo.ChatByID.First")
	}
	return chat, nil
}

func (r *Repository) FindPrivateChat(ctx context.Context, a, b string) (*model.Chat, error) {
	chat := new(model.Chat)
	err := preloadMembers(r.db.WithContext(ctx)).
		Where("pair_key = ? AND kind = ?", model.PairKey(a, b), model.ChatPrivate).
		First(chat).Error
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "chatRepo.FindPrivateChat.First")
	}
	return chat, nil
}

// CreatePrivateChat inserts the chat and both member rows. The unique pair key
// makes a concurrent create for the same pair fail with ErrDuplicate.
func (r *Repository) CreatePrivateChat(ctx context.Context, a, b string) (*model.Chat, error) {
	key := model.PairKey(a, b)
	chat := &model.Chat{
		Kind:    model.ChatPrivate,
		PairKey: &key,
		Members: []model.ChatMember{
			{UserID: a, Position: 0},
			{UserID: b, Position: 1},
		},
	}
	if err := r.db.WithContext(ctx).Create(chat).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, errors.Wrap(err, "chatRepo.CreatePrivateChat.Create")
	}
	return chat, nil
}

func (r *Repository) CountMessagesSince(ctx context.Context, senderID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("sender_id = ? AND created_at >= ?", senderID, since).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "chatRepo.CountMessagesSince.Count")
	}
	return count, nil
}

// SaveMessage persists msg, points the chat at it and increments the unread
// counter of every recipient, all in one transaction. It returns the counters
// as they are right after the increment.
func (r *Repository) SaveMessage(ctx context.Context, msg *model.Message, recipients []string) (map[string]int, error) {
	unread := make(map[string]int, len(recipients))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return errors.Wrap(err, "chatRepo.SaveMessage.Create")
		}

		err := tx.Model(&model.Chat{}).
			Where("id = ?", msg.ChatID).
			Updates(map[string]any{"last_message_id": msg.ID, "last_message_at": msg.CreatedAt}).Error
		if err != nil {
			return errors.Wrap(err, "chatRepo.SaveMessage.UpdateChat")
		}

		for _, userID := range recipients {
			res := tx.Model(&model.ChatMember{}).
				Where("chat_id = ? AND user_id = ?", msg.ChatID, userID).
				UpdateColumn("unread_count", gorm.Expr("unread_count + ?", 1))
			if res.Error != nil {
				return errors.Wrap(res.Error, "chatRepo.SaveMessage.IncrementUnread")
			}
			if res.RowsAffected == 0 {
				continue
			}
			var count int
			err := tx.Model(&model.ChatMember{}).
				Select("unread_count").
				Where("chat_id = ? AND user_id = ?", msg.ChatID, userID).
				Scan(&count).Error
			if err != nil {
				return errors.Wrap(err, "chatRepo.SaveMessage.ReadUnread")
			}
			unread[userID] = count
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unread, nil
}

// MarkChatRead resets the member's unread counter and flags every incoming
// unread message as read. It returns the number of messages flagged.
func (r *Repository) MarkChatRead(ctx context.Context, chatID, userID string) (int64, error) {
	var marked int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.ChatMember{}).
			Where("chat_id = ? AND user_id = ?", chatID, userID).
			UpdateColumn("unread_count", 0).Error
		if err != nil {
			return errors.Wrap(err, "chatRepo.MarkChatRead.ResetUnread")
		}

		res := tx.Model(&model.Message{}).
			Where("chat_id = ? AND sender_id <> ? AND is_read = ?", chatID, userID, false).
			Updates(map[string]any{"is_read": true, "status": model.StatusRead})
		if res.Error != nil {
			return errors.Wrap(res.Error, "chatRepo.MarkChatRead.UpdateMessages")
		}
		marked = res.RowsAffected
		return nil
	})
	return marked, err
}

func (r *Repository) UnreadCount(ctx context.Context, chatID, userID string) (int, error) {
	var counts []int
	err := r.db.WithContext(ctx).
		Model(&model.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Pluck("unread_count", &counts).Error
	if err != nil {
		return 0, errors.Wrap(err, "chatRepo.UnreadCount.Pluck")
	}
	if len(counts) == 0 {
		return 0, nil
	}
	return counts[0], nil
}
