package repository

import (
	"context"
	"time"

	"social-realtime/model"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

func (r *Repository) UserByID(ctx context.Context, id string) (*model.User, error) {
	user := new(model.User)
	err := r.db.WithContext(ctx).Where("id = ?", id).First(user).Error
	if err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "userRepo.UserByID.First")
	}
	return user, nil
}

// ApplyPresence writes one batch of presence updates, one UPDATE per user
// inside a single transaction.
func (r *Repository) ApplyPresence(ctx context.Context, updates map[string]model.PresenceUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for userID, update := range updates {
			fields := update.Fields()
			if len(fields) == 0 {
				continue
			}
			if err := tx.Model(&model.User{}).Where("id = ?", userID).Updates(fields).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrap(err, "userRepo.ApplyPresence.Transaction")
}

func (r *Repository) MarkOffline(ctx context.Context, userIDs []string, at time.Time) error {
	if len(userIDs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id IN ?", userIDs).
		Updates(map[string]any{"is_online": false, "last_seen": at}).Error
	return errors.Wrap(err, "userRepo.MarkOffline.Updates")
}

func (r *Repository) AreFriends(ctx context.Context, a, b string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Friendship{}).
		Where("status = ?", model.FriendshipAccepted).
		Where("(requester_id = ? AND recipient_id = ?) OR (requester_id = ? AND recipient_id = ?)", a, b, b, a).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "friendRepo.AreFriends.Count")
	}
	return count > 0, nil
}

func (r *Repository) HasActiveSubscription(ctx context.Context, userID string, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("user_id = ? AND status IN ?", userID, []string{model.SubscriptionActive, model.SubscriptionTrialing}).
		Where("current_period_end IS NULL OR current_period_end > ?", now).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "subscriptionRepo.HasActiveSubscription.Count")
	}
	return count > 0, nil
}
