package repository

import (
	"context"

	"social-realtime/model"

	"github.com/pkg/errors"
)

func (r *Repository) CreateNotification(ctx context.Context, n *model.Notification) error {
	err := r.db.WithContext(ctx).Create(n).Error
	return errors.Wrap(err, "notificationRepo.CreateNotification.Create")
}

func (r *Repository) CountUnreadNotifications(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "notificationRepo.CountUnreadNotifications.Count")
	}
	return count, nil
}
