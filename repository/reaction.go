package repository

import (
	"context"
	"time"

	"social-realtime/model"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SetReaction makes the stored reaction match on. It reports whether a row
// was inserted or deleted.
func (r *Repository) SetReaction(ctx context.Context, kind model.ReactionKind, contentID, userID string, on bool) (bool, error) {
	db := r.db.WithContext(ctx)
	if on {
		res := db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.Reaction{Kind: kind, ContentID: contentID, UserID: userID})
		if res.Error != nil {
			return false, errors.Wrap(res.Error, "reactionRepo.SetReaction.Create")
		}
		return res.RowsAffected > 0, nil
	}

	res := db.Where("kind = ? AND content_id = ? AND user_id = ?", kind, contentID, userID).
		Delete(&model.Reaction{})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "reactionRepo.SetReaction.Delete")
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) HasReaction(ctx context.Context, kind model.ReactionKind, contentID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Reaction{}).
		Where("kind = ? AND content_id = ? AND user_id = ?", kind, contentID, userID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "reactionRepo.HasReaction.Count")
	}
	return count > 0, nil
}

func (r *Repository) CountReactions(ctx context.Context, kind model.ReactionKind, contentID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Reaction{}).
		Where("kind = ? AND content_id = ?", kind, contentID).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "reactionRepo.CountReactions.Count")
	}
	return count, nil
}

// AddProfileWink bumps the (profile, user) wink counter and returns the total
// winks the profile received.
func (r *Repository) AddProfileWink(ctx context.Context, profileID, userID string, at time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wink := model.ProfileWink{ProfileID: profileID, UserID: userID, Winks: 1, LastWinkAt: at}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "profile_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"winks":        gorm.Expr("profile_winks.winks + 1"),
				"last_wink_at": at,
			}),
		}).Create(&wink).Error
		if err != nil {
			return errors.Wrap(err, "reactionRepo.AddProfileWink.Upsert")
		}

		err = tx.Model(&model.ProfileWink{}).
			Select("COALESCE(SUM(winks), 0)").
			Where("profile_id = ?", profileID).
			Scan(&total).Error
		return errors.Wrap(err, "reactionRepo.AddProfileWink.Sum")
	})
	return total, err
}
