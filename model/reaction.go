package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReactionKind string

const (
	PostLike  ReactionKind = "post_like"
	ForumLike ReactionKind = "forum_like"
	PostWink  ReactionKind = "post_wink"
)

// Reaction is a like or wink of one user on one content item.
type Reaction struct {
	ID        string       `gorm:"primaryKey;size:36" json:"id"`
	Kind      ReactionKind `gorm:"type:varchar(20);not null;uniqueIndex:idx_reaction_target" json:"kind"`
	ContentID string       `gorm:"not null;size:36;uniqueIndex:idx_reaction_target" json:"contentId"`
	UserID    string       `gorm:"not null;size:36;uniqueIndex:idx_reaction_target" json:"userId"`
	CreatedAt time.Time    `json:"createdAt"`
}

func (r *Reaction) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// ProfileWink counts how often a user winked at a profile.
type ProfileWink struct {
	ProfileID  string    `gorm:"primaryKey;size:36" json:"profileId"`
	UserID     string    `gorm:"primaryKey;size:36" json:"userId"`
	Winks      int       `gorm:"not null" json:"winks"`
	LastWinkAt time.Time `json:"lastWinkAt"`
}
