package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the slice of the platform user record the real-time core reads and
// writes. The CRUD service owns the rest of the profile.
type User struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	IsOnline  bool      `gorm:"not null" json:"isOnline"`
	LastSeen  time.Time `json:"lastSeen"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Settings: notifications.email.messages
	MessageEmails bool `gorm:"not null" json:"messageEmails"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// DisplayName falls back to the email local part when no username is set.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	for i, r := range u.Email {
		if r == '@' {
			return u.Email[:i]
		}
	}
	return u.Email
}

// PresenceUpdate is a partial user update produced by the presence layer.
// A nil IsOnline leaves the stored flag untouched.
type PresenceUpdate struct {
	IsOnline *bool
	LastSeen time.Time
}

// Merge applies next on top of u: a set flag wins, the later last-seen wins.
func (u PresenceUpdate) Merge(next PresenceUpdate) PresenceUpdate {
	if next.IsOnline != nil {
		u.IsOnline = next.IsOnline
	}
	if next.LastSeen.After(u.LastSeen) {
		u.LastSeen = next.LastSeen
	}
	return u
}

// Fields returns the column map for a gorm Updates call.
func (u PresenceUpdate) Fields() map[string]any {
	fields := map[string]any{}
	if u.IsOnline != nil {
		fields["is_online"] = *u.IsOnline
	}
	if !u.LastSeen.IsZero() {
		fields["last_seen"] = u.LastSeen
	}
	return fields
}

type Friendship struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	RequesterID string    `gorm:"not null;size:36;uniqueIndex:idx_friendship_pair" json:"requesterId"`
	RecipientID string    `gorm:"not null;size:36;uniqueIndex:idx_friendship_pair" json:"recipientId"`
	Status      string    `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
	FriendshipBlocked  = "blocked"
)

func (f *Friendship) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

type Subscription struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	UserID           string     `gorm:"not null;size:36;index" json:"userId"`
	Plan             string     `gorm:"not null" json:"plan"`
	Status           string     `gorm:"type:varchar(20);not null" json:"status"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

const (
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
	SubscriptionCanceled = "canceled"
)

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
