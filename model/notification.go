package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	NotificationMessage     = "message"
	NotificationProfileWink = "profile_wink"
)

type Notification struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	RecipientID string    `gorm:"not null;size:36;index:idx_notification_recipient_read" json:"recipientId"`
	SenderID    string    `gorm:"size:36" json:"senderId,omitempty"`
	Type        string    `gorm:"type:varchar(30);not null" json:"type"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Link        string    `json:"link,omitempty"`
	ChatID      string    `gorm:"size:36" json:"chatId,omitempty"`
	Read        bool      `gorm:"column:is_read;not null;index:idx_notification_recipient_read" json:"read"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
