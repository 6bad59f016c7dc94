package model

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ChatPrivate = "private"
	ChatGroup   = "group"
)

type Chat struct {
	ID          string  `gorm:"primaryKey;size:36" json:"id"`
	Kind        string  `gorm:"type:varchar(10);not null" json:"kind"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
	AdminID     string  `gorm:"size:36" json:"adminId,omitempty"`
	PairKey     *string `gorm:"uniqueIndex;size:80" json:"-"`

	LastMessageID *string    `gorm:"size:36" json:"lastMessageId"`
	LastMessageAt *time.Time `json:"lastMessageAt"`

	Members   []ChatMember `gorm:"foreignKey:ChatID" json:"members"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func (c *Chat) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ChatMember is one entry of the chat's member list and unread map.
type ChatMember struct {
	ChatID      string `gorm:"primaryKey;size:36" json:"chatId"`
	UserID      string `gorm:"primaryKey;size:36;index" json:"userId"`
	Position    int    `gorm:"not null" json:"-"`
	UnreadCount int    `gorm:"not null" json:"unreadCount"`
}

// MemberIDs returns the member ids in insertion order.
func (c *Chat) MemberIDs() []string {
	members := append([]ChatMember(nil), c.Members...)
	sort.SliceStable(members, func(i, j int) bool { return members[i].Position < members[j].Position })
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids
}

func (c *Chat) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// Others returns every member except userID.
func (c *Chat) Others(userID string) []string {
	var others []string
	for _, id := range c.MemberIDs() {
		if id != userID {
			others = append(others, id)
		}
	}
	return others
}

// Unread returns the member's unread counter, 0 when the entry is missing.
func (c *Chat) Unread(userID string) int {
	for _, m := range c.Members {
		if m.UserID == userID {
			return m.UnreadCount
		}
	}
	return 0
}

// PairKey identifies the private chat of an unordered user pair.
func PairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

const (
	MessageText  = "text"
	MessageImage = "image"
	MessageAudio = "audio"
	MessageVideo = "video"
	MessageFile  = "file"

	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

func ValidMessageType(t string) bool {
	switch t {
	case MessageText, MessageImage, MessageAudio, MessageVideo, MessageFile:
		return true
	}
	return false
}

type Message struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	ChatID     string    `gorm:"not null;size:36;index" json:"chatId"`
	SenderID   string    `gorm:"not null;size:36;index:idx_message_sender_created" json:"senderId"`
	ReceiverID *string   `gorm:"size:36" json:"receiverId,omitempty"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Type       string    `gorm:"type:varchar(10);not null" json:"type"`
	Status     string    `gorm:"type:varchar(10);not null" json:"status"`
	Read       bool      `gorm:"column:is_read;not null" json:"read"`
	CreatedAt  time.Time `gorm:"index:idx_message_sender_created" json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Preview is the short form of the message used in notifications and emails.
func (m *Message) Preview(limit int) string {
	switch m.Type {
	case MessageImage:
		return "sent an image"
	case MessageAudio:
		return "sent an audio message"
	case MessageVideo:
		return "sent a video"
	case MessageFile:
		return "sent a file"
	}
	runes := []rune(m.Content)
	if limit > 0 && len(runes) > limit {
		return string(runes[:limit]) + "…"
	}
	return m.Content
}
