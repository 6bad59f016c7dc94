package repository

import (
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Repository is the gorm store behind the real-time core. It satisfies the
// narrow store interfaces declared by presence, reaction, chat, mailer and
// notification.
type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
