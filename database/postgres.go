package database

import (
	"fmt"

	"social-realtime/config"
	"social-realtime/model"

	"github.com/pkg/errors"
	"github.com/zishang520/engine.io/v2/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbLog = log.NewLog("realtime:database")

// Models are the tables the real-time core reads and writes.
var Models = []any{
	&model.User{},
	&model.Friendship{},
	&model.Subscription{},
	&model.Chat{},
	&model.ChatMember{},
	&model.Message{},
	&model.Notification{},
	&model.Reaction{},
	&model.ProfileWink{},
}

func PostgresConnect() (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		config.Config("POSTGRES_HOST"),
		config.Config("POSTGRES_PORT"),
		config.Config("POSTGRES_USER"),
		config.Config("POSTGRES_PASSWORD"),
		config.Config("POSTGRES_DB"),
	)
	return Open(postgres.Open(dsn))
}

// Open connects through dialector with duplicate key errors translated to
// gorm.ErrDuplicatedKey, then migrates Models.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	level := logger.Warn
	if config.Bool("LOG_DEBUG", false) {
		level = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	dbLog.Info("connection opened to %s", dialector.Name())

	if err := db.AutoMigrate(Models...); err != nil {
		return nil, errors.Wrap(err, "migrate database")
	}
	dbLog.Info("database migrated")
	return db, nil
}
