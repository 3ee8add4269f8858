package repository

import (
	"fmt"

	"zalo-hub/internal/domain/account"
	"zalo-hub/internal/domain/contact"
	"zalo-hub/internal/domain/conversation"
	"zalo-hub/internal/domain/message"
	"zalo-hub/internal/domain/sticker"
	"zalo-hub/internal/domain/upload"

	"gorm.io/gorm"
)

// Models lists every persisted entity, parents before children.
func Models() []interface{} {
	return []interface{}{
		&account.Account{},
		&contact.Friend{},
		&conversation.Conversation{},
		&message.Message{},
		&message.Reaction{},
		&sticker.Sticker{},
		&upload.FailedFileStorage{},
	}
}

// Tables lists table names children first, for truncation.
func Tables() []string {
	return []string{
		"failed_file_storages",
		"reactions",
		"messages",
		"stickers",
		"conversations",
		"friends",
		"accounts",
	}
}

// InitSchema runs gorm auto-migration for all models.
func InitSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}
