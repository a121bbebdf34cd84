package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/tripsync/internal/notifications"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationRetypeChatNotifications = "2026-09-21_retype_chat_notifications"

const (
	legacyChatNotificationType = "collaboration"
	chatNotificationType       = "chat"
	chatNotificationLinkLike   = "/itinerary/%/chat"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

var registeredMigrations = []migrationDefinition{
	{name: migrationRetypeChatNotifications, apply: retypeChatNotifications},
}

// applyMigrations runs every registered migration not yet recorded. Each one and
// its record commit in the same transaction.
func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range registeredMigrations {
		applied, err := migrationApplied(db, migration.name)
		if err != nil {
			return fmt.Errorf("database: check migration %s: %w", migration.name, err)
		}
		if applied {
			continue
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{
				Name:             migration.name,
				AppliedAtSeconds: time.Now().UTC().Unix(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("database: apply migration %s: %w", migration.name, err)
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func migrationApplied(db *gorm.DB, name string) (bool, error) {
	var record migrationRecord
	err := db.Where("name = ?", name).Take(&record).Error
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, err
	}
}

// retypeChatNotifications moves chat notifications stored under the generic
// collaboration type onto the chat type the live push already uses.
func retypeChatNotifications(db *gorm.DB) error {
	return db.Model(&notifications.Notification{}).
		Where("type = ? AND link LIKE ?", legacyChatNotificationType, chatNotificationLinkLike).
		Update("type", chatNotificationType).Error
}
