package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/simplesla-notifier/internal/repository"
	"gorm.io/gorm"
)

func createSettingsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_settings",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.SettingsModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.SettingsModel{})
		},
	}
}
