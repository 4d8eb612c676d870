package repository

import (
	"time"

	"github.com/kursadbilgin/simplesla-notifier/internal/domain"
)

// globalSettingsID is the primary key of the only settings row.
const globalSettingsID = "global"

// SettingsModel is the persistence model for the settings table.
type SettingsModel struct {
	ID         string `gorm:"type:varchar(32);primaryKey"`
	ServerName string `gorm:"type:varchar(255);not null;default:''"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (SettingsModel) TableName() string {
	return "settings"
}

func settingsModelFromDomain(s domain.GlobalSettings) *SettingsModel {
	return &SettingsModel{
		ID:         globalSettingsID,
		ServerName: s.ServerName,
	}
}

func settingsModelToDomain(m *SettingsModel) *domain.GlobalSettings {
	if m == nil {
		return nil
	}

	return &domain.GlobalSettings{
		ServerName: m.ServerName,
	}
}
