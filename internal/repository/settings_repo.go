package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/simplesla-notifier/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormSettingsRepo struct {
	db *gorm.DB
}

func NewGormSettingsRepo(db *gorm.DB) *GormSettingsRepo {
	return &GormSettingsRepo{db: db}
}

func (r *GormSettingsRepo) Get(ctx context.Context) (*domain.GlobalSettings, error) {
	var model SettingsModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", globalSettingsID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return settingsModelToDomain(&model), nil
}

// Save upserts the single settings row.
func (r *GormSettingsRepo) Save(ctx context.Context, settings domain.GlobalSettings) error {
	model := settingsModelFromDomain(settings)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"server_name", "updated_at"}),
		}).
		Create(model).Error
}
