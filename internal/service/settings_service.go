package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/kursadbilgin/simplesla-notifier/internal/domain"
	"go.uber.org/zap"
)

type SettingsRepository interface {
	Get(ctx context.Context) (*domain.GlobalSettings, error)
	Save(ctx context.Context, settings domain.GlobalSettings) error
}

// SettingsService holds the installation-wide settings. Readers get a copy
// that stays consistent for the whole notification.
type SettingsService struct {
	repo    SettingsRepository
	logger  *zap.Logger
	current atomic.Pointer[domain.GlobalSettings]
}

func NewSettingsService(repo SettingsRepository, seed domain.GlobalSettings, logger *zap.Logger) (*SettingsService, error) {
	if repo == nil {
		return nil, fmt.Errorf("settings repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &SettingsService{repo: repo, logger: logger}
	seed.ServerName = strings.TrimSpace(seed.ServerName)
	s.current.Store(&seed)
	return s, nil
}

// Load replaces the in-memory settings with the persisted ones, keeping the
// seed when nothing has been saved yet.
func (s *SettingsService) Load(ctx context.Context) error {
	stored, err := s.repo.Get(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Info("no persisted settings, using defaults",
			zap.String("server", s.Current().Server()),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	loaded := *stored
	s.current.Store(&loaded)
	return nil
}

func (s *SettingsService) Current() domain.GlobalSettings {
	if s == nil {
		return domain.GlobalSettings{}
	}
	current := s.current.Load()
	if current == nil {
		return domain.GlobalSettings{}
	}
	return *current
}

// Configure validates and persists settings; the new value is visible to the
// next notification only after it is saved.
func (s *SettingsService) Configure(ctx context.Context, settings domain.GlobalSettings) (domain.GlobalSettings, error) {
	settings.ServerName = strings.TrimSpace(settings.ServerName)
	if err := settings.Validate(); err != nil {
		return domain.GlobalSettings{}, err
	}

	if err := s.repo.Save(ctx, settings); err != nil {
		return domain.GlobalSettings{}, fmt.Errorf("failed to save settings: %w", err)
	}

	s.current.Store(&settings)
	s.logger.Info("global settings updated", zap.String("server", settings.Server()))
	return settings, nil
}
