package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"terralens/internal/docstore"
	settings "terralens/internal/settings/domain"
)

// Service reads and saves the system settings document.
type Service struct {
	store  docstore.Store
	logger *zap.Logger
}

// NewService constructs a settings service.
func NewService(store docstore.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("settings: nil store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger.Named("settings")}, nil
}

// Get returns the stored settings merged over the defaults.
func (s *Service) Get(ctx context.Context) (settings.SystemSettings, error) {
	current := settings.Defaults()
	doc, err := s.store.Get(ctx, settings.Collection, settings.DocumentID)
	if errors.Is(err, docstore.ErrNotFound) {
		return current, nil
	}
	if err != nil {
		return settings.SystemSettings{}, fmt.Errorf("settings: load: %w", err)
	}
	if err := json.Unmarshal(doc.Data, &current); err != nil {
		s.logger.Warn("stored settings undecodable, using defaults", zap.Error(err))
		return settings.Defaults(), nil
	}
	return current, nil
}

// Save validates and replaces the settings document.
func (s *Service) Save(ctx context.Context, value settings.SystemSettings) error {
	if err := value.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if err := s.store.Set(ctx, settings.Collection, settings.DocumentID, data); err != nil {
		s.logger.Error("save settings failed", zap.Error(err))
		return fmt.Errorf("settings: save: %w", err)
	}
	return nil
}

// NotificationsEnabled reports whether anomaly notifications should be sent.
// Settings that cannot be loaded fall back to the defaults.
func (s *Service) NotificationsEnabled(ctx context.Context) bool {
	current, err := s.Get(ctx)
	if err != nil {
		s.logger.Warn("settings unavailable, using defaults", zap.Error(err))
		return settings.Defaults().Notifications.Enabled
	}
	return current.Notifications.Enabled
}

// DefaultReportFormat returns the configured format for report requests that omit one.
func (s *Service) DefaultReportFormat(ctx context.Context) string {
	current, err := s.Get(ctx)
	if err != nil {
		s.logger.Warn("settings unavailable, using defaults", zap.Error(err))
		return settings.Defaults().Analytics.DefaultReportFormat
	}
	return current.Analytics.DefaultReportFormat
}

// NotificationEmail returns the address named in anomaly notifications.
func (s *Service) NotificationEmail(ctx context.Context) string {
	current, err := s.Get(ctx)
	if err != nil {
		s.logger.Warn("settings unavailable, using defaults", zap.Error(err))
		return settings.Defaults().Notifications.Email
	}
	return current.Notifications.Email
}
