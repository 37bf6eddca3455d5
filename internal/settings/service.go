// Package settings serves the site-wide configuration singleton.
package settings

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seminar-hub/backend/internal/apperr"
	"github.com/seminar-hub/backend/internal/models"
	"github.com/seminar-hub/backend/pkg/validator"
)

// cacheTTL bounds how stale a cached read may be on other instances.
const cacheTTL = 30 * time.Second

// Store persists the singleton.
type Store interface {
	Get(ctx context.Context, defaults models.Settings) (*models.Settings, error)
	Save(ctx context.Context, s *models.Settings) (*models.Settings, error)
}

// Patch is a partial settings update.
type Patch struct {
	SiteName              *string `json:"site_name" validate:"omitempty,min=2,max=200"`
	SiteDescription       *string `json:"site_description" validate:"omitempty,max=2000"`
	ContactEmail          *string `json:"contact_email" validate:"omitempty,email"`
	SubmissionsOpen       *bool   `json:"submissions_open"`
	MaxSubmissionsPerWeek *int    `json:"max_submissions_per_week" validate:"omitempty,gte=0,max=10000"`
}

// Service reads and updates settings. Reads are cached briefly since every submission consults them.
type Service struct {
	store    Store
	defaults models.Settings
	logger   *zap.Logger

	mu       sync.Mutex
	cached   *models.Settings
	cachedAt time.Time
	now      func() time.Time
}

// NewService creates a settings service. defaults seed the row when it does not exist yet.
func NewService(store Store, defaults models.Settings, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, defaults: defaults, logger: logger, now: time.Now}
}

// Get returns the current settings.
func (s *Service) Get(ctx context.Context) (*models.Settings, error) {
	s.mu.Lock()
	if s.cached != nil && s.now().Sub(s.cachedAt) < cacheTTL {
		cp := *s.cached
		s.mu.Unlock()
		return &cp, nil
	}
	s.mu.Unlock()

	st, err := s.store.Get(ctx, s.defaults)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	s.remember(st)
	cp := *st
	return &cp, nil
}

// Update applies p and returns the saved settings.
func (s *Service) Update(ctx context.Context, p Patch) (*models.Settings, error) {
	if p.SiteName != nil {
		v := strings.TrimSpace(*p.SiteName)
		p.SiteName = &v
	}
	if p.ContactEmail != nil {
		v := strings.ToLower(strings.TrimSpace(*p.ContactEmail))
		p.ContactEmail = &v
	}
	if err := validator.Struct(ctx, "invalid settings", p); err != nil {
		return nil, err
	}
	if p.SiteName != nil && *p.SiteName == "" {
		return nil, apperr.Validation("invalid settings", apperr.Issue{Field: "site_name", Message: "is required"})
	}

	cur, err := s.store.Get(ctx, s.defaults)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if p.SiteName != nil {
		cur.SiteName = *p.SiteName
	}
	if p.SiteDescription != nil {
		cur.SiteDescription = strings.TrimSpace(*p.SiteDescription)
	}
	if p.ContactEmail != nil {
		cur.ContactEmail = *p.ContactEmail
	}
	if p.SubmissionsOpen != nil {
		cur.SubmissionsOpen = *p.SubmissionsOpen
	}
	if p.MaxSubmissionsPerWeek != nil {
		cur.MaxSubmissionsPerWeek = *p.MaxSubmissionsPerWeek
	}

	saved, err := s.store.Save(ctx, cur)
	if err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	s.remember(saved)
	s.logger.Info("settings updated",
		zap.Bool("submissions_open", saved.SubmissionsOpen),
		zap.Int("max_submissions_per_week", saved.MaxSubmissionsPerWeek),
	)
	cp := *saved
	return &cp, nil
}

func (s *Service) remember(st *models.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.cached = &cp
	s.cachedAt = s.now()
}
