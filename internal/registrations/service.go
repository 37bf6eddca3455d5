// Package registrations keeps the attendee list that seminar announcements go to.
package registrations

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/seminar-hub/backend/internal/models"
	"github.com/seminar-hub/backend/pkg/validator"
)

// Store persists registrations.
type Store interface {
	Upsert(ctx context.Context, reg *models.Registration) error
	List(ctx context.Context) ([]*models.Registration, error)
}

// RegisterInput is the public registration form.
type RegisterInput struct {
	Name        string   `json:"name" validate:"required,min=2,max=200"`
	Email       string   `json:"email" validate:"required,email"`
	Affiliation string   `json:"affiliation" validate:"max=300"`
	Interests   string   `json:"interests" validate:"max=2000"`
	Sections    []string `json:"sections" validate:"max=20,dive,section"`
}

// Service implements registration operations.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a registrations service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// NormalizeSections lower-cases, trims and de-duplicates section tags, dropping blanks.
func NormalizeSections(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = models.NormalizeSection(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Register adds an attendee, or updates the existing registration for the same email.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.Registration, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Affiliation = strings.TrimSpace(in.Affiliation)
	in.Interests = strings.TrimSpace(in.Interests)
	in.Sections = NormalizeSections(in.Sections)
	if err := validator.Struct(ctx, "invalid registration", in); err != nil {
		return nil, err
	}
	reg := &models.Registration{
		Name:        in.Name,
		Email:       in.Email,
		Affiliation: in.Affiliation,
		Interests:   in.Interests,
		Sections:    in.Sections,
	}
	if err := s.store.Upsert(ctx, reg); err != nil {
		return nil, fmt.Errorf("save registration: %w", err)
	}
	s.logger.Info("registration saved", zap.String("registration_id", reg.ID.String()), zap.Strings("sections", reg.Sections))
	return reg, nil
}

// List returns every registration.
func (s *Service) List(ctx context.Context) ([]*models.Registration, error) {
	return s.store.List(ctx)
}
