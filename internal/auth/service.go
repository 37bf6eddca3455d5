package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seminar-hub/backend/internal/apperr"
	"github.com/seminar-hub/backend/internal/mailer"
	"github.com/seminar-hub/backend/internal/models"
	"github.com/seminar-hub/backend/pkg/utils"
)

// Keys under which Session middleware stores the caller's claims in the gin context.
const (
	ContextUserID    = "user_id"
	ContextUserRole  = "user_role"
	ContextUserEmail = "user_email"
)

// Store is the user persistence used by Service.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	EnsureUser(ctx context.Context, email, passwordHash, fullName string, role models.Role) (bool, error)
}

// TokenStore issues and consumes one-time sign-in tokens.
type TokenStore interface {
	Issue(ctx context.Context, userID uuid.UUID) (string, error)
	Consume(ctx context.Context, token string) (uuid.UUID, error)
	TTL() time.Duration
}

// Session is a signed-in admin: the token to put in the cookie and who it belongs to.
type Session struct {
	Token     string            `json:"-"`
	ExpiresAt time.Time         `json:"expires_at"`
	User      models.UserPublic `json:"user"`
}

// Config wires a Service.
type Config struct {
	Users    Store
	Tokens   TokenStore
	JWT      *JWTService
	Composer *mailer.Composer
	Notifier mailer.Notifier
	// VerifyURL is the absolute URL the emailed link points at; the token is appended as ?token=.
	VerifyURL string
	Logger    *zap.Logger
}

// Service handles admin sign-in.
type Service struct {
	users     Store
	tokens    TokenStore
	jwt       *JWTService
	composer  *mailer.Composer
	notifier  mailer.Notifier
	verifyURL string
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates an auth service.
func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		users:     cfg.Users,
		tokens:    cfg.Tokens,
		jwt:       cfg.JWT,
		composer:  cfg.Composer,
		notifier:  cfg.Notifier,
		verifyURL: cfg.VerifyURL,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Login checks admin credentials and opens a session.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("load user: %w", err)
		}
		utils.EqualizeTiming(password)
		return nil, apperr.Unauthorized("invalid email or password")
	}
	if !utils.CheckPassword(password, user.Password) {
		return nil, apperr.Unauthorized("invalid email or password")
	}
	return s.open(user)
}

// RequestMagicLink emails a one-time sign-in link when email belongs to an admin.
// Unknown addresses are silently ignored.
func (s *Service) RequestMagicLink(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.logger.Info("magic link requested for unknown email")
			return nil
		}
		return fmt.Errorf("load user: %w", err)
	}
	if user.Role != models.RoleAdmin {
		return nil
	}
	token, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return err
	}
	msg, err := s.composer.MagicLink(user.Email, s.link(token), s.tokens.TTL())
	if err != nil {
		return fmt.Errorf("compose magic link: %w", err)
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		return fmt.Errorf("enqueue magic link: %w", err)
	}
	return nil
}

func (s *Service) link(token string) string {
	return s.verifyURL + "?token=" + url.QueryEscape(token)
}

// VerifyMagicLink consumes token and opens a session for its user.
func (s *Service) VerifyMagicLink(ctx context.Context, token string) (*Session, error) {
	userID, err := s.tokens.Consume(ctx, token)
	if errors.Is(err, ErrInvalidToken) {
		return nil, apperr.Unauthorized("invalid or expired link")
	}
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Unauthorized("invalid or expired link")
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return s.open(user)
}

// Me returns the signed-in user.
func (s *Service) Me(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Unauthorized("session user no longer exists")
	}
	return user, err
}

// EnsureAdmin creates the bootstrap admin if no user with that email exists.
func (s *Service) EnsureAdmin(ctx context.Context, email, password, fullName string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		s.logger.Warn("no bootstrap admin configured")
		return nil
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	created, err := s.users.EnsureUser(ctx, email, hash, fullName, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	if created {
		s.logger.Info("bootstrap admin created", zap.String("email", email))
	}
	return nil
}

func (s *Service) open(user *models.User) (*Session, error) {
	token, err := s.jwt.Generate(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	return &Session{Token: token, ExpiresAt: s.now().Add(s.jwt.TTL()), User: user.ToPublic()}, nil
}
