package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// MagicLinkTTL is how long an emailed sign-in link stays valid.
const MagicLinkTTL = 15 * time.Minute

const magicLinkPrefix = "magiclink:"

// MagicLinks stores one-time sign-in tokens in Redis.
type MagicLinks struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewMagicLinks creates a token store.
func NewMagicLinks(rdb redis.Cmdable) *MagicLinks {
	return &MagicLinks{rdb: rdb, ttl: MagicLinkTTL}
}

// TTL is the token lifetime.
func (m *MagicLinks) TTL() time.Duration {
	return m.ttl
}

// Issue creates a token for userID.
func (m *MagicLinks) Issue(ctx context.Context, userID uuid.UUID) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	if err := m.rdb.Set(ctx, magicLinkPrefix+token, userID.String(), m.ttl).Err(); err != nil {
		return "", fmt.Errorf("store magic link: %w", err)
	}
	return token, nil
}

// Consume returns the user the token was issued for and deletes it, so a link works once.
func (m *MagicLinks) Consume(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, ErrInvalidToken
	}
	val, err := m.rdb.GetDel(ctx, magicLinkPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrInvalidToken
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("consume magic link: %w", err)
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}
