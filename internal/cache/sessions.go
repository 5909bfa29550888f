package cache

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sessionKeyPrefix = "refreshToken:"

// SessionKey — ключ живой сессии пользователя.
func SessionKey(principalID uuid.UUID) string {
	return sessionKeyPrefix + principalID.String()
}

// Sessions хранит последний выданный refresh-токен пользователя.
// Одна запись на пользователя: новый вход перезаписывает предыдущую сессию.
type Sessions struct {
	kv  KV
	ttl time.Duration
}

// NewSessions создаёт кэш сессий с TTL записи.
func NewSessions(kv KV, ttl time.Duration) *Sessions {
	return &Sessions{kv: kv, ttl: ttl}
}

// Record сохраняет refresh-токен как текущую сессию пользователя.
func (s *Sessions) Record(ctx context.Context, principalID uuid.UUID, refreshToken string) error {
	const op = "cache.sessions.Record"

	if err := s.kv.Set(ctx, SessionKey(principalID), []byte(refreshToken), s.ttl); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Live сообщает, что сессия существует и хранит именно этот токен.
func (s *Sessions) Live(ctx context.Context, principalID uuid.UUID, refreshToken string) (bool, error) {
	const op = "cache.sessions.Live"

	stored, ok, err := s.kv.Get(ctx, SessionKey(principalID))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if !ok || refreshToken == "" {
		return false, nil
	}

	return subtle.ConstantTimeCompare(stored, []byte(refreshToken)) == 1, nil
}

// Exists сообщает только о наличии сессии, не сверяя токен.
func (s *Sessions) Exists(ctx context.Context, principalID uuid.UUID) (bool, error) {
	const op = "cache.sessions.Exists"

	_, ok, err := s.kv.Get(ctx, SessionKey(principalID))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}

// Revoke удаляет сессию. Идемпотентен.
func (s *Sessions) Revoke(ctx context.Context, principalID uuid.UUID) error {
	const op = "cache.sessions.Revoke"

	if err := s.kv.Del(ctx, SessionKey(principalID)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
