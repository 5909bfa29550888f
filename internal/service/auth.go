package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-todo-service/internal/metrics"
	"github.com/pribylovaa/go-todo-service/internal/models"
	"github.com/pribylovaa/go-todo-service/internal/pkg/log"
	"github.com/pribylovaa/go-todo-service/internal/pkg/redact"
	"github.com/pribylovaa/go-todo-service/internal/storage"
	"github.com/pribylovaa/go-todo-service/internal/token"
	"golang.org/x/crypto/bcrypt"
)

const (
	// bcrypt учитывает только первые 72 байта пароля.
	maxPasswordBytes = 72
	maxUsernameRunes = 64
)

// dummyHash сравнивается при входе с неизвестным email,
// чтобы время ответа не выдавало существование аккаунта.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password"), bcrypt.DefaultCost)

// Register регистрирует нового пользователя и возвращает его публичное представление.
//
// Валидация: username непустой, email по RFC 5322, пароль 1..72 байта.
// Ошибки: *ValidationError (ErrInvalidArgument), ErrEmailTaken, ErrInternal/ErrUnavailable.
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.Principal, error) {
	const op = "service.auth.Register"

	username = strings.TrimSpace(username)
	normEmail, emailErr := validateEmail(email)

	verr := &ValidationError{}
	switch {
	case username == "":
		verr.add("username", "must not be empty")
	case len([]rune(username)) > maxUsernameRunes:
		verr.add("username", fmt.Sprintf("must be at most %d characters", maxUsernameRunes))
	}
	if emailErr != nil {
		verr.add("email", "must be a valid email address")
	}
	if msg := validatePassword(password); msg != "" {
		verr.add("password", msg)
	}
	if err := verr.errOrNil(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg := log.From(ctx).With("op", op, "email", redact.Email(normEmail))

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		lg.Error("password_hash_failed", "err", err)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        normEmail,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			lg.Info("register_email_taken")
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		lg.Error("save_user_failed", "err", err)
		return nil, wrapBackend(op, err)
	}

	lg.Info("user_registered", "user_id", user.ID.String())

	return user.Principal(), nil
}

// Login проверяет email+пароль, выпускает пару токенов и записывает сессию.
// Неизвестный email и неверный пароль неразличимы: оба дают ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*models.Session, error) {
	const op = "service.auth.Login"

	normEmail, err := validateEmail(email)
	if err != nil || password == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	lg := log.From(ctx).With("op", op, "email", redact.Email(normEmail))

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			lg.Info("login_failed")
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		lg.Error("user_lookup_failed", "err", err)
		return nil, wrapBackend(op, err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		lg.Info("login_failed", "user_id", user.ID.String())
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	access, accessExp, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		lg.Error("access_token_sign_failed", "err", err)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
	}

	refresh, _, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		lg.Error("refresh_token_sign_failed", "err", err)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
	}

	// Последний вход побеждает: прежний refresh-токен перестаёт быть живым.
	if err := s.sessions.Record(ctx, user.ID, refresh); err != nil {
		lg.Error("session_record_failed", "err", err)
		return nil, wrapBackend(op, err)
	}

	lg.Info("user_logged_in", "user_id", user.ID.String())

	return &models.Session{
		Principal: user.Principal(),
		Tokens: &models.TokenPair{
			AccessToken:     access,
			RefreshToken:    refresh,
			AccessExpiresAt: accessExp,
		},
	}, nil
}

// Logout удаляет сессию пользователя. Повторный вызов не ошибка.
func (s *Service) Logout(ctx context.Context, principalID uuid.UUID) error {
	const op = "service.auth.Logout"

	lg := log.From(ctx).With("op", op, "user_id", principalID.String())

	if err := s.sessions.Revoke(ctx, principalID); err != nil {
		lg.Error("session_revoke_failed", "err", err)
		return wrapBackend(op, err)
	}

	lg.Info("user_logged_out")

	return nil
}

// Authenticate проверяет access-токен и разрешает субъекта в пользователя.
//
// Ошибки: ErrUnauthenticated (пустой токен или пользователь удалён),
// ErrTokenExpired, ErrInvalidToken, ErrInternal/ErrUnavailable.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*models.Principal, error) {
	const op = "service.auth.Authenticate"

	if accessToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	claims, err := s.tokens.Verify(token.Access, accessToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	p, err := s.principal(ctx, op, claims.Subject)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// RefreshAccess выпускает новый access-токен по refresh-токену.
//
// Refresh-токен проверяется подписью и сроком, затем записью сессии:
// strict требует совпадения токена, legacy — лишь наличия записи.
// Любой отказ — ErrRefreshRejected.
// Пустой токен — ErrUnauthenticated. Сбой Redis/хранилища — ErrInternal/ErrUnavailable.
// Возвращённая пара содержит только access-часть.
func (s *Service) RefreshAccess(ctx context.Context, refreshToken string) (*models.Principal, *models.TokenPair, error) {
	const op = "service.auth.RefreshAccess"

	if refreshToken == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	lg := log.From(ctx).With("op", op)

	claims, err := s.tokens.Verify(token.Refresh, refreshToken)
	if err != nil {
		metrics.Refresh.WithLabelValues(metrics.RefreshRejected).Inc()
		lg.Info("refresh_rejected", "reason", reason(err))
		return nil, nil, fmt.Errorf("%s: %w", op, ErrRefreshRejected)
	}

	lg = lg.With("user_id", claims.Subject.String())

	live, err := s.sessionLive(ctx, claims.Subject, refreshToken)
	if err != nil {
		metrics.Refresh.WithLabelValues(metrics.RefreshError).Inc()
		lg.Error("session_lookup_failed", "err", err)
		return nil, nil, wrapBackend(op, err)
	}

	if !live {
		metrics.Refresh.WithLabelValues(metrics.RefreshRejected).Inc()
		lg.Info("refresh_rejected", "reason", "session_not_live")
		return nil, nil, fmt.Errorf("%s: %w", op, ErrRefreshRejected)
	}

	p, err := s.principal(ctx, op, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			metrics.Refresh.WithLabelValues(metrics.RefreshRejected).Inc()
		} else {
			metrics.Refresh.WithLabelValues(metrics.RefreshError).Inc()
		}

		return nil, nil, err
	}

	access, exp, err := s.tokens.IssueAccess(p.ID)
	if err != nil {
		metrics.Refresh.WithLabelValues(metrics.RefreshError).Inc()
		lg.Error("access_token_sign_failed", "err", err)
		return nil, nil, fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
	}

	metrics.Refresh.WithLabelValues(metrics.RefreshOK).Inc()
	lg.Debug("access_token_refreshed", "refresh_token", redact.Token(refreshToken))

	return p, &models.TokenPair{AccessToken: access, AccessExpiresAt: exp}, nil
}

// sessionLive проверяет запись сессии по политике refresh.
func (s *Service) sessionLive(ctx context.Context, id uuid.UUID, refreshToken string) (bool, error) {
	if s.strictRefresh() {
		return s.sessions.Live(ctx, id, refreshToken)
	}

	return s.sessions.Exists(ctx, id)
}

// principal загружает пользователя по субъекту токена.
// Отсутствующий пользователь — ErrUnauthenticated.
func (s *Service) principal(ctx context.Context, op string, id uuid.UUID) (*models.Principal, error) {
	user, err := s.storage.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.From(ctx).Info("token_subject_not_found", "op", op, "user_id", id.String())
			return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
		}

		log.From(ctx).Error("user_lookup_failed", "op", op, "user_id", id.String(), "err", err)
		return nil, wrapBackend(op, err)
	}

	return user.Principal(), nil
}

func reason(err error) string {
	if errors.Is(err, token.ErrExpired) {
		return "expired"
	}

	return "invalid"
}

// validateEmail проверяет формат email (без display name) и приводит к нижнему регистру.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	return strings.ToLower(email), nil
}

// validatePassword возвращает текст ошибки или пустую строку.
func validatePassword(pw string) string {
	switch {
	case len(pw) == 0:
		return "must not be empty"
	case len(pw) > maxPasswordBytes:
		return fmt.Sprintf("must be at most %d bytes", maxPasswordBytes)
	default:
		return ""
	}
}
