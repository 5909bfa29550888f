// service содержит бизнес-логику todo-service:
// регистрацию и вход, выпуск/проверку токенов, сессии в Redis,
// чтение списков задач через кэш и мутации с инвалидацией кэша.
//
// Service не хранит состояние запроса и безопасен для конкурентного
// использования при условии, что хранилище и кэш потокобезопасны.
// Ошибки возвращаются как обёртки над переменными ниже и маппятся
// транспортом на HTTP-статусы.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pribylovaa/go-todo-service/internal/cache"
	"github.com/pribylovaa/go-todo-service/internal/config"
	"github.com/pribylovaa/go-todo-service/internal/storage"
	"github.com/pribylovaa/go-todo-service/internal/token"
)

var (
	// ErrInvalidArgument — неверные входные параметры (HTTP 400).
	// Подробности по полям — в *ValidationError.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidCredentials — неизвестный email или неверный пароль (HTTP 401).
	ErrInvalidCredentials = errors.New("wrong credentials")

	// ErrUnauthenticated — токен не передан или его субъект больше не существует (HTTP 401).
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrTokenExpired — access-токен с верной подписью, но истёкший.
	// Мидлвар авторизации переходит к обновлению по refresh-токену.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidToken — access-токен битый или подписан чужим секретом (HTTP 403).
	ErrInvalidToken = errors.New("invalid token")

	// ErrRefreshRejected — refresh-токен невалиден, истёк или сессия не живая (HTTP 403).
	ErrRefreshRejected = errors.New("refresh token invalid or expired")

	// ErrNotFound — задача отсутствует или принадлежит другому пользователю (HTTP 404).
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken — e-mail уже занят (HTTP 409).
	ErrEmailTaken = errors.New("email already taken")

	// ErrUnavailable — хранилище или кэш не ответили вовремя (HTTP 500).
	ErrUnavailable = errors.New("unavailable")

	// ErrInternal — прочие ошибки хранилища/кэша (HTTP 500).
	ErrInternal = errors.New("internal")
)

// FieldError — ошибка валидации одного поля.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError перечисляет невалидные поля; errors.Is(err, ErrInvalidArgument) == true.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}

	return ErrInvalidArgument.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// errOrNil возвращает e, если есть хотя бы одно поле.
func (e *ValidationError) errOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}

	return e
}

func invalidField(field, msg string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: msg}}}
}

// Service описывает бизнес-логику todo-service.
type Service struct {
	storage  storage.Storage
	tokens   *token.Codec
	sessions *cache.Sessions
	todos    *cache.Todos
	cfg      config.AuthConfig
}

// New создаёт новый экземпляр Service.
func New(st storage.Storage, tokens *token.Codec, sessions *cache.Sessions, todos *cache.Todos, cfg config.AuthConfig) *Service {
	return &Service{
		storage:  st,
		tokens:   tokens,
		sessions: sessions,
		todos:    todos,
		cfg:      cfg,
	}
}

// strictRefresh — refresh-токен должен совпадать с записью сессии.
func (s *Service) strictRefresh() bool {
	return s.cfg.RefreshPolicy != config.RefreshPolicyLegacy
}

// backendErr сводит ошибку хранилища/кэша к ErrUnavailable или ErrInternal.
func backendErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrUnavailable
	}

	return ErrInternal
}

// wrapBackend оборачивает ошибку бэкенда, сохраняя исходную цепочку для логов.
func wrapBackend(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, backendErr(err), err)
}
