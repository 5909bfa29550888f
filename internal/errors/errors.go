// errors стандартизирует ответы об ошибках HTTP-слоя todo-service.
// На вход принимает ошибку сервисного слоя, на выход даёт:
//   - HTTP-статус;
//   - стабильный машиночитаемый code и безопасное message без утечки деталей;
//   - при ошибке валидации — список полей в details.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pribylovaa/go-todo-service/internal/service"
)

// Коды ошибок в ответе.
const (
	CodeInvalidArgument = "invalid_argument"
	CodeUnauthenticated = "unauthenticated"
	CodeTokenRejected   = "token_rejected"
	CodeNotFound        = "not_found"
	CodeAlreadyExists   = "already_exists"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"
)

// APIError — единый формат для фронта.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id (для трассировки).
// Details — поля, не прошедшие валидацию (только для invalid_argument).
type APIError struct {
	Code      string               `json:"code"`
	Message   string               `json:"message"`
	RequestID string               `json:"request_id,omitempty"`
	Details   []service.FieldError `json:"details,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует ошибку сервисного слоя в HTTP-статус и ответ.
//
// Таблица:
//   - ErrInvalidArgument (*ValidationError) -> 400 invalid_argument (+details)
//   - ErrInvalidCredentials, ErrUnauthenticated, ErrTokenExpired -> 401 unauthenticated
//   - ErrInvalidToken, ErrRefreshRejected -> 403 token_rejected
//   - ErrNotFound -> 404 not_found
//   - ErrEmailTaken -> 409 already_exists
//   - ErrUnavailable -> 500 unavailable
//   - прочее (и err == nil) -> 500 internal
func ToHTTP(err error) (int, ErrorResponse) {
	if err == nil {
		return internal()
	}

	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrorResponse{Error: APIError{
			Code:    CodeInvalidArgument,
			Message: "invalid argument",
			Details: verr.Fields,
		}}
	case errors.Is(err, service.ErrInvalidArgument):
		return resp(http.StatusBadRequest, CodeInvalidArgument, "invalid argument")
	case errors.Is(err, service.ErrInvalidCredentials):
		return resp(http.StatusUnauthorized, CodeUnauthenticated, service.ErrInvalidCredentials.Error())
	case errors.Is(err, service.ErrUnauthenticated):
		return resp(http.StatusUnauthorized, CodeUnauthenticated, "unauthenticated")
	case errors.Is(err, service.ErrTokenExpired):
		return resp(http.StatusUnauthorized, CodeUnauthenticated, service.ErrTokenExpired.Error())
	case errors.Is(err, service.ErrInvalidToken):
		return resp(http.StatusForbidden, CodeTokenRejected, service.ErrInvalidToken.Error())
	case errors.Is(err, service.ErrRefreshRejected):
		return resp(http.StatusForbidden, CodeTokenRejected, service.ErrRefreshRejected.Error())
	case errors.Is(err, service.ErrNotFound):
		return resp(http.StatusNotFound, CodeNotFound, "not found")
	case errors.Is(err, service.ErrEmailTaken):
		return resp(http.StatusConflict, CodeAlreadyExists, service.ErrEmailTaken.Error())
	case errors.Is(err, service.ErrUnavailable):
		return resp(http.StatusInternalServerError, CodeUnavailable, "service unavailable")
	default:
		return internal()
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет статус/тело и добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := ToHTTP(err)
	write(w, r, status, body)
}

// WriteStatus пишет ошибку с явно заданными статусом, кодом и сообщением.
func WriteStatus(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	write(w, r, status, ErrorResponse{Error: APIError{Code: code, Message: message}})
}

func write(w http.ResponseWriter, r *http.Request, status int, body ErrorResponse) {
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		body.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func resp(status int, code, msg string) (int, ErrorResponse) {
	return status, ErrorResponse{Error: APIError{Code: code, Message: msg}}
}

func internal() (int, ErrorResponse) {
	return resp(http.StatusInternalServerError, CodeInternal, "internal error")
}
