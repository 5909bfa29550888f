package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	apierrors "github.com/pribylovaa/go-todo-service/internal/errors"
	"github.com/pribylovaa/go-todo-service/internal/models"
	logctx "github.com/pribylovaa/go-todo-service/internal/pkg/log"
	"github.com/pribylovaa/go-todo-service/internal/service"
)

// Заголовки и cookie, участвующие в авторизации.
const (
	HeaderAuthorization = "Authorization"
	HeaderAccessToken   = "X-Access-Token"
	HeaderRefreshToken  = "X-Refresh-Token"
	CookieRefreshToken  = "refreshToken"
)

// maxPeekBody — сколько байт тела читается в поисках refreshToken.
const maxPeekBody = 64 << 10

// Authenticator — часть сервиса, нужная мидлвару авторизации.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.Principal, error)
	RefreshAccess(ctx context.Context, refreshToken string) (*models.Principal, *models.TokenPair, error)
}

type principalKey struct{}

// WithPrincipal кладёт пользователя в контекст.
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom достаёт пользователя, положенного Authorize.
func PrincipalFrom(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*models.Principal)
	return p, ok && p != nil
}

// Authorize пускает запрос дальше только с действующим access-токеном.
//
// Переходы:
//   - нет Bearer-токена -> 401;
//   - токен валиден и пользователь существует -> хендлер;
//   - токен истёк -> попытка обновления по refresh-токену
//     (поле refreshToken в JSON-теле, затем X-Refresh-Token, затем cookie refreshToken);
//     refresh-токена нет -> 401, отказ -> 403, успех -> новый access-токен
//     в заголовках Authorization и X-Access-Token и хендлер;
//   - токен битый -> 403;
//   - сбой хранилища/кэша -> 500.
//
// После 401/403 хендлер не вызывается.
func Authorize(auth Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			access := bearerToken(r)
			if access == "" {
				apierrors.WriteStatus(w, r, http.StatusUnauthorized, apierrors.CodeUnauthenticated, "not authorized")
				return
			}

			p, err := auth.Authenticate(ctx, access)
			switch {
			case err == nil:
			case errors.Is(err, service.ErrTokenExpired):
				p = refresh(w, r, auth)
				if p == nil {
					return
				}
			case errors.Is(err, service.ErrUnauthenticated):
				logctx.From(ctx).Info("auth_rejected", "reason", "subject_not_found")
				apierrors.WriteStatus(w, r, http.StatusUnauthorized, apierrors.CodeUnauthenticated, "invalid token")
				return
			case errors.Is(err, service.ErrInvalidToken):
				logctx.From(ctx).Info("auth_rejected", "reason", "invalid_token")
				apierrors.WriteError(w, r, err)
				return
			default:
				logctx.From(ctx).Error("auth_failed", "err", err)
				apierrors.WriteError(w, r, err)
				return
			}

			ctx = enrichLogger(WithPrincipal(ctx, p), "user_id", p.ID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// refresh выполняет ветку обновления. nil означает, что ответ уже записан.
func refresh(w http.ResponseWriter, r *http.Request, auth Authenticator) *models.Principal {
	ctx := r.Context()

	tok := refreshToken(r)
	if tok == "" {
		logctx.From(ctx).Info("auth_rejected", "reason", "access_expired_no_refresh")
		apierrors.WriteStatus(w, r, http.StatusUnauthorized, apierrors.CodeUnauthenticated, "not authorized")
		return nil
	}

	p, pair, err := auth.RefreshAccess(ctx, tok)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrRefreshRejected):
		apierrors.WriteError(w, r, err)
		return nil
	case errors.Is(err, service.ErrUnauthenticated):
		apierrors.WriteStatus(w, r, http.StatusUnauthorized, apierrors.CodeUnauthenticated, "invalid token")
		return nil
	default:
		logctx.From(ctx).Error("auth_refresh_failed", "err", err)
		apierrors.WriteError(w, r, err)
		return nil
	}

	w.Header().Set(HeaderAuthorization, "Bearer "+pair.AccessToken)
	w.Header().Set(HeaderAccessToken, pair.AccessToken)
	logctx.From(ctx).Info("access_token_reissued", "user_id", p.ID.String())

	return p
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "

	h := r.Header.Get(HeaderAuthorization)
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}

	return strings.TrimSpace(h[len(prefix):])
}

// refreshToken ищет refresh-токен в теле, заголовке и cookie.
// Прочитанная часть тела возвращается в r.Body, хендлер видит его целиком.
func refreshToken(r *http.Request) string {
	if tok := peekBodyToken(r); tok != "" {
		return tok
	}

	if tok := strings.TrimSpace(r.Header.Get(HeaderRefreshToken)); tok != "" {
		return tok
	}

	if c, err := r.Cookie(CookieRefreshToken); err == nil {
		return strings.TrimSpace(c.Value)
	}

	return ""
}

func peekBodyToken(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return ""
	}

	head, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBody))
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(head), r.Body), Closer: r.Body}
	if err != nil {
		return ""
	}

	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if json.Unmarshal(head, &in) != nil {
		return ""
	}

	return strings.TrimSpace(in.RefreshToken)
}

type readCloser struct {
	io.Reader
	io.Closer
}
