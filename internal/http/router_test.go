package http

// Сценарные тесты REST-слоя: настоящий роутер, сервис, Codec и кэш поверх
// miniredis, in-memory хранилище и управляемые часы токенов.

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-todo-service/internal/cache"
	"github.com/pribylovaa/go-todo-service/internal/config"
	"github.com/pribylovaa/go-todo-service/internal/http/handlers"
	"github.com/pribylovaa/go-todo-service/internal/models"
	"github.com/pribylovaa/go-todo-service/internal/service"
	"github.com/pribylovaa/go-todo-service/internal/token"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type scenario struct {
	t   *testing.T
	h   http.Handler
	st  *memStorage
	mr  *miniredis.Miniredis
	clk *clock
}

func newScenario(t *testing.T, policy string) *scenario {
	t.Helper()

	cfg := config.AuthConfig{
		AccessSecret:    "router-test-access-secret",
		RefreshSecret:   "router-test-refresh-secret",
		AccessTokenTTL:  60 * time.Second,
		RefreshTokenTTL: 12 * time.Hour,
		SessionTTL:      24 * time.Hour,
		Issuer:          "todo-service",
		RefreshPolicy:   policy,
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	kv := cache.NewRedisFromClient(rdb)

	clk := &clock{t: time.Now().UTC().Truncate(time.Second)}
	codec, err := token.New(token.Params{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Issuer:        cfg.Issuer,
		Now:           clk.Now,
	})
	require.NoError(t, err)

	st := newMemStorage()
	svc := service.New(st, codec, cache.NewSessions(kv, cfg.SessionTTL), cache.NewTodos(kv, time.Hour), cfg)

	h := NewRouter(svc, Options{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Timeout:  5 * time.Second,
		BasePath: "/api",
		Cookie:   handlers.CookieOptions{Secure: true, MaxAge: cfg.RefreshTokenTTL},
	})

	return &scenario{t: t, h: h, st: st, mr: mr, clk: clk}
}

type reqOpt func(r *http.Request)

func bearer(tok string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func header(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func (s *scenario) do(method, path, body string, opts ...reqOpt) *httptest.ResponseRecorder {
	s.t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(req)
	}

	rr := httptest.NewRecorder()
	s.h.ServeHTTP(rr, req)
	return rr
}

type loginOut struct {
	ID           uuid.UUID `json:"id"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
}

type errOut struct {
	Error struct {
		Code      string               `json:"code"`
		Message   string               `json:"message"`
		RequestID string               `json:"request_id"`
		Details   []service.FieldError `json:"details"`
	} `json:"error"`
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

// signup регистрирует пользователя и входит им.
func (s *scenario) signup(email string) loginOut {
	s.t.Helper()

	rr := s.do(http.MethodPost, "/api/auth/register",
		`{"username":"john","email":"`+email+`","password":"secret-pass"}`)
	require.Equal(s.t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = s.do(http.MethodPost, "/api/auth/login", `{"email":"`+email+`","password":"secret-pass"}`)
	require.Equal(s.t, http.StatusOK, rr.Code, rr.Body.String())

	return decode[loginOut](s.t, rr)
}

func TestScenario_LoginListCreateList(t *testing.T) {
	s := newScenario(t, config.RefreshPolicyStrict)
	u := s.signup("john@example.com")

	cacheKey := cache.TodosKey(u.ID)

	rr := s.do(http.MethodGet, "/api/todos", "", bearer(u.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `[]`, rr.Body.String())
	require.True(t, s.mr.Exists(cacheKey), "list must populate the cache")

	rr = s.do(http.MethodPost, "/api/todos", `{"task":"buy milk"}`, bearer(u.AccessToken))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[models.Todo](t, rr)
	require.Equal(t, "buy milk", created.Task)
	require.False(t, created.Completed)
	require.Equal(t, u.ID, created.OwnerID)
	require.False(t, s.mr.Exists(cacheKey), "create must invalidate the cache")

	rr = s.do(http.MethodGet, "/api/todos", "", bearer(u.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[[]models.Todo](t, rr)
	require.Len(t, list, 1)
	require.Equal(t, created.ID, list[0].ID)

	// Повторное чтение идёт из кэша и совпадает.
	rr = s.do(http.MethodGet, "/api/todos", "", bearer(u.AccessToken))
	require.Equal(t, list, decode[[]models.Todo](t, rr))
}

func TestScenario_TodoLifecycle(t *testing.T) {
	s := newScenario(t, config.RefreshPolicyStrict)
	u := s.signup("john@example.com")
	auth := bearer(u.AccessToken)

	created := decode[models.Todo](t, s.do(http.MethodPost, "/api/todos", `{"task":"a"}`, auth))
	path := "/api/todos/" + created.ID

	rr := s.do(http.MethodPut, path, `{"task":"b","completed":true}`, auth)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	got := decode[models.Todo](t, rr)
	require.Equal(t, "b", got.Task)
	require.True(t, got.Completed)

	// PATCH без тела переключает.
	rr = s.do(http.MethodPatch, path, "", auth)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.False(t, decode[models.Todo](t, rr).Completed)

	rr = s.do(http.MethodPatch, path, `{"completed":true}`, auth)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, decode[models.Todo](t, rr).Completed)

	rr = s.do(http.MethodGet, path, "", auth)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "b", decode[models.Todo](t, rr).Task)

	rr = s.do(http.MethodDelete, path, "", auth)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(http.MethodGet, path, "", auth)
	require.Equal(t, http.StatusNotFound, rr.Code)

	for _, task := range []string{"x", "y"} {
		require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/todos", `{"task":"`+task+`"}`, auth).Code)
	}
	rr = s.do(http.MethodDelete, "/api/todos", "", auth)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"deleted":2}`, rr.Body.String())
}

func TestScenario_ForeignTodoIsNotFound(t *testing.T) {
	s := newScenario(t, config.RefreshPolicyStrict)
	alice := s.signup("alice@example.com")
	bob := s.signup("bob@example.com")

	created := decode[models.Todo](t, s.do(http.MethodPost, "/api/todos", `{"task":"secret"}`, bearer(alice.AccessToken)))
	path := "/api/todos/" + created.ID

	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		t.Run(m, func(t *testing.T) {
			body := ""
			if m == http.MethodPut {
				body = `{"task":"stolen"}`
			}

			rr := s.do(m, path, body, bearer(bob.AccessToken))
			require.Equal(t, http.StatusNotFound, rr.Code)
			require.Equal(t, "not_found", decode[errOut](t, rr).Error.Code)
		})
	}

	rr := s.do(http.MethodGet, path, "", bearer(alice.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "secret", decode[models.Todo](t, rr).Task)
}

func TestScenario_MalformedIDAndEmptyTask_400(t *testing.T) {
	s := newScenario(t, config.RefreshPolicyStrict)
	u := s.signup("john@example.com")

	rr := s.do(http.MethodGet, "/api/todos/not-an-id", "", bearer(u.AccessToken))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	e := decode[errOut](t, rr)
	require.Equal(t, "invalid_argument", e.Error.Code)
	require.Equal(t, "id", e.Error.Details[0].Field)

	rr = s.do(http.MethodPost, "/api/todos", `{"task":"   "}`, bearer(u.AccessToken))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "task", decode[errOut](t, rr).Error.Details[0].Field)

	rr = s.do(http.MethodPost, "/api/todos", `{"task":"a","owner":"x"}`, bearer(u.AccessToken))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "body", decode[errOut](t, rr).Error.Details[0].Field)
}

func TestScenario_ExpiredAccess_SilentRefresh(t *testing.T) {
	s := newScenario(t, config.RefreshPolicyStrict)
	u := s.signup("john@example.com")

	s.clk.Advance(61 * time.Second)

	// Без refresh-токена — 401.
	rr := s.do(http.MethodGet, "/api/todos", "", bearer(u.AccessToken))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	// refreshToken в теле: запрос проходит, новый access-токен в заголовках.
	rr = s.do(http.MethodPost, "/api/todos",
		`{"task":"after refresh","refreshToken":"`+u.RefreshToken+`"}`, bearer(u.AccessToken))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	fresh := rr.Header().Get("X-Access-Token")
	require.NotEmpty(t, fresh)
	require.NotEqual(t, u.AccessToken, fresh)
	require.Equal(t, "Bearer "+fresh, rr.Header().Get("Authorization"))
	require.Equal(t, "after refresh", decode[models.Todo](t, rr).Task)

	// Новый токен работает без refresh.
	rr = s.do(http.MethodGet, "/api/todos", "", bearer(fresh))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, rr.Header().Get("X-Access-Token"))

	// refresh-токен в заголовке тоже подходит.
	rr = s.do(http.MethodGet, "/api/auth/user", "", bearer(u.AccessToken), header("X-Refresh-Token", u.RefreshToken))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, u.ID, decode[models.Principal](t, rr).ID)
}

func TestScenario_ExpiredRefresh_403(t *testing.T) {
	s := newScenario(t, config.RefreshPolicyStrict)
	u := s.signup("john@example.com")

	s.clk.Advance(12*time.Hour + time.Second)

	rr := s.do(http.MethodGet, "/api/todos", "", bearer(u.AccessToken), header("X-Refresh-Token", u.RefreshToken))
	require.Equal(t, http.StatusForbidden, rr.Code)
	e := decode[errOut](t, rr)
	require.Equal(t, "token_rejected", e.Error.Code)
	require.Equal(t, "refresh token invalid or expired", e.Error.Message)
}

func TestScenario_LogoutRevokesRefresh(t *testing.T) {
	s := newScenario(t, config.RefreshPolicyStrict)
	u := s.signup("john@example.com")

	rr := s.do(http.MethodPost, "/api/auth/logout", "", bearer(u.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code)
	require.False(t, s.mr.Exists(cache.SessionKey(u.ID)))

	// Refresh-эндпойнт отказывает.
	rr = s.do(http.MethodPost, "/api/auth/refresh-token", `{"refreshToken":"`+u.RefreshToken+`"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "invalid token", decode[errOut](t, rr).Error.Message)

	// И тихое обновление тоже.
	s.clk.Advance(61 * time.Second)
	rr = s.do(http.MethodGet, "/api/todos", "", bearer(u.AccessToken), header("X-Refresh-Token", u.RefreshToken))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func refreshCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, c := range rr.Result().Cookies() {
		if c.Name == "refreshToken" {
			return c
		}
	}
	t.Fatalf("refreshToken cookie not set")
	return nil
}

func TestScenario_RefreshCookieAttributes(t *testing.T) {
	s := newScenario(t, config.RefreshPolicyStrict)

	rr := s.do(http.MethodPost, "/api/auth/register",
		`{"username":"john","email":"john@example.com","password":"secret-pass"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = s.do(http.MethodPost, "/api/auth/login", `{"email":"john@example.com","password":"secret-pass"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	u := decode[loginOut](t, rr)

	c := refreshCookie(t, rr)
	require.Equal(t, u.RefreshToken, c.Value)
	require.Equal(t, "/", c.Path)
	require.True(t, c.Secure)
	require.True(t, c.HttpOnly)
	require.Equal(t, http.SameSiteStrictMode, c.SameSite)
	require.Equal(t, int((12 * time.Hour).Seconds()), c.MaxAge)

	rr = s.do(http.MethodPost, "/api/auth/logout", "", bearer(u.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code)

	c = refreshCookie(t, rr)
	require.Empty(t, c.Value)
	require.Negative(t, c.MaxAge)
	require.True(t, c.Secure)
}

func TestScenario_LegacyPolicy_ExistenceOnly(t *testing.T) {
	s := newScenario(t, config.RefreshPolicyLegacy)
	first := s.signup("john@example.com")

	s.clk.Advance(time.Second)
	rr := s.do(http.MethodPost, "/api/auth/login", `{"email":"john@example.com","password":"secret-pass"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	second := decode[loginOut](t, rr)

	// Запись сессии есть, значение не сверяется: старый токен принимается.
	rr = s.do(http.MethodPost, "/api/auth/refresh-token", `{"token":"`+first.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/auth/logout", "", bearer(second.AccessToken)).Code)

	rr = s.do(http.MethodPost, "/api/auth/refresh-token", `{"token":"`+first.RefreshToken+`"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestScenario_RefreshEndpoint(t *testing.T) {
	s := newScenario(t, config.RefreshPolicyStrict)
	u := s.signup("john@example.com")

	rr := s.do(http.MethodPost, "/api/auth/refresh-token", `{"refreshToken":"`+u.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decode[struct {
		AccessToken     string    `json:"accessToken"`
		AccessExpiresAt time.Time `json:"accessExpiresAt"`
	}](t, rr)
	require.NotEmpty(t, out.AccessToken)
	require.Equal(t, s.clk.Now().Add(60*time.Second).Unix(), out.AccessExpiresAt.Unix())

	// Старое имя поля.
	rr = s.do(http.MethodPost, "/api/auth/refresh-token", `{"token":"`+u.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	// Access-токен вместо refresh — 403.
	rr = s.do(http.MethodPost, "/api/auth/refresh-token", `{"refreshToken":"`+u.AccessToken+`"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(http.MethodPost, "/api/auth/refresh-token", `{}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestScenario_SecondLoginInvalidatesFirstRefresh(t *testing.T) {
	s := newScenario(t, config.RefreshPolicyStrict)
	first := s.signup("john@example.com")

	// Разные iat у токенов, чтобы не полагаться только на jti.
	s.clk.Advance(time.Second)
	rr := s.do(http.MethodPost, "/api/auth/login", `{"email":"john@example.com","password":"secret-pass"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	second := decode[loginOut](t, rr)

	rr = s.do(http.MethodPost, "/api/auth/refresh-token", `{"refreshToken":"`+first.RefreshToken+`"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(http.MethodPost, "/api/auth/refresh-token", `{"refreshToken":"`+second.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestScenario_AuthErrors(t *testing.T) {
	s := newScenario(t, config.RefreshPolicyStrict)
	u := s.signup("john@example.com")

	t.Run("no_token", func(t *testing.T) {
		rr := s.do(http.MethodGet, "/api/todos", "")
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		require.NotEmpty(t, decode[errOut](t, rr).Error.RequestID)
	})

	t.Run("garbage_token", func(t *testing.T) {
		rr := s.do(http.MethodGet, "/api/todos", "", bearer("garbage"))
		require.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("refresh_as_access", func(t *testing.T) {
		rr := s.do(http.MethodGet, "/api/todos", "", bearer(u.RefreshToken))
		require.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("wrong_password_and_unknown_email_look_the_same", func(t *testing.T) {
		a := s.do(http.MethodPost, "/api/auth/login", `{"email":"john@example.com","password":"nope"}`)
		b := s.do(http.MethodPost, "/api/auth/login", `{"email":"ghost@example.com","password":"nope"}`)
		require.Equal(t, http.StatusUnauthorized, a.Code)
		require.Equal(t, a.Code, b.Code)
		require.Equal(t, decode[errOut](t, a).Error.Message, decode[errOut](t, b).Error.Message)
	})

	t.Run("duplicate_email", func(t *testing.T) {
		rr := s.do(http.MethodPost, "/api/auth/register",
			`{"username":"other","email":"JOHN@example.com","password":"x"}`)
		require.Equal(t, http.StatusConflict, rr.Code)
		require.Equal(t, "already_exists", decode[errOut](t, rr).Error.Code)
	})

	t.Run("register_validation", func(t *testing.T) {
		rr := s.do(http.MethodPost, "/api/auth/register", `{"username":"","email":"bad","password":""}`)
		require.Equal(t, http.StatusBadRequest, rr.Code)
		require.Len(t, decode[errOut](t, rr).Error.Details, 3)
	})

	t.Run("deleted_user", func(t *testing.T) {
		other := s.signup("gone@example.com")
		s.st.deleteUser(other.ID)

		rr := s.do(http.MethodGet, "/api/auth/user", "", bearer(other.AccessToken))
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		require.Equal(t, "invalid token", decode[errOut](t, rr).Error.Message)
	})
}

func TestScenario_CacheOutage_StillServes(t *testing.T) {
	s := newScenario(t, config.RefreshPolicyStrict)
	u := s.signup("john@example.com")

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/todos", `{"task":"a"}`, bearer(u.AccessToken)).Code)

	s.mr.SetError("LOADING Redis is loading the dataset in memory")
	defer s.mr.SetError("")

	rr := s.do(http.MethodGet, "/api/todos", "", bearer(u.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decode[[]models.Todo](t, rr), 1)

	// Refresh под strict зависит от Redis: ошибка — 500, а не отказ в доступе.
	rr = s.do(http.MethodPost, "/api/auth/refresh-token", `{"refreshToken":"`+u.RefreshToken+`"}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestScenario_UnknownRoute_404(t *testing.T) {
	s := newScenario(t, config.RefreshPolicyStrict)

	rr := s.do(http.MethodGet, "/api/nope", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}
