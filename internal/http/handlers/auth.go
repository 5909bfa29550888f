package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/pribylovaa/go-todo-service/internal/errors"
	"github.com/pribylovaa/go-todo-service/internal/http/middleware"
	"github.com/pribylovaa/go-todo-service/internal/service"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	ID              uuid.UUID `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	AccessToken     string    `json:"accessToken"`
	RefreshToken    string    `json:"refreshToken"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
}

// refreshRequest принимает и старое имя поля token.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	Token        string `json:"token"`
}

type refreshResponse struct {
	AccessToken     string    `json:"accessToken"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
}

// withRefresh — тело запросов за Authorize: refreshToken читает мидлвар.
type withRefresh struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	p, err := h.svc.Register(r.Context(), in.Username, in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	sess, err := h.svc.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	http.SetCookie(w, h.refreshCookie(sess.Tokens.RefreshToken))

	writeJSON(w, http.StatusOK, loginResponse{
		ID:              sess.Principal.ID,
		Username:        sess.Principal.Username,
		Email:           sess.Principal.Email,
		AccessToken:     sess.Tokens.AccessToken,
		RefreshToken:    sess.Tokens.RefreshToken,
		AccessExpiresAt: sess.Tokens.AccessExpiresAt,
	})
}

// Logout работает за Authorize: истёкший access-токен с refresh-токеном тоже подходит.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrUnauthenticated)
		return
	}

	if err := h.svc.Logout(r.Context(), p.ID); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	http.SetCookie(w, h.refreshCookie(""))

	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (h *Handlers) CurrentUser(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrUnauthenticated)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// RefreshToken выдаёт новый access-токен. Любой отказ — 403 "invalid token"
// без уточнения причины; отсутствие токена — 401.
func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	tok := strings.TrimSpace(in.RefreshToken)
	if tok == "" {
		tok = strings.TrimSpace(in.Token)
	}
	if tok == "" {
		apierrors.WriteStatus(w, r, http.StatusUnauthorized, apierrors.CodeUnauthenticated, "not authorized")
		return
	}

	_, pair, err := h.svc.RefreshAccess(r.Context(), tok)
	if err != nil {
		if errors.Is(err, service.ErrRefreshRejected) || errors.Is(err, service.ErrUnauthenticated) {
			apierrors.WriteStatus(w, r, http.StatusForbidden, apierrors.CodeTokenRejected, "invalid token")
			return
		}

		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken:     pair.AccessToken,
		AccessExpiresAt: pair.AccessExpiresAt,
	})
}

// refreshCookie — cookie с refresh-токеном; пустое значение удаляет её.
func (h *Handlers) refreshCookie(value string) *http.Cookie {
	c := &http.Cookie{
		Name:     middleware.CookieRefreshToken,
		Value:    value,
		Path:     "/",
		Secure:   h.cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}

	switch {
	case value == "":
		c.MaxAge = -1
	case h.cookie.MaxAge > 0:
		c.MaxAge = int(h.cookie.MaxAge / time.Second)
	}

	return c
}
