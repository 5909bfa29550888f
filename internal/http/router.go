package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-todo-service/internal/http/handlers"
	"github.com/pribylovaa/go-todo-service/internal/http/middleware"
)

// Service — всё, что нужно роутеру от сервисного слоя.
type Service interface {
	handlers.Service
	middleware.Authenticator
}

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой — роуты регистрируются на корне.
	// Cookie — атрибуты cookie refreshToken (Secure, срок жизни).
	Cookie handlers.CookieOptions
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc Service, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
		middleware.Metrics(),            // счётчики по шаблону маршрута
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	h := handlers.New(svc, opts.Cookie)
	authorize := middleware.Authorize(svc)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, authorize)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, authorize)
	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, authorize middleware.Middleware) {
	// auth
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh-token", h.RefreshToken)

	r.Group(func(r chi.Router) {
		r.Use(authorize)

		r.Post("/auth/logout", h.Logout)
		r.Get("/auth/user", h.CurrentUser)

		// todos
		r.Get("/todos", h.ListTodos)
		r.Post("/todos", h.CreateTodo)
		r.Delete("/todos", h.DeleteAllTodos)
		r.Get("/todos/{id}", h.GetTodo)
		r.Put("/todos/{id}", h.UpdateTodo)
		r.Patch("/todos/{id}", h.ToggleTodo)
		r.Delete("/todos/{id}", h.DeleteTodo)
	})
}
