// Пакет server — HTTP-сервер Admin Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vixio/admin-module/internal/api/handlers"
	"github.com/vixio/admin-module/internal/api/middleware"
	"github.com/vixio/admin-module/internal/api/openapi"
	"github.com/vixio/admin-module/internal/config"
	"github.com/vixio/admin-module/internal/domain/rbac"
	"github.com/vixio/admin-module/internal/guard"
	"github.com/vixio/admin-module/internal/ui/i18n"
	uihandlers "github.com/vixio/admin-module/internal/ui/handlers"
	uimiddleware "github.com/vixio/admin-module/internal/ui/middleware"
	"github.com/vixio/admin-module/internal/ui/static"
)

// APIComponents — зависимости JSON API /api/v1.
type APIComponents struct {
	Handler   *handlers.APIHandler
	JWTAuth   *middleware.JWTAuth
	Validator *openapi.Validator
}

// UIComponents — зависимости страниц админки /admin.
type UIComponents struct {
	AuthHandler    *uihandlers.AuthHandler
	Renderer       *uihandlers.Renderer
	ClientInstance *uimiddleware.ClientInstance
	Guard          *guard.Guard
}

// Server — HTTP-сервер Admin Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, api *APIComponents, ui *UIComponents) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, api, ui),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршрутизатор: health и metrics без аутентификации,
// JSON API под JWT, страницы админки под guard.
func NewRouter(logger *slog.Logger, api *APIComponents, ui *UIComponents) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.Metrics)
	router.Use(middleware.RequestLogger(logger))

	// Health и metrics проверяются Kubernetes напрямую, без API Gateway.
	router.Get("/health/live", api.Handler.HealthLive)
	router.Get("/health/ready", api.Handler.HealthReady)
	router.Get("/metrics", api.Handler.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(api.JWTAuth.Middleware())
		if api.Validator != nil {
			r.Use(api.Validator.Middleware())
		}

		r.Get("/auth/me", api.Handler.GetCurrentUser)
		r.Get("/navigation", api.Handler.GetNavigation)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(rbac.RoleAdmin))

			r.Get("/users", api.Handler.ListUsers)
			r.Get("/users/{id}", api.Handler.GetUser)
			r.Get("/users/{id}/roles", api.Handler.ListUserRoles)
			r.Put("/users/{id}/roles", api.Handler.SetUserRoles)
			r.Put("/users/{id}/roles/{role}", api.Handler.AssignUserRole)
			r.Delete("/users/{id}/roles/{role}", api.Handler.RevokeUserRole)
		})
	})

	if ui != nil {
		mountUI(router, ui)
	}

	return router
}

// mountUI регистрирует страницы админки.
func mountUI(router chi.Router, ui *UIComponents) {
	router.Route("/admin", func(r chi.Router) {
		// Статика без сессии клиента
		r.Handle("/static/*", static.Handler("/admin/static/"))

		r.Group(func(r chi.Router) {
			r.Use(i18n.Middleware())
			r.Use(ui.ClientInstance.Middleware())
			mountPages(r, ui)
		})
	})
}

// mountPages регистрирует вход, регистрацию и защищённые разделы.
func mountPages(r chi.Router, ui *UIComponents) {
	r.Get("/login", ui.AuthHandler.HandleLoginPage)
	r.Post("/login", ui.AuthHandler.HandleLogin)
	r.Get("/signup", ui.AuthHandler.HandleSignUpPage)
	r.Post("/signup", ui.AuthHandler.HandleSignUp)
	r.Post("/logout", ui.AuthHandler.HandleLogout)
	r.Post("/set-language", uihandlers.HandleSetLanguage)

	sections := []struct {
		path     string
		titleKey string
		role     rbac.Role
	}{
		{"/", "nav.dashboard", rbac.RoleViewer},
		{"/analytics", "nav.analytics", rbac.RoleViewer},
		{"/leads", "nav.leads", rbac.RoleEditor},
		{"/content", "nav.content", rbac.RoleEditor},
		{"/navigation", "nav.navigation", rbac.RoleEditor},
		{"/whatsapp", "nav.whatsapp", rbac.RoleEditor},
		{"/users", "nav.users", rbac.RoleAdmin},
	}
	for _, s := range sections {
		r.With(ui.Guard.Protect(s.role, nil)).Get(s.path, ui.Renderer.HandleSection(s.titleKey))
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
