package guard

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vixio/admin-module/internal/domain/rbac"
	"github.com/vixio/admin-module/internal/session"
)

var guardDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "am_guard_decisions_total",
		Help: "Решения route guard по типам",
	},
	[]string{"decision"},
)

// Renderer — отрисовка состояний, которые guard показывает на месте.
type Renderer interface {
	// Loading — заглушка загрузки, пока store не завершил начальное разрешение.
	Loading(w http.ResponseWriter, r *http.Request)
	// AccessDenied — сообщение об отказе для пользователя без требуемой роли.
	AccessDenied(w http.ResponseWriter, r *http.Request, required rbac.Role)
}

// Config — параметры guard.
type Config struct {
	// LoginPath — страница входа (цель redirect для Unauthenticated/Unauthorized)
	LoginPath string
	// LoadingWait — сколько ждать начального разрешения store в рамках запроса
	LoadingWait time.Duration
	// LoadingRefresh — через сколько секунд страница загрузки перезапрашивает себя
	LoadingRefresh time.Duration
}

// Guard — middleware защиты страниц админки.
type Guard struct {
	cfg    Config
	render Renderer
	logger *slog.Logger
}

// New создаёт Guard.
func New(cfg Config, render Renderer, logger *slog.Logger) *Guard {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/admin/login"
	}
	if cfg.LoadingRefresh <= 0 {
		cfg.LoadingRefresh = time.Second
	}
	return &Guard{
		cfg:    cfg,
		render: render,
		logger: logger.With(slog.String("component", "route_guard")),
	}
}

// LoginPath возвращает путь страницы входа.
func (g *Guard) LoginPath() string {
	return g.cfg.LoginPath
}

// Protect возвращает middleware, пропускающий запрос только при решении Authorized.
// required — требуемая роль (пусто — достаточно любой роли).
// fallback — обработчик для RoleDenied; nil — стандартная страница отказа.
func (g *Guard) Protect(required rbac.Role, fallback http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := g.currentState(r)
			decision := Decide(state, required)
			guardDecisionsTotal.WithLabelValues(decision.String()).Inc()

			switch decision {
			case Loading:
				w.Header().Set("Refresh", strconv.Itoa(int(g.cfg.LoadingRefresh/time.Second)))
				w.Header().Set("Cache-Control", "no-store")
				g.render.Loading(w, r)

			case Unauthenticated, Unauthorized:
				g.logger.Debug("Redirect на страницу входа",
					slog.String("path", r.URL.Path),
					slog.String("decision", decision.String()),
				)
				http.Redirect(w, r, g.cfg.LoginPath, http.StatusFound)

			case RoleDenied:
				g.logger.Info("Доступ к разделу запрещён",
					slog.String("path", r.URL.Path),
					slog.String("user_id", state.User.ID),
					slog.String("required_role", string(required)),
				)
				if fallback != nil {
					fallback.ServeHTTP(w, r)
					return
				}
				g.render.AccessDenied(w, r, required)

			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// currentState возвращает состояние store клиента, дожидаясь начального
// разрешения не дольше LoadingWait. Истёкшая сессия перед решением
// обновляется у провайдера. Без store клиент считается неаутентифицированным.
func (g *Guard) currentState(r *http.Request) session.State {
	st := session.FromContext(r.Context())
	if st == nil {
		return session.State{}
	}

	if g.cfg.LoadingWait > 0 {
		timer := time.NewTimer(g.cfg.LoadingWait)
		defer timer.Stop()
		select {
		case <-st.Ready():
		case <-timer.C:
		case <-r.Context().Done():
		}
	}

	if err := st.Refresh(r.Context()); err != nil {
		g.logger.Warn("Ошибка обновления сессии",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	return st.State()
}
