// Пакет middleware — HTTP middleware для Admin UI.
// client.go — привязка запроса к Session Store клиентского экземпляра
// (браузера) и синхронизация cookie с токенами store.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/vixio/admin-module/internal/session"
	"github.com/vixio/admin-module/internal/ui/auth"
)

// contextKey — тип для ключей контекста UI (избегаем коллизий с API middleware).
type contextKey string

const (
	// ContextKeyClientID — идентификатор клиентского экземпляра в контексте запроса.
	ContextKeyClientID contextKey = "ui_client_id"
)

// ClientInstance — middleware, находящий Session Store клиента по cookie.
// Клиент без cookie (или с повреждённым cookie) получает новый идентификатор
// и новый store. После обработки запроса cookie перезаписывается, если токены
// в store изменились (вход, выход, обновление токена).
type ClientInstance struct {
	sessionManager *auth.SessionManager
	registry       *session.Registry
	logger         *slog.Logger
}

// NewClientInstance создаёт middleware клиентских экземпляров.
func NewClientInstance(
	sessionManager *auth.SessionManager,
	registry *session.Registry,
	logger *slog.Logger,
) *ClientInstance {
	return &ClientInstance{
		sessionManager: sessionManager,
		registry:       registry,
		logger:         logger.With(slog.String("component", "ui_client_middleware")),
	}
}

// Middleware возвращает HTTP middleware. Применяется ко всем маршрутам /admin/*.
func (ci *ClientInstance) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, err := ci.sessionManager.GetSessionFromRequest(r)
			if err != nil {
				ci.logger.Debug("Повреждённый cookie клиента, создаётся новый",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				data = nil
			}
			newClient := data == nil || data.ClientID == ""
			if newClient {
				data = &auth.SessionData{ClientID: auth.NewClientID()}
			}

			st, _ := ci.registry.GetOrCreate(data.ClientID, data.Session())

			sw := &syncWriter{
				ResponseWriter: w,
				ci:             ci,
				store:          st,
				data:           data,
				// Новый клиент получает cookie в любом случае
				force: newClient,
			}

			ctx := session.WithStore(r.Context(), st)
			ctx = context.WithValue(ctx, ContextKeyClientID, data.ClientID)
			next.ServeHTTP(sw, r.WithContext(ctx))

			// Обработчик ничего не записал (например, только заголовки)
			sw.sync()
		})
	}
}

// ClientIDFromContext извлекает идентификатор клиента из контекста запроса.
// Возвращает "" если запрос не прошёл через ClientInstance.
func ClientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyClientID).(string)
	return id
}

// syncWriter перезаписывает cookie непосредственно перед отправкой заголовков.
type syncWriter struct {
	http.ResponseWriter
	ci     *ClientInstance
	store  *session.Store
	data   *auth.SessionData
	force  bool
	synced bool
}

func (sw *syncWriter) WriteHeader(code int) {
	sw.sync()
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *syncWriter) Write(b []byte) (int, error) {
	sw.sync()
	return sw.ResponseWriter.Write(b)
}

// Unwrap нужен http.ResponseController.
func (sw *syncWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

func (sw *syncWriter) sync() {
	if sw.synced {
		return
	}
	sw.synced = true

	sess := sw.store.State().Session
	if !sw.force && sw.data.SameTokens(sess) {
		return
	}

	fresh := auth.NewSessionData(sw.data.ClientID, sess)
	if err := sw.ci.sessionManager.SetSessionCookie(sw.ResponseWriter, fresh); err != nil {
		sw.ci.logger.Error("Ошибка записи cookie клиента",
			slog.String("error", err.Error()),
		)
	}
}
