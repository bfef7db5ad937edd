// health.go — probes и метрики.
// /health/live отвечает, пока процесс жив; /health/ready проверяет
// зависимости, без которых вход в админку невозможен.
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vixio/admin-module/internal/config"
)

const serviceName = "admin-module"

// Статусы readiness: итог определяется худшим статусом зависимости.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// ReadinessChecker — проверка одной зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и пояснение.
	CheckReady() (status string, message string)
}

// HealthHandler — обработчик probes.
type HealthHandler struct {
	deps    []dependency
	metrics http.Handler
}

type dependency struct {
	name    string
	checker ReadinessChecker
}

// NewHealthHandler создаёт обработчик probes. nil-checker считается
// неинициализированной зависимостью и даёт "fail".
func NewHealthHandler(postgres, keycloak ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		deps: []dependency{
			{name: "postgresql", checker: postgres},
			{name: "keycloak", checker: keycloak},
		},
		metrics: promhttp.Handler(),
	}
}

// CheckResult — результат проверки зависимости.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthStatus — тело ответа probes.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

func newHealthStatus(status string) HealthStatus {
	return HealthStatus{
		Status:    status,
		Service:   serviceName,
		Version:   config.Version,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}
}

// HealthLive — GET /health/live.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newHealthStatus(statusOK))
}

// HealthReady — GET /health/ready. 503, если хотя бы одна зависимость в fail.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := newHealthStatus(statusOK)
	resp.Checks = make(map[string]CheckResult, len(h.deps))

	statuses := make([]string, 0, len(h.deps))
	for _, d := range h.deps {
		res := CheckResult{Status: statusFail, Message: "не инициализирован"}
		if d.checker != nil {
			res.Status, res.Message = d.checker.CheckReady()
		}
		resp.Checks[d.name] = res
		statuses = append(statuses, res.Status)
	}
	resp.Status = overallStatus(statuses...)

	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// GetMetrics — GET /metrics.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

// overallStatus возвращает худший из статусов.
func overallStatus(statuses ...string) string {
	worst := statusOK
	for _, s := range statuses {
		switch s {
		case statusFail:
			return statusFail
		case statusDegraded:
			worst = statusDegraded
		}
	}
	return worst
}
