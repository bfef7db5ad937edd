// Пакет config — конфигурация Admin Module из переменных окружения VX_*.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Version задаётся при сборке через -ldflags.
var Version = "dev"

var (
	logFormats = []string{"json", "text"}
	sslModes   = []string{"disable", "require", "verify-ca", "verify-full"}
)

// Config — параметры Admin Module.
type Config struct {
	Port      int
	LogLevel  slog.Level
	LogFormat string // json | text
	// PublicURL — внешний адрес админки, из него строятся ссылки в письмах.
	PublicURL string

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	KeycloakURL   string
	KeycloakRealm string
	// UI-клиент с direct access grants: вход по паролю и refresh.
	KeycloakUIClientID     string
	KeycloakUIClientSecret string
	// Service account для Admin REST API.
	KeycloakClientID     string
	KeycloakClientSecret string
	KeycloakCACertPath   string

	// По умолчанию выводятся из KeycloakURL и KeycloakRealm.
	JWTIssuer           string
	JWTJWKSURL          string
	JWKSRefreshInterval time.Duration
	JWTLeeway           time.Duration

	// SessionSecret — ключ шифрования session cookie, не короче 32 байт.
	SessionSecret     string
	SessionSecure     bool
	LoginPath         string
	SignUpRedirectURL string
	// GuardLoadingWait — сколько guard ждёт первичной загрузки сессии.
	GuardLoadingWait  time.Duration
	StoreRegistrySize int
	StoreRegistryTTL  time.Duration
	// BootstrapAdminIDs — Keycloak user ID, которым при старте выдаётся admin.
	BootstrapAdminIDs []string

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	ShutdownTimeout time.Duration
}

// Load читает конфигурацию из окружения. Все ошибки собираются
// и возвращаются вместе.
func Load() (*Config, error) {
	e := &env{lookup: os.LookupEnv}
	cfg := &Config{}

	cfg.Port = e.intRange("VX_PORT", 8000, 1, 65535)
	cfg.LogLevel = e.logLevel("VX_LOG_LEVEL", slog.LevelInfo)
	cfg.LogFormat = e.oneOf("VX_LOG_FORMAT", "json", logFormats)
	cfg.PublicURL = strings.TrimRight(e.str("VX_PUBLIC_URL", fmt.Sprintf("http://localhost:%d", cfg.Port)), "/")

	cfg.DBHost = e.required("VX_DB_HOST")
	cfg.DBPort = e.intRange("VX_DB_PORT", 5432, 1, 65535)
	cfg.DBName = e.required("VX_DB_NAME")
	cfg.DBUser = e.required("VX_DB_USER")
	cfg.DBPassword = e.required("VX_DB_PASSWORD")
	cfg.DBSSLMode = e.oneOf("VX_DB_SSL_MODE", "disable", sslModes)

	cfg.KeycloakURL = strings.TrimRight(e.required("VX_KEYCLOAK_URL"), "/")
	cfg.KeycloakRealm = e.str("VX_KEYCLOAK_REALM", "vixio")
	cfg.KeycloakUIClientID = e.str("VX_KEYCLOAK_UI_CLIENT_ID", "vixio-admin-ui")
	cfg.KeycloakUIClientSecret = e.str("VX_KEYCLOAK_UI_CLIENT_SECRET", "")
	cfg.KeycloakClientID = e.required("VX_KEYCLOAK_CLIENT_ID")
	cfg.KeycloakClientSecret = e.required("VX_KEYCLOAK_CLIENT_SECRET")
	cfg.KeycloakCACertPath = e.str("VX_KEYCLOAK_CA_CERT_PATH", "")

	realmURL := cfg.KeycloakURL + "/realms/" + cfg.KeycloakRealm
	cfg.JWTIssuer = e.str("VX_JWT_ISSUER", realmURL)
	cfg.JWTJWKSURL = e.str("VX_JWT_JWKS_URL", realmURL+"/protocol/openid-connect/certs")
	cfg.JWKSRefreshInterval = e.duration("VX_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	cfg.JWTLeeway = e.duration("VX_JWT_LEEWAY", 5*time.Second)

	cfg.SessionSecret = e.required("VX_SESSION_SECRET")
	if cfg.SessionSecret != "" && len(cfg.SessionSecret) < 32 {
		e.fail("VX_SESSION_SECRET", "ключ короче 32 байт")
	}
	cfg.SessionSecure = e.boolean("VX_SESSION_SECURE", true)
	cfg.LoginPath = e.str("VX_LOGIN_PATH", "/admin/login")
	if !strings.HasPrefix(cfg.LoginPath, "/") {
		e.fail("VX_LOGIN_PATH", fmt.Sprintf("путь %q должен начинаться с /", cfg.LoginPath))
	}
	cfg.SignUpRedirectURL = e.str("VX_SIGNUP_REDIRECT_URL", cfg.PublicURL+cfg.LoginPath)
	cfg.GuardLoadingWait = e.duration("VX_GUARD_LOADING_WAIT", 2*time.Second)
	cfg.StoreRegistrySize = e.intRange("VX_STORE_REGISTRY_SIZE", 10000, 1, 1<<20)
	cfg.StoreRegistryTTL = e.duration("VX_STORE_REGISTRY_TTL", 24*time.Hour)
	cfg.BootstrapAdminIDs = parseCSV(e.str("VX_BOOTSTRAP_ADMIN_IDS", ""))

	cfg.DephealthGroup = e.str("VX_DEPHEALTH_GROUP", "vixio")
	cfg.DephealthCheckInterval = e.duration("VX_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)

	cfg.ShutdownTimeout = e.duration("VX_SHUTDOWN_TIMEOUT", 5*time.Second)

	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DatabaseURL возвращает URL PostgreSQL со схемой scheme
// ("postgres" для pgx, "pgx5" для golang-migrate). Без withPassword
// URL годится для логов и лейблов метрик.
func (c *Config) DatabaseURL(scheme string, withPassword bool) string {
	user := url.User(c.DBUser)
	if withPassword {
		user = url.UserPassword(c.DBUser, c.DBPassword)
	}
	return (&url.URL{
		Scheme:   scheme,
		User:     user,
		Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.DBSSLMode}}.Encode(),
	}).String()
}

// SetupLogger создаёт slog-логгер в stdout и делает его логгером по умолчанию.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With(slog.String("service", "admin-module"))
	slog.SetDefault(logger)
	return logger
}

// env читает переменные и копит ошибки разбора.
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) fail(key, msg string) {
	e.errs = append(e.errs, fmt.Errorf("%s: %s", key, msg))
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok && v != "" {
		return v
	}
	return def
}

func (e *env) required(key string) string {
	v := e.str(key, "")
	if v == "" {
		e.fail(key, "обязательная переменная не задана")
	}
	return v
}

func (e *env) intRange(key string, def, lo, hi int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		e.fail(key, fmt.Sprintf("%q не целое число", raw))
	case n < lo || n > hi:
		e.fail(key, fmt.Sprintf("%d вне диапазона %d-%d", n, lo, hi))
	}
	return n
}

func (e *env) boolean(key string, def bool) bool {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		e.fail(key, fmt.Sprintf("%q не булево значение", raw))
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		e.fail(key, fmt.Sprintf("%q не длительность (30s, 15m, 1h)", raw))
	}
	return d
}

func (e *env) oneOf(key, def string, allowed []string) string {
	v := e.str(key, def)
	if !slices.Contains(allowed, v) {
		e.fail(key, fmt.Sprintf("недопустимое значение %q, допустимые: %s", v, strings.Join(allowed, ", ")))
	}
	return v
}

func (e *env) logLevel(key string, def slog.Level) slog.Level {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	if strings.EqualFold(raw, "warning") {
		raw = "warn"
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		e.fail(key, fmt.Sprintf("недопустимый уровень %q, допустимые: debug, info, warn, error", raw))
		return def
	}
	return lvl
}

// parseCSV делит список через запятую, отбрасывая пустые элементы.
func parseCSV(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
