// Точка входа Admin Module — шлюз доступа к панели администратора Vixio.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// инициализирует клиентов Keycloak, Session Store реестр и route guard,
// запускает мониторинг зависимостей и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/pflag"

	"github.com/vixio/admin-module/internal/api/handlers"
	"github.com/vixio/admin-module/internal/api/middleware"
	"github.com/vixio/admin-module/internal/api/openapi"
	"github.com/vixio/admin-module/internal/config"
	"github.com/vixio/admin-module/internal/database"
	"github.com/vixio/admin-module/internal/guard"
	"github.com/vixio/admin-module/internal/keycloak"
	"github.com/vixio/admin-module/internal/repository"
	"github.com/vixio/admin-module/internal/server"
	"github.com/vixio/admin-module/internal/service"
	"github.com/vixio/admin-module/internal/session"
	"github.com/vixio/admin-module/internal/ui/auth"
	uihandlers "github.com/vixio/admin-module/internal/ui/handlers"
	"github.com/vixio/admin-module/internal/ui/i18n"
	uimiddleware "github.com/vixio/admin-module/internal/ui/middleware"
)

func main() {
	showVersion := pflag.BoolP("version", "v", false, "вывести версию и выйти")
	migrateOnly := pflag.Bool("migrate-only", false, "применить миграции БД и выйти")
	pflag.Parse()

	if *showVersion {
		fmt.Println("admin-module", config.Version)
		return
	}

	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Admin Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("VX_DEPHEALTH_GROUP") == "" {
		logger.Warn("VX_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *migrateOnly {
		logger.Info("Миграции применены, --migrate-only: выход")
		return
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. HTTP-клиент с кастомным CA для Keycloak (nil — стандартный пул CA)
	var httpClientCA *http.Client
	if cfg.KeycloakCACertPath != "" {
		httpClientCA, err = keycloak.HTTPClientWithCA(cfg.KeycloakCACertPath, 30*time.Second)
		if err != nil {
			logger.Error("Ошибка загрузки CA-сертификата",
				slog.String("path", cfg.KeycloakCACertPath),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		logger.Info("CA-сертификат загружен", slog.String("path", cfg.KeycloakCACertPath))
	}

	// 6. Роли: репозиторий user_roles и Role Resolver
	roleStore := repository.NewRoleStore(pool)
	roleResolver := service.NewRoleResolver(roleStore, logger)

	// 7. Keycloak: Admin API, OIDC (вход по паролю), проверка access token
	kcClient := keycloak.New(
		cfg.KeycloakURL,
		cfg.KeycloakRealm,
		cfg.KeycloakClientID,
		cfg.KeycloakClientSecret,
		httpClientCA,
		logger,
	)
	oidcClient := keycloak.NewOIDCClient(keycloak.OIDCConfig{
		KeycloakURL:  cfg.KeycloakURL,
		Realm:        cfg.KeycloakRealm,
		ClientID:     cfg.KeycloakUIClientID,
		ClientSecret: cfg.KeycloakUIClientSecret,
		HTTPClient:   httpClientCA,
	})
	verifier, err := keycloak.NewTokenVerifier(keycloak.VerifierConfig{
		JWKSURL:         cfg.JWTJWKSURL,
		Issuer:          cfg.JWTIssuer,
		HTTPClient:      httpClientCA,
		RefreshInterval: cfg.JWKSRefreshInterval,
		Leeway:          cfg.JWTLeeway,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания TokenVerifier", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Keycloak клиенты созданы",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
		slog.String("jwks_url", cfg.JWTJWKSURL),
	)

	// 8. Сервис управления пользователями и первые администраторы
	adminUsersSvc := service.NewAdminUserService(kcClient, roleStore, logger)
	if len(cfg.BootstrapAdminIDs) > 0 {
		if err := adminUsersSvc.BootstrapAdmins(ctx, cfg.BootstrapAdminIDs); err != nil {
			logger.Error("Ошибка выдачи роли admin при старте", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 9. Session Store реестр: один store на браузер
	registry := session.NewRegistry(
		session.RegistryConfig{
			Size: cfg.StoreRegistrySize,
			TTL:  cfg.StoreRegistryTTL,
		},
		keycloak.NewProviderFactory(oidcClient, kcClient, verifier, logger),
		roleResolver,
		session.Options{
			SignUpRedirect: cfg.SignUpRedirectURL,
			Logger:         logger,
		},
	)
	defer registry.Close()

	sessionMgr, err := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionSecure)
	if err != nil {
		logger.Error("Ошибка создания Session Manager", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 10. Локализация страниц
	if err := i18n.LoadFromEmbedFS(i18n.Init(logger), logger); err != nil {
		logger.Error("Ошибка загрузки переводов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 11. Страницы админки и route guard
	menu := guard.AdminMenu()
	renderer := uihandlers.NewRenderer(menu, logger)
	ui := &server.UIComponents{
		AuthHandler:    uihandlers.NewAuthHandler(renderer, registry, cfg.LoginPath, logger),
		Renderer:       renderer,
		ClientInstance: uimiddleware.NewClientInstance(sessionMgr, registry, logger),
		Guard: guard.New(guard.Config{
			LoginPath:   cfg.LoginPath,
			LoadingWait: cfg.GuardLoadingWait,
		}, renderer, logger),
	}

	// 12. JSON API: health, JWT, проверка запросов по OpenAPI
	doc, err := openapi.Load(ctx)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI-контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}
	validator, err := openapi.NewValidator(doc, logger)
	if err != nil {
		logger.Error("Ошибка создания OpenAPI validator", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), kcClient)
	api := &server.APIComponents{
		Handler:   handlers.NewAPIHandler(healthHandler, adminUsersSvc, menu, logger),
		JWTAuth:   middleware.NewJWTAuth(verifier, roleResolver, logger),
		Validator: validator,
	}

	// 13. topologymetrics — мониторинг зависимостей (PostgreSQL + Keycloak)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:      "admin-module",
		Group:          cfg.DephealthGroup,
		DB:             pgDB,
		PostgresURL:    cfg.DatabaseURL("postgres", false),
		KeycloakIssuer: cfg.JWTIssuer,
		CheckInterval:  cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 14. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, api, ui)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 15. Graceful shutdown фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	logger.Info("Admin Module остановлен")
}
