package keycloak

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vixio/admin-module/internal/domain/model"
)

// ErrInvalidToken — access token не прошёл проверку.
var ErrInvalidToken = errors.New("невалидный или просроченный токен")

// Claims — проверенные claims access token.
type Claims struct {
	Subject           string // Keycloak user ID
	Email             string // email, при его отсутствии preferred_username
	Name              string
	PreferredUsername string
	ExpiresAt         time.Time
}

// User возвращает владельца токена.
func (c *Claims) User() *model.User {
	return &model.User{ID: c.Subject, Email: c.Email, FullName: c.Name}
}

type accessTokenClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	Name              string `json:"name"`
}

func (a *accessTokenClaims) toClaims() (*Claims, error) {
	if a.Subject == "" {
		return nil, fmt.Errorf("%w: нет sub", ErrInvalidToken)
	}
	c := &Claims{
		Subject:           a.Subject,
		Email:             a.Email,
		Name:              strings.TrimSpace(a.Name),
		PreferredUsername: a.PreferredUsername,
	}
	if c.Email == "" {
		c.Email = a.PreferredUsername
	}
	if a.ExpiresAt != nil {
		c.ExpiresAt = a.ExpiresAt.Time
	}
	return c, nil
}

// VerifierConfig — параметры TokenVerifier.
type VerifierConfig struct {
	JWKSURL string
	// Issuer — ожидаемый iss; пусто отключает проверку.
	Issuer string
	// HTTPClient — клиент для JWKS; nil означает клиент с таймаутом 10s.
	HTTPClient      *http.Client
	RefreshInterval time.Duration
	Leeway          time.Duration
}

// TokenVerifier проверяет RS256 access token realm по его JWKS.
type TokenVerifier struct {
	keys   keyfunc.Keyfunc
	parser *jwt.Parser
}

// NewTokenVerifier создаёт verifier с фоновым обновлением JWKS.
// Недоступный при старте Keycloak не мешает запуску: ключи подтянутся позже.
func NewTokenVerifier(cfg VerifierConfig, logger *slog.Logger) (*TokenVerifier, error) {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    client,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Не удалось обновить JWKS",
				slog.String("url", cfg.JWKSURL),
				slog.String("error", err.Error()),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("JWKS storage: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("keyfunc: %w", err)
	}
	return NewTokenVerifierWithKeyfunc(kf, cfg.Issuer, cfg.Leeway), nil
}

// NewTokenVerifierWithKeyfunc создаёт verifier поверх готовой keyfunc.
func NewTokenVerifierWithKeyfunc(kf keyfunc.Keyfunc, issuer string, leeway time.Duration) *TokenVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &TokenVerifier{keys: kf, parser: jwt.NewParser(opts...)}
}

// Verify проверяет подпись, exp и iss и возвращает claims.
func (v *TokenVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	raw := &accessTokenClaims{}
	if _, err := v.parser.ParseWithClaims(token, raw, v.keys.KeyfuncCtx(ctx)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return raw.toClaims()
}

// HTTPClientWithCA возвращает клиент, доверяющий системным CA и CA из caCertPath.
func HTTPClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	pem, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%s: нет PEM-сертификатов", caCertPath)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	return &http.Client{Timeout: timeout, Transport: transport}, nil
}
