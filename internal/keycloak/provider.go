// provider.go — identity.Provider поверх Keycloak для одного клиента админки.
// Хранит набор токенов клиента, обновляет истёкший access token и сообщает
// слушателям о входе, выходе и обновлении токенов.
package keycloak

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/vixio/admin-module/internal/domain/model"
	"github.com/vixio/admin-module/internal/identity"
)

// refreshSkew — access token обновляется, если до истечения осталось меньше.
const refreshSkew = 10 * time.Second

// tokenIssuer — операции token endpoint, нужные провайдеру.
type tokenIssuer interface {
	PasswordGrant(ctx context.Context, username, password string) (*oauth2.Token, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	Logout(ctx context.Context, refreshToken string) error
	ClientID() string
}

// userRegistrar — операции Admin REST API для регистрации.
type userRegistrar interface {
	CreateUser(ctx context.Context, email, password, fullName string) (string, error)
	ExecuteActionsEmail(ctx context.Context, userID, clientID, redirectURI string, actions ...string) error
	DeleteUser(ctx context.Context, userID string) error
}

// tokenVerifier — проверка access token.
type tokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// Provider — провайдер идентификации Keycloak для одного клиента.
// Слушатели вызываются под внутренней блокировкой провайдера.
type Provider struct {
	oidc     tokenIssuer
	admin    userRegistrar
	verifier tokenVerifier
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	session  *model.Session
	notifier identity.Notifier
}

// NewProvider создаёт провайдер. restored — сессия, восстановленная из cookie.
func NewProvider(oidc *OIDCClient, admin *Client, verifier *TokenVerifier, restored *model.Session, logger *slog.Logger) *Provider {
	return newProvider(oidc, admin, verifier, restored, logger)
}

func newProvider(oidc tokenIssuer, admin userRegistrar, verifier tokenVerifier, restored *model.Session, logger *slog.Logger) *Provider {
	return &Provider{
		oidc:     oidc,
		admin:    admin,
		verifier: verifier,
		logger:   logger.With(slog.String("component", "keycloak_provider")),
		now:      time.Now,
		session:  restored,
	}
}

// SignInWithPassword реализует identity.Provider.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tok, err := p.oidc.PasswordGrant(ctx, email, password)
	if err != nil {
		return nil, err
	}

	sess, err := p.sessionFromTokens(ctx, tok)
	if err != nil {
		return nil, err
	}

	p.session = sess
	p.notifier.Emit(identity.EventSignedIn, sess)
	return sess, nil
}

// SignUp реализует identity.Provider: создаёт пользователя и отправляет письмо
// подтверждения с возвратом на opts.RedirectTo.
func (p *Provider) SignUp(ctx context.Context, email, password string, opts identity.SignUpOptions) error {
	userID, err := p.admin.CreateUser(ctx, email, password, opts.FullName)
	if err != nil {
		return err
	}

	if err := p.admin.ExecuteActionsEmail(ctx, userID, p.oidc.ClientID(), opts.RedirectTo, "VERIFY_EMAIL"); err != nil {
		// Пользователь без письма подтверждения не сможет войти — откатываем.
		if delErr := p.admin.DeleteUser(ctx, userID); delErr != nil {
			p.logger.Error("Не удалось откатить регистрацию",
				slog.String("user_id", userID),
				slog.String("error", delErr.Error()),
			)
		}
		return fmt.Errorf("отправка письма подтверждения: %w", err)
	}

	p.logger.Info("Пользователь зарегистрирован, ожидает подтверждения email",
		slog.String("user_id", userID),
	)
	return nil
}

// SignOut реализует identity.Provider. Локальная сессия сбрасывается
// даже при ошибке Keycloak.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sess := p.session
	if sess == nil {
		return nil
	}
	p.session = nil

	var err error
	if sess.RefreshToken != "" {
		err = p.oidc.Logout(ctx, sess.RefreshToken)
	}
	p.notifier.Emit(identity.EventSignedOut, nil)
	return err
}

// GetSession реализует identity.Provider. Истёкший access token обновляется;
// если обновить не удалось, сессия сбрасывается с событием SIGNED_OUT.
func (p *Provider) GetSession(ctx context.Context) (*model.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sess := p.session
	if sess == nil {
		return nil, nil
	}

	if p.now().Add(refreshSkew).Before(sess.ExpiresAt) {
		if sess.User == nil {
			claims, err := p.verifier.Verify(ctx, sess.AccessToken)
			if err != nil {
				p.dropLocked("невалидный access token", err)
				return nil, nil
			}
			withUser := *sess
			withUser.User = claims.User()
			p.session = &withUser
			return &withUser, nil
		}
		return sess, nil
	}

	if sess.RefreshToken == "" {
		p.dropLocked("access token истёк, refresh token отсутствует", nil)
		return nil, nil
	}

	tok, err := p.oidc.RefreshTokens(ctx, sess.RefreshToken)
	if err != nil {
		p.dropLocked("не удалось обновить токен", err)
		return nil, nil
	}

	refreshed, err := p.sessionFromTokens(ctx, tok)
	if err != nil {
		p.dropLocked("обновлённый токен не прошёл проверку", err)
		return nil, nil
	}

	p.session = refreshed
	p.logger.Debug("Сессия обновлена через refresh token",
		slog.String("user_id", refreshed.UserID()),
	)

	event := identity.EventTokenRefreshed
	if refreshed.UserID() != sess.UserID() {
		event = identity.EventSignedIn
	}
	p.notifier.Emit(event, refreshed)
	return refreshed, nil
}

// OnAuthStateChange реализует identity.Provider.
func (p *Provider) OnAuthStateChange(l identity.Listener) identity.Subscription {
	return p.notifier.Subscribe(l)
}

// dropLocked сбрасывает сессию и сообщает о выходе. Вызывается под p.mu.
func (p *Provider) dropLocked(reason string, err error) {
	attrs := []any{slog.String("reason", reason), slog.String("user_id", p.session.UserID())}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	p.logger.Info("Сессия Keycloak сброшена", attrs...)

	p.session = nil
	p.notifier.Emit(identity.EventSignedOut, nil)
}

func (p *Provider) sessionFromTokens(ctx context.Context, tok *oauth2.Token) (*model.Session, error) {
	claims, err := p.verifier.Verify(ctx, tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("проверка access token: %w", err)
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() || (!claims.ExpiresAt.IsZero() && claims.ExpiresAt.Before(expiresAt)) {
		expiresAt = claims.ExpiresAt
	}

	return &model.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt,
		User:         claims.User(),
	}, nil
}

// ProviderFactory создаёт Provider для каждого клиента админки.
// Реализует session.ProviderFactory.
type ProviderFactory struct {
	oidc     *OIDCClient
	admin    *Client
	verifier *TokenVerifier
	logger   *slog.Logger
}

// NewProviderFactory создаёт фабрику провайдеров.
func NewProviderFactory(oidc *OIDCClient, admin *Client, verifier *TokenVerifier, logger *slog.Logger) *ProviderFactory {
	return &ProviderFactory{oidc: oidc, admin: admin, verifier: verifier, logger: logger}
}

// New возвращает провайдер, восстановленный из сессии (nil — новый клиент).
func (f *ProviderFactory) New(restored *model.Session) identity.Provider {
	return NewProvider(f.oidc, f.admin, f.verifier, restored, f.logger)
}
