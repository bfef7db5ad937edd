// Пакет identitytest — управляемый из тестов провайдер идентификации.
package identitytest

import (
	"context"
	"sync"
	"time"

	"github.com/vixio/admin-module/internal/domain/model"
	"github.com/vixio/admin-module/internal/identity"
)

// Provider — фейковый identity.Provider.
// Ответы задаются полями до использования; вызовы записываются в Calls.
type Provider struct {
	mu       sync.Mutex
	notifier identity.Notifier
	calls    []string
	session  *model.Session

	// SignInErr — ошибка, которую вернёт SignInWithPassword.
	SignInErr error
	// SignInUser — пользователь, для которого выдаётся сессия при входе.
	SignInUser *model.User
	// SignOutErr — ошибка, которую вернёт SignOut (локально сессия всё равно сбрасывается).
	SignOutErr error
	// SignUpErr — ошибка, которую вернёт SignUp.
	SignUpErr error
	// GetSessionErr — ошибка, которую вернёт GetSession.
	GetSessionErr error
	// BeforeGetSession вызывается внутри GetSession после того, как результат
	// зафиксирован, но до его возврата. Имитирует событие во время проверки.
	BeforeGetSession func()

	// LastSignUp — аргументы последнего вызова SignUp.
	LastSignUp struct {
		Email    string
		Password string
		Options  identity.SignUpOptions
	}
}

// New создаёт провайдер с начальной сессией (может быть nil).
func New(initial *model.Session) *Provider {
	return &Provider{session: initial}
}

// NewSession строит сессию для пользователя с указанным ID.
func NewSession(userID, email string) *model.Session {
	return &model.Session{
		AccessToken:  "access-" + userID,
		RefreshToken: "refresh-" + userID,
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         &model.User{ID: userID, Email: email},
	}
}

func (p *Provider) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

// Calls возвращает журнал вызовов в порядке поступления.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount возвращает число вызовов метода name.
func (p *Provider) CallCount(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == name {
			n++
		}
	}
	return n
}

// Listeners возвращает число подписчиков.
func (p *Provider) Listeners() int {
	return p.notifier.Len()
}

// SignInWithPassword реализует identity.Provider.
func (p *Provider) SignInWithPassword(_ context.Context, email, _ string) (*model.Session, error) {
	p.record("SignInWithPassword")

	p.mu.Lock()
	if p.SignInErr != nil {
		err := p.SignInErr
		p.mu.Unlock()
		return nil, err
	}
	user := p.SignInUser
	if user == nil {
		user = &model.User{ID: "user-" + email, Email: email}
	}
	s := NewSession(user.ID, user.Email)
	s.User = user
	p.session = s
	p.mu.Unlock()

	p.notifier.Emit(identity.EventSignedIn, s)
	return s, nil
}

// SignUp реализует identity.Provider.
func (p *Provider) SignUp(_ context.Context, email, password string, opts identity.SignUpOptions) error {
	p.record("SignUp")

	p.mu.Lock()
	defer p.mu.Unlock()
	p.LastSignUp.Email = email
	p.LastSignUp.Password = password
	p.LastSignUp.Options = opts
	return p.SignUpErr
}

// SignOut реализует identity.Provider.
func (p *Provider) SignOut(_ context.Context) error {
	p.record("SignOut")

	p.mu.Lock()
	p.session = nil
	err := p.SignOutErr
	p.mu.Unlock()

	p.notifier.Emit(identity.EventSignedOut, nil)
	return err
}

// GetSession реализует identity.Provider.
func (p *Provider) GetSession(_ context.Context) (*model.Session, error) {
	p.record("GetSession")

	p.mu.Lock()
	session, err := p.session, p.GetSessionErr
	hook := p.BeforeGetSession
	p.mu.Unlock()

	// Результат уже зафиксирован; событие из хука делает его устаревшим.
	if hook != nil {
		hook()
	}

	if err != nil {
		return nil, err
	}
	return session, nil
}

// OnAuthStateChange реализует identity.Provider.
func (p *Provider) OnAuthStateChange(l identity.Listener) identity.Subscription {
	p.record("OnAuthStateChange")
	return p.notifier.Subscribe(l)
}

// Emit устанавливает текущую сессию и рассылает событие слушателям.
func (p *Provider) Emit(event identity.Event, session *model.Session) {
	p.mu.Lock()
	p.session = session
	p.mu.Unlock()

	p.notifier.Emit(event, session)
}
