// Пакет session — хранилище состояния аутентификации клиента админки.
// Store — единственный писатель сессии, пользователя и ролей; остальные
// компоненты читают снимки через State и подписку Subscribe.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vixio/admin-module/internal/domain/model"
	"github.com/vixio/admin-module/internal/domain/rbac"
	"github.com/vixio/admin-module/internal/identity"
)

// ErrNoPermission — аутентификация прошла, но у пользователя нет ни одной роли.
var ErrNoPermission = errors.New("у пользователя нет доступа к панели администратора")

var staleRoleResultsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "am_session_stale_role_results_total",
	Help: "Количество отброшенных результатов разрешения ролей, устаревших из-за новой смены сессии",
})

// RoleResolver — источник ролей пользователя.
// Не возвращает ошибок: при сбое хранилища отдаёт пустое множество.
type RoleResolver interface {
	Resolve(ctx context.Context, userID string) rbac.RoleSet
}

// State — снимок состояния store.
type State struct {
	// Loading — начальное разрешение ещё не завершено
	Loading bool
	// Session — текущая сессия (nil, если нет)
	Session *model.Session
	// User — текущий пользователь (nil, если не аутентифицирован)
	User *model.User
	// Roles — роли текущего пользователя
	Roles rbac.RoleSet
}

// Authenticated — в store есть пользователь.
func (s State) Authenticated() bool {
	return s.User != nil
}

// HasRole — роль r есть среди ролей пользователя.
func (s State) HasRole(r rbac.Role) bool { return s.Roles.HasRole(r) }

// IsAdmin — пользователь администратор.
func (s State) IsAdmin() bool { return s.Roles.IsAdmin() }

// IsEditor — пользователь редактор или администратор.
func (s State) IsEditor() bool { return s.Roles.IsEditor() }

// CanView — у пользователя есть хотя бы одна роль.
func (s State) CanView() bool { return s.Roles.CanView() }

// Options — параметры Store.
type Options struct {
	// SignUpRedirect — адрес возврата после подтверждения регистрации
	SignUpRedirect string
	// Logger — логгер (по умолчанию slog.Default())
	Logger *slog.Logger
	// Now — часы для проверки истечения сессии (по умолчанию time.Now)
	Now func() time.Time
}

// Store — состояние аутентификации одного клиента.
type Store struct {
	provider       identity.Provider
	resolver       RoleResolver
	scheduler      *Scheduler
	signUpRedirect string
	logger         *slog.Logger
	now            func() time.Time

	// ctx отменяется в Close и ограничивает отложенные разрешения ролей.
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	// generation увеличивается при каждой смене сессии. Результат разрешения
	// ролей применяется только для поколения, в котором он был запрошен.
	generation  uint64
	closed      bool
	sub         identity.Subscription
	subscribers map[uint64]func(State)
	nextSubID   uint64
	// version — номер снимка, фиксируется вместе с изменением state.
	version uint64

	// deliverMu упорядочивает доставку снимков подписчикам:
	// снимок старше уже доставленного не отправляется.
	deliverMu sync.Mutex
	delivered uint64

	initOnce  sync.Once
	ready     chan struct{}
	readyOnce sync.Once
}

// NewStore создаёт store в состоянии Loading.
func NewStore(provider identity.Provider, resolver RoleResolver, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Store{
		provider:       provider,
		resolver:       resolver,
		scheduler:      NewScheduler(),
		signUpRedirect: opts.SignUpRedirect,
		logger:         logger.With(slog.String("component", "session_store")),
		now:            now,
		ctx:            ctx,
		cancel:         cancel,
		state:          State{Loading: true},
		subscribers:    make(map[uint64]func(State)),
		ready:          make(chan struct{}),
	}
}

// Initialize подписывается на изменения у провайдера и затем один раз
// запрашивает текущую сессию. Подписка выполняется строго до запроса,
// чтобы событие, пришедшее во время запроса, не было потеряно.
// Повторные вызовы ничего не делают.
func (s *Store) Initialize(ctx context.Context) {
	s.initOnce.Do(func() {
		s.initialize(ctx)
	})
}

func (s *Store) initialize(ctx context.Context) {
	sub := s.provider.OnAuthStateChange(s.onSessionChanged)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	s.sub = sub
	probeGen := s.generation
	s.mu.Unlock()

	sess, err := s.provider.GetSession(ctx)
	if err != nil {
		s.logger.Warn("Не удалось получить текущую сессию, считаем клиента неаутентифицированным",
			slog.String("error", err.Error()),
		)
		sess = nil
	}

	s.mu.Lock()
	if s.generation != probeGen || s.closed {
		// Во время запроса пришло событие; состояние уже отражает его.
		s.mu.Unlock()
		s.logger.Debug("Результат начальной проверки сессии устарел, отброшен")
		return
	}
	s.generation++
	gen := s.generation
	s.setSessionLocked(sess)
	user := s.state.User
	if user == nil {
		s.state.Roles = rbac.RoleSet{}
		s.state.Loading = false
	}
	snap, ver := s.snapshotLocked()
	s.mu.Unlock()

	if user == nil {
		s.markReady()
		s.deliver(snap, ver)
		return
	}
	s.deliver(snap, ver)

	roles := s.resolver.Resolve(ctx, user.ID)
	s.applyRoles(gen, roles)
}

// onSessionChanged — слушатель провайдера. Сессия и пользователь обновляются
// сразу; разрешение ролей откладывается в очередь store и никогда не
// выполняется внутри колбэка провайдера.
func (s *Store) onSessionChanged(event identity.Event, sess *model.Session) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	prevUserID := ""
	if s.state.User != nil {
		prevUserID = s.state.User.ID
	}
	s.generation++
	gen := s.generation
	s.setSessionLocked(sess)
	user := s.state.User

	if user == nil {
		s.state.Roles = rbac.RoleSet{}
		s.state.Loading = false
	} else if user.ID != prevUserID {
		// Роли предыдущего пользователя не должны пережить смену личности.
		s.state.Roles = rbac.RoleSet{}
	}
	snap, ver := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("Изменение состояния аутентификации",
		slog.String("event", string(event)),
		slog.Bool("has_user", user != nil),
	)

	if user == nil {
		s.markReady()
		s.deliver(snap, ver)
		return
	}
	s.deliver(snap, ver)

	userID := user.ID
	s.scheduler.Post(func() {
		roles := s.resolver.Resolve(s.ctx, userID)
		s.applyRoles(gen, roles)
	})
}

// SignIn выполняет вход по паролю. Ошибка провайдера возвращается без изменений.
// Если у пользователя нет ролей, сессия принудительно завершается и
// возвращается ErrNoPermission.
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	sess, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.setSessionLocked(sess)
	s.mu.Unlock()

	roles := s.resolver.Resolve(ctx, sess.UserID())
	if roles.IsEmpty() {
		s.logger.Info("Вход отклонён: у пользователя нет ролей",
			slog.String("user_id", sess.UserID()),
		)
		if err := s.provider.SignOut(ctx); err != nil {
			s.logger.Warn("Ошибка принудительного выхода у провайдера",
				slog.String("error", err.Error()),
			)
		}
		s.clear()
		return ErrNoPermission
	}

	s.applyRoles(gen, roles)
	s.logger.Info("Пользователь вошёл в админку",
		slog.String("user_id", sess.UserID()),
		slog.String("role", string(roles.Highest())),
	)
	return nil
}

// SignUp регистрирует пользователя у провайдера. Роли не назначаются.
func (s *Store) SignUp(ctx context.Context, email, password, fullName string) error {
	return s.provider.SignUp(ctx, email, password, identity.SignUpOptions{
		FullName:   fullName,
		RedirectTo: s.signUpRedirect,
	})
}

// SignOut завершает сессию у провайдера и очищает локальное состояние.
// Локальное состояние очищается даже при ошибке провайдера.
func (s *Store) SignOut(ctx context.Context) error {
	err := s.provider.SignOut(ctx)
	s.clear()
	if err != nil {
		return fmt.Errorf("выход у провайдера: %w", err)
	}
	return nil
}

// Refresh перепроверяет сессию у провайдера, если access token истёк.
// Провайдер обновляет токены (TOKEN_REFRESHED) или сбрасывает сессию
// (SIGNED_OUT); Refresh возвращается после того, как store применил роли,
// разрешённые заново для обновлённой сессии. Если провайдер вернул ошибку
// или не сообщил о смене сессии, а она по-прежнему истёкшая, локальное
// состояние очищается. Вызывать вне колбэков провайдера.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	expired := !s.closed && !s.state.Loading && s.state.Session != nil &&
		s.state.Session.IsExpired(s.now())
	gen := s.generation
	s.mu.Unlock()
	if !expired {
		return nil
	}

	sess, err := s.provider.GetSession(ctx)
	if err != nil {
		s.logger.Warn("Не удалось обновить истёкшую сессию, состояние сброшено",
			slog.String("error", err.Error()),
		)
		s.clearIfGeneration(gen)
		return fmt.Errorf("обновление сессии: %w", err)
	}
	if sess == nil || sess.IsExpired(s.now()) {
		s.clearIfGeneration(gen)
	}
	return s.flush(ctx)
}

// State возвращает снимок текущего состояния.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready закрывается, когда завершено начальное разрешение состояния.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Subscribe регистрирует наблюдателя снимков состояния.
// Возвращает функцию отписки.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Close отписывается от провайдера и останавливает очередь.
// Отложенные разрешения ролей после Close не применяются.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub := s.sub
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	s.cancel()
	s.scheduler.Close()
}

// applyRoles применяет роли, если поколение сессии не изменилось.
func (s *Store) applyRoles(gen uint64, roles rbac.RoleSet) {
	s.mu.Lock()
	if s.closed || s.generation != gen {
		s.mu.Unlock()
		staleRoleResultsTotal.Inc()
		s.logger.Debug("Устаревший результат разрешения ролей отброшен",
			slog.Uint64("generation", gen),
		)
		return
	}
	s.state.Roles = roles
	s.state.Loading = false
	snap, ver := s.snapshotLocked()
	s.mu.Unlock()

	s.markReady()
	s.deliver(snap, ver)
}

// clear сбрасывает сессию, пользователя и роли.
func (s *Store) clear() {
	s.mu.Lock()
	s.clearLocked()
}

// clearIfGeneration очищает состояние, если с поколения gen сессия не менялась.
func (s *Store) clearIfGeneration(gen uint64) {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.clearLocked()
}

// clearLocked вызывается под s.mu и освобождает его.
func (s *Store) clearLocked() {
	s.generation++
	s.setSessionLocked(nil)
	s.state.Roles = rbac.RoleSet{}
	s.state.Loading = false
	snap, ver := s.snapshotLocked()
	s.mu.Unlock()

	s.markReady()
	s.deliver(snap, ver)
}

// flush ждёт выполнения задач, уже стоящих в очереди store.
func (s *Store) flush(ctx context.Context) error {
	done := make(chan struct{})
	if !s.scheduler.Post(func() { close(done) }) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) setSessionLocked(sess *model.Session) {
	s.state.Session = sess
	if sess != nil {
		s.state.User = sess.User
	} else {
		s.state.User = nil
	}
}

func (s *Store) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// snapshotLocked фиксирует снимок state для подписчиков. Вызывается под s.mu
// в той же критической секции, что и изменение.
func (s *Store) snapshotLocked() (State, uint64) {
	s.version++
	return s.state, s.version
}

// deliver отправляет снимок подписчикам, если более новый ещё не доставлен.
func (s *Store) deliver(state State, version uint64) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if version <= s.delivered {
		return
	}
	s.delivered = version

	s.mu.Lock()
	fns := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
