package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vixio/admin-module/internal/domain/model"
	"github.com/vixio/admin-module/internal/identity"
)

var (
	liveStores = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "am_session_stores",
		Help: "Количество активных клиентских session store",
	})
	authenticatedStores = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "am_session_authenticated_stores",
		Help: "Количество session store с аутентифицированным пользователем",
	})
)

// ProviderFactory создаёт провайдер идентификации для нового клиента.
// restored — сессия, восстановленная из cookie (nil для нового клиента).
type ProviderFactory interface {
	New(restored *model.Session) identity.Provider
}

// ProviderFactoryFunc — адаптер функции к ProviderFactory.
type ProviderFactoryFunc func(restored *model.Session) identity.Provider

// New реализует ProviderFactory.
func (f ProviderFactoryFunc) New(restored *model.Session) identity.Provider {
	return f(restored)
}

// RegistryConfig — параметры реестра store.
type RegistryConfig struct {
	// Size — максимальное число одновременно живущих store
	Size int
	// TTL — время жизни store без обращений
	TTL time.Duration
	// InitTimeout — ограничение на начальную проверку сессии и ролей
	InitTimeout time.Duration
}

// Registry — store клиентских экземпляров админки по идентификатору клиента.
// Каждый браузер получает собственный Store; вытесненные store закрываются.
type Registry struct {
	factory  ProviderFactory
	resolver RoleResolver
	opts     Options
	cfg      RegistryConfig
	logger   *slog.Logger

	mu    sync.Mutex
	cache *expirable.LRU[string, *entry]
}

// entry — store в реестре и его вклад в am_session_authenticated_stores.
type entry struct {
	store       *Store
	unsubscribe func()

	mu            sync.Mutex
	authenticated bool
	evicted       bool
}

// observe получает снимки store и поддерживает gauge аутентифицированных store.
func (e *entry) observe(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted || s.Authenticated() == e.authenticated {
		return
	}
	e.authenticated = s.Authenticated()
	if e.authenticated {
		authenticatedStores.Inc()
	} else {
		authenticatedStores.Dec()
	}
}

func (e *entry) evict() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evicted = true
	if e.authenticated {
		authenticatedStores.Dec()
		e.authenticated = false
	}
}

// NewRegistry создаёт реестр.
func NewRegistry(cfg RegistryConfig, factory ProviderFactory, resolver RoleResolver, opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 10 * time.Second
	}

	r := &Registry{
		factory:  factory,
		resolver: resolver,
		opts:     opts,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "session_registry")),
	}
	r.cache = expirable.NewLRU[string, *entry](cfg.Size, r.onEvict, cfg.TTL)
	return r
}

// GetOrCreate возвращает store клиента или создаёт новый.
// Новый store инициализируется в фоне; готовность сигнализирует Store.Ready.
// created == true, если store был создан этим вызовом.
func (r *Registry) GetOrCreate(clientID string, restored *model.Session) (store *Store, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.cache.Get(clientID); ok {
		return e.store, false
	}

	st := NewStore(r.factory.New(restored), r.resolver, r.opts)
	e := &entry{store: st}
	e.unsubscribe = st.Subscribe(e.observe)
	r.cache.Add(clientID, e)
	liveStores.Inc()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.InitTimeout)
		defer cancel()
		st.Initialize(ctx)
	}()

	r.logger.Debug("Создан session store",
		slog.String("client_id", clientID),
		slog.Bool("restored", restored != nil),
		slog.Int("stores", r.Len()),
	)
	return st, true
}

// Remove закрывает и удаляет store клиента. Следующий запрос клиента
// получит новый store.
func (r *Registry) Remove(clientID string) {
	if r.cache.Remove(clientID) {
		r.logger.Debug("Session store удалён", slog.String("client_id", clientID))
	}
}

// Len возвращает число живых store.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Close закрывает все store.
func (r *Registry) Close() {
	r.cache.Purge()
}

func (r *Registry) onEvict(clientID string, e *entry) {
	liveStores.Dec()
	e.unsubscribe()
	e.evict()
	// Close ждёт очередь store, а колбэк вызывается под блокировкой LRU.
	go e.store.Close()
	r.logger.Debug("Session store вытеснен",
		slog.String("client_id", clientID),
	)
}
