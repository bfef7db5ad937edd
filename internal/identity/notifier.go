package identity

import (
	"sync"

	"github.com/vixio/admin-module/internal/domain/model"
)

// Notifier — потокобезопасный реестр слушателей для реализаций Provider.
// Emit вызывает слушателей в порядке регистрации.
type Notifier struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []listenerEntry
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// Subscribe регистрирует слушателя.
func (n *Notifier) Subscribe(l Listener) Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.listeners = append(n.listeners, listenerEntry{id: id, fn: l})

	return &subscription{notifier: n, id: id}
}

// Emit рассылает событие всем текущим слушателям.
func (n *Notifier) Emit(event Event, session *model.Session) {
	n.mu.Lock()
	snapshot := make([]Listener, len(n.listeners))
	for i, e := range n.listeners {
		snapshot[i] = e.fn
	}
	n.mu.Unlock()

	for _, fn := range snapshot {
		fn(event, session)
	}
}

// Len возвращает число зарегистрированных слушателей.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}

func (n *Notifier) remove(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, e := range n.listeners {
		if e.id == id {
			n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
			return
		}
	}
}

type subscription struct {
	notifier *Notifier
	id       uint64
	once     sync.Once
}

// Unsubscribe удаляет слушателя. Повторный вызов безопасен.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.notifier.remove(s.id)
	})
}
