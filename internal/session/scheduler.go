package session

import (
	"sync"
)

// Scheduler — очередь отложенных задач store.
// Задачи выполняются по одной, в порядке постановки, отдельной горутиной.
// Post никогда не выполняет задачу синхронно и не блокируется, поэтому
// его можно вызывать из колбэка провайдера, удерживающего свою блокировку.
type Scheduler struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewScheduler создаёт очередь и запускает обработчик.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.loop()
	return s
}

// Post ставит задачу в очередь. После Close задачи отбрасываются.
// Возвращает false, если задача не принята.
func (s *Scheduler) Post(task func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, task)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Close останавливает приём задач и дожидается завершения уже поставленных.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	<-s.done
}

func (s *Scheduler) loop() {
	defer close(s.done)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			<-s.wake
			continue
		}
		task := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		task()
	}
}
