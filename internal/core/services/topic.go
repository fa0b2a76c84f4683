package services

import (
	"log/slog"
	"sync"

	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
)

type subscriber[T any] struct {
	id       uint64
	fn       func(T)
	onRemove func()
}

// Topic fans one event class out to its subscribers. Callbacks run in
// registration order on the publishing goroutine and receive the same value.
type Topic[T any] struct {
	name   string
	logger *slog.Logger

	// mu protects nextID and subs
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber[T]
}

// Ensure Topic implements the Subscribable interface.
var _ ports.Subscribable[struct{}] = (*Topic[struct{}])(nil)

// NewTopic creates an empty topic.
func NewTopic[T any](name string, logger *slog.Logger) *Topic[T] {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Topic[T]{
		name:   name,
		logger: logger.With("topic", name),
	}
}

// Name returns the event class this topic carries.
func (t *Topic[T]) Name() string {
	return t.name
}

// Subscribe registers fn. The returned function removes exactly this
// registration; calling it again is a no-op.
func (t *Topic[T]) Subscribe(fn func(T)) func() {
	return t.subscribe(fn, nil)
}

// SubscribeChan is the channel form of Subscribe. Delivery never blocks the
// publisher: when the buffer is full the value is dropped and logged. The
// channel is closed by the returned function or when the topic is cleared.
func (t *Topic[T]) SubscribeChan(buffer int) (<-chan T, func()) {
	ch := make(chan T, buffer)

	var mu sync.Mutex
	closed := false
	closeCh := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}

	unsubscribe := t.subscribe(func(v T) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- v:
		default:
			t.logger.Warn("subscriber channel full, dropping event")
		}
	}, closeCh)

	return ch, unsubscribe
}

func (t *Topic[T]) subscribe(fn func(T), onRemove func()) func() {
	if fn == nil {
		return func() {}
	}

	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscriber[T]{id: id, fn: fn, onRemove: onRemove})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { t.remove(id) })
	}
}

func (t *Topic[T]) remove(id uint64) {
	t.mu.Lock()
	var removed *subscriber[T]
	for i := range t.subs {
		if t.subs[i].id == id {
			s := t.subs[i]
			removed = &s
			t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	if removed != nil && removed.onRemove != nil {
		removed.onRemove()
	}
}

// Publish invokes every current subscriber with v and returns how many
// completed without panicking. A panicking subscriber is logged and skipped.
func (t *Topic[T]) Publish(v T) int {
	t.mu.Lock()
	subs := make([]subscriber[T], len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	delivered := 0
	for _, s := range subs {
		if t.invoke(s, v) {
			delivered++
		}
	}
	return delivered
}

func (t *Topic[T]) invoke(s subscriber[T], v T) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(t.logger, r, "subscriber_id", s.id)
			ok = false
		}
	}()
	s.fn(v)
	return true
}

// Clear removes every subscriber.
func (t *Topic[T]) Clear() {
	t.mu.Lock()
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	for _, s := range subs {
		if s.onRemove != nil {
			s.onRemove()
		}
	}
}

// Len returns the number of registered subscribers.
func (t *Topic[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}
