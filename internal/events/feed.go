// Package events is a small typed publish/subscribe feed.
package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Feed delivers values of type T to every attached listener. Delivery is
// synchronous and in attach order. A listener that panics is recovered and
// logged; the remaining listeners still run.
type Feed[T any] struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []listener[T]
}

type listener[T any] struct {
	id uint64
	fn func(T)
}

// Subscription detaches a listener from its feed.
type Subscription struct {
	once   sync.Once
	detach func()
}

// Unsubscribe removes the listener. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.detach)
}

// Subscribe attaches fn and returns its detach handle.
func (f *Feed[T]) Subscribe(fn func(T)) *Subscription {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.listeners = append(f.listeners, listener[T]{id: id, fn: fn})
	f.mu.Unlock()

	return &Subscription{detach: func() { f.remove(id) }}
}

func (f *Feed[T]) remove(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, l := range f.listeners {
		if l.id == id {
			f.listeners = append(f.listeners[:i:i], f.listeners[i+1:]...)
			return
		}
	}
}

// Len reports the number of attached listeners.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// Publish calls every listener with v. Listeners may subscribe or
// unsubscribe from inside a callback; such changes apply to the next Publish.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	snapshot := make([]listener[T], len(f.listeners))
	copy(snapshot, f.listeners)
	f.mu.Unlock()

	for _, l := range snapshot {
		deliver(l.fn, v)
	}
}

func deliver[T any](fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("event listener panicked")
		}
	}()
	fn(v)
}
