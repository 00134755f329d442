package model

import "sync"

// Disposable releases a resource or subscription. Dispose must be safe to call
// more than once.
type Disposable interface {
	Dispose()
}

// DisposeFunc adapts a plain function to Disposable. A nil DisposeFunc is a no-op.
type DisposeFunc func()

// Dispose calls f. Use OnceDisposable when repeat calls must be suppressed.
func (f DisposeFunc) Dispose() {
	if f != nil {
		f()
	}
}

// OnceDisposable wraps fn so that only the first Dispose call runs it.
func OnceDisposable(fn func()) Disposable {
	var once sync.Once
	return DisposeFunc(func() { once.Do(fn) })
}

// Disposables collects subscriptions and releases them in reverse order of
// registration.
type Disposables struct {
	mu    sync.Mutex
	items []Disposable
}

// Add registers d for release. Nil values are ignored.
func (ds *Disposables) Add(d Disposable) {
	if d == nil {
		return
	}
	ds.mu.Lock()
	ds.items = append(ds.items, d)
	ds.mu.Unlock()
}

// Dispose releases every registered item, last registered first, and empties
// the collection.
func (ds *Disposables) Dispose() {
	ds.mu.Lock()
	items := ds.items
	ds.items = nil
	ds.mu.Unlock()

	for i := len(items) - 1; i >= 0; i-- {
		items[i].Dispose()
	}
}

type listener[T any] struct {
	id uint64
	fn func(T)
}

// Emitter is a synchronous publish/subscribe channel for a single event type.
// Fire delivers to a snapshot of the subscribers taken at call time, so a
// listener may subscribe, unsubscribe, or fire again without deadlocking.
// After Dispose the emitter drops all subscribers and ignores further Fire calls.
type Emitter[T any] struct {
	mu        sync.Mutex
	listeners []listener[T]
	nextID    uint64
	disposed  bool
}

// Subscribe registers fn and returns a Disposable that removes it.
// Subscribing to a disposed emitter returns a no-op Disposable.
func (e *Emitter[T]) Subscribe(fn func(T)) Disposable {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return DisposeFunc(nil)
	}

	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, listener[T]{id: id, fn: fn})

	return OnceDisposable(func() { e.remove(id) })
}

func (e *Emitter[T]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, l := range e.listeners {
		if l.id == id {
			e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
			return
		}
	}
}

// Fire delivers v to every current subscriber in subscription order.
func (e *Emitter[T]) Fire(v T) {
	e.mu.Lock()
	if e.disposed || len(e.listeners) == 0 {
		e.mu.Unlock()
		return
	}
	snapshot := make([]listener[T], len(e.listeners))
	copy(snapshot, e.listeners)
	e.mu.Unlock()

	for _, l := range snapshot {
		l.fn(v)
	}
}

// Len reports the number of live subscribers.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

// Dispose closes the emitter permanently.
func (e *Emitter[T]) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disposed = true
	e.listeners = nil
}

// IsDisposed reports whether Dispose has been called.
func (e *Emitter[T]) IsDisposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}
