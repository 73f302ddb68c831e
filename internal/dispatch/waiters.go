package dispatch

import "sync"

// waiterMap correlates results to the caller blocked waiting for them by
// task id, so concurrent launches can never receive each other's results.
// register must be called before the corresponding Task is published so a
// fast Actuator can never race ahead of the waiter being in place.
type waiterMap[T any] struct {
	mu      sync.Mutex
	pending map[string]chan T
}

func newWaiterMap[T any]() *waiterMap[T] {
	return &waiterMap[T]{pending: make(map[string]chan T)}
}

// register creates a buffered, single-use channel for taskID and returns it.
// Calling register twice for the same taskID replaces the earlier waiter,
// which is never observed in practice since task ids are fresh UUIDs or
// caller-supplied VM names used once per request.
func (w *waiterMap[T]) register(taskID string) <-chan T {
	ch := make(chan T, 1)
	w.mu.Lock()
	w.pending[taskID] = ch
	w.mu.Unlock()
	return ch
}

// deliver routes a result to its waiter, if one is still registered. A
// result with no waiter (already delivered, already timed out, or simply
// never requested) is dropped; callers should log this at debug level.
func (w *waiterMap[T]) deliver(taskID string, v T) (delivered bool) {
	w.mu.Lock()
	ch, ok := w.pending[taskID]
	if ok {
		delete(w.pending, taskID)
	}
	w.mu.Unlock()
	if !ok {
		return false
	}
	ch <- v
	return true
}

// cancel removes taskID's waiter without delivering anything, used when the
// caller's context is done before a result arrives.
func (w *waiterMap[T]) cancel(taskID string) {
	w.mu.Lock()
	delete(w.pending, taskID)
	w.mu.Unlock()
}
