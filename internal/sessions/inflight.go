package sessions

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Inflight tracks the cancel functions of outstanding backend calls.
// Commands run on bubbletea's goroutines, so access is locked.
type Inflight struct {
	mu        sync.Mutex
	contexts  map[string]context.CancelFunc
	closed    bool
	closeOnce sync.Once
}

// NewInflight creates an empty tracker
func NewInflight() *Inflight {
	return &Inflight{contexts: make(map[string]context.CancelFunc)}
}

// Begin derives a cancellable context for one call and registers it under a
// fresh request id. The returned done func must be called when the call ends.
// After Close, Begin hands out contexts that are already cancelled.
func (f *Inflight) Begin(parent context.Context) (context.Context, string, func()) {
	ctx, cancel := context.WithCancel(parent)
	requestID := uuid.New().String()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		cancel()
		return ctx, requestID, func() {}
	}
	f.contexts[requestID] = cancel
	f.mu.Unlock()

	done := func() {
		f.mu.Lock()
		delete(f.contexts, requestID)
		f.mu.Unlock()
		cancel()
	}
	return ctx, requestID, done
}

// Cancel cancels a specific request
func (f *Inflight) Cancel(requestID string) {
	f.mu.Lock()
	cancel, ok := f.contexts[requestID]
	f.mu.Unlock()

	if ok {
		cancel()
	}
}

// CancelAll cancels all active requests
func (f *Inflight) CancelAll() {
	f.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(f.contexts))
	for _, cancel := range f.contexts {
		cancels = append(cancels, cancel)
	}
	f.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Len returns the number of outstanding calls
func (f *Inflight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.contexts)
}

// Close cancels everything and refuses new calls
func (f *Inflight) Close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		for _, cancel := range f.contexts {
			cancel()
		}
		f.mu.Unlock()
	})
}
