package engine

import (
	"context"
	"sync"
)

// semaphore is a context-aware admission gate for stage workers.
//
// A limit of 0 means unlimited; Acquire always succeeds immediately.
// Blocked waiters are woken on context cancellation via Cond.Broadcast so
// they can return the context error instead of waiting forever.
type semaphore struct {
	mu       sync.Mutex
	cond     *sync.Cond
	limit    int // 0 = unlimited
	acquired int
}

// newSemaphore creates a gate with the given capacity. Negative values are
// clamped to 0 (unlimited).
func newSemaphore(limit int) *semaphore {
	if limit < 0 {
		limit = 0
	}
	s := &semaphore{limit: limit}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Acquire blocks until a slot is available or the context is cancelled.
// Returns nil on success, or the context error if cancelled.
func (s *semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limit == 0 {
		s.acquired++
		return nil
	}

	// A helper goroutine broadcasts on cancellation so waiters blocked in
	// cond.Wait re-check the context.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.cond.Broadcast()
		case <-done:
		}
	}()

	for s.acquired >= s.limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}

	// The wake may have been the cancellation broadcast.
	if err := ctx.Err(); err != nil {
		return err
	}

	s.acquired++
	return nil
}

// Release frees a slot and signals one waiting goroutine.
func (s *semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acquired > 0 {
		s.acquired--
	}
	s.cond.Signal()
}

// Acquired returns the number of currently held slots.
func (s *semaphore) Acquired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired
}
