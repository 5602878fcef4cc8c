package engine

import (
	"context"
	"testing"
	"time"
)

func TestSemaphoreLimit(t *testing.T) {
	s := newSemaphore(2)
	ctx := context.Background()

	if err := s.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := s.Acquire(ctx); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if got := s.Acquired(); got != 2 {
		t.Errorf("Acquired() = %d, want 2", got)
	}

	// Third acquire should block until a release.
	acquired := make(chan error, 1)
	go func() {
		acquired <- s.Acquire(ctx)
	}()

	select {
	case err := <-acquired:
		t.Fatalf("third Acquire returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	s.Release()
	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("third Acquire after release: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("third Acquire still blocked after release")
	}
}

func TestSemaphoreContextCancel(t *testing.T) {
	s := newSemaphore(1)
	if err := s.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	acquired := make(chan error, 1)
	go func() {
		acquired <- s.Acquire(ctx)
	}()

	select {
	case err := <-acquired:
		t.Fatalf("Acquire returned before cancel: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-acquired:
		if err != context.Canceled {
			t.Errorf("Acquire after cancel = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire still blocked after cancel")
	}

	if got := s.Acquired(); got != 1 {
		t.Errorf("Acquired() = %d after failed acquire, want 1", got)
	}
}

func TestSemaphoreUnlimited(t *testing.T) {
	s := newSemaphore(0)
	ctx := context.Background()

	for range 100 {
		if err := s.Acquire(ctx); err != nil {
			t.Fatalf("Acquire: %v", err)
		}
	}
	if got := s.Acquired(); got != 100 {
		t.Errorf("Acquired() = %d, want 100", got)
	}
}

func TestSemaphoreNegativeLimitClamped(t *testing.T) {
	s := newSemaphore(-5)
	if err := s.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire on clamped semaphore: %v", err)
	}
}
