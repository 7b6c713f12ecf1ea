package repository

import (
	"context"
	"sync"
)

// Stream is a live subscription delivering full snapshots. Only the latest undelivered
// snapshot is kept: a slow consumer skips intermediate states, never sees them reordered.
type Stream[T any] struct {
	ch     chan []T
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// NewStream starts run in a goroutine. run calls emit for each snapshot and returns when
// ctx is cancelled or the source fails.
func NewStream[T any](ctx context.Context, run func(ctx context.Context, emit func([]T)) error) *Stream[T] {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream[T]{
		ch:     make(chan []T, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(s.ch)
		err := run(ctx, func(items []T) { s.emit(ctx, items) })
		if err != nil && ctx.Err() == nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()

	return s
}

func (s *Stream[T]) emit(ctx context.Context, items []T) {
	if ctx.Err() != nil {
		return
	}
	for {
		select {
		case s.ch <- items:
			return
		default:
		}
		// replace the stale pending snapshot
		select {
		case <-s.ch:
		default:
		}
	}
}

// Snapshots is closed after Stop or when the source fails; check Err afterwards.
func (s *Stream[T]) Snapshots() <-chan []T {
	return s.ch
}

// Stop unsubscribes and waits for the producer to exit. Safe to call more than once.
func (s *Stream[T]) Stop() {
	s.cancel()
	<-s.done
}

func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
