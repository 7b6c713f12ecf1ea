package repository

import (
	"context"
	"reflect"
	"sync"
	"time"

	"speak/internal/domain/entity"
	"speak/internal/domain/repository"
)

// MemoryStore is an in-process document store with live queries. It backs the memory
// store backend and the package tests. Every mutation runs under one mutex, so each
// method is a serializable transaction.
type MemoryStore struct {
	mu          sync.Mutex
	posts       map[string]*entity.Post
	messages    map[string]map[string]*entity.Message
	engagements map[string]string
	users       map[string]*entity.Profile
	counselors  map[string]*entity.Profile
	verified    map[string]bool

	clock    func() time.Time
	lastTime time.Time

	watchers    map[int]chan struct{}
	nextWatcher int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:       make(map[string]*entity.Post),
		messages:    make(map[string]map[string]*entity.Message),
		engagements: make(map[string]string),
		users:       make(map[string]*entity.Profile),
		counselors:  make(map[string]*entity.Profile),
		verified:    make(map[string]bool),
		clock:       time.Now,
		watchers:    make(map[int]chan struct{}),
	}
}

// SetClock replaces the server clock. Used by tests.
func (s *MemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// serverTime plays the role of the server timestamp sentinel: strictly increasing so
// that createdAt is a total order. Caller holds mu.
func (s *MemoryStore) serverTime() time.Time {
	t := s.clock().UTC()
	if !t.After(s.lastTime) {
		t = s.lastTime.Add(time.Microsecond)
	}
	s.lastTime = t
	return t
}

// changed wakes every live query. Caller holds mu.
func (s *MemoryStore) changed() {
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *MemoryStore) addWatcher() (int, chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextWatcher
	s.nextWatcher++
	ch := make(chan struct{}, 1)
	s.watchers[id] = ch
	return id, ch
}

func (s *MemoryStore) removeWatcher(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers, id)
}

// WatcherCount reports the number of open live queries.
func (s *MemoryStore) WatcherCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// watchQuery emits the result of snapshot now and again whenever it changes.
func watchQuery[T any](s *MemoryStore, snapshot func() []T) func(ctx context.Context, emit func([]T)) error {
	return func(ctx context.Context, emit func([]T)) error {
		id, wake := s.addWatcher()
		defer s.removeWatcher(id)

		var last []T
		first := true
		for {
			s.mu.Lock()
			current := snapshot()
			s.mu.Unlock()

			if first || !reflect.DeepEqual(last, current) {
				emit(current)
				last = current
				first = false
			}

			select {
			case <-ctx.Done():
				return nil
			case <-wake:
			}
		}
	}
}

// Posts returns a PostRepository view of the store.
func (s *MemoryStore) Posts() repository.PostRepository {
	return &memoryPostRepository{store: s}
}

// Messages returns a MessageRepository view of the store.
func (s *MemoryStore) Messages() repository.MessageRepository {
	return &memoryMessageRepository{store: s}
}

// Profiles returns a ProfileRepository view of the store.
func (s *MemoryStore) Profiles() repository.ProfileRepository {
	return &memoryProfileRepository{store: s}
}
