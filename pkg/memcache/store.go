package memcache

import (
	"container/list"
	"sync"
)

type storeEntry[V any] struct {
	key  string
	v    V
	size int64
}

// Store is a byte-bounded LRU map. Every method takes the store's lock, so a Store
// may be shared between goroutines.
type Store[V any] struct {
	mu      sync.Mutex
	budget  int64
	usage   int64
	sizeOf  func(V) int64
	onEvict func(key string, size int64)

	l *list.List
	m map[string]*list.Element
}

// NewStore creates a Store holding at most budget bytes as measured by sizeOf
func NewStore[V any](budget int64, sizeOf func(V) int64, onEvict func(key string, size int64)) *Store[V] {
	return &Store[V]{
		budget:  budget,
		sizeOf:  sizeOf,
		onEvict: onEvict,
		l:       list.New(),
		m:       make(map[string]*list.Element),
	}
}

// Get returns the value for key and marks it most recently used
func (s *Store[V]) Get(key string) (v V, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[key]
	if !ok {
		return v, false
	}
	s.l.MoveToBack(e)
	return e.Value.(*storeEntry[V]).v, true
}

// Contains reports whether key is cached without affecting its recency
func (s *Store[V]) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.m[key]
	return ok
}

// Put stores v under key, evicting least recently used entries until it fits.
// A value larger than the whole budget is not stored; Put reports whether v was kept.
func (s *Store[V]) Put(key string, v V) bool {
	size := s.sizeOf(v)

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.m[key]; ok {
		s.removeElem(e)
	}

	if size > s.budget {
		return false
	}

	for s.usage+size > s.budget && s.l.Len() > 0 {
		s.evictOldest()
	}

	s.m[key] = s.l.PushBack(&storeEntry[V]{key: key, v: v, size: size})
	s.usage += size
	return true
}

// Del removes key
func (s *Store[V]) Del(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.m[key]; ok {
		s.removeElem(e)
	}
}

// SetBudget changes the ceiling and evicts down to it
func (s *Store[V]) SetBudget(budget int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.budget = budget
	for s.usage > s.budget && s.l.Len() > 0 {
		s.evictOldest()
	}
}

// Clear drops every entry and resets usage to zero
func (s *Store[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.l.Init()
	s.m = make(map[string]*list.Element)
	s.usage = 0
}

// Usage returns the summed size of stored entries
func (s *Store[V]) Usage() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Budget returns the current ceiling
func (s *Store[V]) Budget() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budget
}

// Len returns the number of entries
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.Len()
}

func (s *Store[V]) evictOldest() {
	e := s.l.Front()
	entry := s.removeElem(e)
	if s.onEvict != nil {
		s.onEvict(entry.key, entry.size)
	}
}

func (s *Store[V]) removeElem(e *list.Element) *storeEntry[V] {
	entry := s.l.Remove(e).(*storeEntry[V])
	delete(s.m, entry.key)
	s.usage -= entry.size
	return entry
}
