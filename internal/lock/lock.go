// Package lock serializes work on a single key, typically one place.
//
// The store already rejects conflicting occupancy changes; holding the
// place lock first turns most of those races into an orderly wait
// instead of a failed transaction.  Two implementations exist: Local
// for a single process and Redis for a fleet sharing one Redis.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when the key stays held for longer than the
// configured wait.
var ErrTimeout = errors.New("lock: wait timed out")

// ErrUnavailable is returned when the lock backend cannot be reached.
// Callers may proceed unlocked and rely on the store's own guards.
var ErrUnavailable = errors.New("lock: backend unavailable")

// Locker hands out exclusive holds on string keys.
type Locker interface {
	// Acquire blocks until key is held, the wait elapses or ctx is done.
	// The returned release must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Noop never blocks.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

// Local is an in-process keyed mutex.
type Local struct {
	wait time.Duration

	mu   sync.Mutex
	keys map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns a Local whose Acquire gives up after wait.  A zero wait
// means wait until ctx is done.
func NewLocal(wait time.Duration) *Local {
	return &Local{wait: wait, keys: map[string]*slot{}}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.keys[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.keys[key] = s
	}
	s.refs++
	l.mu.Unlock()

	var timeout <-chan time.Time
	if l.wait > 0 {
		t := time.NewTimer(l.wait)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				l.drop(key, s)
			})
		}, nil
	case <-timeout:
		l.drop(key, s)
		return nil, ErrTimeout
	case <-ctx.Done():
		l.drop(key, s)
		return nil, ctx.Err()
	}
}

func (l *Local) drop(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.keys, key)
	}
}

// held reports how many callers hold or wait on key.  Used by tests.
func (l *Local) held(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.keys[key]; ok {
		return s.refs
	}
	return 0
}
