// Package lock provides a run-level mutex keyed by sync scope, so two sync
// runs never page through the same congress and bill type at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrLocked is returned when another holder owns the key
var ErrLocked = errors.New("lock is held by another sync run")

// ErrLost is returned by Extend once the lock expired or passed to another holder
var ErrLost = errors.New("lock is no longer held")

// Lease is one holder's claim on a key
type Lease struct {
	Key string

	extend  func(ctx context.Context, ttl time.Duration) error
	release func(ctx context.Context) error
}

// Extend pushes the lease's expiry to ttl from now. It fails with ErrLost
// when the key no longer carries this lease's token.
func (l *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	return l.extend(ctx, ttl)
}

// Release gives the lock back. It is safe to call more than once and never
// removes a lock that has since been taken by someone else.
func (l *Lease) Release(ctx context.Context) error {
	return l.release(ctx)
}

// Locker acquires exclusive, expiring locks by key
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
}

// ScopeKey is the lock key for one (congress, bill type) sync scope
func ScopeKey(congress int, billType string) string {
	return fmt.Sprintf("billtracker:sync:%d:%s", congress, billType)
}

// Local is an in-process Locker for single-instance deployments and tests
type Local struct {
	mu    sync.Mutex
	held  map[string]localEntry
	clock func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
}

// NewLocal creates a new in-process Locker
func NewLocal() *Local {
	return &Local{
		held:  make(map[string]localEntry),
		clock: time.Now,
	}
}

// Acquire takes key for ttl, failing with ErrLocked if it is already held
func (l *Local) Acquire(_ context.Context, key string, ttl time.Duration) (*Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, ErrLocked
	}

	token := uuid.NewString()
	l.held[key] = localEntry{token: token, expires: now.Add(ttl)}

	return &Lease{
		Key: key,
		extend: func(_ context.Context, ttl time.Duration) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			now := l.clock()
			e, ok := l.held[key]
			if !ok || e.token != token || !now.Before(e.expires) {
				return ErrLost
			}
			e.expires = now.Add(ttl)
			l.held[key] = e
			return nil
		},
		release: func(context.Context) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			if e, ok := l.held[key]; ok && e.token == token {
				delete(l.held, key)
			}
			return nil
		},
	}, nil
}
