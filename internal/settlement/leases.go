package settlement

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"stockdesk/internal/ledger"
)

// leases hands out one exclusive lease per scope. Entries are reference
// counted and dropped once nobody holds or waits for them.
type leases struct {
	mu sync.Mutex
	m  map[ledger.Scope]*lease
}

type lease struct {
	sem  *semaphore.Weighted
	refs int
}

func newLeases() *leases {
	return &leases{m: make(map[ledger.Scope]*lease)}
}

// acquire blocks until the lease for key is free or ctx is done.
func (l *leases) acquire(ctx context.Context, key ledger.Scope) (func(), error) {
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		e = &lease{sem: semaphore.NewWeighted(1)}
		l.m[key] = e
	}
	e.refs++
	l.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.drop(key, e)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.drop(key, e)
		})
	}, nil
}

func (l *leases) drop(key ledger.Scope, e *lease) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 && l.m[key] == e {
		delete(l.m, key)
	}
}

func (l *leases) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
