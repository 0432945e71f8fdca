// Package scopelock serializes operations on the same scheduling scope.
//
// Dependency mutation, cycle checking, and the readiness cascade are
// read-modify-write sequences over one work order's graph. Operations on
// different scopes run concurrently; operations on the same scope queue.
//
//	unlock, err := locks.Lock(ctx, scopelock.Key(tenant, workOrder))
//	if err != nil {
//	    return err
//	}
//	defer unlock()
//
// Entries are reference counted and removed once no holder or waiter
// remains, so the map does not grow with the number of scopes ever seen.
package scopelock

import (
	"context"
	"net/url"
	"sync"
)

type entry struct {
	ch   chan struct{} // capacity 1; holding the token means holding the lock
	refs int
}

// Locks is a set of keyed mutexes. The zero value is not usable; call New.
type Locks struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty lock set.
func New() *Locks {
	return &Locks{entries: make(map[string]*entry)}
}

// Key builds the lock key for a tenant's work order.
func Key(tenantID, workOrderID string) string {
	return join("scope", tenantID, workOrderID)
}

// ResourceKey builds the lock key for a tenant-wide resource such as a
// round robin cursor. It never equals a Key.
func ResourceKey(tenantID, name string) string {
	return join("resource", tenantID, name)
}

// join escapes each component so IDs containing '/' cannot alias another key.
func join(namespace, tenantID, name string) string {
	return namespace + "/" + url.PathEscape(tenantID) + "/" + url.PathEscape(name)
}

// Lock blocks until the lock for key is held or ctx is done. The returned
// func releases the lock and must be called exactly once.
func (l *Locks) Lock(ctx context.Context, key string) (func(), error) {
	e := l.acquireRef(key)

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.releaseRef(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.releaseRef(key, e)
		})
	}, nil
}

// Held returns the number of keys currently locked or awaited.
func (l *Locks) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Locks) acquireRef(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Locks) releaseRef(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}
