package service

import (
	"slices"
	"sync"
)

// AccountLocks hands out one read/write lock per account. Series reads share the lock; anything
// that writes to an account's log holds it exclusively.
type AccountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewAccountLocks creates an empty lock table.
func NewAccountLocks() *AccountLocks {
	return &AccountLocks{locks: make(map[string]*sync.RWMutex)}
}

func (l *AccountLocks) get(accountID string) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[accountID]
	if !ok {
		m = &sync.RWMutex{}
		l.locks[accountID] = m
	}
	return m
}

// RLock takes the shared locks of the given accounts and returns their release function.
func (l *AccountLocks) RLock(accountIDs ...string) func() {
	return l.acquire(accountIDs, (*sync.RWMutex).RLock, (*sync.RWMutex).RUnlock)
}

// Lock takes the exclusive locks of the given accounts and returns their release function.
func (l *AccountLocks) Lock(accountIDs ...string) func() {
	return l.acquire(accountIDs, (*sync.RWMutex).Lock, (*sync.RWMutex).Unlock)
}

// acquire locks in ascending ID order, so that two operations over overlapping accounts cannot
// deadlock. Duplicate and empty IDs are ignored.
func (l *AccountLocks) acquire(accountIDs []string, lock, unlock func(*sync.RWMutex)) func() {
	ids := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	held := make([]*sync.RWMutex, 0, len(ids))
	for _, id := range ids {
		m := l.get(id)
		lock(m)
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			unlock(held[i])
		}
	}
}
