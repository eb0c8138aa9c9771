package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock returns the current time. Services always work in UTC.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// MarketLocks serialises writers per market. Entries are dropped once
// nobody holds or waits for them.
type MarketLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*marketLock
}

type marketLock struct {
	mu   sync.Mutex
	refs int
}

func NewMarketLocks() *MarketLocks {
	return &MarketLocks{entries: make(map[uuid.UUID]*marketLock)}
}

// Lock blocks until the caller owns marketID and returns the release func.
func (l *MarketLocks) Lock(marketID uuid.UUID) func() {
	l.mu.Lock()
	e, ok := l.entries[marketID]
	if !ok {
		e = &marketLock{}
		l.entries[marketID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, marketID)
		}
		l.mu.Unlock()
	}
}

func (l *MarketLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
