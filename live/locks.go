// Package live coordinates the concurrent side of trading: tick
// ingestion, persistence, the single bar/strategy worker, decision and
// order deduplication, and engine lifecycle.
package live

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Locker is the distributed-lock capability. TryAcquire never blocks:
// failure means another worker holds the key and the caller skips the
// bar or order instead of retrying. Locks expire after their TTL even
// if never released.
type Locker interface {
	TryAcquire(key string, ttl time.Duration) bool
	Release(key string)
}

// CandleLockKey dedups bar decisions: exactly one worker instance may
// process a given (instrument, bar-start) pair, across restarts.
func CandleLockKey(token string, start time.Time) string {
	return fmt.Sprintf("lock:candle:%s:%s", token, start.UTC().Format(time.RFC3339))
}

// OrderLockKey dedups order placement per account and instrument.
func OrderLockKey(account, token string) string {
	return fmt.Sprintf("lock:order:%s:%s", account, token)
}

// ErrOrderInFlight reports that the order-dedup lock is held elsewhere.
// Not a failure: someone else is placing this order.
var ErrOrderInFlight = errors.New("live: order lock held, placement skipped")

// MemoryLocker is the in-process Locker. It backs single-node
// deployments and tests; multi-node deployments inject a shared lock
// service behind the same interface.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryLocker) TryAcquire(key string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if exp, ok := m.held[key]; ok && now.Before(exp) {
		return false
	}
	m.held[key] = now.Add(ttl)
	return true
}

func (m *MemoryLocker) Release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, key)
}
