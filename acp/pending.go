package acp

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// expiredIDTTL is how long an abandoned request id is remembered so a late
// response can be told apart from a bogus one.
const expiredIDTTL = 5 * time.Minute

// outcome is what a pending slot is completed with.
type outcome struct {
	result json.RawMessage
	err    error
}

// pendingTable correlates request ids with their waiting callers. Each slot
// is a one-shot channel with room for exactly one outcome, so completing it
// never blocks the reader.
type pendingTable struct {
	mu     sync.Mutex
	slots  map[uint64]chan outcome
	closed bool

	// expired maps abandoned ids to the method that was requested.
	expired *ttlcache.Cache[uint64, string]
}

func newPendingTable() *pendingTable {
	expired := ttlcache.New[uint64, string](
		ttlcache.WithTTL[uint64, string](expiredIDTTL),
		ttlcache.WithDisableTouchOnHit[uint64, string](),
	)

	return &pendingTable{
		slots:   make(map[uint64]chan outcome),
		expired: expired,
	}
}

// insert registers a slot for id. It fails once the table has been cleared.
func (t *pendingTable) insert(id uint64) (<-chan outcome, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, false
	}
	slot := make(chan outcome, 1)
	t.slots[id] = slot
	return slot, true
}

// complete removes the slot for id and hands it the outcome. It reports
// false if no caller is waiting for id.
func (t *pendingTable) complete(id uint64, o outcome) bool {
	t.mu.Lock()
	slot, ok := t.slots[id]
	delete(t.slots, id)
	t.mu.Unlock()

	if !ok {
		return false
	}
	slot <- o
	return true
}

// remove drops the slot for id without completing it.
func (t *pendingTable) remove(id uint64) {
	t.mu.Lock()
	delete(t.slots, id)
	t.mu.Unlock()
}

// abandon drops the slot for id and remembers it as expired.
func (t *pendingTable) abandon(id uint64, method string) {
	t.mu.Lock()
	_, ok := t.slots[id]
	delete(t.slots, id)
	t.mu.Unlock()

	if ok {
		// No janitor goroutine runs; expired entries are pruned here.
		t.expired.DeleteExpired()
		t.expired.Set(id, method, ttlcache.DefaultTTL)
	}
}

// expiredMethod returns the method of an abandoned id still remembered.
func (t *pendingTable) expiredMethod(id uint64) (string, bool) {
	item := t.expired.Get(id)
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

// clear fails every waiter with ErrConnectionClosed and refuses further
// inserts. It returns how many waiters were released.
func (t *pendingTable) clear() int {
	t.mu.Lock()
	slots := t.slots
	t.slots = make(map[uint64]chan outcome)
	t.closed = true
	t.mu.Unlock()

	for _, slot := range slots {
		slot <- outcome{err: ErrConnectionClosed}
	}
	return len(slots)
}

// size returns the number of outstanding requests.
func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}
