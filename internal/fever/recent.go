package fever

import (
	"sync"
	"time"
)

const (
	defaultRecentTTL    = 15 * time.Minute
	defaultRecentMaxIDs = 1000
)

type markBatch struct {
	ids []int64
	at  time.Time
}

// RecentMarks remembers, per credential identity, the ids most
// recently flipped to read by a mark directive, so a client can undo
// its own auto-mark-read with unread_recently_read. The record is
// bounded and expires; it is deliberately not a process singleton, so
// one device's revert cannot undo marks recorded for a different
// credential.
type RecentMarks struct {
	mu      sync.Mutex
	batches map[int64]markBatch
	ttl     time.Duration
	maxIDs  int
	now     func() time.Time
}

// NewRecentMarks creates a tracker with the given expiry and id cap.
// Zero values select the defaults.
func NewRecentMarks(ttl time.Duration, maxIDs int) *RecentMarks {
	if ttl <= 0 {
		ttl = defaultRecentTTL
	}
	if maxIDs <= 0 {
		maxIDs = defaultRecentMaxIDs
	}
	return &RecentMarks{
		batches: make(map[int64]markBatch),
		ttl:     ttl,
		maxIDs:  maxIDs,
		now:     time.Now,
	}
}

// Record replaces the user's batch with the given ids. Empty batches
// are ignored so a no-op mark does not discard a revertable one.
func (m *RecentMarks) Record(userID int64, ids []int64) {
	if len(ids) == 0 {
		return
	}
	if len(ids) > m.maxIDs {
		ids = ids[len(ids)-m.maxIDs:]
	}
	batch := markBatch{ids: append([]int64(nil), ids...), at: m.now()}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[userID] = batch
}

// Take removes and returns the user's batch if it has not expired.
// A nil result means there is nothing to revert,
// which callers treat as a successful no-op.
func (m *RecentMarks) Take(userID int64) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch, ok := m.batches[userID]
	if !ok {
		return nil
	}
	delete(m.batches, userID)

	if m.now().Sub(batch.at) > m.ttl {
		return nil
	}
	return batch.ids
}
