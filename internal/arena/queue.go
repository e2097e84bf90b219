package arena

import (
	"sync"
	"time"

	"github.com/park285/chess-arena/internal/metrics"
	"github.com/park285/chess-arena/internal/session"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

const (
	ErrAlreadyInMatch = staticErr("identity already has an active match")
	ErrAlreadyWaiting = staticErr("identity is already waiting")
)

// waitingEntry is one queued player.
type waitingEntry struct {
	identity   session.Identity
	conn       session.Conn
	enqueuedAt time.Time
}

// Queue is the process-wide matchmaking queue. Enqueue, Cancel and the
// pairing pass all serialize on one mutex, so entries can never be paired
// twice or orphaned. The pair callback runs inside that critical section.
type Queue struct {
	mu      sync.Mutex
	entries []waitingEntry
	inMatch func(identityID string) bool
	pair    func(a, b waitingEntry)
}

func NewQueue(inMatch func(identityID string) bool, pair func(a, b waitingEntry)) *Queue {
	return &Queue{inMatch: inMatch, pair: pair}
}

// Enqueue adds the identity and runs a pairing pass. Rejected when the
// identity already has an active match or is already queued.
func (q *Queue) Enqueue(identity session.Identity, conn session.Conn) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inMatch != nil && q.inMatch(identity.ID) {
		return ErrAlreadyInMatch
	}
	for _, e := range q.entries {
		if e.identity.ID == identity.ID {
			return ErrAlreadyWaiting
		}
	}
	q.entries = append(q.entries, waitingEntry{identity: identity, conn: conn, enqueuedAt: time.Now()})
	q.drainLocked()
	metrics.QueueDepth.Set(float64(len(q.entries)))
	return nil
}

// Cancel removes a waiting entry; no-op when absent.
func (q *Queue) Cancel(identityID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.identity.ID == identityID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			metrics.QueueDepth.Set(float64(len(q.entries)))
			return true
		}
	}
	return false
}

// Len reports the number of waiting entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// drainLocked pairs the head with the first entry of a different identity,
// repeating until no pair remains. The head is never requeued past later
// entries, preserving FIFO fairness.
func (q *Queue) drainLocked() {
	for len(q.entries) >= 2 {
		head := q.entries[0]
		idx := -1
		for i := 1; i < len(q.entries); i++ {
			if q.entries[i].identity.ID != head.identity.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		other := q.entries[idx]
		q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
		q.entries = q.entries[1:]
		if q.pair != nil {
			q.pair(head, other)
		}
	}
}
