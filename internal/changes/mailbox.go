package changes

import (
	"context"
	"sync"
)

// Mailbox holds at most one pending ChangeSet. Putting a set while one is
// pending merges them under the newer sequence number, so producers never
// block and no backlog of stale sets builds up.
type Mailbox struct {
	mu      sync.Mutex
	pending *ChangeSet
	ready   chan struct{}
}

// NewMailbox returns an empty Mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{ready: make(chan struct{}, 1)}
}

// Put stores cs, merging it into any pending set.
func (m *Mailbox) Put(cs ChangeSet) {
	m.mu.Lock()
	if m.pending != nil {
		var merged ChangeSet
		if cs.Seq >= m.pending.Seq {
			merged = m.pending.Merge(cs)
		} else {
			merged = cs.Merge(*m.pending)
		}
		m.pending = &merged
	} else {
		m.pending = &cs
	}
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Take blocks until a set is pending or ctx is done.
func (m *Mailbox) Take(ctx context.Context) (ChangeSet, error) {
	for {
		if cs, ok := m.TryTake(); ok {
			return cs, nil
		}
		select {
		case <-ctx.Done():
			return ChangeSet{}, ctx.Err()
		case <-m.ready:
		}
	}
}

// TryTake removes and returns the pending set, if any.
func (m *Mailbox) TryTake() (ChangeSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return ChangeSet{}, false
	}
	cs := *m.pending
	m.pending = nil
	return cs, true
}

// Pending reports whether a set is waiting.
func (m *Mailbox) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

// Ready is signalled after each Put. The signal may be stale; use TryTake
// to see whether a set is actually pending.
func (m *Mailbox) Ready() <-chan struct{} {
	return m.ready
}
