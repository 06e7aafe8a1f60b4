package router

import "sync"

// pendingTable maps correlation ids of outstanding worker requests to the
// identity whose browser endpoint should receive the reply. Entries are
// consumed exactly once; a worker that never replies leaves its entry behind
// (no TTL, matching upstream behavior).
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]string
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]string)}
}

// Add records correlationID as awaiting a reply for identity.
func (p *pendingTable) Add(correlationID, identity string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[correlationID] = identity
}

// Take consumes the entry for correlationID, deleting it. The second return
// is false when no entry exists (already consumed or never created).
func (p *pendingTable) Take(correlationID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	identity, ok := p.entries[correlationID]
	if ok {
		delete(p.entries, correlationID)
	}
	return identity, ok
}

// Delete drops the entry for correlationID, if any.
func (p *pendingTable) Delete(correlationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, correlationID)
}

// Len reports the number of outstanding entries.
func (p *pendingTable) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
