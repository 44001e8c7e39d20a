package sim

import "sync"

// RoundRobin rotates over a mutable set of worker ids: the j-th call to Next
// returns member j mod m, so over any window of N consecutive picks the
// per-member counts differ by at most 1.
type RoundRobin struct {
	mu   sync.Mutex
	ids  []string
	next int
}

// NewRoundRobin builds a balancer over the given initial members.
func NewRoundRobin(ids []string) *RoundRobin {
	rr := &RoundRobin{}
	rr.ids = append(rr.ids, ids...)
	return rr
}

// Next returns the next member in rotation. ok is false when empty.
func (rr *RoundRobin) Next() (id string, ok bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if len(rr.ids) == 0 {
		return "", false
	}
	if rr.next >= len(rr.ids) {
		rr.next = 0
	}
	id = rr.ids[rr.next]
	rr.next++
	return id, true
}

// Add appends a new member to the rotation.
func (rr *RoundRobin) Add(id string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	for _, existing := range rr.ids {
		if existing == id {
			return
		}
	}
	rr.ids = append(rr.ids, id)
}

// Remove drops a member, keeping the cursor on the member that would have
// been picked next.
func (rr *RoundRobin) Remove(id string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	for i, existing := range rr.ids {
		if existing == id {
			rr.ids = append(rr.ids[:i], rr.ids[i+1:]...)
			if i < rr.next {
				rr.next--
			}
			return
		}
	}
}

// Len returns the current member count.
func (rr *RoundRobin) Len() int {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return len(rr.ids)
}

// Members returns a copy of the rotation in order.
func (rr *RoundRobin) Members() []string {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	out := make([]string, len(rr.ids))
	copy(out, rr.ids)
	return out
}
