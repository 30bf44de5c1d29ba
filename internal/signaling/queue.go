package signaling

import (
	"container/list"

	"github.com/google/uuid"
)

// pool is one FIFO waiting list with an index for O(1) removal, per spec
// §4.3's recommended structure.
type pool struct {
	order *list.List
	index map[uuid.UUID]*list.Element
}

func newPool() *pool {
	return &pool{order: list.New(), index: make(map[uuid.UUID]*list.Element)}
}

func (p *pool) pushBack(u *User) {
	if _, ok := p.index[u.ConnID]; ok {
		return
	}
	p.index[u.ConnID] = p.order.PushBack(u)
}

func (p *pool) remove(connID uuid.UUID) bool {
	elem, ok := p.index[connID]
	if !ok {
		return false
	}
	p.order.Remove(elem)
	delete(p.index, connID)
	return true
}

func (p *pool) len() int {
	return p.order.Len()
}

// QueueSet is the Queue Set (C2): four FIFO pools keyed by the queueing
// bucket rule in spec §4.3.1. It has no lock of its own — every exported
// method on Matcher/Supervisor that touches a QueueSet runs under the
// owning Registry's lock, per the fixed registry-lock-before-queue-lock
// ordering spec §5 allows for a sharded design. Since this implementation
// uses a single coarse lock (the Registry's), QueueSet itself stays
// unsynchronized and is only ever touched holding that lock.
type QueueSet struct {
	pools map[Gender]*pool
}

// NewQueueSet constructs the four empty pools: any, male, female, other.
func NewQueueSet() *QueueSet {
	qs := &QueueSet{pools: make(map[Gender]*pool, 4)}
	for _, g := range []Gender{GenderAny, GenderMale, GenderFemale, GenderOther} {
		qs.pools[g] = newPool()
	}
	return qs
}

// bucketFor implements spec §4.3.1: a premium user with a specific
// preference waits in the pool named by that preference; everyone else
// waits in "any".
func bucketFor(u *User) Gender {
	if u.Tier == TierPremium && u.PreferredGender.Valid() {
		return u.PreferredGender
	}
	return GenderAny
}

// Enqueue places u in its queueing bucket. It is idempotent: a connection
// already present in some pool is never duplicated into another.
func (qs *QueueSet) Enqueue(u *User) {
	for _, p := range qs.pools {
		if _, ok := p.index[u.ConnID]; ok {
			return
		}
	}
	qs.pools[bucketFor(u)].pushBack(u)
}

// Remove deletes connID from whichever pool (if any) holds it.
func (qs *QueueSet) Remove(connID uuid.UUID) {
	for _, p := range qs.pools {
		if p.remove(connID) {
			return
		}
	}
}

// Contains reports whether connID is waiting in any pool — used by tests to
// assert the at-most-one-queue invariant.
func (qs *QueueSet) Contains(connID uuid.UUID) bool {
	for _, p := range qs.pools {
		if _, ok := p.index[connID]; ok {
			return true
		}
	}
	return false
}

// Len returns the number of waiters in a given pool, for metrics.
func (qs *QueueSet) Len(g Gender) int {
	return qs.pools[g].len()
}

// scanPool walks g's pool oldest-first, removing and returning the first
// waiter for which eligible returns true.
func (qs *QueueSet) scanPool(g Gender, eligible func(*User) bool) *User {
	p := qs.pools[g]
	for e := p.order.Front(); e != nil; e = e.Next() {
		w := e.Value.(*User)
		if eligible(w) {
			p.order.Remove(e)
			delete(p.index, w.ConnID)
			return w
		}
	}
	return nil
}
