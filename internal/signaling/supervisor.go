package signaling

import "github.com/google/uuid"

// supervisor.go is the Session Supervisor (C4): the join-queue entry point
// and the canonical teardown sequence for skip, leave-queue, and disconnect
// (spec §4.5). Every handler here runs its registry/queue mutations inside
// one Registry.withLock call, then sends outbound events only after the
// lock has been released, matching the "no I/O inside the critical
// section" rule in spec §5.

// attemptMatchLocked is the one place Waiting-or-matched transitions
// happen: given a User already holding the lock, it either finds and
// removes an eligible waiter (leaving both Users to be paired by the
// caller) or enqueues candidate and leaves it Waiting. Both a fresh
// join-queue and the Supervisor's mandatory re-queue of an abandoned
// partner call this same function, so there is exactly one matcher entry
// point in the whole core (spec §9).
func (c *Core) attemptMatchLocked(candidate *User) *User {
	if w := findMatch(c.queue, candidate); w != nil {
		candidate.Partner = w.ConnID
		w.Partner = candidate.ConnID
		candidate.State = Paired
		w.State = Paired
		return w
	}
	candidate.State = Waiting
	c.queue.Enqueue(candidate)
	return nil
}

// handleJoinQueue implements the Idle --join-queue--> Waiting|Paired
// transition. join-queue is ignored with no side effect and no reply when
// the sender isn't Idle (already Waiting or Paired), per spec §4.4.1.
func (c *Core) handleJoinQueue(connID uuid.UUID, f Frame) {
	payload, ok := decodePayload[JoinQueuePayload](f)
	if !ok {
		c.metrics.EventDropped("malformed-join-queue")
		return
	}

	var candidate, matched *User
	c.registry.withLock(func() {
		u := c.registry.users[connID]
		if u == nil || u.State != Idle {
			return
		}
		u.UserID = payload.UserID
		u.Username = payload.Username
		u.Gender = payload.Gender
		u.PreferredGender = payload.PreferredGender
		u.Tier = payload.Tier
		u.Age = payload.Age

		candidate = u
		matched = c.attemptMatchLocked(u)
	})

	if candidate == nil {
		return
	}
	if matched != nil {
		c.sendMatched(candidate, matched)
		c.metrics.PairFormed()
		return
	}
	c.sendEvent(candidate.ConnID, EventWaiting, struct{}{})
}

// teardownLocked clears both sides of a pairing and returns both Users to
// Idle. Must be called holding the registry lock. partner may be nil only
// if the registry is already inconsistent; callers always look it up from
// actor.Partner immediately before calling this.
func (c *Core) teardownLocked(actor, partner *User) {
	actor.Partner = uuid.Nil
	actor.State = Idle
	if partner != nil {
		partner.Partner = uuid.Nil
		partner.State = Idle
	}
}

// requeuePartner re-runs the matcher for a partner left behind by a skip,
// leave-queue, or disconnect, exactly as if that partner had just sent
// join-queue (spec §4.5 step 4). It re-checks partner's identity and state
// under a fresh lock acquisition so a partner that itself disconnected or
// reconnected in the meantime is never resurrected into a match.
func (c *Core) requeuePartner(partner *User) {
	if partner == nil {
		return
	}
	var matched *User
	var stillLive bool
	c.registry.withLock(func() {
		current := c.registry.users[partner.ConnID]
		if current == nil || current != partner || current.State != Idle {
			return
		}
		stillLive = true
		matched = c.attemptMatchLocked(partner)
	})
	if !stillLive {
		return
	}
	if matched != nil {
		c.sendMatched(partner, matched)
		c.metrics.PairFormed()
		return
	}
	c.sendEvent(partner.ConnID, EventWaiting, struct{}{})
}

// handleSkip implements skip: a no-op on Idle, a queue removal on Waiting,
// or a full teardown-and-requeue on Paired (spec §4.5, §8 scenario 3).
func (c *Core) handleSkip(connID uuid.UUID) {
	var actor, partner *User
	var wasWaiting, wasPaired bool
	c.registry.withLock(func() {
		u := c.registry.users[connID]
		if u == nil {
			return
		}
		switch u.State {
		case Waiting:
			c.queue.Remove(connID)
			u.State = Idle
			actor = u
			wasWaiting = true
		case Paired:
			partner = c.registry.users[u.Partner]
			c.teardownLocked(u, partner)
			actor = u
			wasPaired = true
		}
	})

	switch {
	case wasWaiting:
		c.sendEvent(actor.ConnID, EventSkipped, struct{}{})
	case wasPaired:
		c.sendEvent(actor.ConnID, EventSkipped, struct{}{})
		c.sendEvent(partner.ConnID, EventPartnerSkipped, struct{}{})
		c.requeuePartner(partner)
	}
}

// handleLeaveQueue implements leave-queue: a no-op on Idle, a queue removal
// on Waiting, or a teardown-and-requeue on Paired. Unlike skip, the actor
// is never replied to.
func (c *Core) handleLeaveQueue(connID uuid.UUID) {
	var partner *User
	var wasPaired bool
	c.registry.withLock(func() {
		u := c.registry.users[connID]
		if u == nil {
			return
		}
		switch u.State {
		case Waiting:
			c.queue.Remove(connID)
			u.State = Idle
		case Paired:
			partner = c.registry.users[u.Partner]
			c.teardownLocked(u, partner)
			wasPaired = true
		}
	})

	if wasPaired {
		c.sendEvent(partner.ConnID, EventPartnerDisconnected, struct{}{})
		c.requeuePartner(partner)
	}
}

// HandleDisconnect implements the disconnect transition from any state: it
// removes connID from whichever pool holds it (Waiting), tears down and
// requeues its partner (Paired), and always removes connID from the
// registry itself (spec §4.5 step 5, invariant 5). It is exported because
// the Transport Adapter's read loop calls it directly on connection close,
// and it is idempotent so a transport-error-triggered disconnect racing a
// client-initiated one is safe.
func (c *Core) HandleDisconnect(connID uuid.UUID) {
	var partner *User
	var wasPaired, removed bool
	c.registry.withLock(func() {
		u := c.registry.users[connID]
		if u == nil {
			return
		}
		switch u.State {
		case Waiting:
			c.queue.Remove(connID)
		case Paired:
			partner = c.registry.users[u.Partner]
			c.teardownLocked(u, partner)
			wasPaired = true
		}
		delete(c.registry.users, connID)
		removed = true
	})

	if removed {
		c.metrics.ConnectionClosed()
	}
	if wasPaired {
		c.sendEvent(partner.ConnID, EventPartnerDisconnected, struct{}{})
		c.requeuePartner(partner)
	}
}
