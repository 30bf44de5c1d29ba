package signaling

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeTransport is an in-memory Transport double: every Send is recorded
// per connection so tests can assert exactly what the core sent, without
// a real socket.
type fakeTransport struct {
	mu    sync.Mutex
	sent  map[uuid.UUID][]sentEvent
	gone  map[uuid.UUID]bool
	closed map[uuid.UUID]bool
}

type sentEvent struct {
	eventType string
	payload   any
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent:   make(map[uuid.UUID][]sentEvent),
		gone:   make(map[uuid.UUID]bool),
		closed: make(map[uuid.UUID]bool),
	}
}

func (f *fakeTransport) Send(connID uuid.UUID, eventType string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[connID] {
		return ErrUnreachable
	}
	f.sent[connID] = append(f.sent[connID], sentEvent{eventType: eventType, payload: payload})
	return nil
}

func (f *fakeTransport) Close(connID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[connID] = true
}

func (f *fakeTransport) markGone(connID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gone[connID] = true
}

func (f *fakeTransport) eventsFor(connID uuid.UUID) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentEvent, len(f.sent[connID]))
	copy(out, f.sent[connID])
	return out
}

func (f *fakeTransport) lastEvent(connID uuid.UUID) (sentEvent, bool) {
	evts := f.eventsFor(connID)
	if len(evts) == 0 {
		return sentEvent{}, false
	}
	return evts[len(evts)-1], true
}

func joinPayload(userID, username string, gender, pref Gender, tier Tier, age int) Frame {
	b, err := json.Marshal(JoinQueuePayload{
		UserID: userID, Username: username, Gender: gender,
		PreferredGender: pref, Tier: tier, Age: age,
	})
	if err != nil {
		panic(err)
	}
	return Frame{Type: EventJoinQueue, Payload: b}
}

func TestCore_InstantMatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := newFakeTransport()
	core := NewCore(transport, nil, nil)

	a := uuid.New()
	b := uuid.New()
	core.OnConnect(a)
	core.OnConnect(b)

	core.Dispatch(a, joinPayload("a1", "Alice", GenderFemale, GenderAny, TierFree, 25))
	waitingEvt, ok := transport.lastEvent(a)
	require.True(t, ok)
	assert.Equal(t, EventWaiting, waitingEvt.eventType)

	core.Dispatch(b, joinPayload("b1", "Bob", GenderMale, GenderAny, TierFree, 27))

	aEvt, ok := transport.lastEvent(a)
	require.True(t, ok)
	assert.Equal(t, EventMatched, aEvt.eventType)
	bEvt, ok := transport.lastEvent(b)
	require.True(t, ok)
	assert.Equal(t, EventMatched, bEvt.eventType)

	matchedA := aEvt.payload.(MatchedPayload)
	assert.Equal(t, b, matchedA.PartnerID)
	matchedB := bEvt.payload.(MatchedPayload)
	assert.Equal(t, a, matchedB.PartnerID)
}

func TestCore_PremiumPreferenceExcludesIneligibleWaiter(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := newFakeTransport()
	core := NewCore(transport, nil, nil)

	man := uuid.New()
	secondWoman := uuid.New()
	core.OnConnect(man)
	core.OnConnect(secondWoman)

	core.Dispatch(man, joinPayload("m1", "Man", GenderMale, GenderAny, TierFree, 30))

	premiumWoman := uuid.New()
	core.OnConnect(premiumWoman)
	core.Dispatch(premiumWoman, joinPayload("p1", "Premium", GenderFemale, GenderFemale, TierPremium, 28))

	evt, ok := transport.lastEvent(premiumWoman)
	require.True(t, ok)
	assert.Equal(t, EventWaiting, evt.eventType, "premium candidate preferring female finds no eligible male waiter")

	// A second premium-female-preferring candidate scans the "female" pool
	// before "any", so it reaches premiumWoman even with man still waiting.
	core.Dispatch(secondWoman, joinPayload("w2", "Woman2", GenderFemale, GenderFemale, TierPremium, 29))
	evt, ok = transport.lastEvent(premiumWoman)
	require.True(t, ok)
	assert.Equal(t, EventMatched, evt.eventType)
}

func TestCore_SkipTriggersTeardownAndRequeue(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := newFakeTransport()
	core := NewCore(transport, nil, nil)

	a, b := uuid.New(), uuid.New()
	core.OnConnect(a)
	core.OnConnect(b)
	core.Dispatch(a, joinPayload("a1", "A", GenderMale, GenderAny, TierFree, 20))
	core.Dispatch(b, joinPayload("b1", "B", GenderFemale, GenderAny, TierFree, 21))

	core.Dispatch(a, Frame{Type: EventSkip})

	aEvt, ok := transport.lastEvent(a)
	require.True(t, ok)
	assert.Equal(t, EventSkipped, aEvt.eventType)

	bEvts := transport.eventsFor(b)
	require.Len(t, bEvts, 3, "matched on join, then partner-skipped and re-queued waiting once a skips")
	assert.Equal(t, EventPartnerSkipped, bEvts[1].eventType)
	assert.Equal(t, EventWaiting, bEvts[2].eventType, "with no other waiter yet, b goes back to Waiting")

	c := uuid.New()
	core.OnConnect(c)
	core.Dispatch(c, joinPayload("c1", "C", GenderMale, GenderAny, TierFree, 22))

	bEvts = transport.eventsFor(b)
	require.Len(t, bEvts, 4, "a new candidate finds b waiting and matches")
	assert.Equal(t, EventMatched, bEvts[3].eventType)
}

func TestCore_DisconnectRequeuesPartner(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := newFakeTransport()
	core := NewCore(transport, nil, nil)

	a, b := uuid.New(), uuid.New()
	core.OnConnect(a)
	core.OnConnect(b)
	core.Dispatch(a, joinPayload("a1", "A", GenderMale, GenderAny, TierFree, 20))
	core.Dispatch(b, joinPayload("b1", "B", GenderFemale, GenderAny, TierFree, 21))

	core.HandleDisconnect(a)

	bEvts := transport.eventsFor(b)
	require.Len(t, bEvts, 3, "matched on join, then partner-disconnected and re-queued waiting")
	assert.Equal(t, EventPartnerDisconnected, bEvts[1].eventType)
	assert.Equal(t, EventWaiting, bEvts[2].eventType)

	assert.Nil(t, core.registry.Lookup(a), "disconnected connection is removed from the registry")

	c := uuid.New()
	core.OnConnect(c)
	core.Dispatch(c, joinPayload("c1", "C", GenderMale, GenderAny, TierFree, 22))

	evt, ok := transport.lastEvent(b)
	require.True(t, ok)
	assert.Equal(t, EventMatched, evt.eventType)
}

func TestCore_RelayConfinedToCurrentPartner(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := newFakeTransport()
	core := NewCore(transport, nil, nil)

	a, b, stranger := uuid.New(), uuid.New(), uuid.New()
	core.OnConnect(a)
	core.OnConnect(b)
	core.OnConnect(stranger)
	core.Dispatch(a, joinPayload("a1", "A", GenderMale, GenderAny, TierFree, 20))
	core.Dispatch(b, joinPayload("b1", "B", GenderFemale, GenderAny, TierFree, 21))
	core.Dispatch(stranger, joinPayload("s1", "S", GenderMale, GenderAny, TierFree, 23))

	strangerBefore := len(transport.eventsFor(stranger))
	offer, err := json.Marshal(SignalPayload{TargetID: stranger.String(), Offer: []byte(`"sdp"`)})
	require.NoError(t, err)
	core.Dispatch(a, Frame{Type: EventOffer, Payload: offer})
	assert.Len(t, transport.eventsFor(stranger), strangerBefore, "an offer addressed to a non-partner is dropped")

	offer, err = json.Marshal(SignalPayload{TargetID: b.String(), Offer: []byte(`"sdp"`)})
	require.NoError(t, err)
	core.Dispatch(a, Frame{Type: EventOffer, Payload: offer})
	evt, ok := transport.lastEvent(b)
	require.True(t, ok)
	assert.Equal(t, EventOffer, evt.eventType)
	got := evt.payload.(OfferPayload)
	assert.Equal(t, a, got.FromID)
}

func TestCore_MessageTimestampIsServerAssigned(t *testing.T) {
	defer goleak.VerifyNone(t)

	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	old := nowFunc
	nowFunc = func() time.Time { return fixed }
	defer func() { nowFunc = old }()

	transport := newFakeTransport()
	core := NewCore(transport, nil, nil)

	a, b := uuid.New(), uuid.New()
	core.OnConnect(a)
	core.OnConnect(b)
	core.Dispatch(a, joinPayload("a1", "A", GenderMale, GenderAny, TierFree, 20))
	core.Dispatch(b, joinPayload("b1", "B", GenderFemale, GenderAny, TierFree, 21))

	msg, err := json.Marshal(MessagePayload{Text: "hi"})
	require.NoError(t, err)
	core.Dispatch(a, Frame{Type: EventMessage, Payload: msg})

	evt, ok := transport.lastEvent(b)
	require.True(t, ok)
	assert.Equal(t, EventMessage, evt.eventType)
	out := evt.payload.(OutboundMessagePayload)
	assert.Equal(t, "hi", out.Text)
	assert.Equal(t, a, out.Sender)
	assert.True(t, out.Timestamp.Equal(fixed))
}

// TestCore_ThirdJoinerPrefersWaitingPremiumOverAnyPoolWaiter reproduces spec
// §8 Scenario 2 verbatim: a premium waiter's satisfied specific preference
// must win over a same-round "any"-pool hit (see DESIGN.md's Open Question
// on §4.4's scan order text vs this worked example).
func TestCore_ThirdJoinerPrefersWaitingPremiumOverAnyPoolWaiter(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := newFakeTransport()
	core := NewCore(transport, nil, nil)

	c1, c2, c3 := uuid.New(), uuid.New(), uuid.New()
	core.OnConnect(c1)
	core.OnConnect(c2)
	core.OnConnect(c3)

	core.Dispatch(c1, joinPayload("c1", "C1", GenderMale, GenderFemale, TierPremium, 30))
	evt, ok := transport.lastEvent(c1)
	require.True(t, ok)
	assert.Equal(t, EventWaiting, evt.eventType)

	core.Dispatch(c2, joinPayload("c2", "C2", GenderMale, GenderAny, TierFree, 31))
	evt, ok = transport.lastEvent(c2)
	require.True(t, ok)
	assert.Equal(t, EventWaiting, evt.eventType, "c1 is premium preferring female, so c2 (male) finds no eligible waiter")

	core.Dispatch(c3, joinPayload("c3", "C3", GenderFemale, GenderAny, TierFree, 29))

	c1Evt, ok := transport.lastEvent(c1)
	require.True(t, ok)
	assert.Equal(t, EventMatched, c1Evt.eventType, "c3 satisfies c1's waiting premium preference")
	matchedC1 := c1Evt.payload.(MatchedPayload)
	assert.Equal(t, c3, matchedC1.PartnerID)

	c3Evt, ok := transport.lastEvent(c3)
	require.True(t, ok)
	assert.Equal(t, EventMatched, c3Evt.eventType)
	matchedC3 := c3Evt.payload.(MatchedPayload)
	assert.Equal(t, c1, matchedC3.PartnerID)

	assert.True(t, core.queue.Contains(c2), "c2 stays waiting")
}

func TestCore_LeaveQueueIsNoOpWhenIdle(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := newFakeTransport()
	core := NewCore(transport, nil, nil)

	a := uuid.New()
	core.OnConnect(a)

	core.Dispatch(a, Frame{Type: EventLeaveQueue})

	_, ok := transport.lastEvent(a)
	assert.False(t, ok, "leave-queue on an Idle connection produces no reply")
	u := core.registry.Lookup(a)
	require.NotNil(t, u)
	assert.Equal(t, Idle, u.State)
}

func TestCore_LeaveQueueRemovesWaitingConnection(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := newFakeTransport()
	core := NewCore(transport, nil, nil)

	a := uuid.New()
	core.OnConnect(a)
	core.Dispatch(a, joinPayload("a1", "A", GenderMale, GenderAny, TierFree, 20))
	require.True(t, core.queue.Contains(a))

	core.Dispatch(a, Frame{Type: EventLeaveQueue})

	waitingEvt, ok := transport.lastEvent(a)
	require.True(t, ok)
	assert.Equal(t, EventWaiting, waitingEvt.eventType, "no new event is sent for leave-queue itself")

	assert.False(t, core.queue.Contains(a), "leave-queue removes the waiting connection from its pool")
	u := core.registry.Lookup(a)
	require.NotNil(t, u)
	assert.Equal(t, Idle, u.State)
}

func TestCore_LeaveQueueTearsDownPairedPartnerAndRequeues(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := newFakeTransport()
	core := NewCore(transport, nil, nil)

	a, b := uuid.New(), uuid.New()
	core.OnConnect(a)
	core.OnConnect(b)
	core.Dispatch(a, joinPayload("a1", "A", GenderMale, GenderAny, TierFree, 20))
	core.Dispatch(b, joinPayload("b1", "B", GenderFemale, GenderAny, TierFree, 21))

	aEvtsBefore := len(transport.eventsFor(a))

	core.Dispatch(a, Frame{Type: EventLeaveQueue})

	aEvts := transport.eventsFor(a)
	assert.Len(t, aEvts, aEvtsBefore, "the actor itself is never replied to on leave-queue")

	bEvts := transport.eventsFor(b)
	require.Len(t, bEvts, 3, "matched on join, then partner-disconnected and re-queued waiting once a leaves")
	assert.Equal(t, EventPartnerDisconnected, bEvts[1].eventType)
	assert.Equal(t, EventWaiting, bEvts[2].eventType)

	au := core.registry.Lookup(a)
	require.NotNil(t, au)
	assert.Equal(t, Idle, au.State)
	assert.Equal(t, uuid.Nil, au.Partner)

	c := uuid.New()
	core.OnConnect(c)
	core.Dispatch(c, joinPayload("c1", "C", GenderMale, GenderAny, TierFree, 22))

	evt, ok := transport.lastEvent(b)
	require.True(t, ok)
	assert.Equal(t, EventMatched, evt.eventType, "b is re-matched after being left behind")
}

// TestCore_ConcurrentDispatchPreservesInvariants drives arbitrary
// interleavings of join-queue/skip/disconnect from many goroutines at once
// (spec §8 preamble's "universal invariants... enforced by property-based
// tests"), then asserts the at-most-one-queue invariant (spec §3.1) and
// partner symmetry (spec §3.3) hold afterward.
func TestCore_ConcurrentDispatchPreservesInvariants(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := newFakeTransport()
	core := NewCore(transport, nil, nil)

	const n = 40
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
		core.OnConnect(ids[i])
	}

	genders := []Gender{GenderMale, GenderFemale, GenderOther}
	tiers := []Tier{TierFree, TierPremium}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			core.Dispatch(id, joinPayload("u", "U", genders[i%len(genders)], genders[(i+1)%len(genders)], tiers[i%len(tiers)], 25))
			switch i % 3 {
			case 0:
				core.Dispatch(id, Frame{Type: EventSkip})
			case 1:
				core.Dispatch(id, Frame{Type: EventLeaveQueue})
			case 2:
				core.HandleDisconnect(id)
			}
		}(i, id)
	}
	wg.Wait()

	seenInPool := make(map[uuid.UUID]int)
	for _, g := range []Gender{GenderAny, GenderMale, GenderFemale, GenderOther} {
		p := core.queue.pools[g]
		for e := p.order.Front(); e != nil; e = e.Next() {
			u := e.Value.(*User)
			seenInPool[u.ConnID]++
		}
	}
	for connID, count := range seenInPool {
		assert.LessOrEqual(t, count, 1, "connection %s appears in more than one queue pool", connID)
	}

	for _, u := range core.registry.Snapshot() {
		if u.Partner == uuid.Nil {
			continue
		}
		partner := core.registry.Lookup(u.Partner)
		require.NotNil(t, partner, "partner %s referenced by %s must still be registered", u.Partner, u.ConnID)
		assert.Equal(t, u.ConnID, partner.Partner, "partner link must be symmetric")
		assert.Equal(t, Paired, u.State)
		assert.Equal(t, Paired, partner.State)
		assert.False(t, core.queue.Contains(u.ConnID), "a paired connection must not be queued")
	}
}

func TestCore_TransportErrorOnSendFoldsIntoDisconnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := newFakeTransport()
	core := NewCore(transport, nil, nil)

	a, b := uuid.New(), uuid.New()
	core.OnConnect(a)
	core.OnConnect(b)
	core.Dispatch(a, joinPayload("a1", "A", GenderMale, GenderAny, TierFree, 20))
	core.Dispatch(b, joinPayload("b1", "B", GenderFemale, GenderAny, TierFree, 21))

	transport.markGone(b)
	core.Dispatch(a, Frame{Type: EventSkip})

	assert.Nil(t, core.registry.Lookup(b), "send failure to the unreachable partner is treated as its own disconnect")
}
