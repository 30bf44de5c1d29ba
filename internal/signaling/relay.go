package signaling

import "github.com/google/uuid"

// relay.go is the Signaling Relay (C5): forwards offer/answer/ice-candidate
// and message events between a Paired pair, confined to the current
// partner. Anything that doesn't match — wrong target, sender not Paired,
// unparseable target_id — is dropped silently per spec §4.6 and §7; the
// relay never disconnects a sender for a confinement violation.

// handleSignal forwards an offer, answer, or ice-candidate event. The
// outbound frame strips target_id and adds from_id, so the receiver always
// learns who it came from without the sender having to ask.
func (c *Core) handleSignal(connID uuid.UUID, f Frame) {
	payload, ok := decodePayload[SignalPayload](f)
	if !ok {
		c.metrics.EventDropped("malformed-signal")
		return
	}
	targetID, err := uuid.Parse(payload.TargetID)
	if err != nil {
		c.metrics.EventDropped("bad-target-id")
		return
	}

	var deliver bool
	var outPayload any
	c.registry.withLock(func() {
		u := c.registry.users[connID]
		if u == nil || u.State != Paired || u.Partner != targetID {
			c.metrics.EventDropped("signal-confinement")
			return
		}
		deliver = true
		switch f.Type {
		case EventOffer:
			outPayload = OfferPayload{Offer: payload.Offer, FromID: connID}
		case EventAnswer:
			outPayload = AnswerPayload{Answer: payload.Answer, FromID: connID}
		case EventIceCandidate:
			outPayload = IceCandidatePayload{Candidate: payload.Candidate, FromID: connID}
		}
	})
	if !deliver {
		return
	}
	c.sendEvent(targetID, f.Type, outPayload)
}

// handleMessage forwards a chat message to the sender's current partner,
// stamping sender and timestamp server-side (spec §4.6) — any client-
// supplied timestamp is never modeled or trusted.
func (c *Core) handleMessage(connID uuid.UUID, f Frame) {
	payload, ok := decodePayload[MessagePayload](f)
	if !ok {
		c.metrics.EventDropped("malformed-message")
		return
	}

	var targetID uuid.UUID
	var deliver bool
	c.registry.withLock(func() {
		u := c.registry.users[connID]
		if u == nil || u.State != Paired {
			c.metrics.EventDropped("message-not-paired")
			return
		}
		targetID = u.Partner
		deliver = true
	})
	if !deliver {
		return
	}
	c.sendEvent(targetID, EventMessage, OutboundMessagePayload{
		Text:      payload.Text,
		Sender:    connID,
		Timestamp: nowFunc(),
	})
}
