package signaling

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Frame is the wire envelope every inbound and outbound event is carried
// in: a type tag plus a nested payload. Grounded on webitel's
// internal/handler/marshaller/ws.WSEvent wrapper (event name + payload),
// generalized to carry an inbound payload as json.RawMessage so the core
// domain decides how to decode it per event type instead of a marshaller
// package doing it centrally.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Canonical inbound event type tags (spec §4.1).
const (
	EventJoinQueue     = "join-queue"
	EventOffer         = "offer"
	EventAnswer        = "answer"
	EventIceCandidate  = "ice-candidate"
	EventMessage       = "message"
	EventSkip          = "skip"
	EventLeaveQueue    = "leave-queue"
)

// Canonical outbound event type tags (spec §4.1).
const (
	EventMatched             = "matched"
	EventWaiting             = "waiting"
	EventSkipped             = "skipped"
	EventPartnerSkipped      = "partner-skipped"
	EventPartnerDisconnected = "partner-disconnected"
)

// JoinQueuePayload is the inbound join-queue event body.
type JoinQueuePayload struct {
	UserID          string `json:"user_id"`
	Username        string `json:"username"`
	Gender          Gender `json:"gender"`
	PreferredGender Gender `json:"preferred_gender"`
	Tier            Tier   `json:"tier"`
	Age             int    `json:"age"`
}

// SignalPayload is the inbound offer/answer/ice-candidate event body. Only
// the field matching the frame's Type is populated; the rest are opaque and
// never inspected by the core, per spec §4.6.
type SignalPayload struct {
	TargetID  string          `json:"target_id"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// MessagePayload is the inbound message event body. Any client-supplied
// timestamp field is intentionally not modeled here — the server always
// stamps its own (spec §4.6).
type MessagePayload struct {
	Text string `json:"text"`
}

// MatchedPayload is the outbound matched event body.
type MatchedPayload struct {
	PartnerID   uuid.UUID  `json:"partner_id"`
	PartnerInfo PublicInfo `json:"partner_info"`
}

// OfferPayload, AnswerPayload, and IceCandidatePayload are the outbound
// relayed-signal bodies: target_id is stripped and from_id is added, per
// spec §4.6.
type OfferPayload struct {
	Offer  json.RawMessage `json:"offer"`
	FromID uuid.UUID       `json:"from_id"`
}

type AnswerPayload struct {
	Answer json.RawMessage `json:"answer"`
	FromID uuid.UUID       `json:"from_id"`
}

type IceCandidatePayload struct {
	Candidate json.RawMessage `json:"candidate"`
	FromID    uuid.UUID       `json:"from_id"`
}

// OutboundMessagePayload is the outbound message event body — the server
// stamps sender and timestamp itself.
type OutboundMessagePayload struct {
	Text      string    `json:"text"`
	Sender    uuid.UUID `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// encodeFrame marshals an event type and payload into a wire Frame.
func encodeFrame(eventType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Frame{Type: eventType, Payload: raw})
}
