package signaling

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// nowFunc is overridden in tests to assert the server, not the client,
// stamps message timestamps (spec §4.6).
var nowFunc = time.Now

// MetricsRecorder is the narrow interface Core reports diagnostics through.
// It lives in this package (rather than Core depending on
// internal/metrics) so internal/metrics can depend on internal/signaling's
// types without an import cycle; internal/metrics.Recorder implements it.
type MetricsRecorder interface {
	ConnectionOpened()
	ConnectionClosed()
	QueueDepth(gender Gender, n int)
	PairFormed()
	EventDropped(reason string)
}

type noopMetrics struct{}

func (noopMetrics) ConnectionOpened()          {}
func (noopMetrics) ConnectionClosed()          {}
func (noopMetrics) QueueDepth(Gender, int)     {}
func (noopMetrics) PairFormed()                {}
func (noopMetrics) EventDropped(string)        {}

// Core wires the Connection Registry (C1), Queue Set (C2), Matcher (C3),
// Session Supervisor (C4), and Signaling Relay (C5) together behind the
// single coarse lock spec §5 requires, and drives outbound events through
// a Transport (C6). It is the generalization of the teacher's
// webrtc/service.go global mu + handler functions into one type with an
// explicit state machine instead of ad hoc booleans (spec §9).
type Core struct {
	registry *Registry
	queue    *QueueSet

	transport Transport
	logger    *zap.Logger
	metrics   MetricsRecorder
}

// NewCore constructs a Core. logger and metrics may be nil; a nil metrics
// recorder is replaced with a no-op implementation.
func NewCore(transport Transport, logger *zap.Logger, metrics MetricsRecorder) *Core {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Core{
		registry:  NewRegistry(),
		queue:     NewQueueSet(),
		transport: transport,
		logger:    logger,
		metrics:   metrics,
	}
}

// OnConnect registers a freshly accepted connection in the Idle state, per
// spec §3 "Created when Transport Adapter accepts a connection; state =
// Idle."
func (c *Core) OnConnect(connID uuid.UUID) {
	c.registry.Register(&User{ConnID: connID, State: Idle})
	c.metrics.ConnectionOpened()
}

// Dispatch routes one decoded inbound Frame to its handler. Unknown event
// types are dropped silently per spec §7 ("Protocol errors ... dropped;
// the sender is not disconnected").
func (c *Core) Dispatch(connID uuid.UUID, f Frame) {
	switch f.Type {
	case EventJoinQueue:
		c.handleJoinQueue(connID, f)
	case EventSkip:
		c.handleSkip(connID)
	case EventLeaveQueue:
		c.handleLeaveQueue(connID)
	case EventOffer, EventAnswer, EventIceCandidate:
		c.handleSignal(connID, f)
	case EventMessage:
		c.handleMessage(connID, f)
	default:
		c.metrics.EventDropped("unknown-event")
		if c.logger != nil {
			c.logger.Debug("dropping unknown event type", zap.String("type", f.Type))
		}
	}
}

// sendEvent best-effort delivers an outbound event and, on ErrUnreachable,
// folds the failure into a disconnect per spec §7 ("Transport errors ...
// treated as a disconnect on that connection").
func (c *Core) sendEvent(connID uuid.UUID, eventType string, payload any) {
	if err := c.transport.Send(connID, eventType, payload); err != nil {
		c.handleTransportError(connID, err)
	}
}

func (c *Core) handleTransportError(connID uuid.UUID, err error) {
	if errors.Is(err, ErrUnreachable) {
		if c.logger != nil {
			c.logger.Debug("send failed, treating as disconnect", zap.String("conn_id", connID.String()))
		}
		c.HandleDisconnect(connID)
	}
}

func (c *Core) sendMatched(a, b *User) {
	c.sendEvent(a.ConnID, EventMatched, MatchedPayload{PartnerID: b.ConnID, PartnerInfo: b.publicInfo()})
	c.sendEvent(b.ConnID, EventMatched, MatchedPayload{PartnerID: a.ConnID, PartnerInfo: a.publicInfo()})
}

// QueueSnapshot reports the current depth of each pool, for metrics.
func (c *Core) QueueSnapshot() map[Gender]int {
	out := make(map[Gender]int, 4)
	c.registry.withLock(func() {
		for _, g := range []Gender{GenderAny, GenderMale, GenderFemale, GenderOther} {
			out[g] = c.queue.Len(g)
		}
	})
	return out
}

// ConnectionCount reports the number of live connections, for metrics.
func (c *Core) ConnectionCount() int {
	return c.registry.Count()
}

// Snapshot returns a shallow copy of every live User, for diagnostics and
// best-effort shutdown notification.
func (c *Core) Snapshot() []*User {
	return c.registry.Snapshot()
}
