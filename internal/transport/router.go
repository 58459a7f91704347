// Package transport is the in-memory messaging substrate between simulation
// actors. Delivery is reliable and in-order per sender: sends are enqueued on
// the simulation clock in call order and handlers run to completion on the
// clock's goroutine.
package transport

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gridsim/marketsim/internal/domain"
	"github.com/gridsim/marketsim/internal/sim"
)

// Handler receives envelopes addressed to an attached actor.
type Handler interface {
	Handle(env domain.Envelope)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(env domain.Envelope)

// Handle calls f.
func (f HandlerFunc) Handle(env domain.Envelope) { f(env) }

// Router delivers envelopes between attached actors via the simulation clock.
type Router struct {
	clock  *sim.Clock
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[domain.AgentID]Handler
}

// NewRouter creates a router bound to the given clock.
func NewRouter(clock *sim.Clock, logger *slog.Logger) *Router {
	return &Router{
		clock:    clock,
		logger:   logger.With(slog.String("component", "transport")),
		handlers: make(map[domain.AgentID]Handler),
	}
}

// Attach registers a handler for an address, replacing any existing one.
func (r *Router) Attach(id domain.AgentID, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[id] = h
}

// Send delivers payload to the recipient at the current virtual instant. The
// send is asynchronous and unacknowledged; envelopes to unknown addresses are
// dropped with a warning.
func (r *Router) Send(from, to domain.AgentID, payload any) {
	r.SendAt(from, to, payload, r.clock.Now())
}

// SendAt schedules delivery at a later virtual instant.
func (r *Router) SendAt(from, to domain.AgentID, payload any, at time.Time) {
	env := domain.Envelope{From: from, To: to, Payload: payload}
	r.clock.At(at, func(time.Time) {
		r.mu.RLock()
		h, ok := r.handlers[to]
		r.mu.RUnlock()
		if !ok {
			r.logger.Warn("dropping envelope for unknown address",
				slog.String("to", to.String()),
				slog.String("from", from.String()),
			)
			return
		}
		h.Handle(env)
	})
}
