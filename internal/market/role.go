// Package market implements the market role: a single-threaded actor that
// opens recurring trading periods, validates inbound bids, clears the resting
// book at the scheduled close and fans results out to participants.
package market

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gridsim/marketsim/internal/clearing"
	"github.com/gridsim/marketsim/internal/domain"
	"github.com/gridsim/marketsim/internal/schedule"
	"github.com/gridsim/marketsim/internal/sim"
	"github.com/gridsim/marketsim/internal/transport"
	"github.com/gridsim/marketsim/internal/validate"
)

// State is the lifecycle state of a market role.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateClearing State = "clearing"
	StateTerminal State = "terminal"
)

// dispatch maps a message-shape predicate to its handler.
type dispatch struct {
	match  func(env domain.Envelope) bool
	handle func(env domain.Envelope)
}

// Role is the market lifecycle state machine. All mutation happens on the
// simulation clock's goroutine; the mutex only guards snapshot reads from
// other goroutines (status API).
type Role struct {
	cfg    domain.MarketConfig
	clock  *sim.Clock
	router *transport.Router
	logger *slog.Logger

	table []dispatch

	mu         sync.RWMutex
	state      State
	registered []domain.AgentID
	seen       map[domain.AgentID]bool
	book       domain.Orderbook
	products   []domain.Product
	periodOpen time.Time
	noReopen   bool
	latest     *domain.MarketResult
	observers  []domain.ResultObserver
}

// NewRole constructs a role from a validated config. Bound/tick misalignment
// is logged as a warning; the configured bounds stay enforced as-is.
func NewRole(cfg domain.MarketConfig, clock *sim.Clock, router *transport.Router, logger *slog.Logger) (*Role, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Addr == "" {
		cfg.Addr = "market"
	}
	if cfg.ID == "" {
		cfg.ID = cfg.Name
	}

	r := &Role{
		cfg:    cfg,
		clock:  clock,
		router: router,
		logger: logger.With(slog.String("component", "market"), slog.String("market", cfg.Name)),
		state:  StateClosed,
		seen:   make(map[domain.AgentID]bool),
	}
	for _, w := range cfg.TickWarnings() {
		r.logger.Warn("tick-misaligned bound", slog.String("detail", w))
	}

	r.table = []dispatch{
		{
			match: func(env domain.Envelope) bool {
				p, ok := env.Payload.(domain.Registration)
				return ok && p.Market == r.cfg.Name
			},
			handle: r.handleRegistration,
		},
		{
			match: func(env domain.Envelope) bool {
				p, ok := env.Payload.(domain.BidSubmission)
				return ok && p.Market == r.cfg.Name && p.Orders != nil
			},
			handle: r.handleBids,
		},
		{
			match: func(env domain.Envelope) bool {
				p, ok := env.Payload.(domain.UnmatchedQuery)
				return ok && p.Market == r.cfg.Name
			},
			handle: r.handleUnmatched,
		},
	}
	return r, nil
}

// Address is the role's transport identity.
func (r *Role) Address() domain.AgentID {
	return domain.AgentID{Addr: r.cfg.Addr, ID: r.cfg.ID}
}

// AddObserver registers a clearing observer. Must be called before Setup.
func (r *Role) AddObserver(obs domain.ResultObserver) {
	r.observers = append(r.observers, obs)
}

// Setup attaches the role to the transport and arms the first opening timer.
// A rule with no valid opening leaves the role terminal from the start.
func (r *Role) Setup() {
	r.router.Attach(r.Address(), r)

	open, _, ok := schedule.FirstOpening(r.cfg.Opening, r.cfg.OpenDuration, r.clock.Now())
	if !ok {
		r.logger.Info("market does not open within schedule bounds")
		r.setState(StateTerminal)
		return
	}
	r.clock.At(open, func(time.Time) { r.openPeriod(open) })
}

// Handle dispatches an inbound envelope through the predicate table.
// Unmatched envelopes are dropped with a warning.
func (r *Role) Handle(env domain.Envelope) {
	for _, d := range r.table {
		if d.match(env) {
			d.handle(env)
			return
		}
	}
	r.logger.Warn("unhandled message",
		slog.String("from", env.From.String()),
		slog.Any("payload", env.Payload),
	)
}

// MarketConfig implements domain.MarketView.
func (r *Role) MarketConfig() domain.MarketConfig {
	return r.cfg
}

// RestingOrders implements domain.MarketView.
func (r *Role) RestingOrders() domain.Orderbook {
	return r.book
}

// handleRegistration appends the sender to the registered set when the
// eligibility predicate admits it. Duplicate registrations are deduplicated
// on (addr, id) so each participant receives results exactly once per period.
func (r *Role) handleRegistration(env domain.Envelope) {
	if r.cfg.Eligible != nil && !r.cfg.Eligible(env.From) {
		r.logger.Info("registration refused", slog.String("agent", env.From.String()))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[env.From] {
		r.logger.Debug("duplicate registration ignored", slog.String("agent", env.From.String()))
		return
	}
	r.seen[env.From] = true
	r.registered = append(r.registered, env.From)
	r.logger.Info("agent registered", slog.String("agent", env.From.String()))
}

// handleBids validates a submission batch and appends it to the resting book.
// The batch is atomic: any failing order discards the submission and sends a
// rejection notice back to the submitter within the same step.
func (r *Role) handleBids(env domain.Envelope) {
	sub := env.Payload.(domain.BidSubmission)

	if r.cfg.RequireRegistration && !r.seen[env.From] {
		r.logger.Warn("bid from unregistered agent", slog.String("agent", env.From.String()))
		r.reject(env.From, domain.ErrNotRegistered.Error())
		return
	}

	orders, err := validate.Batch(sub.Orders, r.cfg, env.From, r.products)
	if err != nil {
		r.logger.Error("bid batch rejected",
			slog.String("agent", env.From.String()),
			slog.String("error", err.Error()),
		)
		r.reject(env.From, err.Error())
		return
	}

	r.mu.Lock()
	r.book = append(r.book, orders...)
	r.mu.Unlock()
	r.logger.Debug("bids accepted",
		slog.String("agent", env.From.String()),
		slog.Int("orders", len(orders)),
	)
}

// handleUnmatched answers a resting-book query. Side-effect free.
func (r *Role) handleUnmatched(env domain.Envelope) {
	if !r.cfg.SupportsGetUnmatched {
		r.logger.Warn("unmatched-orders query on unsupported market",
			slog.String("agent", env.From.String()))
		return
	}
	query := env.Payload.(domain.UnmatchedQuery)
	r.router.Send(r.Address(), env.From, domain.UnmatchedReply{
		Market: r.cfg.Name,
		Orders: r.Unmatched(query.Filter),
	})
}

// Unmatched returns the currently resting orders matching the filter, or the
// full book for a nil filter.
func (r *Role) Unmatched(filter *domain.ProductFilter) domain.Orderbook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if filter == nil {
		return append(domain.Orderbook(nil), r.book...)
	}
	return r.book.Filter(*filter)
}

func (r *Role) reject(to domain.AgentID, reason string) {
	r.router.Send(r.Address(), to, domain.Rejection{
		Market:  r.cfg.Name,
		Message: "Rejected",
		Reason:  reason,
	})
}

// openPeriod fires the Closed -> Open transition: derive this period's
// products, notify registered participants in registration order, arm the
// clearing timer, and immediately arm the next opening so the recurrence
// continues even if no bids ever arrive.
func (r *Role) openPeriod(opening time.Time) {
	closing := opening.Add(r.cfg.OpenDuration)
	products := domain.AvailableProducts(r.cfg.Products, opening)

	r.mu.Lock()
	r.state = StateOpen
	r.products = products
	r.periodOpen = opening
	registered := append([]domain.AgentID(nil), r.registered...)
	r.mu.Unlock()

	r.logger.Info("market open",
		slog.Time("start", opening),
		slog.Time("stop", closing),
		slog.Int("products", len(products)),
	)

	notice := domain.OpeningNotice{
		Market:   r.cfg.Name,
		Start:    opening,
		Stop:     closing,
		Products: products,
	}
	for _, agent := range registered {
		r.router.Send(r.Address(), agent, notice)
	}

	r.clock.At(closing, func(time.Time) { r.clearPeriod(opening) })

	next, _, ok := schedule.NextOpening(r.cfg.Opening, r.cfg.OpenDuration, opening)
	if !ok {
		r.logger.Info("market does not reopen")
		r.mu.Lock()
		r.noReopen = true
		r.mu.Unlock()
		return
	}
	r.clock.At(next, func(time.Time) { r.openPeriod(next) })
}

// clearPeriod fires Open -> Clearing -> Closed. The pass runs synchronously
// within one clock event: no other event for this market interleaves.
func (r *Role) clearPeriod(opening time.Time) {
	r.mu.Lock()
	r.state = StateClearing
	products := r.products
	registered := append([]domain.AgentID(nil), r.registered...)
	r.mu.Unlock()

	result, err := clearing.Invoke(r, products)

	r.mu.Lock()
	r.book = nil
	r.products = nil
	if r.noReopen {
		r.state = StateTerminal
	} else {
		r.state = StateClosed
	}
	r.mu.Unlock()

	if err != nil {
		// Internal invariant failure: fatal to this pass, nothing is
		// distributed.
		r.logger.Error("clearing pass failed", slog.String("error", err.Error()))
		return
	}
	result.Period = opening
	result.ClearedAt = r.clock.Now()

	if len(result.Accepted) == 0 {
		r.logger.Warn("clearing produced an empty accepted set")
	}

	_, acceptedBy := result.Accepted.ByAgent()
	_, rejectedBy := result.Rejected.ByAgent()
	for _, agent := range registered {
		r.router.Send(r.Address(), agent, domain.ClearingNotice{
			Market:   r.cfg.Name,
			Accepted: acceptedBy[agent],
			Rejected: rejectedBy[agent],
		})
	}

	if len(result.Records) > 0 {
		r.logger.Info("market cleared",
			slog.Time("period", opening),
			slog.Float64("price", result.Records[0].Price),
			slog.Float64("volume", result.Records[0].SupplyVolume),
		)
	}

	if r.cfg.SinkAddr != "" {
		sink := domain.AgentID{Addr: r.cfg.SinkAddr, ID: "sink"}
		r.router.Send(r.Address(), sink, domain.StoreOrderbook{
			Type:     domain.SinkStoreOrderbook,
			Sender:   r.cfg.Name,
			Accepted: result.Accepted,
			Rejected: result.Rejected,
			Period:   opening,
		})
		r.router.Send(r.Address(), sink, domain.StoreMarketResults{
			Type:    domain.SinkStoreMarketResults,
			Sender:  r.cfg.Name,
			Records: result.Records,
			Period:  opening,
		})
	}

	for _, obs := range r.observers {
		obs.OnClearing(*result)
	}

	r.mu.Lock()
	r.latest = result
	r.mu.Unlock()
}

func (r *Role) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}

// State returns the current lifecycle state.
func (r *Role) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// StateName returns the current state as a plain string, for status readers
// that should not depend on this package's types.
func (r *Role) StateName() string {
	return string(r.State())
}

// Name returns the market identifier.
func (r *Role) Name() string {
	return r.cfg.Name
}

// RegisteredAgents returns a copy of the registered set in registration
// order.
func (r *Role) RegisteredAgents() []domain.AgentID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.AgentID(nil), r.registered...)
}

// LatestResult returns the most recent clearing result, or nil before the
// first pass.
func (r *Role) LatestResult() *domain.MarketResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}
