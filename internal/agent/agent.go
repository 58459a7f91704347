// Package agent implements market participants: message-driven actors that
// register with markets, construct orders from a unit and a strategy on every
// opening notice, and record cleared dispatch.
package agent

import (
	"log/slog"
	"time"

	"github.com/gridsim/marketsim/internal/domain"
	"github.com/gridsim/marketsim/internal/strategy"
	"github.com/gridsim/marketsim/internal/transport"
	"github.com/gridsim/marketsim/internal/units"
)

// UnitAgent operates one physical unit across one or more markets.
type UnitAgent struct {
	id     domain.AgentID
	unit   units.Unit
	strat  strategy.Strategy
	router *transport.Router
	logger *slog.Logger

	markets map[string]domain.AgentID // market name -> role address

	accepted int
	rejected int
}

// NewUnitAgent creates a participant for the given unit and strategy.
func NewUnitAgent(addr, id string, unit units.Unit, strat strategy.Strategy, router *transport.Router, logger *slog.Logger) *UnitAgent {
	a := &UnitAgent{
		id:      domain.AgentID{Addr: addr, ID: id},
		unit:    unit,
		strat:   strat,
		router:  router,
		logger: logger.With(
			slog.String("component", "agent"),
			slog.String("agent", id),
			slog.String("strategy", strat.Name()),
		),
		markets: make(map[string]domain.AgentID),
	}
	router.Attach(a.id, a)
	return a
}

// Address is the agent's transport identity.
func (a *UnitAgent) Address() domain.AgentID {
	return a.id
}

// JoinMarket sends a registration to the market role at the given address.
func (a *UnitAgent) JoinMarket(name string, role domain.AgentID) {
	a.markets[name] = role
	a.router.Send(a.id, role, domain.Registration{Market: name})
}

// Handle reacts to market notices: bid on openings, record dispatch on
// clearings, count rejections.
func (a *UnitAgent) Handle(env domain.Envelope) {
	switch msg := env.Payload.(type) {
	case domain.OpeningNotice:
		a.handleOpening(msg)
	case domain.ClearingNotice:
		a.handleClearing(msg)
	case domain.Rejection:
		a.rejected++
		a.logger.Warn("bid batch rejected",
			slog.String("market", msg.Market),
			slog.String("reason", msg.Reason),
		)
	}
}

func (a *UnitAgent) handleOpening(notice domain.OpeningNotice) {
	role, ok := a.markets[notice.Market]
	if !ok {
		return
	}
	bids := a.strat.CalculateBids(a.unit, notice.Products)
	if len(bids) == 0 {
		a.logger.Debug("nothing to bid", slog.String("market", notice.Market))
		return
	}
	a.router.Send(a.id, role, domain.BidSubmission{Market: notice.Market, Orders: bids})
}

func (a *UnitAgent) handleClearing(notice domain.ClearingNotice) {
	for _, o := range notice.Accepted {
		a.accepted++
		switch o.BidType {
		case domain.BidTypeBlock:
			for key, v := range o.AcceptedProfile {
				a.unit.Dispatch(timeFromKey(key), v)
			}
		default:
			a.unit.Dispatch(o.Start, o.AcceptedVolume)
		}
	}
	a.logger.Debug("clearing received",
		slog.String("market", notice.Market),
		slog.Int("accepted", len(notice.Accepted)),
		slog.Int("rejected", len(notice.Rejected)),
	)
}

func timeFromKey(key int64) time.Time {
	return time.Unix(key, 0).UTC()
}

// AcceptedOrders returns how many orders of this agent have been accepted so
// far.
func (a *UnitAgent) AcceptedOrders() int { return a.accepted }

// RejectedBatches returns how many rejection notices the agent has received.
func (a *UnitAgent) RejectedBatches() int { return a.rejected }
