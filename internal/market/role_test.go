package market

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsim/marketsim/internal/clearing"
	"github.com/gridsim/marketsim/internal/domain"
	"github.com/gridsim/marketsim/internal/sim"
	"github.com/gridsim/marketsim/internal/transport"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// probe is a scripted participant capturing every notice it receives.
type probe struct {
	id     domain.AgentID
	router *transport.Router
	onOpen func(domain.OpeningNotice)

	opened   []domain.OpeningNotice
	cleared  []domain.ClearingNotice
	rejected []domain.Rejection
	replies  []domain.UnmatchedReply
}

func newProbe(id string, router *transport.Router) *probe {
	p := &probe{
		id:     domain.AgentID{Addr: "world", ID: id},
		router: router,
	}
	router.Attach(p.id, p)
	return p
}

func (p *probe) Handle(env domain.Envelope) {
	switch msg := env.Payload.(type) {
	case domain.OpeningNotice:
		p.opened = append(p.opened, msg)
		if p.onOpen != nil {
			p.onOpen(msg)
		}
	case domain.ClearingNotice:
		p.cleared = append(p.cleared, msg)
	case domain.Rejection:
		p.rejected = append(p.rejected, msg)
	case domain.UnmatchedReply:
		p.replies = append(p.replies, msg)
	}
}

func (p *probe) register(to domain.AgentID, market string) {
	p.router.Send(p.id, to, domain.Registration{Market: market})
}

func (p *probe) submit(to domain.AgentID, market string, orders ...domain.Order) {
	p.router.Send(p.id, to, domain.BidSubmission{Market: market, Orders: orders})
}

// acceptAll fully accepts every demand-covering bid in the resting book.
func acceptAll(view domain.MarketView, products []domain.Product) (domain.Orderbook, domain.Orderbook, []domain.ClearingRecord, error) {
	accepted := append(domain.Orderbook(nil), view.RestingOrders()...)
	for i := range accepted {
		accepted[i].AcceptedVolume = accepted[i].Volume
		accepted[i].AcceptedPrice = accepted[i].Price
	}
	records := make([]domain.ClearingRecord, len(products))
	for i, p := range products {
		records[i] = domain.ClearingRecord{Product: p}
	}
	return accepted, nil, records, nil
}

// testConfig opens hourly starting one hour into the simulation, with a
// 30 minute open window and a single one-hour product delivered right after
// the close.
func testConfig(mech domain.Mechanism) domain.MarketConfig {
	return domain.MarketConfig{
		Name:         "eom",
		Opening:      domain.Recurrence{Start: t0.Add(time.Hour), Interval: time.Hour, Until: t0.Add(3 * time.Hour)},
		OpenDuration: 30 * time.Minute,
		Products:     []domain.ProductTemplate{{Duration: time.Hour, Count: 1, FirstDeliveryAfter: time.Hour}},
		MinPrice:     0,
		MaxPrice:     100,
		MaxVolume:    100,
		Mechanism:    mech,
	}
}

func newHarness(t *testing.T, cfg domain.MarketConfig) (*sim.Clock, *transport.Router, *Role) {
	t.Helper()
	clock := sim.New(t0)
	router := transport.NewRouter(clock, slog.Default())
	role, err := NewRole(cfg, clock, router, slog.Default())
	require.NoError(t, err)
	return clock, router, role
}

func bidOn(notice domain.OpeningNotice, price, volume float64) domain.Order {
	return domain.Order{
		Start:   notice.Products[0].Start,
		End:     notice.Products[0].End,
		BidType: domain.BidTypeSimple,
		Price:   price,
		Volume:  volume,
	}
}

func TestSimpleClearScenario(t *testing.T) {
	clock, router, role := newHarness(t, testConfig(acceptAll))
	agent := newProbe("plant1", router)
	agent.onOpen = func(n domain.OpeningNotice) {
		agent.submit(role.Address(), "eom", bidOn(n, 50, 10))
	}

	role.Setup()
	agent.register(role.Address(), "eom")
	clock.RunUntil(t0.Add(2 * time.Hour))

	require.NotEmpty(t, agent.opened)
	require.Len(t, agent.cleared, 1, "exactly one clearing notice for the first period")
	notice := agent.cleared[0]
	require.Len(t, notice.Accepted, 1)
	assert.Empty(t, notice.Rejected)
	assert.Equal(t, 50.0, notice.Accepted[0].Price)
	assert.Equal(t, 10.0, notice.Accepted[0].AcceptedVolume)
	assert.Equal(t, agent.id, notice.Accepted[0].Agent)
	assert.Empty(t, agent.rejected)
}

func TestTickViolationScenario(t *testing.T) {
	cfg := testConfig(acceptAll)
	cfg.PriceTick = 5
	clock, router, role := newHarness(t, cfg)

	agent := newProbe("plant1", router)
	agent.onOpen = func(n domain.OpeningNotice) {
		agent.submit(role.Address(), "eom", bidOn(n, 52, 10))
	}

	role.Setup()
	agent.register(role.Address(), "eom")
	clock.RunUntil(t0.Add(time.Hour + 15*time.Minute))

	require.Len(t, agent.rejected, 1, "exactly one rejection notice")
	assert.Equal(t, "Rejected", agent.rejected[0].Message)
	assert.Empty(t, role.Unmatched(nil), "resting book stays empty")
}

func TestRegistrationGating(t *testing.T) {
	cfg := testConfig(acceptAll)
	cfg.RequireRegistration = true
	clock, router, role := newHarness(t, cfg)

	registered := newProbe("plant1", router)
	registered.onOpen = func(n domain.OpeningNotice) {
		registered.submit(role.Address(), "eom", bidOn(n, 10, 1), bidOn(n, 20, 2))
	}
	stranger := newProbe("lurker", router)

	role.Setup()
	registered.register(role.Address(), "eom")
	// The stranger submits blind at the same instant the market is open.
	clock.At(t0.Add(time.Hour+time.Minute), func(time.Time) {
		stranger.submit(role.Address(), "eom", domain.Order{
			Start: t0.Add(2 * time.Hour), End: t0.Add(3 * time.Hour),
			BidType: domain.BidTypeSimple, Price: 10, Volume: 1,
		})
	})
	clock.RunUntil(t0.Add(time.Hour + 20*time.Minute))

	require.Len(t, stranger.rejected, 1, "unregistered submitter gets a rejection notice")

	book := role.Unmatched(nil)
	require.Len(t, book, 2, "registered submitter's bids rest in submission order")
	assert.Equal(t, 10.0, book[0].Price)
	assert.Equal(t, 20.0, book[1].Price)
}

func TestEligibilityPredicate(t *testing.T) {
	cfg := testConfig(acceptAll)
	cfg.Eligible = func(a domain.AgentID) bool { return a.ID != "banned" }
	clock, router, role := newHarness(t, cfg)

	ok := newProbe("plant1", router)
	banned := newProbe("banned", router)

	role.Setup()
	ok.register(role.Address(), "eom")
	banned.register(role.Address(), "eom")
	clock.RunUntil(t0.Add(time.Minute))

	assert.Equal(t, []domain.AgentID{ok.id}, role.RegisteredAgents())
}

func TestDuplicateRegistrationDeduplicated(t *testing.T) {
	clock, router, role := newHarness(t, testConfig(acceptAll))
	agent := newProbe("plant1", router)

	role.Setup()
	agent.register(role.Address(), "eom")
	agent.register(role.Address(), "eom")
	clock.RunUntil(t0.Add(2 * time.Hour))

	assert.Len(t, role.RegisteredAgents(), 1)
	assert.Len(t, agent.cleared, 1, "dedupe prevents duplicate clearing notices")
}

func TestEmptyClearingNoticeForIdleAgent(t *testing.T) {
	clock, router, role := newHarness(t, testConfig(acceptAll))
	idle := newProbe("watcher", router)

	role.Setup()
	idle.register(role.Address(), "eom")
	clock.RunUntil(t0.Add(2 * time.Hour))

	require.Len(t, idle.cleared, 1, "registered agents get a notice even with no orders")
	assert.Empty(t, idle.cleared[0].Accepted)
	assert.Empty(t, idle.cleared[0].Rejected)
}

func TestRecurrenceTermination(t *testing.T) {
	// Openings at +1h and +2h close within the bound; the +3h occurrence
	// would close at +3h30m past Until and is suppressed.
	clock, router, role := newHarness(t, testConfig(acceptAll))
	agent := newProbe("plant1", router)

	role.Setup()
	agent.register(role.Address(), "eom")
	clock.RunUntil(t0.Add(24 * time.Hour))

	assert.Len(t, agent.opened, 2, "no opening notices after the last valid opening")
	assert.Len(t, agent.cleared, 2, "the already-armed clearing still runs")
	assert.Equal(t, StateTerminal, role.State())
	assert.Equal(t, 0, clock.Pending())
}

func TestLateBidRejectedByWindowCheck(t *testing.T) {
	clock, router, role := newHarness(t, testConfig(acceptAll))
	agent := newProbe("plant1", router)

	role.Setup()
	agent.register(role.Address(), "eom")
	// Submit after the period closed: the product window check is
	// authoritative, so the bid is rejected instead of parked.
	clock.At(t0.Add(time.Hour+45*time.Minute), func(time.Time) {
		agent.submit(role.Address(), "eom", domain.Order{
			Start: t0.Add(2 * time.Hour), End: t0.Add(3 * time.Hour),
			BidType: domain.BidTypeSimple, Price: 10, Volume: 1,
		})
	})
	clock.RunUntil(t0.Add(time.Hour + 50*time.Minute))

	assert.Len(t, agent.rejected, 1)
	assert.Empty(t, role.Unmatched(nil))
}

func TestUnmatchedQuery(t *testing.T) {
	cfg := testConfig(acceptAll)
	cfg.SupportsGetUnmatched = true
	clock, router, role := newHarness(t, cfg)

	agent := newProbe("plant1", router)
	agent.onOpen = func(n domain.OpeningNotice) {
		agent.submit(role.Address(), "eom", bidOn(n, 50, 10))
		agent.router.Send(agent.id, role.Address(), domain.UnmatchedQuery{Market: "eom"})
	}

	role.Setup()
	agent.register(role.Address(), "eom")
	clock.RunUntil(t0.Add(time.Hour + 15*time.Minute))

	require.Len(t, agent.replies, 1)
	assert.Len(t, agent.replies[0].Orders, 1)
}

func TestCollidingSubmittedIDsStillClear(t *testing.T) {
	clock, router, role := newHarness(t, testConfig(acceptAll))

	// A submitter reusing one order ID across two otherwise valid bids must
	// not be able to poison the pass for everyone else.
	sloppy := newProbe("sloppy", router)
	sloppy.onOpen = func(n domain.OpeningNotice) {
		a := bidOn(n, 10, 1)
		a.ID = "same-id"
		b := bidOn(n, 20, 2)
		b.ID = "same-id"
		sloppy.submit(role.Address(), "eom", a, b)
	}
	honest := newProbe("plant1", router)
	honest.onOpen = func(n domain.OpeningNotice) {
		honest.submit(role.Address(), "eom", bidOn(n, 50, 10))
	}

	role.Setup()
	sloppy.register(role.Address(), "eom")
	honest.register(role.Address(), "eom")
	clock.RunUntil(t0.Add(2 * time.Hour))

	require.Len(t, honest.cleared, 1, "clearing notices go out despite the id reuse")
	require.Len(t, honest.cleared[0].Accepted, 1)
	assert.Equal(t, 50.0, honest.cleared[0].Accepted[0].Price)

	require.Len(t, sloppy.cleared, 1)
	assert.Len(t, sloppy.cleared[0].Accepted, 2, "both bids rest and clear under fresh ids")
	assert.NotNil(t, role.LatestResult())
}

func TestCoverageViolationFailsPass(t *testing.T) {
	dropping := func(view domain.MarketView, products []domain.Product) (domain.Orderbook, domain.Orderbook, []domain.ClearingRecord, error) {
		// Silently drops every order.
		records := make([]domain.ClearingRecord, len(products))
		for i, p := range products {
			records[i] = domain.ClearingRecord{Product: p}
		}
		return nil, nil, records, nil
	}
	clock, router, role := newHarness(t, testConfig(dropping))
	agent := newProbe("plant1", router)
	agent.onOpen = func(n domain.OpeningNotice) {
		agent.submit(role.Address(), "eom", bidOn(n, 50, 10))
	}

	role.Setup()
	agent.register(role.Address(), "eom")
	clock.RunUntil(t0.Add(2 * time.Hour))

	assert.Empty(t, agent.cleared, "no results are distributed for a failed pass")
	assert.Nil(t, role.LatestResult())
}

func TestBlockBidPartitionEndToEnd(t *testing.T) {
	cfg := testConfig(nil)
	cfg.Products = []domain.ProductTemplate{{Duration: time.Hour, Count: 3, FirstDeliveryAfter: time.Hour}}
	cfg.Mechanism = mustMechanism(t)
	clock, router, role := newHarness(t, cfg)

	supplier := newProbe("blocks", router)
	supplier.onOpen = func(n domain.OpeningNotice) {
		block := domain.Order{
			Start:   n.Products[0].Start,
			End:     n.Products[2].End,
			BidType: domain.BidTypeBlock,
			Price:   15,
			Profile: map[int64]float64{
				n.Products[0].Key(): 5,
				n.Products[1].Key(): 5,
				n.Products[2].Key(): 5,
			},
		}
		orders := []domain.Order{block}
		for _, p := range n.Products {
			orders = append(orders, domain.Order{
				Start: p.Start, End: p.End,
				BidType: domain.BidTypeSimple, Price: 20, Volume: 10,
			})
		}
		supplier.submit(role.Address(), "eom", orders...)
	}
	buyer := newProbe("load", router)
	buyer.onOpen = func(n domain.OpeningNotice) {
		var orders []domain.Order
		for _, p := range n.Products {
			orders = append(orders, domain.Order{
				Start: p.Start, End: p.End,
				BidType: domain.BidTypeSimple, Price: 100, Volume: -10,
			})
		}
		buyer.submit(role.Address(), "eom", orders...)
	}

	role.Setup()
	supplier.register(role.Address(), "eom")
	buyer.register(role.Address(), "eom")
	clock.RunUntil(t0.Add(2 * time.Hour))

	require.Len(t, supplier.cleared, 1)
	assert.Empty(t, supplier.cleared[0].Rejected)
	var block, simple *domain.Order
	for i := range supplier.cleared[0].Accepted {
		o := &supplier.cleared[0].Accepted[i]
		switch o.BidType {
		case domain.BidTypeBlock:
			block = o
		case domain.BidTypeSimple:
			simple = o
		}
	}
	require.NotNil(t, block, "block bid cleared")
	assert.Len(t, block.AcceptedProfile, 3, "accepted volume populated per product")
	require.NotNil(t, simple, "simple bid partitioned independently")
	assert.Equal(t, 10.0, simple.AcceptedVolume)
	assert.Equal(t, 20.0, simple.AcceptedPrice)
}

func mustMechanism(t *testing.T) domain.Mechanism {
	t.Helper()
	// Resolved the way the application does it: by name from the registry.
	m, err := clearing.NewRegistry().Get("pay_as_clear")
	require.NoError(t, err)
	return m
}
