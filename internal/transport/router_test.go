package transport

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gridsim/marketsim/internal/domain"
	"github.com/gridsim/marketsim/internal/sim"
)

var (
	t0    = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	alice = domain.AgentID{Addr: "world", ID: "alice"}
	bob   = domain.AgentID{Addr: "world", ID: "bob"}
	carol = domain.AgentID{Addr: "world", ID: "carol"}
)

func TestPerSenderOrderPreserved(t *testing.T) {
	clock := sim.New(t0)
	router := NewRouter(clock, slog.Default())

	var got []any
	router.Attach(bob, HandlerFunc(func(env domain.Envelope) {
		got = append(got, env.Payload)
	}))

	router.Send(alice, bob, 1)
	router.Send(alice, bob, 2)
	router.Send(alice, bob, 3)
	clock.Run()

	assert.Equal(t, []any{1, 2, 3}, got)
}

func TestScheduledDelivery(t *testing.T) {
	clock := sim.New(t0)
	router := NewRouter(clock, slog.Default())

	var deliveredAt time.Time
	router.Attach(bob, HandlerFunc(func(domain.Envelope) {
		deliveredAt = clock.Now()
	}))

	router.SendAt(alice, bob, "later", t0.Add(time.Hour))
	clock.Run()
	assert.Equal(t, t0.Add(time.Hour), deliveredAt)
}

func TestUnknownRecipientIsDropped(t *testing.T) {
	clock := sim.New(t0)
	router := NewRouter(clock, slog.Default())

	router.Send(alice, carol, "lost")
	// Draining must not panic on the missing handler.
	clock.Run()
	assert.Equal(t, 0, clock.Pending())
}
