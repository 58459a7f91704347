package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gridsim/marketsim/internal/schedule"
	"github.com/gridsim/marketsim/internal/server"
	"github.com/gridsim/marketsim/internal/server/handler"
	"github.com/gridsim/marketsim/internal/server/ws"
)

// SimulateMode drains the virtual clock to the configured horizon, then
// summarises and archives the run.
func (a *App) SimulateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting simulation",
		slog.Time("start", a.cfg.Simulation.Start),
		slog.Time("end", a.cfg.Simulation.End),
		slog.Int("markets", len(deps.Roles)),
		slog.Int("agents", len(deps.Agents)),
	)

	if err := a.runClock(ctx, deps); err != nil {
		return err
	}
	a.summarise(ctx, deps)
	return a.archive(ctx, deps)
}

// ServeMode runs the simulation alongside the status API. The server stays up
// after the clock drains so results remain queryable until the context is
// cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	// WebSocket hub, only when a result bus is wired.
	var hub *ws.Hub
	if deps.Bus != nil {
		hub = ws.NewHub(deps.Bus, a.logger)
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	markets := make(map[string]handler.MarketStatus, len(deps.Roles))
	for name, role := range deps.Roles {
		markets[name] = role
	}
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.logger),
		Markets: handler.NewMarketHandler(markets, a.logger),
	}
	if deps.ResultStore != nil {
		handlers.Results = handler.NewResultsHandler(deps.ResultStore, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if err := a.runClock(ctx, deps); err != nil {
			return err
		}
		a.summarise(ctx, deps)
		return a.archive(ctx, deps)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// CheckMode validates the wired configuration without running the clock: the
// wiring itself has already resolved mechanisms, strategies and units, so all
// that remains is reporting what a run would do.
func (a *App) CheckMode(ctx context.Context, deps *Dependencies) error {
	for name, role := range deps.Roles {
		cfg := role.MarketConfig()
		open, closing, ok := schedule.FirstOpening(cfg.Opening, cfg.OpenDuration, a.cfg.Simulation.Start.UTC())
		if !ok {
			a.logger.WarnContext(ctx, "market has no opening inside its recurrence bound",
				slog.String("market", name))
			continue
		}
		a.logger.InfoContext(ctx, "market check",
			slog.String("market", name),
			slog.Time("first_opening", open),
			slog.Time("first_closing", closing),
			slog.Int("product_templates", len(cfg.Products)),
		)
	}
	for _, ag := range deps.Agents {
		a.logger.InfoContext(ctx, "agent check", slog.String("agent", ag.Address().String()))
	}
	a.logger.InfoContext(ctx, "configuration ok",
		slog.Bool("postgres", deps.ResultStore != nil),
		slog.Bool("redis", deps.Bus != nil),
		slog.Bool("s3", deps.Archiver != nil),
		slog.Any("mechanisms", deps.Mechanisms.List()),
		slog.Any("strategies", deps.Strategies.List()),
	)
	return nil
}

// runClock drains armed events up to the simulation end, checking for
// cancellation between events. A zero end drains the whole queue.
func (a *App) runClock(ctx context.Context, deps *Dependencies) error {
	end := a.cfg.Simulation.End.UTC()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		at, ok := deps.Clock.NextWake()
		if !ok {
			return nil
		}
		if !a.cfg.Simulation.End.IsZero() && at.After(end) {
			return nil
		}
		deps.Clock.Step()
	}
}

func (a *App) summarise(ctx context.Context, deps *Dependencies) {
	for name, role := range deps.Roles {
		attrs := []any{
			slog.String("market", name),
			slog.String("state", role.StateName()),
			slog.Int("registered", len(role.RegisteredAgents())),
		}
		if res := role.LatestResult(); res != nil {
			attrs = append(attrs,
				slog.Time("last_cleared", res.ClearedAt),
				slog.Int("records", len(res.Records)),
			)
		}
		a.logger.InfoContext(ctx, "market finished", attrs...)
	}
	for _, ag := range deps.Agents {
		a.logger.InfoContext(ctx, "agent finished",
			slog.String("agent", ag.Address().String()),
			slog.Int("accepted_orders", ag.AcceptedOrders()),
			slog.Int("rejected_batches", ag.RejectedBatches()),
		)
	}
}

// archive uploads the run's results when an archiver is wired.
func (a *App) archive(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return nil
	}
	results := deps.collector.Results()
	a.logger.InfoContext(ctx, "archiving run",
		slog.String("run_id", a.cfg.Simulation.RunID),
		slog.Int("results", len(results)),
	)
	return deps.Archiver.ArchiveRun(ctx, a.cfg.Simulation.RunID, results)
}
