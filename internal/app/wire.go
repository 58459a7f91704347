package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gridsim/marketsim/internal/agent"
	s3blob "github.com/gridsim/marketsim/internal/blob/s3"
	"github.com/gridsim/marketsim/internal/cache/redis"
	"github.com/gridsim/marketsim/internal/clearing"
	"github.com/gridsim/marketsim/internal/config"
	"github.com/gridsim/marketsim/internal/domain"
	"github.com/gridsim/marketsim/internal/forecast"
	"github.com/gridsim/marketsim/internal/market"
	"github.com/gridsim/marketsim/internal/sim"
	"github.com/gridsim/marketsim/internal/store/postgres"
	"github.com/gridsim/marketsim/internal/strategy"
	"github.com/gridsim/marketsim/internal/transport"
	"github.com/gridsim/marketsim/internal/units"
)

// sinkAddress is the transport address of the persistence collaborator.
var sinkAddress = domain.AgentID{Addr: "sink", ID: "sink"}

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Clock      *sim.Clock
	Router     *transport.Router
	Mechanisms *clearing.Registry
	Strategies *strategy.Registry
	Forecast   *forecast.Provider

	Roles  map[string]*market.Role
	Agents []*agent.UnitAgent

	// Persistence (nil unless postgres is enabled).
	ResultStore    domain.MarketResultStore
	OrderbookStore domain.OrderbookStore

	// Caching and live events (nil unless redis is enabled).
	PriceCache domain.ClearingPriceCache
	Bus        domain.ResultBus

	// Run archival (nil unless s3 is enabled).
	Archiver domain.Archiver

	collector *resultCollector
}

// Wire constructs all concrete dependency implementations from the given
// configuration: infrastructure first, then market roles and agents on top.
// Roles are attached to the router and agents have sent their registrations
// when Wire returns; the clock has not run yet.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Clock:      sim.New(cfg.Simulation.Start.UTC()),
		Mechanisms: clearing.NewRegistry(),
		Strategies: strategy.NewRegistry(),
		Forecast:   forecast.NewProvider(),
		Roles:      make(map[string]*market.Role),
		collector:  newResultCollector(),
	}
	deps.Router = transport.NewRouter(deps.Clock, logger)

	for name, v := range cfg.Forecast.Constants {
		deps.Forecast.SetConstant(name, v)
	}
	for _, s := range cfg.Forecast.Series {
		deps.Forecast.SetSeries(s.Name, forecast.Series{
			Start:  s.Start.UTC(),
			Step:   s.Step.Duration,
			Values: s.Values,
		})
	}

	// --- PostgreSQL result sink ---
	sinkAddr := ""
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.ResultStore = postgres.NewMarketResultStore(pool)
		deps.OrderbookStore = postgres.NewOrderbookStore(pool)

		sink := postgres.NewSink(deps.ResultStore, deps.OrderbookStore, logger)
		deps.Router.Attach(sinkAddress, sink)
		sinkAddr = sinkAddress.Addr
	}

	// --- Redis price cache and result bus ---
	var recorder *redis.Recorder
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewClearingPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
		deps.Bus = redis.NewResultBus(redisClient)

		recorder = redis.NewRecorder(ctx, deps.PriceCache, deps.Bus, logger)
		closers = append(closers, recorder.Close)
	}

	// --- S3 run archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewRunArchiver(s3blob.NewWriter(s3Client))
	}

	// --- Market roles ---
	for _, mc := range cfg.Markets {
		role, err := buildRole(mc, sinkAddr, deps, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: market %s: %w", mc.Name, err)
		}
		role.AddObserver(deps.collector)
		if recorder != nil {
			role.AddObserver(recorder)
		}
		role.Setup()
		deps.Roles[mc.Name] = role
	}

	// --- Unit agents ---
	for _, ac := range cfg.Agents {
		ag, err := buildAgent(ac, deps, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: agent %s/%s: %w", ac.Addr, ac.ID, err)
		}
		for _, m := range ac.Markets {
			role, ok := deps.Roles[m]
			if !ok {
				cleanup()
				return nil, nil, fmt.Errorf("wire: agent %s/%s: unknown market %q", ac.Addr, ac.ID, m)
			}
			ag.JoinMarket(m, role.Address())
		}
		deps.Agents = append(deps.Agents, ag)
	}

	return deps, cleanup, nil
}

// buildRole translates a TOML market declaration into a running market role.
func buildRole(mc config.MarketConfig, sinkAddr string, deps *Dependencies, logger *slog.Logger) (*market.Role, error) {
	mech, err := deps.Mechanisms.Get(mc.Mechanism)
	if err != nil {
		return nil, err
	}

	templates := make([]domain.ProductTemplate, len(mc.Products))
	for i, p := range mc.Products {
		templates[i] = domain.ProductTemplate{
			Duration:           p.Duration.Duration,
			Count:              p.Count,
			FirstDeliveryAfter: p.FirstDeliveryAfter.Duration,
			OnlyHours:          p.OnlyHours,
		}
	}

	var eligible domain.EligibilityFunc
	if len(mc.EligibleAddrs) > 0 {
		allowed := make(map[string]bool, len(mc.EligibleAddrs))
		for _, a := range mc.EligibleAddrs {
			allowed[a] = true
		}
		eligible = func(id domain.AgentID) bool { return allowed[id.Addr] }
	}

	return market.NewRole(domain.MarketConfig{
		Name: mc.Name,
		Opening: domain.Recurrence{
			Start:    mc.OpeningStart.UTC(),
			Interval: mc.OpeningInterval.Duration,
			Until:    mc.OpeningUntil.UTC(),
		},
		OpenDuration:         mc.OpenDuration.Duration,
		Products:             templates,
		PriceTick:            mc.PriceTick,
		VolumeTick:           mc.VolumeTick,
		MinPrice:             mc.MinPrice,
		MaxPrice:             mc.MaxPrice,
		MaxVolume:            mc.MaxVolume,
		AdditionalFields:     mc.AdditionalFields,
		SupportsGetUnmatched: mc.SupportsGetUnmatched,
		RequireRegistration:  mc.RequireRegistration,
		Mechanism:            mech,
		Eligible:             eligible,
		SinkAddr:             sinkAddr,
	}, deps.Clock, deps.Router, logger)
}

// buildAgent constructs the unit and strategy behind one participant.
func buildAgent(ac config.AgentConfig, deps *Dependencies, logger *slog.Logger) (*agent.UnitAgent, error) {
	strat, err := deps.Strategies.Get(ac.Strategy)
	if err != nil {
		return nil, err
	}

	var unit units.Unit
	switch ac.Type {
	case "power_plant":
		unit, err = units.NewPowerPlant(units.PlantConfig{
			ID:         ac.ID,
			Technology: ac.Technology,
			MaxPower:   ac.MaxPower,
			MinPower:   ac.MinPower,
			Efficiency: ac.Efficiency,
			VariableOM: ac.VariableOM,
			RampUp:     ac.RampUp,
			RampDown:   ac.RampDown,
		}, deps.Forecast)
	case "demand":
		unit, err = units.NewDemandUnit(units.DemandConfig{
			ID:          ac.ID,
			PeakDemand:  ac.PeakDemand,
			Willingness: ac.Willingness,
		}, deps.Forecast)
	default:
		err = fmt.Errorf("unknown unit type %q", ac.Type)
	}
	if err != nil {
		return nil, err
	}

	return agent.NewUnitAgent(ac.Addr, ac.ID, unit, strat, deps.Router, logger), nil
}
