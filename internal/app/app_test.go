package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsim/marketsim/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const runTOML = `
mode = "simulate"
log_level = "error"

[simulation]
run_id = "test-run"
start = 2024-01-01T00:00:00Z
end = 2024-01-01T06:00:00Z

[[markets]]
name = "eom"
mechanism = "pay_as_clear"
opening_start = 2024-01-01T01:00:00Z
opening_interval = "1h"
opening_until = 2024-01-01T03:00:00Z
open_duration = "30m"
volume_tick = 0
min_price = -500.0
max_price = 3000.0
max_volume = 100000.0
require_registration = true

[[markets.products]]
duration = "1h"
count = 1
first_delivery_after = "1h"

[[agents]]
addr = "plants"
id = "gas1"
type = "power_plant"
strategy = "naive_single_bid"
markets = ["eom"]
technology = "gas"
max_power = 500.0
efficiency = 0.5

[[agents]]
addr = "loads"
id = "city"
type = "demand"
strategy = "naive_single_bid"
markets = ["eom"]
peak_demand = 300.0
willingness = 3000.0

[forecast]
[forecast.constants]
fuel_price = 20.0
co2_price = 0.0
demand = 120.0
availability = 1.0
`

func loadRunConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(runTOML), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestWireAndSimulate(t *testing.T) {
	cfg := loadRunConfig(t)
	ctx := context.Background()

	deps, cleanup, err := Wire(ctx, cfg)
	require.NoError(t, err)
	defer cleanup()

	require.Len(t, deps.Roles, 1)
	require.Len(t, deps.Agents, 2)
	assert.Nil(t, deps.ResultStore)
	assert.Nil(t, deps.Bus)
	assert.Nil(t, deps.Archiver)

	a := New(cfg, testLogger())
	require.NoError(t, a.SimulateMode(ctx, deps))

	role := deps.Roles["eom"]
	assert.Equal(t, "terminal", role.StateName())
	assert.Len(t, role.RegisteredAgents(), 2)

	// Two bounded openings, each with one product record.
	results := deps.collector.Results()
	require.Len(t, results, 2)
	for _, res := range results {
		require.Len(t, res.Records, 1)
		// Gas at 20/MWh fuel and 50% efficiency sets the margin.
		assert.Equal(t, 40.0, res.Records[0].Price)
	}
}

func TestCheckMode(t *testing.T) {
	cfg := loadRunConfig(t)
	cfg.Mode = "check"
	ctx := context.Background()

	deps, cleanup, err := Wire(ctx, cfg)
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, New(cfg, testLogger()).CheckMode(ctx, deps))
}

func TestWireRejectsUnknownMechanism(t *testing.T) {
	cfg := loadRunConfig(t)
	cfg.Markets[0].Mechanism = "pay_as_wish"

	_, _, err := Wire(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pay_as_wish")
}
