package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
mode = "simulate"
log_level = "debug"

[simulation]
run_id = "run-42"
start = 2024-01-01T00:00:00Z
end = 2024-01-02T00:00:00Z

[[markets]]
name = "eom"
mechanism = "pay_as_clear"
opening_start = 2024-01-01T00:00:00Z
opening_interval = "1h"
opening_until = 2024-01-02T00:00:00Z
open_duration = "30m"
price_tick = 0.1
volume_tick = 1.0
min_price = -500.0
max_price = 3000.0
max_volume = 10000.0
supports_get_unmatched = true
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
fuel_price = 25.0
co2_price = 80.0

[[forecast.series]]
name = "demand"
start = 2024-01-01T00:00:00Z
step = "1h"
values = [250.0, 280.0, 300.0]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadSampleConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "run-42", cfg.Simulation.RunID)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cfg.Simulation.Start)

	require.Len(t, cfg.Markets, 1)
	m := cfg.Markets[0]
	assert.Equal(t, "eom", m.Name)
	assert.Equal(t, time.Hour, m.OpeningInterval.Duration)
	assert.Equal(t, 30*time.Minute, m.OpenDuration.Duration)
	require.Len(t, m.Products, 1)
	assert.Equal(t, time.Hour, m.Products[0].Duration.Duration)

	require.Len(t, cfg.Agents, 2)
	assert.Equal(t, "power_plant", cfg.Agents[0].Type)
	assert.Equal(t, 300.0, cfg.Agents[1].PeakDemand)

	assert.Equal(t, 25.0, cfg.Forecast.Constants["fuel_price"])
	require.Len(t, cfg.Forecast.Series, 1)
	assert.Equal(t, []float64{250, 280, 300}, cfg.Forecast.Series[0].Values)

	// Defaults survive the merge.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Redis.PriceTTL.Duration)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MARKETSIM_MODE", "serve")
	t.Setenv("MARKETSIM_SERVER_ENABLED", "true")
	t.Setenv("MARKETSIM_SERVER_PORT", "9100")
	t.Setenv("MARKETSIM_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("MARKETSIM_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "serve", cfg.Mode)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidateCatchesProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "warp"
	cfg.Simulation.RunID = ""
	cfg.Agents = []AgentConfig{{
		Addr:     "plants",
		ID:       "x",
		Type:     "fusion",
		Strategy: "naive_single_bid",
		Markets:  []string{"nope"},
	}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "warp"`)
	assert.Contains(t, err.Error(), "run_id must not be empty")
	assert.Contains(t, err.Error(), "at least one market must be configured")
	assert.Contains(t, err.Error(), `unknown type "fusion"`)
	assert.Contains(t, err.Error(), `unknown market "nope"`)
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "secret"
	cfg.Server.APIKey = "key"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Server.APIKey)
	// Original untouched.
	assert.Equal(t, "secret", cfg.Postgres.Password)
}
