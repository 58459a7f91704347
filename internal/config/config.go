// Package config defines the top-level configuration for the market
// simulator and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MARKETSIM_* environment
// variables.
type Config struct {
	Simulation SimulationConfig `toml:"simulation"`
	Markets    []MarketConfig   `toml:"markets"`
	Agents     []AgentConfig    `toml:"agents"`
	Forecast   ForecastConfig   `toml:"forecast"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// SimulationConfig identifies a run and bounds its virtual time horizon.
type SimulationConfig struct {
	RunID string    `toml:"run_id"`
	Start time.Time `toml:"start"`
	End   time.Time `toml:"end"`
}

// MarketConfig declares one recurring market.
type MarketConfig struct {
	Name      string `toml:"name"`
	Mechanism string `toml:"mechanism"`

	OpeningStart    time.Time `toml:"opening_start"`
	OpeningInterval duration  `toml:"opening_interval"`
	OpeningUntil    time.Time `toml:"opening_until"`
	OpenDuration    duration  `toml:"open_duration"`

	Products []ProductConfig `toml:"products"`

	PriceTick  float64 `toml:"price_tick"`
	VolumeTick float64 `toml:"volume_tick"`
	MinPrice   float64 `toml:"min_price"`
	MaxPrice   float64 `toml:"max_price"`
	MaxVolume  float64 `toml:"max_volume"`

	AdditionalFields     []string `toml:"additional_fields"`
	SupportsGetUnmatched bool     `toml:"supports_get_unmatched"`
	RequireRegistration  bool     `toml:"require_registration"`

	// EligibleAddrs restricts registration to the listed agent addresses.
	// Empty means everyone may register.
	EligibleAddrs []string `toml:"eligible_addrs"`
}

// ProductConfig is one tradable product template of a market.
type ProductConfig struct {
	Duration           duration `toml:"duration"`
	Count              int      `toml:"count"`
	FirstDeliveryAfter duration `toml:"first_delivery_after"`
	OnlyHours          []int    `toml:"only_hours"`
}

// AgentConfig declares one participant and the unit it operates.
type AgentConfig struct {
	Addr     string   `toml:"addr"`
	ID       string   `toml:"id"`
	Type     string   `toml:"type"` // power_plant or demand
	Strategy string   `toml:"strategy"`
	Markets  []string `toml:"markets"`

	// Power plant parameters.
	Technology string  `toml:"technology"`
	MaxPower   float64 `toml:"max_power"`
	MinPower   float64 `toml:"min_power"`
	Efficiency float64 `toml:"efficiency"`
	VariableOM float64 `toml:"variable_om"`
	RampUp     float64 `toml:"ramp_up"`
	RampDown   float64 `toml:"ramp_down"`

	// Demand parameters.
	PeakDemand  float64 `toml:"peak_demand"`
	Willingness float64 `toml:"willingness"`
}

// ForecastConfig seeds the forecast provider. Constants apply whenever no
// series covers a lookup.
type ForecastConfig struct {
	Constants map[string]float64 `toml:"constants"`
	Series    []SeriesConfig     `toml:"series"`
}

// SeriesConfig is a stepwise time series starting at Start with one value
// per Step.
type SeriesConfig struct {
	Name   string    `toml:"name"`
	Start  time.Time `toml:"start"`
	Step   duration  `toml:"step"`
	Values []float64 `toml:"values"`
}

// PostgresConfig holds PostgreSQL connection parameters for the result sink.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the clearing price cache
// and the result bus.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	PriceTTL   duration `toml:"price_ttl"`
}

// S3Config holds S3-compatible object storage parameters for run archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the status API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// duration wraps time.Duration so TOML strings like "15m" decode directly.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. These
// match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Simulation: SimulationConfig{
			RunID: "run-local",
		},
		Forecast: ForecastConfig{
			Constants: map[string]float64{},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "marketsim",
			User:          "marketsim",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			PriceTTL:   duration{24 * time.Hour},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketsim-runs",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     false,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Mode:     "simulate",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"simulate": true,
	"serve":    true,
	"check":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validAgentTypes = map[string]bool{
	"power_plant": true,
	"demand":      true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: simulate, serve, check)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Simulation
	if c.Simulation.RunID == "" {
		errs = append(errs, "simulation: run_id must not be empty")
	}
	if c.Simulation.Start.IsZero() {
		errs = append(errs, "simulation: start must be set")
	}
	if !c.Simulation.End.IsZero() && !c.Simulation.End.After(c.Simulation.Start) {
		errs = append(errs, "simulation: end must be after start")
	}

	// Markets
	if len(c.Markets) == 0 {
		errs = append(errs, "markets: at least one market must be configured")
	}
	seenMarkets := map[string]bool{}
	for i, m := range c.Markets {
		tag := fmt.Sprintf("markets[%d]", i)
		if m.Name == "" {
			errs = append(errs, tag+": name must not be empty")
		} else if seenMarkets[m.Name] {
			errs = append(errs, fmt.Sprintf("%s: duplicate market name %q", tag, m.Name))
		} else {
			seenMarkets[m.Name] = true
		}
		if m.Mechanism == "" {
			errs = append(errs, tag+": mechanism must not be empty")
		}
		if m.OpeningStart.IsZero() {
			errs = append(errs, tag+": opening_start must be set")
		}
		if m.OpeningInterval.Duration <= 0 {
			errs = append(errs, tag+": opening_interval must be positive")
		}
		if m.OpenDuration.Duration <= 0 {
			errs = append(errs, tag+": open_duration must be positive")
		}
		if len(m.Products) == 0 {
			errs = append(errs, tag+": at least one product must be configured")
		}
		for j, p := range m.Products {
			if p.Duration.Duration <= 0 {
				errs = append(errs, fmt.Sprintf("%s.products[%d]: duration must be positive", tag, j))
			}
			if p.Count < 1 {
				errs = append(errs, fmt.Sprintf("%s.products[%d]: count must be >= 1", tag, j))
			}
		}
		if m.MinPrice > m.MaxPrice {
			errs = append(errs, tag+": min_price must not exceed max_price")
		}
	}

	// Agents
	seenAgents := map[string]bool{}
	for i, a := range c.Agents {
		tag := fmt.Sprintf("agents[%d]", i)
		if a.Addr == "" || a.ID == "" {
			errs = append(errs, tag+": addr and id must not be empty")
		} else {
			key := a.Addr + "/" + a.ID
			if seenAgents[key] {
				errs = append(errs, fmt.Sprintf("%s: duplicate agent %q", tag, key))
			}
			seenAgents[key] = true
		}
		if !validAgentTypes[a.Type] {
			errs = append(errs, fmt.Sprintf("%s: unknown type %q (valid: power_plant, demand)", tag, a.Type))
		}
		if a.Strategy == "" {
			errs = append(errs, tag+": strategy must not be empty")
		}
		if len(a.Markets) == 0 {
			errs = append(errs, tag+": at least one market must be listed")
		}
		for _, m := range a.Markets {
			if !seenMarkets[m] {
				errs = append(errs, fmt.Sprintf("%s: unknown market %q", tag, m))
			}
		}
	}

	// Forecast
	for i, s := range c.Forecast.Series {
		tag := fmt.Sprintf("forecast.series[%d]", i)
		if s.Name == "" {
			errs = append(errs, tag+": name must not be empty")
		}
		if s.Start.IsZero() {
			errs = append(errs, tag+": start must be set")
		}
		if s.Step.Duration <= 0 {
			errs = append(errs, tag+": step must be positive")
		}
		if len(s.Values) == 0 {
			errs = append(errs, tag+": values must not be empty")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}
	if strings.ToLower(c.Mode) == "serve" && !c.Server.Enabled {
		errs = append(errs, "server: must be enabled in serve mode")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
