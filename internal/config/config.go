// Package config loads the simulator's YAML configuration, applies
// environment overrides and manages the named starting portfolios.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"quantsim/internal/domain"
)

// ErrUnknownPortfolio is returned when a named portfolio is not configured.
var ErrUnknownPortfolio = errors.New("unknown portfolio")

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for quantsim.
type Config struct {
	Storage    Storage              `yaml:"storage"`
	Provider   Provider             `yaml:"provider"`
	Alpaca     Alpaca               `yaml:"alpaca"`
	Logging    Logging              `yaml:"logging"`
	Simulation Simulation           `yaml:"simulation"`
	Trading    TradingConfig        `yaml:"trading"`
	Portfolios map[string]Portfolio `yaml:"portfolios"`
}

// Storage selects and locates the quote cache backend.
type Storage struct {
	Backend     string `yaml:"backend"` // sqlite | parquet | postgres
	CachePath   string `yaml:"cache_path"`
	DataDir     string `yaml:"data_dir"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Provider configures the remote historical quote source.
type Provider struct {
	Kind            string        `yaml:"kind"` // alpaca | csv
	HistoryURL      string        `yaml:"history_url"`
	QuoteURL        string        `yaml:"quote_url"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	MaxRetries      int           `yaml:"max_retries"`
	Timeout         time.Duration `yaml:"timeout"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Simulation holds engine defaults.
type Simulation struct {
	ReferenceSymbol string  `yaml:"reference_symbol"`
	TradeCost       float64 `yaml:"trade_cost"`
	Output          string  `yaml:"output"`
	Workers         int     `yaml:"workers"`
	Progress        bool    `yaml:"progress"`
}

// TradingConfig defines order screening limits.
type TradingConfig struct {
	// MaxPositionPct caps a single BUY's cash amount as a fraction of equity.
	// Zero disables the check.
	MaxPositionPct float64 `yaml:"max_position_pct"`
}

// Portfolio is a named starting allocation: symbol → amount. Amounts are
// kept as written ("10000", "$5000", "25") regardless of YAML scalar type.
type Portfolio map[string]string

// UnmarshalYAML accepts any scalar as an amount.
func (p *Portfolio) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("portfolio: expected mapping, got %v at line %d", n.Tag, n.Line)
	}
	out := make(Portfolio, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("portfolio: amount for %q must be a scalar (line %d)", k.Value, v.Line)
		}
		out[strings.TrimSpace(k.Value)] = strings.TrimSpace(v.Value)
	}
	*p = out
	return nil
}

// ---------------------------------------------------------------------------
// Defaults and loading
// ---------------------------------------------------------------------------

// DefaultPath returns ~/.quant/quantsim.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".quant", "quantsim.yaml")
	}
	return filepath.Join(home, ".quant", "quantsim.yaml")
}

// Default returns a configuration usable without a file: SQLite cache under
// ~/.quant, Alpaca provider, a single all-cash portfolio.
func Default() *Config {
	dir := filepath.Dir(DefaultPath())
	return &Config{
		Storage: Storage{
			Backend:   "sqlite",
			CachePath: filepath.Join(dir, "stocks.db"),
			DataDir:   filepath.Join(dir, "data"),
		},
		Provider: Provider{
			Kind:            "alpaca",
			RateLimitPerMin: 200,
			MaxRetries:      3,
			Timeout:         30 * time.Second,
		},
		Alpaca: Alpaca{Feed: "sip"},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Simulation: Simulation{
			ReferenceSymbol: "SPY",
			TradeCost:       9.99,
			Output:          filepath.Join(dir, "simulation.db"),
			Workers:         4,
			Progress:        true,
		},
		Portfolios: map[string]Portfolio{
			"cash": {domain.Cash: "10000"},
		},
	}
}

// Load reads the YAML configuration file at path on top of Default() and
// then applies environment variable overrides. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads path on top of Default() without environment overrides or
// validation. Use it when the configuration will be saved back.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	defaultPortfolios := cfg.Portfolios
	cfg.Portfolios = nil

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}
	if cfg.Portfolios == nil {
		cfg.Portfolios = defaultPortfolios
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating the parent directory.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the configuration for values the simulator cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.CachePath == "" {
			return errors.New("storage.cache_path is required for the sqlite backend")
		}
	case "parquet":
		if c.Storage.DataDir == "" {
			return errors.New("storage.data_dir is required for the parquet backend")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of sqlite, parquet, postgres", c.Storage.Backend)
	}

	switch c.Provider.Kind {
	case "alpaca":
	case "csv":
		if c.Provider.HistoryURL == "" {
			return errors.New("provider.history_url is required for the csv provider")
		}
	default:
		return fmt.Errorf("provider.kind %q is not one of alpaca, csv", c.Provider.Kind)
	}

	if c.Simulation.TradeCost < 0 {
		return errors.New("simulation.trade_cost must not be negative")
	}
	if c.Simulation.ReferenceSymbol == "" {
		return errors.New("simulation.reference_symbol is required")
	}
	if c.Trading.MaxPositionPct < 0 || c.Trading.MaxPositionPct > 1 {
		return errors.New("trading.max_position_pct must be within [0, 1]")
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("QUANT_CACHE_PATH"); v != "" {
		cfg.Storage.CachePath = v
	}
	if v := os.Getenv("QUANT_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars win: they are the names the SDK reads.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Portfolios
// ---------------------------------------------------------------------------

// Portfolio returns the allocation for the named portfolio.
func (c *Config) Portfolio(name string) (domain.Allocation, error) {
	p, ok := c.Portfolios[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPortfolio, name)
	}
	alloc := make(domain.Allocation, len(p))
	for sym, amt := range p {
		if sym != domain.Cash {
			sym = domain.NormalizeSymbol(sym)
		}
		alloc[sym] = amt
	}
	return alloc, nil
}

// PortfolioNames returns the configured portfolio names, sorted.
func (c *Config) PortfolioNames() []string {
	names := make([]string, 0, len(c.Portfolios))
	for name := range c.Portfolios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreatePortfolio adds a new portfolio. It fails if the name is taken.
func (c *Config) CreatePortfolio(name string, cash string, holdings map[string]string) error {
	if _, ok := c.Portfolios[name]; ok {
		return fmt.Errorf("portfolio %q already exists", name)
	}
	if c.Portfolios == nil {
		c.Portfolios = make(map[string]Portfolio)
	}
	p := Portfolio{domain.Cash: cash}
	for sym, amt := range holdings {
		p[domain.NormalizeSymbol(sym)] = amt
	}
	c.Portfolios[name] = p
	return nil
}

// DeletePortfolio removes a portfolio; deleting an unknown name is a no-op.
func (c *Config) DeletePortfolio(name string) {
	delete(c.Portfolios, name)
}
