package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"market_go/internal/offer"
)

// Config holds every application setting.
// After LoadConfig reads the file, environment variables override the values.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`

	Server struct {
		Addr      string `yaml:"addr"`
		InboxSize int    `yaml:"inbox_size"`
	} `yaml:"server"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Market struct {
		Dir          string            `yaml:"markets_dir"`
		Locale       string            `yaml:"locale"`
		Aliases      map[string]string `yaml:"aliases"`
		BuyRounding  string            `yaml:"buy_rounding"`
		SellRounding string            `yaml:"sell_rounding"`
		CloseDelayMS int               `yaml:"close_delay_ms"`
	} `yaml:"market"`

	Economy struct {
		StartingBalance decimal.Decimal `yaml:"starting_balance"`
	} `yaml:"economy"`
}

// DefaultConfig returns the settings used when a key is absent from the file.
func DefaultConfig() Config {
	var cfg Config
	cfg.App.Name = "market_go"
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	cfg.Server.Addr = ":8080"
	cfg.Server.InboxSize = 1024
	cfg.Storage.Path = "data/journal.db"
	cfg.Market.Dir = "configs/markets"
	cfg.Market.BuyRounding = "half_up"
	cfg.Market.SellRounding = "ceiling"
	cfg.Market.CloseDelayMS = 50
	return cfg
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// A missing .env file is not an error.
	_ = godotenv.Load()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Market.Dir == "" {
		return errors.New("markets_dir is required")
	}
	if _, err := offer.ParseRoundingMode(c.Market.BuyRounding); err != nil {
		return fmt.Errorf("buy_rounding: %w", err)
	}
	if _, err := offer.ParseRoundingMode(c.Market.SellRounding); err != nil {
		return fmt.Errorf("sell_rounding: %w", err)
	}
	if c.Market.CloseDelayMS < 0 {
		return fmt.Errorf("close_delay_ms must not be negative: %d", c.Market.CloseDelayMS)
	}
	if c.Server.InboxSize <= 0 {
		return errors.New("inbox_size must be positive")
	}
	if c.Economy.StartingBalance.IsNegative() {
		return fmt.Errorf("starting_balance must not be negative: %s", c.Economy.StartingBalance)
	}
	for alias, id := range c.Market.Aliases {
		if strings.TrimSpace(alias) == "" || strings.TrimSpace(id) == "" {
			return fmt.Errorf("alias %q -> %q: both sides are required", alias, id)
		}
	}
	return nil
}

// PricePolicy returns the rounding modes for rolled prices.
func (c *Config) PricePolicy() offer.Policy {
	buy, _ := offer.ParseRoundingMode(c.Market.BuyRounding)
	sell, err := offer.ParseRoundingMode(c.Market.SellRounding)
	if err != nil || c.Market.SellRounding == "" {
		sell = offer.RoundCeiling
	}
	return offer.Policy{Buy: buy, Sell: sell}
}

// CloseDelay is how long a failed transaction waits before closing the view.
func (c *Config) CloseDelay() time.Duration {
	return time.Duration(c.Market.CloseDelayMS) * time.Millisecond
}

// overrideWithEnv overwrites values whose environment variable is set.
func overrideWithEnv(cfg *Config) {
	setStr(&cfg.Logging.Level, "MARKET_LOG_LEVEL")
	setStr(&cfg.Logging.Dir, "MARKET_LOG_DIR")
	setStr(&cfg.Server.Addr, "MARKET_ADDR")
	setStr(&cfg.Storage.Path, "MARKET_DB_PATH")
	setStr(&cfg.Market.Dir, "MARKET_DIR")
	setStr(&cfg.Market.Locale, "MARKET_LOCALE")
	setStr(&cfg.Market.BuyRounding, "MARKET_BUY_ROUNDING")
	setStr(&cfg.Market.SellRounding, "MARKET_SELL_ROUNDING")
	setInt(&cfg.Market.CloseDelayMS, "MARKET_CLOSE_DELAY_MS")
	if v := os.Getenv("MARKET_STARTING_BALANCE"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.Economy.StartingBalance = d
		}
	}
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
