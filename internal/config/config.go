package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Pool struct {
		ID           string `yaml:"id" validate:"nonzero"`
		Admin        string `yaml:"admin" validate:"nonzero"`
		BaseAsset    string `yaml:"base_asset" validate:"nonzero"`
		BaseDecimals uint8  `yaml:"base_decimals" validate:"max=30"`
	} `yaml:"pool"`
	Markets []Market `yaml:"markets"`
	Venues  []Venue  `yaml:"venues"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Schedule struct {
		HarvestCron string `yaml:"harvest_cron" validate:"nonzero"`
		SweepCron   string `yaml:"sweep_cron"`
		ReportCron  string `yaml:"report_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	API struct {
		Addr string `yaml:"addr"`
	} `yaml:"api"`
	Log   Log    `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Market is an accepted asset created at startup when missing.
type Market struct {
	Asset    string `yaml:"asset" validate:"nonzero"`
	Decimals uint8  `yaml:"decimals" validate:"max=30"`
}

// Venue is a yield venue harvested by the scheduler.
type Venue struct {
	Name     string `yaml:"name" validate:"nonzero"`
	Kind     string `yaml:"kind" validate:"nonzero"` // "http" or "static"
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Decimals uint8  `yaml:"decimals" validate:"max=30"`
	// Market receives the harvest as withdrawal liquidity when set.
	Market string `yaml:"market"`
	// StaticYield is the per-harvest yield of a static venue, in base units.
	StaticYield uint64 `yaml:"static_yield"`
}

// Log configures the zap logger and its file rotation.
type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	// Environment variable overrides
	if v := os.Getenv("KEEPER_POOL_ADMIN"); v != "" {
		cfg.Pool.Admin = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("CRON_HARVEST"); v != "" {
		cfg.Schedule.HarvestCron = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("KEEPER_API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("KEEPER_BASE_DECIMALS"); v != "" {
		if d, err := strconv.ParseUint(v, 10, 8); err == nil {
			cfg.Pool.BaseDecimals = uint8(d)
		}
	}

	// Defaults
	if cfg.Pool.ID == "" {
		cfg.Pool.ID = "yieldkeeper"
	}
	if cfg.Pool.BaseAsset == "" {
		cfg.Pool.BaseAsset = "1USD"
	}
	if cfg.Schedule.HarvestCron == "" {
		cfg.Schedule.HarvestCron = "0 0 */6 * * *"
	}
	if cfg.Schedule.SweepCron == "" {
		cfg.Schedule.SweepCron = "0 30 0 * * *"
	}
	if cfg.Schedule.ReportCron == "" {
		cfg.Schedule.ReportCron = "0 0 9 * * 1"
	}
	if cfg.API.Addr == "" {
		cfg.API.Addr = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSize == 0 {
		cfg.Log.MaxSize = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAge == 0 {
		cfg.Log.MaxAge = 28
	}

	return cfg, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.Validate(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}

	markets := make(map[string]bool, len(c.Markets))
	for _, m := range c.Markets {
		if m.Asset == c.Pool.BaseAsset {
			return fmt.Errorf("markets: %s is the base asset", m.Asset)
		}
		if markets[m.Asset] {
			return fmt.Errorf("markets: duplicate asset %s", m.Asset)
		}
		markets[m.Asset] = true
	}

	names := make(map[string]bool, len(c.Venues))
	for _, v := range c.Venues {
		if names[v.Name] {
			return fmt.Errorf("venues: duplicate name %s", v.Name)
		}
		names[v.Name] = true
		switch v.Kind {
		case "http":
			if v.BaseURL == "" {
				return fmt.Errorf("venues.%s: base_url is required", v.Name)
			}
		case "static":
		default:
			return fmt.Errorf("venues.%s: unknown kind %q", v.Name, v.Kind)
		}
		if v.Market != "" && !markets[v.Market] {
			return fmt.Errorf("venues.%s: market %s is not configured", v.Name, v.Market)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	return nil
}

// TelegramEnabled reports whether operator notifications are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
