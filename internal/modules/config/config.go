package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"trade_executor/internal/gateway/paper"
	"trade_executor/internal/risk"
	"trade_executor/pkg/tracing"
)

const (
	configFilePathENV = "CONFIG_FILE"
	defaultConfigFile = "configs/values_local.yaml"
	envPrefix         = "EXECUTOR"
)

const (
	ExchangeBinance = "binance"
	ExchangeOKX     = "okx"
	ExchangePaper   = "paper"

	LockerMemory   = "memory"
	LockerPostgres = "postgres"
)

type Config struct {
	Service struct {
		Name string `mapstructure:"name"`
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"service"`

	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`

	Risk risk.Limits `mapstructure:"risk"`

	Lot struct {
		Rounding risk.Rounding             `mapstructure:"rounding"`
		Filters  map[string]risk.LotFilter `mapstructure:"filters"`
	} `mapstructure:"lot"`

	Exchange Exchange `mapstructure:"exchange"`

	Locker struct {
		Kind string `mapstructure:"kind"`
	} `mapstructure:"locker"`

	DB string `mapstructure:"db_dsn"`

	Telegram struct {
		Token  string `mapstructure:"token"`
		ChatID int64  `mapstructure:"chat_id"`
	} `mapstructure:"telegram"`

	Tracing tracing.Config `mapstructure:"tracing"`

	Intake struct {
		QueueSize int `mapstructure:"queue_size"`
		Workers   int `mapstructure:"workers"`
	} `mapstructure:"intake"`

	// Market: лента последних цен OKX, подставляет current_price в решения без цены.
	Market struct {
		Enabled bool          `mapstructure:"enabled"`
		URL     string        `mapstructure:"url"`
		Symbols []string      `mapstructure:"symbols"`
		MaxAge  time.Duration `mapstructure:"max_age"`
	} `mapstructure:"market"`
}

type Exchange struct {
	Name       string       `mapstructure:"name"`
	APIKey     string       `mapstructure:"api_key"`
	APISecret  string       `mapstructure:"api_secret"`
	Passphrase string       `mapstructure:"passphrase"`
	Testnet    bool         `mapstructure:"testnet"`
	BaseURL    string       `mapstructure:"base_url"`
	Paper      paper.Config `mapstructure:"paper"`
}

// NewConfig читает YAML, .env и переменные окружения (EXECUTOR_*, плюс явные секреты).
func NewConfig() (*Config, error) {
	// .env опционален
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range map[string]string{
		"telegram.token":      "TELEGRAM_TOKEN",
		"db_dsn":              "DATABASE_DSN",
		"exchange.api_key":    "EXCHANGE_API_KEY",
		"exchange.api_secret": "EXCHANGE_API_SECRET",
		"exchange.passphrase": "EXCHANGE_PASSPHRASE",
	} {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, errors.Wrapf(err, "bind env %s", env)
		}
	}

	configFileName := os.Getenv(configFilePathENV)
	explicit := configFileName != ""
	if !explicit {
		configFileName = defaultConfigFile
	}
	v.SetConfigFile(configFileName)
	if err := v.ReadInConfig(); err != nil {
		_, statErr := os.Stat(configFileName)
		// без явного CONFIG_FILE отсутствие файла не ошибка: работаем на дефолтах и env
		if explicit || !os.IsNotExist(statErr) {
			return nil, errors.Wrapf(err, "read config %s", configFileName)
		}
	}

	return Load(v)
}

// Load декодирует уже настроенный viper. Отдельно от NewConfig ради тестов.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		decimalHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := risk.DefaultLimits()

	v.SetDefault("service.name", "trade_executor")
	v.SetDefault("service.host", "0.0.0.0")
	v.SetDefault("service.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("risk.max_leverage", def.MaxLeverage)
	v.SetDefault("risk.max_total_position_pct", def.MaxTotalPositionPct)
	v.SetDefault("risk.min_risk_reward", def.MinRiskReward)
	v.SetDefault("lot.rounding", string(risk.RoundTruncate))
	v.SetDefault("exchange.name", ExchangePaper)
	v.SetDefault("exchange.testnet", false)
	v.SetDefault("exchange.base_url", "")
	v.SetDefault("exchange.paper.balance", 10000)
	v.SetDefault("locker.kind", LockerMemory)
	v.SetDefault("db_dsn", "")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)
	v.SetDefault("intake.queue_size", 64)
	v.SetDefault("intake.workers", 4)
	v.SetDefault("market.enabled", false)
	v.SetDefault("market.url", "wss://ws.okx.com:8443/ws/v5/public")
	v.SetDefault("market.symbols", []string{})
	v.SetDefault("market.max_age", "60s")
}

// normalize: viper приводит ключи карт к нижнему регистру, символы храним в верхнем.
func (c *Config) normalize() {
	c.Exchange.Name = strings.ToLower(strings.TrimSpace(c.Exchange.Name))
	c.Locker.Kind = strings.ToLower(strings.TrimSpace(c.Locker.Kind))
	c.Lot.Rounding = risk.Rounding(strings.ToLower(string(c.Lot.Rounding)))

	filters := make(map[string]risk.LotFilter, len(c.Lot.Filters))
	for sym, f := range c.Lot.Filters {
		filters[strings.ToUpper(sym)] = f
	}
	c.Lot.Filters = filters

	prices := make(map[string]float64, len(c.Exchange.Paper.Prices))
	for sym, px := range c.Exchange.Paper.Prices {
		prices[strings.ToUpper(sym)] = px
	}
	c.Exchange.Paper.Prices = prices

	for i, s := range c.Market.Symbols {
		c.Market.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
}

func (c *Config) Validate() error {
	switch c.Exchange.Name {
	case ExchangeBinance, ExchangeOKX, ExchangePaper:
	default:
		return fmt.Errorf("config: unknown exchange.name %q", c.Exchange.Name)
	}
	switch c.Locker.Kind {
	case LockerMemory:
	case LockerPostgres:
		if c.DB == "" {
			return fmt.Errorf("config: locker.kind=postgres requires db_dsn")
		}
	default:
		return fmt.Errorf("config: unknown locker.kind %q", c.Locker.Kind)
	}
	switch c.Lot.Rounding {
	case risk.RoundTruncate, risk.RoundNearest:
	default:
		return fmt.Errorf("config: unknown lot.rounding %q", c.Lot.Rounding)
	}
	if c.Intake.QueueSize < 1 {
		return fmt.Errorf("config: intake.queue_size must be >= 1")
	}
	if c.Intake.Workers < 1 {
		return fmt.Errorf("config: intake.workers must be >= 1")
	}
	return nil
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalHook: строки и числа из YAML/env в decimal.Decimal.
func decimalHook() mapstructure.DecodeHookFuncType {
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != decimalType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return decimal.NewFromString(strings.TrimSpace(v))
		case float64:
			return decimal.NewFromFloat(v), nil
		case float32:
			return decimal.NewFromFloat32(v), nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		}
		return data, nil
	}
}
