package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Supported DB_DRIVER values.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Config holds application configuration values.
type Config struct {
	AppName  string `mapstructure:"APP_NAME"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	HTTPPort string        `mapstructure:"HTTP_PORT"`
	Secret   string        `mapstructure:"SECRET"`
	TokenTTL time.Duration `mapstructure:"TOKEN_TTL"`

	LoginRatePerMinute int `mapstructure:"LOGIN_RATE_PER_MINUTE"`

	DBDriver    string `mapstructure:"DB_DRIVER"`
	DatabaseDSN string `mapstructure:"DATABASE_DSN"`

	SeedProducts  string `mapstructure:"SEED_PRODUCTS"`
	AdminUsername string `mapstructure:"ADMIN_USERNAME"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`

	RedisURL        string        `mapstructure:"REDIS_URL"`
	CatalogCacheTTL time.Duration `mapstructure:"CATALOG_CACHE_TTL"`

	RabbitMQURL        string `mapstructure:"RABBITMQ_URL"`
	EventsExchange     string `mapstructure:"EVENTS_EXCHANGE"`
	SaleCompletedTopic string `mapstructure:"SALE_COMPLETED_TOPIC"`

	// Low-stock listing is a reporting concern; threshold 0 lists everything.
	LowStockThreshold int64  `mapstructure:"LOW_STOCK_THRESHOLD"`
	LowStockLimit     int    `mapstructure:"LOW_STOCK_LIMIT"`
	LowStockOrder     string `mapstructure:"LOW_STOCK_ORDER"`
	RecentSalesLimit  int    `mapstructure:"RECENT_SALES_LIMIT"`

	Timezone            string `mapstructure:"TIMEZONE"`
	CartRetainOnFailure bool   `mapstructure:"CART_RETAIN_ON_FAILURE"`

	Location *time.Location `mapstructure:"-"`
}

// Load reads configuration from the environment (after loading a .env file
// if present) and an optional app.env in path, with reasonable defaults.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env file")
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("APP_NAME", "kasir")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("SECRET", "dev_secret")
	v.SetDefault("TOKEN_TTL", 24*time.Hour)
	v.SetDefault("LOGIN_RATE_PER_MINUTE", 30)
	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("DATABASE_DSN", "file:kasir.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite")
	v.SetDefault("SEED_PRODUCTS", "assets/products.csv")
	v.SetDefault("ADMIN_USERNAME", "admin")
	v.SetDefault("ADMIN_PASSWORD", "admin")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("CATALOG_CACHE_TTL", 30*time.Second)
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("EVENTS_EXCHANGE", "events.sales")
	v.SetDefault("SALE_COMPLETED_TOPIC", "sale.completed")
	v.SetDefault("LOW_STOCK_THRESHOLD", 5)
	v.SetDefault("LOW_STOCK_LIMIT", 5)
	v.SetDefault("LOW_STOCK_ORDER", "asc")
	v.SetDefault("RECENT_SALES_LIMIT", 5)
	v.SetDefault("TIMEZONE", "Asia/Jakarta")
	v.SetDefault("CART_RETAIN_ON_FAILURE", false)

	if err := v.ReadInConfig(); err == nil {
		log.Info().Str("file", v.ConfigFileUsed()).Msg("using config file")
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	// Validate that port is numeric.
	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		log.Warn().Str("value", cfg.HTTPPort).Msg("invalid HTTP_PORT value, defaulting to 8080")
		cfg.HTTPPort = "8080"
	}

	switch cfg.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	cfg.LowStockOrder = strings.ToLower(cfg.LowStockOrder)
	if cfg.LowStockOrder != "asc" && cfg.LowStockOrder != "none" {
		return Config{}, fmt.Errorf("LOW_STOCK_ORDER must be asc or none, got %q", cfg.LowStockOrder)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("load TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	return cfg, nil
}
