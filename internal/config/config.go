package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config aggregates all configuration settings for the application.
type Config struct {
	// Environment indicates the running environment (e.g., "development", "production").
	Environment string `mapstructure:"environment"`
	// LogLevel sets the global logging verbosity.
	LogLevel string `mapstructure:"log_level"`
	// Server holds configuration for the HTTP server.
	Server ServerConfig `mapstructure:"server"`
	// Database holds configuration for the PostgreSQL connection.
	Database DatabaseConfig `mapstructure:"database"`
	// Redis holds configuration for the Redis connection.
	Redis RedisConfig `mapstructure:"redis"`
	// Forecast holds configuration for the forecasting pipeline.
	Forecast ForecastConfig `mapstructure:"forecast"`
	// Metals lists the commodity contracts the pipeline processes.
	Metals []MetalConfig `mapstructure:"metals"`
}

// ServerConfig defines the HTTP server settings.
type ServerConfig struct {
	// Port is the TCP port the server listens on.
	Port int `mapstructure:"port"`
}

// DatabaseConfig defines the PostgreSQL database connection settings.
type DatabaseConfig struct {
	// Host is the database server hostname or IP.
	Host string `mapstructure:"host"`
	// Port is the database server port.
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password.
	Password string `mapstructure:"password"`
	// DBName is the name of the database to connect to.
	DBName string `mapstructure:"dbname"`
	// SSLMode defines the SSL connection mode.
	SSLMode string `mapstructure:"sslmode"`
	// DatabaseURL is a connection string that overrides individual fields.
	DatabaseURL string `mapstructure:"database_url"`
}

// RedisConfig defines the Redis connection settings.
type RedisConfig struct {
	// Host is the Redis server hostname.
	Host string `mapstructure:"host"`
	// Port is the Redis server port.
	Port int `mapstructure:"port"`
	// Password is the Redis authentication password.
	Password string `mapstructure:"password"`
	// DB is the Redis database index to use.
	DB int `mapstructure:"db"`
}

// ForecastConfig defines settings for the forecasting pipeline.
type ForecastConfig struct {
	// LookbackDays is how much history to fetch per metal.
	LookbackDays int `mapstructure:"lookback_days"`
	// Horizons are the forecast horizons in trading days.
	Horizons []int `mapstructure:"horizons"`
	// EvalHorizonDays is the fixed horizon at which past forecasts are scored.
	EvalHorizonDays int `mapstructure:"eval_horizon_days"`
	// TrackingWindowDays bounds the rolling live-price tracking log.
	TrackingWindowDays int `mapstructure:"tracking_window_days"`
	// HistoryPath is where the local JSON fallback history is written.
	HistoryPath string `mapstructure:"history_path"`
	// HistoryRetentionDays bounds the local JSON fallback history.
	HistoryRetentionDays int `mapstructure:"history_retention_days"`
	// SeriesCacheTTL is the duration string for cached series fetches.
	SeriesCacheTTL string `mapstructure:"series_cache_ttl"`
	// Workers is the number of metals processed concurrently.
	Workers int `mapstructure:"workers"`
	// ModelVersion tags the emitted run output.
	ModelVersion string `mapstructure:"model_version"`
}

// MetalConfig defines the static contract attributes of one metal.
type MetalConfig struct {
	// Name is the display and persistence key (e.g. "Gold").
	Name string `mapstructure:"name"`
	// Symbol is the futures symbol (e.g. "GC").
	Symbol string `mapstructure:"symbol"`
	// ContractSize is the number of units per futures contract.
	ContractSize float64 `mapstructure:"contract_size"`
	// Unit is the contract unit of measure.
	Unit string `mapstructure:"unit"`
	// WarehouseUnitFactor converts warehouse stock units to contract units.
	WarehouseUnitFactor float64 `mapstructure:"warehouse_unit_factor"`
}

// Load reads the configuration from the config file and environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Bind standard DATABASE_URL
	_ = viper.BindEnv("database.database_url", "DATABASE_URL")
	_ = viper.BindEnv("redis.host", "REDIS_HOST")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if len(config.Metals) == 0 {
		config.Metals = DefaultMetals()
	}

	return &config, nil
}

// DefaultMetals returns the COMEX contracts the pipeline covers out of the
// box. Registered copper stocks are reported in short tons while the HG
// contract trades in pounds, hence the 2000 warehouse conversion factor.
func DefaultMetals() []MetalConfig {
	return []MetalConfig{
		{Name: "Gold", Symbol: "GC", ContractSize: 100, Unit: "oz", WarehouseUnitFactor: 1},
		{Name: "Silver", Symbol: "SI", ContractSize: 5000, Unit: "oz", WarehouseUnitFactor: 1},
		{Name: "Copper", Symbol: "HG", ContractSize: 25000, Unit: "lbs", WarehouseUnitFactor: 2000},
		{Name: "Platinum", Symbol: "PL", ContractSize: 50, Unit: "oz", WarehouseUnitFactor: 1},
		{Name: "Palladium", Symbol: "PA", ContractSize: 100, Unit: "oz", WarehouseUnitFactor: 1},
	}
}

// setDefaults initializes the default configuration values in Viper.
func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "metalcast")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Forecast pipeline
	viper.SetDefault("forecast.lookback_days", 365)
	viper.SetDefault("forecast.horizons", []int{5, 20})
	viper.SetDefault("forecast.eval_horizon_days", 5)
	viper.SetDefault("forecast.tracking_window_days", 30)
	viper.SetDefault("forecast.history_path", "public/forecast_history.json")
	viper.SetDefault("forecast.history_retention_days", 90)
	viper.SetDefault("forecast.series_cache_ttl", "30m")
	viper.SetDefault("forecast.workers", 3)
	viper.SetDefault("forecast.model_version", "1.0.0")
}
