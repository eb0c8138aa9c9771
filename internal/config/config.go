package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"parimutuel-market/internal/odds"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	App       AppConfig
	Log       LogConfig
	Fees      odds.FeeSchedule
	Snapshot  SnapshotConfig
	Market    MarketConfig
	Consensus ConsensusConfig
	Redis     RedisConfig
	Archive   ArchiveConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver     string // postgres or sqlite
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SQLitePath string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port        string
	GinMode     string
	FrontendURL string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// SnapshotConfig holds odds snapshot recorder settings
type SnapshotConfig struct {
	Interval      time.Duration
	Retention     time.Duration
	Concurrency   int
	MarketTimeout time.Duration
}

// MarketConfig holds pool ledger settings
type MarketConfig struct {
	CloseSweepInterval time.Duration
}

// ConsensusConfig holds consensus evaluator settings
type ConsensusConfig struct {
	Lookback         time.Duration
	TrendEpsilon     float64
	ConfidenceFactor float64
}

// RedisConfig holds event bus settings. Empty Addr disables publishing.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// ArchiveConfig holds snapshot archive settings. Empty Bucket disables it.
type ArchiveConfig struct {
	Bucket         string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "parimutuel_market")
	v.SetDefault("DB_SQLITE_PATH", "parimutuel.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("FEE_WINNER_SHARE", "0.85")
	v.SetDefault("FEE_TREASURY", "0.125")
	v.SetDefault("FEE_OPS", "0.025")
	v.SetDefault("SNAPSHOT_INTERVAL", 5*time.Minute)
	v.SetDefault("SNAPSHOT_RETENTION", 30*24*time.Hour)
	v.SetDefault("SNAPSHOT_CONCURRENCY", 8)
	v.SetDefault("SNAPSHOT_MARKET_TIMEOUT", 10*time.Second)
	v.SetDefault("CLOSE_SWEEP_INTERVAL", 30*time.Second)
	v.SetDefault("CONSENSUS_LOOKBACK", 15*time.Minute)
	v.SetDefault("CONSENSUS_TREND_EPSILON", 0.01)
	v.SetDefault("CONSENSUS_CONFIDENCE_FACTOR", 100.0)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("EVENTS_CHANNEL", "parimutuel.events")
	v.SetDefault("ARCHIVE_S3_PATH_STYLE", false)
}

// Load loads configuration from the environment (and a .env file if present)
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	fees, err := loadFees(v)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Database: DatabaseConfig{
			Driver:     strings.ToLower(v.GetString("DB_DRIVER")),
			Host:       v.GetString("DB_HOST"),
			Port:       v.GetString("DB_PORT"),
			User:       v.GetString("DB_USER"),
			Password:   v.GetString("DB_PASSWORD"),
			DBName:     v.GetString("DB_NAME"),
			SQLitePath: v.GetString("DB_SQLITE_PATH"),
		},
		Server: ServerConfig{
			Port:        v.GetString("SERVER_PORT"),
			GinMode:     v.GetString("GIN_MODE"),
			FrontendURL: v.GetString("FRONTEND_URL"),
		},
		App: AppConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Fees: fees,
		Snapshot: SnapshotConfig{
			Interval:      v.GetDuration("SNAPSHOT_INTERVAL"),
			Retention:     v.GetDuration("SNAPSHOT_RETENTION"),
			Concurrency:   v.GetInt("SNAPSHOT_CONCURRENCY"),
			MarketTimeout: v.GetDuration("SNAPSHOT_MARKET_TIMEOUT"),
		},
		Market: MarketConfig{
			CloseSweepInterval: v.GetDuration("CLOSE_SWEEP_INTERVAL"),
		},
		Consensus: ConsensusConfig{
			Lookback:         v.GetDuration("CONSENSUS_LOOKBACK"),
			TrendEpsilon:     v.GetFloat64("CONSENSUS_TREND_EPSILON"),
			ConfidenceFactor: v.GetFloat64("CONSENSUS_CONFIDENCE_FACTOR"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Channel:  v.GetString("EVENTS_CHANNEL"),
		},
		Archive: ArchiveConfig{
			Bucket:         v.GetString("ARCHIVE_S3_BUCKET"),
			Region:         v.GetString("ARCHIVE_S3_REGION"),
			Endpoint:       v.GetString("ARCHIVE_S3_ENDPOINT"),
			AccessKey:      v.GetString("ARCHIVE_S3_ACCESS_KEY"),
			SecretKey:      v.GetString("ARCHIVE_S3_SECRET_KEY"),
			ForcePathStyle: v.GetBool("ARCHIVE_S3_PATH_STYLE"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadFees(v *viper.Viper) (odds.FeeSchedule, error) {
	parse := func(key string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(v.GetString(key))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	}
	winner, err := parse("FEE_WINNER_SHARE")
	if err != nil {
		return odds.FeeSchedule{}, err
	}
	treasury, err := parse("FEE_TREASURY")
	if err != nil {
		return odds.FeeSchedule{}, err
	}
	ops, err := parse("FEE_OPS")
	if err != nil {
		return odds.FeeSchedule{}, err
	}
	return odds.NewFeeSchedule(winner, treasury, ops)
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.App.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Snapshot.Interval <= 0 || c.Snapshot.Retention <= 0 {
		return fmt.Errorf("snapshot interval and retention must be positive")
	}
	if c.Snapshot.Concurrency <= 0 {
		c.Snapshot.Concurrency = 1
	}
	if c.Market.CloseSweepInterval <= 0 {
		return fmt.Errorf("CLOSE_SWEEP_INTERVAL must be positive")
	}
	if c.Consensus.Lookback <= 0 || c.Consensus.ConfidenceFactor <= 0 {
		return fmt.Errorf("consensus lookback and confidence factor must be positive")
	}
	return c.Fees.Validate()
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}
