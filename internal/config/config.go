// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Games     GamesConfig     `mapstructure:"games"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Reaper    ReaperConfig    `mapstructure:"reaper"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Log       LogConfig       `mapstructure:"log"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token       string        `mapstructure:"token"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig selects the redis-backed group session store.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LedgerConfig holds account ledger configuration.
type LedgerConfig struct {
	// Backend is "memory" or "postgres".
	Backend         string `mapstructure:"backend"`
	StartingBalance int64  `mapstructure:"starting_balance"`
	Journal         bool   `mapstructure:"journal"`
}

// GamesConfig holds limits shared by all games.
type GamesConfig struct {
	MinBet        int64         `mapstructure:"min_bet"`
	MaxBet        int64         `mapstructure:"max_bet"`
	JoinTimeout   time.Duration `mapstructure:"join_timeout"`
	HouseMaxRolls int           `mapstructure:"house_max_rolls"`
	HousePace     time.Duration `mapstructure:"house_pace"`
}

// OracleConfig holds roll request polling configuration.
type OracleConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	// LocalRoller fulfils pending roll requests in-process; for development
	// without the external roll service.
	LocalRoller bool `mapstructure:"local_roller"`
}

// ReaperConfig holds stale session cleanup configuration.
type ReaperConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	StaleFactor int           `mapstructure:"stale_factor"`
	IdleFactor  int           `mapstructure:"idle_factor"`
}

// HTTPConfig holds the ops HTTP server configuration.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslMode,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. BOT_TOKEN, DATABASE_HOST, GAMES_MIN_BET
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.poll_timeout", "10s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "casino")
	v.SetDefault("database.name", "casino")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "casino:group:")

	v.SetDefault("ledger.backend", "memory")
	v.SetDefault("ledger.starting_balance", 1000)
	v.SetDefault("ledger.journal", true)

	v.SetDefault("games.min_bet", 5)
	v.SetDefault("games.max_bet", 1000)
	v.SetDefault("games.join_timeout", "60s")
	v.SetDefault("games.house_max_rolls", 3)
	v.SetDefault("games.house_pace", "1500ms")

	v.SetDefault("oracle.poll_interval", "2s")
	v.SetDefault("oracle.max_attempts", 30)
	v.SetDefault("oracle.local_roller", false)

	v.SetDefault("reaper.interval", "15m")
	v.SetDefault("reaper.stale_factor", 5)
	v.SetDefault("reaper.idle_factor", 20)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")

	v.SetDefault("log.level", "info")
}

// Validate rejects configurations the games cannot run with.
func (c *Config) Validate() error {
	if c.Games.MinBet <= 0 || c.Games.MaxBet < c.Games.MinBet {
		return fmt.Errorf("invalid bet range [%d, %d]", c.Games.MinBet, c.Games.MaxBet)
	}
	if c.Games.JoinTimeout <= 0 {
		return fmt.Errorf("games.join_timeout must be positive")
	}
	if c.Oracle.PollInterval <= 0 || c.Oracle.MaxAttempts <= 0 {
		return fmt.Errorf("oracle polling must have a positive interval and attempt budget")
	}
	switch c.Ledger.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	return nil
}

// GameStaleAfter is the age past which a waiting game is reaped.
func (c *Config) GameStaleAfter() time.Duration {
	return time.Duration(c.Reaper.StaleFactor) * c.Games.JoinTimeout
}

// GroupIdleAfter is the idle time past which an empty group session is reaped.
func (c *Config) GroupIdleAfter() time.Duration {
	return time.Duration(c.Reaper.IdleFactor) * c.Games.JoinTimeout
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
