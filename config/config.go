package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Game      GameConfig      `mapstructure:"game"`
	Quiz      QuizConfig      `mapstructure:"quiz"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Room      RoomConfig      `mapstructure:"room"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// DatabaseConfig 选择房间快照的存储方式: memory 或 postgres
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the libpq keyword/value connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"`
	JWTSecret         string `mapstructure:"jwt_secret"`
	ExpireHours       int    `mapstructure:"expire_hours"`
}

type GameConfig struct {
	DefaultCountdown time.Duration `mapstructure:"default_countdown"`
	TickInterval     time.Duration `mapstructure:"tick_interval"`
}

type QuizConfig struct {
	Points                int           `mapstructure:"points"`
	Duration              time.Duration `mapstructure:"duration"`
	Order                 string        `mapstructure:"order"`
	RepresentativeByTable bool          `mapstructure:"representative_by_table"`
	Bank                  string        `mapstructure:"bank"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	TapMinInterval    time.Duration `mapstructure:"tap_min_interval"`
	TapWindow         time.Duration `mapstructure:"tap_window"`
	TapWindowBudget   int           `mapstructure:"tap_window_budget"`
	AnswerMinInterval time.Duration `mapstructure:"answer_min_interval"`
	IdleTTL           time.Duration `mapstructure:"idle_ttl"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
}

type RoomConfig struct {
	RemoveOnDisconnect bool          `mapstructure:"remove_on_disconnect"`
	InboxSize          int           `mapstructure:"inbox_size"`
	SaveInterval       time.Duration `mapstructure:"save_interval"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.allowed_origins", "*")

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.dbname", "partygame")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.expire_hours", 12)

	v.SetDefault("game.default_countdown", 10*time.Second)
	v.SetDefault("game.tick_interval", 100*time.Millisecond)

	v.SetDefault("quiz.points", 10)
	v.SetDefault("quiz.duration", 20*time.Second)
	v.SetDefault("quiz.order", "sequential")
	v.SetDefault("quiz.representative_by_table", false)
	v.SetDefault("quiz.bank", "memory")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.tap_min_interval", 150*time.Millisecond)
	v.SetDefault("ratelimit.tap_window", time.Second)
	v.SetDefault("ratelimit.tap_window_budget", 150)
	v.SetDefault("ratelimit.answer_min_interval", 2*time.Second)
	v.SetDefault("ratelimit.idle_ttl", 5*time.Minute)
	v.SetDefault("ratelimit.sweep_interval", time.Minute)

	v.SetDefault("room.remove_on_disconnect", false)
	v.SetDefault("room.inbox_size", 256)
	v.SetDefault("room.save_interval", 2*time.Second)

	v.SetDefault("log.level", "info")
}

// LoadConfig 读取 .env、config.yaml 和 PARTY_ 前缀的环境变量，配置文件可以不存在
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("PARTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("database.driver must be memory or postgres, got %q", c.Database.Driver)
	}
	switch c.Quiz.Bank {
	case "memory", "postgres":
	default:
		return fmt.Errorf("quiz.bank must be memory or postgres, got %q", c.Quiz.Bank)
	}
	switch c.Quiz.Order {
	case "sequential", "random":
	default:
		return fmt.Errorf("quiz.order must be sequential or random, got %q", c.Quiz.Order)
	}
	if c.Quiz.Points <= 0 {
		return errors.New("quiz.points must be positive")
	}
	if c.RateLimit.Enabled && c.RateLimit.SweepInterval <= 0 {
		return errors.New("ratelimit.sweep_interval must be positive")
	}
	if c.Auth.Enabled && (c.Auth.JWTSecret == "" || c.Auth.AdminPasswordHash == "") {
		return errors.New("auth.jwt_secret and auth.admin_password_hash are required when auth is enabled")
	}
	return nil
}
