package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration. It is read once at startup and
// passed down to the components that need it.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Argon2    Argon2Config
	Ledger    LedgerConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig
	Invite    InviteConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	SwaggerURL      string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
	MigrationsPath  string
}

// DSN returns the lib/pq keyword/value connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// MigrationURL returns the URL form golang-migrate expects.
func (c DatabaseConfig) MigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type JWTConfig struct {
	SecretKey string
	Expiry    time.Duration
}

type Argon2Config struct {
	Time       uint32
	Memory     uint32
	Threads    uint8
	KeyLength  uint32
	SaltLength uint32
}

type LedgerConfig struct {
	// AllowSelfTransfer permits sender == receiver. Such a transfer leaves the
	// balance unchanged but still writes both ledger entries.
	AllowSelfTransfer  bool
	MaxRetries         int
	RetryBackoff       time.Duration
	TransfersPerMinute int
	RankingCacheTTL    time.Duration
}

type KafkaConfig struct {
	Enabled             bool
	Brokers             []string
	TransferTopic       string
	OutboxPollInterval  time.Duration
	OutboxPollTimeout   time.Duration
	OutboxBatchSize     int
	OutboxPurgeSchedule string
	OutboxRetention     time.Duration
}

type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

type InviteConfig struct {
	TTL time.Duration
}

var envBindings = map[string]string{
	"server.port":                 "PORT",
	"server.allowed_origins":      "SERVER_ALLOWED_ORIGINS",
	"server.swagger_url":          "SERVER_SWAGGER_URL",
	"database.host":               "DATABASE_HOST",
	"database.port":               "DATABASE_PORT",
	"database.user":               "DATABASE_USER",
	"database.password":           "DATABASE_PASSWORD",
	"database.name":               "DATABASE_NAME",
	"database.ssl_mode":           "DATABASE_SSL_MODE",
	"database.query_timeout":      "DATABASE_QUERY_TIMEOUT",
	"database.migrations_path":    "DATABASE_MIGRATIONS_PATH",
	"redis.host":                  "REDIS_HOST",
	"redis.port":                  "REDIS_PORT",
	"redis.password":              "REDIS_PASSWORD",
	"redis.db":                    "REDIS_DB",
	"jwt.secret_key":              "JWT_SECRET_KEY",
	"jwt.expiry":                  "JWT_EXPIRY",
	"argon2.time":                 "ARGON2_TIME",
	"argon2.memory":               "ARGON2_MEMORY",
	"argon2.threads":              "ARGON2_THREADS",
	"argon2.key_length":           "ARGON2_KEY_LENGTH",
	"argon2.salt_length":          "ARGON2_SALT_LENGTH",
	"ledger.allow_self_transfer":  "LEDGER_ALLOW_SELF_TRANSFER",
	"ledger.max_retries":          "LEDGER_MAX_RETRIES",
	"ledger.retry_backoff":        "LEDGER_RETRY_BACKOFF",
	"ledger.transfers_per_minute": "LEDGER_TRANSFERS_PER_MINUTE",
	"ledger.ranking_cache_ttl":    "LEDGER_RANKING_CACHE_TTL",
	"kafka.enabled":               "KAFKA_ENABLED",
	"kafka.brokers":               "KAFKA_BROKERS",
	"kafka.transfer_topic":        "KAFKA_TRANSFER_TOPIC",
	"kafka.outbox_poll_interval":  "OUTBOX_POLL_INTERVAL",
	"kafka.outbox_poll_timeout":   "OUTBOX_POLL_TIMEOUT",
	"kafka.outbox_batch_size":     "OUTBOX_BATCH_SIZE",
	"kafka.outbox_purge_schedule": "OUTBOX_PURGE_SCHEDULE",
	"kafka.outbox_retention":      "OUTBOX_RETENTION",
	"ratelimit.requests_per_sec":  "RATELIMIT_REQUESTS_PER_SEC",
	"ratelimit.burst":             "RATELIMIT_BURST",
	"invite.ttl":                  "INVITE_TTL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", "https://*,http://*")
	v.SetDefault("server.swagger_url", "http://localhost:8080/swagger/doc.json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "imbroke")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.query_timeout", 5*time.Second)
	v.SetDefault("database.migrations_path", "file://migrations")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.secret_key", "im-broke-website")
	v.SetDefault("jwt.expiry", time.Hour)

	v.SetDefault("argon2.time", 1)
	v.SetDefault("argon2.memory", 64*1024)
	v.SetDefault("argon2.threads", 4)
	v.SetDefault("argon2.key_length", 32)
	v.SetDefault("argon2.salt_length", 16)

	v.SetDefault("ledger.allow_self_transfer", false)
	v.SetDefault("ledger.max_retries", 3)
	v.SetDefault("ledger.retry_backoff", 50*time.Millisecond)
	v.SetDefault("ledger.transfers_per_minute", 30)
	v.SetDefault("ledger.ranking_cache_ttl", 30*time.Second)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.transfer_topic", "ledger.transfers")
	v.SetDefault("kafka.outbox_poll_interval", time.Second)
	v.SetDefault("kafka.outbox_poll_timeout", 500*time.Millisecond)
	v.SetDefault("kafka.outbox_batch_size", 50)
	v.SetDefault("kafka.outbox_purge_schedule", "@hourly")
	v.SetDefault("kafka.outbox_retention", 7*24*time.Hour)

	v.SetDefault("ratelimit.requests_per_sec", 20)
	v.SetDefault("ratelimit.burst", 40)

	v.SetDefault("invite.ttl", 24*time.Hour)
}

// Load reads configuration from the given .env file (if it exists) and the
// process environment. Environment variables win over the file.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	v.AutomaticEnv()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", envFile, err)
			}
		}
		// .env keys arrive flat (DATABASE_HOST -> database_host); fold them
		// into the dotted keys below the environment in precedence.
		for key, env := range envBindings {
			if val := v.Get(strings.ToLower(env)); val != nil {
				v.SetDefault(key, val)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			RequestTimeout:  v.GetDuration("server.request_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			AllowedOrigins:  splitList(v.GetString("server.allowed_origins")),
			SwaggerURL:      v.GetString("server.swagger_url"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			QueryTimeout:    v.GetDuration("database.query_timeout"),
			MigrationsPath:  v.GetString("database.migrations_path"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			SecretKey: v.GetString("jwt.secret_key"),
			Expiry:    v.GetDuration("jwt.expiry"),
		},
		Argon2: Argon2Config{
			Time:       v.GetUint32("argon2.time"),
			Memory:     v.GetUint32("argon2.memory"),
			Threads:    uint8(v.GetUint("argon2.threads")),
			KeyLength:  v.GetUint32("argon2.key_length"),
			SaltLength: v.GetUint32("argon2.salt_length"),
		},
		Ledger: LedgerConfig{
			AllowSelfTransfer:  v.GetBool("ledger.allow_self_transfer"),
			MaxRetries:         v.GetInt("ledger.max_retries"),
			RetryBackoff:       v.GetDuration("ledger.retry_backoff"),
			TransfersPerMinute: v.GetInt("ledger.transfers_per_minute"),
			RankingCacheTTL:    v.GetDuration("ledger.ranking_cache_ttl"),
		},
		Kafka: KafkaConfig{
			Enabled:             v.GetBool("kafka.enabled"),
			Brokers:             splitList(v.GetString("kafka.brokers")),
			TransferTopic:       v.GetString("kafka.transfer_topic"),
			OutboxPollInterval:  v.GetDuration("kafka.outbox_poll_interval"),
			OutboxPollTimeout:   v.GetDuration("kafka.outbox_poll_timeout"),
			OutboxBatchSize:     v.GetInt("kafka.outbox_batch_size"),
			OutboxPurgeSchedule: v.GetString("kafka.outbox_purge_schedule"),
			OutboxRetention:     v.GetDuration("kafka.outbox_retention"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: v.GetInt("ratelimit.requests_per_sec"),
			Burst:             v.GetInt("ratelimit.burst"),
		},
		Invite: InviteConfig{
			TTL: v.GetDuration("invite.ttl"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("jwt.secret_key must be set")
	}
	if c.JWT.Expiry <= 0 {
		return fmt.Errorf("jwt.expiry must be positive")
	}
	if c.Ledger.MaxRetries < 0 {
		return fmt.Errorf("ledger.max_retries must not be negative")
	}
	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("database.query_timeout must be positive")
	}
	if c.Argon2.KeyLength == 0 || c.Argon2.SaltLength == 0 {
		return fmt.Errorf("argon2 key and salt lengths must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
