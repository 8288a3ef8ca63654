package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration, populated from the environment.
type Config struct {
	Server    Server
	Postgres  Postgres
	Redis     RedisConfig
	Kafka     Kafka
	Scheduler Scheduler
	Evidence  Evidence
	RateLimit RateLimit
	LogLevel  string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	JWTIssuer       string
	JWTAudience     string
	AdminToken      string
	ShutdownTimeout time.Duration
}

// Postgres is optional; an empty URL selects the in-memory store.
type Postgres struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional; an empty URL selects the in-process locker.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration
}

// Kafka is optional; without brokers timeline entries stay in the outbox.
type Kafka struct {
	Brokers       []string
	TimelineTopic string
	Partitions    int32
	Replication   int16
	RelayInterval time.Duration
}

// Scheduler drives the periodic SLA sweep.
type Scheduler struct {
	Enabled        bool
	SweepInterval  time.Duration
	MaxConcurrency int
}

// Evidence points at optional requirement overrides and the directory
// holding uploaded document bytes. Without a directory documents are not
// fingerprinted.
type Evidence struct {
	RequirementsFile string
	StorageDir       string
	HashWorkers      int
	HashQueueSize    int
}

// RateLimit budgets requests per client. Buckets live in Redis when it is
// configured and in process memory otherwise.
type RateLimit struct {
	Disabled    bool
	ReadPerMin  int
	WritePerMin int
	AdminPerMin int
}

// Load reads a .env file when present, then builds the config from the
// environment. Variables already set in the environment win.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Config{
		Server: Server{
			Addr:            envString("BGV_ADDR", ":8080"),
			JWTSigningKey:   jwtSigningKey,
			JWTIssuer:       envString("JWT_ISSUER", "bgv"),
			JWTAudience:     envString("JWT_AUDIENCE", "bgv-api"),
			AdminToken:      os.Getenv("BGV_ADMIN_TOKEN"),
			ShutdownTimeout: envDuration("BGV_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Postgres: Postgres{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			LockTTL:      envDuration("REDIS_LOCK_TTL", 30*time.Second),
		},
		Kafka: Kafka{
			Brokers:       envList("KAFKA_BROKERS"),
			TimelineTopic: envString("KAFKA_TIMELINE_TOPIC", "bgv.timeline"),
			Partitions:    int32(envInt("KAFKA_TIMELINE_PARTITIONS", 6)),
			Replication:   int16(envInt("KAFKA_TIMELINE_REPLICATION", 1)),
			RelayInterval: envDuration("KAFKA_RELAY_INTERVAL", time.Second),
		},
		Scheduler: Scheduler{
			Enabled:        os.Getenv("BGV_SCHEDULER_DISABLED") != "true",
			SweepInterval:  envDuration("BGV_SWEEP_INTERVAL", 15*time.Minute),
			MaxConcurrency: envInt("BGV_SWEEP_CONCURRENCY", 4),
		},
		Evidence: Evidence{
			RequirementsFile: os.Getenv("BGV_REQUIREMENTS_FILE"),
			StorageDir:       os.Getenv("BGV_EVIDENCE_DIR"),
			HashWorkers:      envInt("BGV_HASH_WORKERS", 2),
			HashQueueSize:    envInt("BGV_HASH_QUEUE_SIZE", 256),
		},
		RateLimit: RateLimit{
			Disabled:    os.Getenv("BGV_RATELIMIT_DISABLED") == "true",
			ReadPerMin:  envInt("BGV_RATELIMIT_READ_PER_MIN", 300),
			WritePerMin: envInt("BGV_RATELIMIT_WRITE_PER_MIN", 120),
			AdminPerMin: envInt("BGV_RATELIMIT_ADMIN_PER_MIN", 10),
		},
		LogLevel: envString("LOG_LEVEL", "info"),
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func envList(key string) []string {
	var out []string
	for part := range strings.SplitSeq(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
