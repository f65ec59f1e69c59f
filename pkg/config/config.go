package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var ErrParsingConfig = errors.New("config: failed to parse environment")

type Config struct {
	Addr    string `env:"HTTP_ADDR" envDefault:":8000"`
	GinMode string `env:"GIN_MODE" envDefault:"release"`

	DBDriver        string        `env:"DB_DRIVER" envDefault:"postgres"`
	DBHost          string        `env:"DB_HOST" envDefault:"postgres"`
	DBPort          string        `env:"DB_PORT" envDefault:"5432"`
	DBUser          string        `env:"DB_USER" envDefault:"program"`
	DBPassword      string        `env:"DB_PASSWORD" envDefault:"test"`
	DBName          string        `env:"DB_NAME" envDefault:"library"`
	DBPath          string        `env:"DB_PATH" envDefault:"catalog.db"`
	DBMaxRetries    int           `env:"DB_MAX_RETRIES" envDefault:"10"`
	DBRetryInterval time.Duration `env:"DB_RETRY_INTERVAL" envDefault:"5s"`

	// Empty RedisURL keeps sessions in process memory.
	RedisURL           string        `env:"REDIS_URL"`
	SessionSecret      string        `env:"SESSION_SECRET" envDefault:"insecure-dev-secret"`
	SessionTTL         time.Duration `env:"SESSION_TTL" envDefault:"336h"`
	BreakerMaxFailures int           `env:"BREAKER_MAX_FAILURES" envDefault:"5"`
	BreakerTimeout     time.Duration `env:"BREAKER_TIMEOUT" envDefault:"30s"`

	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`

	SeedData          bool   `env:"SEED_DATA" envDefault:"false"`
	LibrarianEmail    string `env:"LIBRARIAN_EMAIL" envDefault:"librarian@example.com"`
	LibrarianPassword string `env:"LIBRARIAN_PASSWORD"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite" {
		return Config{}, fmt.Errorf("%w: unsupported DB_DRIVER %q", ErrParsingConfig, cfg.DBDriver)
	}
	return cfg, nil
}

func (c Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}
