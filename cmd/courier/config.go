package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/courier/internal/logger"
	"github.com/nkiryanov/courier/internal/service/effects"
	"github.com/nkiryanov/courier/internal/service/ledger"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the courier service will be run
	ListenAddr string

	// Database to connect to
	// If empty the in-memory storage is used, which is fine for development only
	DatabaseDSN string

	// Redis address to fan changes out between instances
	// If empty changes are delivered to subscribers of this instance only
	RedisAddr string

	// Secret key
	// Some internal parts (like signing JWT tokens) uses symmetric encryption, so this key is used for that purpose
	SecretKey string

	// Environment
	Environment string

	// Wallet currency
	Currency string

	// Smallest amount the ledger posts, as decimal string
	LedgerMinAmount string

	// How often stuck effects are looked for
	SweepInterval time.Duration

	// Pending effect untouched that long is retried
	EffectRetryDelay time.Duration

	// Number of workers running retried effects
	EffectWorkers int
}

func NewConfig() *Config {
	return &Config{
		LogLevel:         defaultLoggingLevel,
		ListenAddr:       defaultListenAddr,
		Environment:      defaultEnvironment,
		Currency:         ledger.DefaultCurrency,
		LedgerMinAmount:  ledger.DefaultMinAmount.String(),
		SweepInterval:    effects.DefaultSweepInterval,
		EffectRetryDelay: effects.DefaultRetryDelay,
		EffectWorkers:    effects.DefaultWorkers,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := cast.ToDurationE(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			i, err := cast.ToIntE(value)
			if err != nil {
				return err
			}
			*o = i
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":        setString(&c.ListenAddr),
		"DATABASE_URI":       setString(&c.DatabaseDSN),
		"REDIS_ADDR":         setString(&c.RedisAddr),
		"SECRET_KEY":         setString(&c.SecretKey),
		"LOG_LEVEL":          setString(&c.LogLevel),
		"ENVIRONMENT":        setString(&c.Environment),
		"CURRENCY":           setString(&c.Currency),
		"LEDGER_MIN_AMOUNT":  setString(&c.LedgerMinAmount),
		"SWEEP_INTERVAL":     setDuration(&c.SweepInterval),
		"EFFECT_RETRY_DELAY": setDuration(&c.EffectRetryDelay),
		"EFFECT_WORKERS":     setInt(&c.EffectWorkers),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("courier", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string, in-memory storage if empty")
	fs.StringVarP(&c.RedisAddr, "redis", "r", c.RedisAddr, "Redis address to share changes between instances")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (development, production)")
	fs.StringVar(&c.Currency, "currency", c.Currency, "Wallet currency")
	fs.StringVar(&c.LedgerMinAmount, "ledger-min-amount", c.LedgerMinAmount, "Smallest amount the ledger posts")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "How often stuck effects are looked for")
	fs.DurationVar(&c.EffectRetryDelay, "effect-retry-delay", c.EffectRetryDelay, "Pending effect untouched that long is retried")
	fs.IntVar(&c.EffectWorkers, "effect-workers", c.EffectWorkers, "Number of workers running retried effects")

	return fs.Parse(args)
}
