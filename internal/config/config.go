package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	DatabaseURL string
	HTTPAddr    string
	CORSOrigins []string

	LogLevel  string
	LogFormat string

	Recon Reconciliation
	Kafka Kafka
}

// Reconciliation tunes the matching run.
type Reconciliation struct {
	Workers       int
	LeaseTimeout  time.Duration
	Tolerance     decimal.Decimal
	MaxCandidates int
	MaxDepth      int
}

type Kafka struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether outcome events should be published.
func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=recon port=5432 sslmode=disable")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("RECON_WORKERS", 1)
	v.SetDefault("RECON_LEASE_TIMEOUT", "15m")
	v.SetDefault("RECON_TOLERANCE", "0.50")
	v.SetDefault("RECON_MAX_CANDIDATES", 25)
	v.SetDefault("RECON_MAX_DEPTH", 6)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "reconciliation-events")
}

// Load reads .env (if present), the optional config file and the environment.
func Load(configFile string) (*Config, error) {
	// Missing .env is fine, the process environment wins anyway.
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	return FromViper(v)
}

// FromViper builds a validated Config out of v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabaseURL: v.GetString("DATABASE_URL"),
		HTTPAddr:    v.GetString("HTTP_ADDR"),
		CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
		LogLevel:    strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:   strings.ToLower(v.GetString("LOG_FORMAT")),
		Kafka: Kafka{
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
	}

	workers := v.GetInt("RECON_WORKERS")
	if workers <= 0 {
		return nil, fmt.Errorf("%w: RECON_WORKERS must be positive, got %d", ErrInvalidConfig, workers)
	}

	lease, err := time.ParseDuration(v.GetString("RECON_LEASE_TIMEOUT"))
	if err != nil || lease <= 0 {
		return nil, fmt.Errorf("%w: RECON_LEASE_TIMEOUT %q", ErrInvalidConfig, v.GetString("RECON_LEASE_TIMEOUT"))
	}

	tolerance, err := decimal.NewFromString(v.GetString("RECON_TOLERANCE"))
	if err != nil || tolerance.IsNegative() {
		return nil, fmt.Errorf("%w: RECON_TOLERANCE %q", ErrInvalidConfig, v.GetString("RECON_TOLERANCE"))
	}

	maxCandidates := v.GetInt("RECON_MAX_CANDIDATES")
	maxDepth := v.GetInt("RECON_MAX_DEPTH")
	if maxCandidates <= 0 || maxDepth <= 0 {
		return nil, fmt.Errorf("%w: RECON_MAX_CANDIDATES and RECON_MAX_DEPTH must be positive", ErrInvalidConfig)
	}

	cfg.Recon = Reconciliation{
		Workers:       workers,
		LeaseTimeout:  lease,
		Tolerance:     tolerance,
		MaxCandidates: maxCandidates,
		MaxDepth:      maxDepth,
	}
	return cfg, nil
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
