package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, YAML config files or a
// local .env file.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Redis       RedisConfig
	Payment     PaymentConfig
	Geocode     GeocodeConfig
	Order       OrderConfig
	Health      HealthConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RedisConfig enables the order cache when Addr is set.
type RedisConfig struct {
	Addr string        `default:"" usage:"Redis address for the order cache (CHECKOUT_REDIS_ADDR or REDIS_ADDR); empty disables caching"`
	TTL  time.Duration `default:"10m" usage:"Order cache entry lifetime"`
}

// PaymentConfig tunes the payment simulator and the per-client limit on
// unsuccessful attempts.
type PaymentConfig struct {
	Latency       time.Duration `default:"1s" usage:"Simulated payment processing delay"`
	FailureRate   float64       `default:"0.1" usage:"Probability of a random payment failure"`
	MaxFailures   int           `default:"5" usage:"Declined or failed payments a client may make per failure window"`
	FailureWindow time.Duration `default:"15m" usage:"Sliding window for counting unsuccessful payments"`
}

// GeocodeConfig configures the geocoding upstream.
type GeocodeConfig struct {
	APIKey          string        `usage:"Google Maps API key (CHECKOUT_GEOCODE_API_KEY or GOOGLE_MAPS_API_KEY); empty disables geocoding"`
	BaseURL         string        `default:"https://maps.googleapis.com/maps/api/geocode/json" usage:"Geocoding endpoint"`
	Timeout         time.Duration `default:"5s" usage:"Geocoding request timeout"`
	BreakerFailures uint32        `default:"5" usage:"Consecutive failures that open the geocoding circuit"`
	BreakerCooldown time.Duration `default:"30s" usage:"How long the geocoding circuit stays open"`
}

// OrderConfig tunes the order workflow.
type OrderConfig struct {
	TrustLineTotals   bool `default:"false" usage:"Accept submitted line totals without checking quantity x unit price"`
	ReferenceAttempts int  `default:"3" usage:"Order references tried on duplicate collisions"`
}

// HealthConfig controls background health checks.
type HealthConfig struct {
	Interval         time.Duration `default:"10s" usage:"Default health check interval"`
	DatabaseInterval time.Duration `default:"1m" usage:"PostgreSQL health check interval"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from an optional .env file, environment
// variables, flags and YAML config files, then applies platform defaults and
// validates the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}
	return load(aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func load(acfg aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, acfg).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the CHECKOUT_-prefixed
// configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_ADDR")
	}
	if c.Geocode.APIKey == "" {
		c.Geocode.APIKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	}
}

// Validate checks required values and ranges.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	case c.Payment.Latency < 0:
		return errors.Errorf("payment latency %s must not be negative", c.Payment.Latency)
	case c.Payment.FailureRate < 0 || c.Payment.FailureRate > 1:
		return errors.Errorf("payment failure rate %v must be within [0, 1]", c.Payment.FailureRate)
	case c.Geocode.Timeout <= 0:
		return errors.Errorf("geocode timeout %s must be positive", c.Geocode.Timeout)
	case c.Order.ReferenceAttempts < 1:
		return errors.Errorf("order reference attempts %d must be at least 1", c.Order.ReferenceAttempts)
	case c.Payment.MaxFailures < 1 || c.Payment.FailureWindow <= 0:
		return errors.Errorf("payment failure limit %d per %s is invalid", c.Payment.MaxFailures, c.Payment.FailureWindow)
	case c.Redis.Addr != "" && c.Redis.TTL <= 0:
		return errors.Errorf("redis TTL %s must be positive", c.Redis.TTL)
	case c.Health.Interval <= 0 || c.Health.DatabaseInterval <= 0:
		return errors.New("health check intervals must be positive")
	}
	return nil
}
