package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/vendor-kart/internal/domain/geo"
)

// Catalog sources.
const (
	CatalogPostgres = "postgres"
	CatalogHTTP     = "http"
)

// Config holds the complete application configuration, loadable from
// environment variables (KART_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (KART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for relative product image paths" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (KART_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Catalog      CatalogConfig
	Session      SessionConfig
	Location     LocationConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// CatalogConfig selects where products and vendors come from.
type CatalogConfig struct {
	Source       string        `default:"postgres" usage:"Catalog source: postgres or http"`
	URL          string        `default:"http://localhost:3000" usage:"json-server base URL for the http source" flag:"catalog-url"`
	Timeout      time.Duration `default:"5s" usage:"Request timeout for the http source" flag:"catalog-timeout"`
	DefaultStock string        `default:"100" usage:"Stock given to vendors that report none" flag:"default-stock"`
}

// SessionConfig controls shopper sessions.
type SessionConfig struct {
	TTL time.Duration `default:"30m" usage:"Idle time after which a session and its cart are dropped" flag:"session-ttl"`
}

// LocationConfig is the shopper position used when a session starts without
// one. Disabled sessions start without distance information.
type LocationConfig struct {
	Enabled bool    `default:"false" usage:"Use the configured default shopper location" flag:"location-enabled"`
	Lat     float64 `default:"0" usage:"Default shopper latitude" flag:"location-lat"`
	Lng     float64 `default:"0" usage:"Default shopper longitude" flag:"location-lng"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "KART",
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's KART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

// validate checks the loaded values. Orders, coupons and API keys always live
// in PostgreSQL, so the database is required whatever the catalog source.
func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set KART_DATABASE_URL or DATABASE_URL")
	}
	switch c.Catalog.Source {
	case CatalogPostgres:
	case CatalogHTTP:
		if c.Catalog.URL == "" {
			return errors.New("catalog URL is required for the http source")
		}
	default:
		return errors.Errorf("unknown catalog source %q", c.Catalog.Source)
	}
	stock, err := c.Catalog.defaultStock()
	if err != nil {
		return err
	}
	if stock.IsNegative() {
		return errors.Errorf("default stock %s is negative", stock)
	}
	if c.Location.Enabled && !c.Location.point().Valid() {
		return errors.Errorf("default location %v,%v is out of range", c.Location.Lat, c.Location.Lng)
	}
	return nil
}

func (c CatalogConfig) defaultStock() (decimal.Decimal, error) {
	stock, err := decimal.NewFromString(c.DefaultStock)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse default stock")
	}
	return stock, nil
}

func (l LocationConfig) point() *geo.Coordinate {
	if !l.Enabled {
		return nil
	}
	return &geo.Coordinate{Latitude: l.Lat, Longitude: l.Lng}
}
