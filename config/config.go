package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Sink names accepted in SINKS
const (
	SinkPostgres = "postgres"
	SinkRedis    = "redis"
	SinkLog      = "log"
)

// Config represents the application configuration
type Config struct {
	// Postgres configuration
	DBHost      string `validate:"required"`
	DBPort      int    `validate:"min=1,max=65535"`
	DBUser      string `validate:"required"`
	DBPassword  string
	DBName      string `validate:"required"`
	DBTable     string `validate:"required"`
	DatabaseURL string

	// Redis configuration
	RedisAddr            string
	RedisDB              int `validate:"min=0"`
	RedisStream          string
	RedisStreamMaxLength int `validate:"min=0"`

	// Memcache configuration
	MemcacheAddr string
	BlockTime    time.Duration `validate:"min=0"`

	// Sinks receiving each scraped batch
	Sinks []string `validate:"min=1,dive,oneof=postgres redis log"`

	// Crawler configuration
	CrawlInterval         time.Duration `validate:"gt=0"`
	NavigationTimeout     time.Duration `validate:"gt=0"`
	ReadinessTimeout      time.Duration `validate:"gt=0,ltfield=NavigationTimeout"`
	MaxConcurrentSites    int           `validate:"min=1"`
	SiteConcurrency       int           `validate:"min=1,max=3"`
	SiteRequestsPerMinute int           `validate:"min=0"`

	// Browser configuration
	Headless   bool
	ChromePath string
	UserAgent  string `validate:"required"`
	Language   string

	// Site profiles file; empty means the built-in table
	ProfilesFile string

	// Environment
	Environment string

	// parseErr holds malformed environment values found by LoadConfig
	parseErr error
}

// DefaultUserAgent is a desktop Chrome user agent string
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	var env envParser
	dbPort := env.atoi("DB_PORT", "5432")
	redisDB := env.atoi("REDIS_DB", "0")
	redisMaxLen := env.atoi("REDIS_STREAM_MAX_LENGTH", "10000")
	blockTime := env.atoi("BLOCK_TIME_SECONDS", "500")
	crawlInterval := env.atoi("CRAWL_INTERVAL_SECONDS", "3600")
	navTimeout := env.atoi("NAVIGATION_TIMEOUT_SECONDS", "60")
	readyTimeout := env.atoi("READINESS_TIMEOUT_SECONDS", "20")
	maxSites := env.atoi("MAX_CONCURRENT_SITES", "1")
	siteConcurrency := env.atoi("SITE_CONCURRENCY", "1")
	perMinute := env.atoi("SITE_REQUESTS_PER_MINUTE", "0")
	headless := env.parseBool("CHROME_HEADLESS", "true")

	return &Config{
		DBHost:                getEnv("DB_HOST", "localhost"),
		DBPort:                dbPort,
		DBUser:                getEnv("DB_USER", "postgres"),
		DBPassword:            getEnv("DB_PASS", "root"),
		DBName:                getEnv("DB_NAME", "scansave"),
		DBTable:               getEnv("DB_TABLE", "product"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:               redisDB,
		RedisStream:           getEnv("REDIS_STREAM", "products"),
		RedisStreamMaxLength:  redisMaxLen,
		MemcacheAddr:          os.Getenv("MEMCACHE_ADDR"),
		BlockTime:             time.Duration(blockTime) * time.Second,
		Sinks:                 splitList(getEnv("SINKS", SinkPostgres)),
		CrawlInterval:         time.Duration(crawlInterval) * time.Second,
		NavigationTimeout:     time.Duration(navTimeout) * time.Second,
		ReadinessTimeout:      time.Duration(readyTimeout) * time.Second,
		MaxConcurrentSites:    maxSites,
		SiteConcurrency:       siteConcurrency,
		SiteRequestsPerMinute: perMinute,
		Headless:              headless,
		ChromePath:            os.Getenv("CHROME_PATH"),
		UserAgent:             getEnv("USER_AGENT", DefaultUserAgent),
		Language:              getEnv("BROWSER_LANG", "uk-UA"),
		ProfilesFile:          os.Getenv("SITE_PROFILES_FILE"),
		Environment:           getEnv("GROCERY_ENVIRONMENT", "development"),
		parseErr:              errors.Join(env.errs...),
	}
}

// Validate checks the configuration values
func (c *Config) Validate() error {
	if c.parseErr != nil {
		return fmt.Errorf("invalid configuration: %w", c.parseErr)
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.HasSink(SinkRedis) && (c.RedisAddr == "" || c.RedisStream == "") {
		return fmt.Errorf("invalid configuration: REDIS_ADDR and REDIS_STREAM are required for the redis sink")
	}
	if c.DatabaseURL != "" {
		if _, err := url.Parse(c.DatabaseURL); err != nil {
			return fmt.Errorf("invalid configuration: DATABASE_URL: %w", err)
		}
	}
	return nil
}

// HasSink reports whether the named sink is enabled
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// PostgresURL returns DATABASE_URL or a URL assembled from the DB_* parts
func (c *Config) PostgresURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:   "/" + c.DBName,
	}
	return u.String()
}

// IsProduction reports whether the process runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// envParser converts environment values and collects the malformed ones
type envParser struct {
	errs []error
}

func (p *envParser) atoi(key, defaultValue string) int {
	value, err := strconv.Atoi(strings.TrimSpace(getEnv(key, defaultValue)))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
	}
	return value
}

func (p *envParser) parseBool(key, defaultValue string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(getEnv(key, defaultValue)))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
