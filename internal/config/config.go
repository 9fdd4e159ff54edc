// Package config loads the server configuration from defaults, YAML files,
// an optional .env file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Environment names a deployment stage.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Remote backends.
const (
	BackendSupabase = "supabase"
	BackendMemory   = "memory"
)

// Session stores.
const (
	SessionStoreMemory   = "memory"
	SessionStoreDynamoDB = "dynamodb"
)

// Config is the complete server configuration.
type Config struct {
	Environment Environment `yaml:"environment" env:"ENVIRONMENT,overwrite"`
	// Backend selects the remote data service: "supabase" or "memory".
	Backend  string   `yaml:"backend" env:"BACKEND,overwrite"`
	Server   Server   `yaml:"server"`
	Supabase Supabase `yaml:"supabase"`
	Storage  Storage  `yaml:"storage"`
	Session  Session  `yaml:"session"`
	Breaker  Breaker  `yaml:"breaker"`
	Logging  Logging  `yaml:"logging"`
	Tracing  Tracing  `yaml:"tracing"`
	CORS     CORS     `yaml:"cors"`

	// LoadedFrom lists the sources applied, lowest priority first.
	LoadedFrom []string `yaml:"-"`
}

type Server struct {
	Host string `yaml:"host" env:"SERVER_HOST,overwrite"`
	Port int    `yaml:"port" env:"PORT,overwrite"`
	// PublicURL is where browsers reach the server. Sign-up confirmation
	// links point here.
	PublicURL       string        `yaml:"public_url" env:"PUBLIC_URL,overwrite"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT,overwrite"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT,overwrite"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT,overwrite"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT,overwrite"`
	MaxRequestSize  int64         `yaml:"max_request_size" env:"SERVER_MAX_REQUEST_SIZE,overwrite"`
}

// Addr is the listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type Supabase struct {
	URL            string        `yaml:"url" env:"SUPABASE_URL,overwrite"`
	AnonKey        string        `yaml:"anon_key" env:"SUPABASE_ANON_KEY,overwrite"`
	Bucket         string        `yaml:"bucket" env:"SUPABASE_BUCKET_NAME,overwrite"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SUPABASE_REQUEST_TIMEOUT,overwrite"`
	// RefreshMargin is how long before expiry the access token is renewed.
	RefreshMargin time.Duration `yaml:"refresh_margin" env:"SUPABASE_REFRESH_MARGIN,overwrite"`
}

type Storage struct {
	CacheControl         string `yaml:"cache_control" env:"STORAGE_CACHE_CONTROL,overwrite"`
	RemoveReplacedImages bool   `yaml:"remove_replaced_images" env:"STORAGE_REMOVE_REPLACED_IMAGES,overwrite"`
}

type Session struct {
	// Store is "memory" or "dynamodb".
	Store        string        `yaml:"store" env:"SESSION_STORE,overwrite"`
	TableName    string        `yaml:"table_name" env:"SESSION_TABLE_NAME,overwrite"`
	Region       string        `yaml:"region" env:"AWS_REGION,overwrite"`
	Endpoint     string        `yaml:"endpoint" env:"DYNAMODB_ENDPOINT,overwrite"`
	TTL          time.Duration `yaml:"ttl" env:"SESSION_TTL,overwrite"`
	// IdleTimeout closes in-process client instances nobody used for this
	// long. It cannot exceed TTL.
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"SESSION_IDLE_TIMEOUT,overwrite"`
	CookieName   string        `yaml:"cookie_name" env:"SESSION_COOKIE_NAME,overwrite"`
	CookieSecure bool          `yaml:"cookie_secure" env:"SESSION_COOKIE_SECURE,overwrite"`
}

type Breaker struct {
	MaxRequests      uint32        `yaml:"max_requests" env:"BREAKER_MAX_REQUESTS,overwrite"`
	Interval         time.Duration `yaml:"interval" env:"BREAKER_INTERVAL,overwrite"`
	Timeout          time.Duration `yaml:"timeout" env:"BREAKER_TIMEOUT,overwrite"`
	FailureThreshold float64       `yaml:"failure_threshold" env:"BREAKER_FAILURE_THRESHOLD,overwrite"`
	MinRequests      uint32        `yaml:"min_requests" env:"BREAKER_MIN_REQUESTS,overwrite"`
}

type Logging struct {
	Level string `yaml:"level" env:"LOG_LEVEL,overwrite"`
	// Format is "json" or "console".
	Format string `yaml:"format" env:"LOG_FORMAT,overwrite"`
}

type Tracing struct {
	ServiceName string  `yaml:"service_name" env:"OTEL_SERVICE_NAME,overwrite"`
	Endpoint    string  `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT,overwrite"`
	SampleRate  float64 `yaml:"sample_rate" env:"TRACING_SAMPLE_RATE,overwrite"`
	Insecure    bool    `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE,overwrite"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS,overwrite"`
}

// Defaults returns a configuration that runs locally without any files.
func Defaults(env Environment) *Config {
	return &Config{
		Environment: env,
		Backend:     BackendSupabase,
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8080,
			PublicURL:       "http://localhost:8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxRequestSize:  6 << 20,
		},
		Supabase: Supabase{
			RequestTimeout: 15 * time.Second,
			RefreshMargin:  time.Minute,
		},
		Storage: Storage{
			CacheControl: "3600",
		},
		Session: Session{
			Store:       SessionStoreMemory,
			TableName:   "memo-web-sessions",
			Region:      "us-east-1",
			TTL:         30 * 24 * time.Hour,
			IdleTimeout: 30 * time.Minute,
			CookieName:  "memo_client",
		},
		Breaker: Breaker{
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          60 * time.Second,
			FailureThreshold: 0.8,
			MinRequests:      5,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Tracing: Tracing{
			ServiceName: "memo-web",
			SampleRate:  0.1,
		},
		CORS: CORS{
			AllowedOrigins: []string{"http://localhost:5173"},
		},
	}
}

// applyEnvironmentDefaults adjusts values left at their defaults for the
// environment.
func (c *Config) applyEnvironmentDefaults() {
	switch c.Environment {
	case Development:
		if c.Logging.Format == "json" {
			c.Logging.Format = "console"
		}
		if c.Tracing.SampleRate < 1 {
			c.Tracing.SampleRate = 1
		}
	case Production:
		c.Session.CookieSecure = true
	}
}

// Validate reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("environment %q is not one of development, staging, production", c.Environment))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if _, err := url.ParseRequestURI(c.Server.PublicURL); err != nil {
		errs = append(errs, fmt.Errorf("server.public_url: %w", err))
	}

	switch c.Backend {
	case BackendSupabase:
		if c.Supabase.URL == "" {
			errs = append(errs, errors.New("supabase.url is required"))
		}
		if c.Supabase.AnonKey == "" {
			errs = append(errs, errors.New("supabase.anon_key is required"))
		}
		if c.Supabase.Bucket == "" {
			errs = append(errs, errors.New("supabase.bucket is required"))
		}
	case BackendMemory:
		if c.Environment == Production {
			errs = append(errs, errors.New("the memory backend cannot be used in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend %q is not one of supabase, memory", c.Backend))
	}

	switch c.Session.Store {
	case SessionStoreMemory:
	case SessionStoreDynamoDB:
		if c.Session.TableName == "" {
			errs = append(errs, errors.New("session.table_name is required for the dynamodb store"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.store %q is not one of memory, dynamodb", c.Session.Store))
	}
	if c.Session.IdleTimeout <= 0 || (c.Session.TTL > 0 && c.Session.IdleTimeout > c.Session.TTL) {
		errs = append(errs, fmt.Errorf("session.idle_timeout %s must be positive and at most session.ttl", c.Session.IdleTimeout))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name is required"))
	}

	if c.Breaker.FailureThreshold <= 0 || c.Breaker.FailureThreshold > 1 {
		errs = append(errs, fmt.Errorf("breaker.failure_threshold %.2f must be in (0, 1]", c.Breaker.FailureThreshold))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not one of json, console", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the config targets production.
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}
