package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

type (
	Config struct {
		HTTP        HTTP        `envPrefix:"HTTP_"`
		Logger      Logger      `envPrefix:"LOGGER_"`
		Telemetry   Telemetry   `envPrefix:"TELEMETRY_"`
		Storage     Storage     `envPrefix:"STORAGE_"`
		Proxy       Proxy       `envPrefix:"PROXY_"`
		Upstream    Upstream    `envPrefix:"UPSTREAM_"`
		Cache       Cache       `envPrefix:"CACHE_"`
		Trusted     Trusted     `envPrefix:"TRUSTED_"`
		Throttle    Throttle    `envPrefix:"THROTTLE_"`
		Session     Session     `envPrefix:"SESSION_"`
		Redis       Redis       `envPrefix:"REDIS_"`
		FetchLog    FetchLog    `envPrefix:"FETCHLOG_"`
		Maintenance Maintenance `envPrefix:"MAINTENANCE_"`
	}

	HTTP struct {
		Server Server `envPrefix:"SERVER_"`
	}

	Server struct {
		Port         string        `env:"PORT,required"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"45s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level string `env:"LEVEL" envDefault:"info"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"tileproxy"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"otel-collector.observability.svc.cluster.local:4317"`
	}

	Storage struct {
		Root       string        `env:"ROOT" envDefault:"./tiles"`
		TempMaxAge time.Duration `env:"TEMP_MAX_AGE" envDefault:"1h"`
	}

	Proxy struct {
		Operator string `env:"OPERATOR,required"`
	}

	Upstream struct {
		URLTemplate string        `env:"URL_TEMPLATE" envDefault:"https://tile.openstreetmap.org/{z}/{x}/{y}.png"`
		Timeout     time.Duration `env:"TIMEOUT" envDefault:"30s"`
		RPS         float64       `env:"RPS" envDefault:"0"`
		Burst       int           `env:"BURST" envDefault:"10"`
		Deduplicate bool          `env:"DEDUPLICATE" envDefault:"false"`
	}

	Cache struct {
		TTL Seconds `env:"TTL" envDefault:"86400"`
	}

	Trusted struct {
		Hosts     []string `env:"HOSTS" envSeparator:","`
		HostsFile string   `env:"HOSTS_FILE"`
	}

	Throttle struct {
		SessionLifetime time.Duration `env:"SESSION_LIFETIME" envDefault:"60s"`
		MaxRequests     int           `env:"MAX_REQUESTS" envDefault:"800"`
		MaxBanCount     int           `env:"MAX_BAN_COUNT" envDefault:"5"`
		BanDuration     time.Duration `env:"BAN_DURATION" envDefault:"6h"`
	}

	Session struct {
		Store   string        `env:"STORE" envDefault:"memory"`
		IdleTTL time.Duration `env:"IDLE_TTL" envDefault:"12h"`
	}

	Redis struct {
		Addr     string `env:"ADDR" envDefault:"localhost:6379"`
		Password string `env:"PASSWORD" envDefault:""`
		DB       int    `env:"DB" envDefault:"0"`
		Prefix   string `env:"PREFIX" envDefault:"tileproxy:session:"`
	}

	FetchLog struct {
		Enabled   bool          `env:"ENABLED" envDefault:"true"`
		Path      string        `env:"PATH" envDefault:"fetchlog.db"`
		Retention time.Duration `env:"RETENTION" envDefault:"168h"`
	}

	Maintenance struct {
		Schedule string `env:"SCHEDULE" envDefault:"@every 10m"`
	}
)

// Seconds is a duration that also accepts a bare integer number of seconds, e.g. "300" or "5m".
type Seconds time.Duration

func (s *Seconds) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = Seconds(time.Duration(n) * time.Second)
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: want seconds or a Go duration", raw)
	}
	*s = Seconds(d)
	return nil
}

func (s Seconds) Duration() time.Duration {
	return time.Duration(s)
}

func (s Seconds) String() string {
	return s.Duration().String()
}

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if !strings.Contains(c.Upstream.URLTemplate, "{z}") ||
		!strings.Contains(c.Upstream.URLTemplate, "{x}") ||
		!strings.Contains(c.Upstream.URLTemplate, "{y}") {
		return fmt.Errorf("UPSTREAM_URL_TEMPLATE must contain {z}, {x} and {y} placeholders: %q", c.Upstream.URLTemplate)
	}
	if c.Cache.TTL.Duration() < time.Second {
		return fmt.Errorf("CACHE_TTL must be at least 1s, got %s", c.Cache.TTL)
	}
	if c.Throttle.MaxRequests <= 0 {
		return fmt.Errorf("THROTTLE_MAX_REQUESTS must be > 0")
	}
	if c.Throttle.MaxBanCount <= 0 {
		return fmt.Errorf("THROTTLE_MAX_BAN_COUNT must be > 0")
	}
	switch c.Session.Store {
	case SessionStoreMemory, SessionStoreRedis:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStoreMemory, SessionStoreRedis, c.Session.Store)
	}
	return nil
}
