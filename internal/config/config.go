package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/vovakirdan/wirenote/internal/store"
)

// Delivery sink kinds.
const (
	SinkLog  = "log"
	SinkAMQP = "amqp"
)

// Config holds server configuration values.
type Config struct {
	LogLevel       string `mapstructure:"log_level" yaml:"log_level"`
	MaxThreadDepth int    `mapstructure:"max_thread_depth" yaml:"max_thread_depth"`

	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Database     DatabaseConfig     `mapstructure:"database" yaml:"database"`
	Auth         AuthConfig         `mapstructure:"auth" yaml:"auth"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit" yaml:"rate_limit"`
	AccessWindow AccessWindowConfig `mapstructure:"access_window" yaml:"access_window"`
	Roles        RolesConfig        `mapstructure:"roles" yaml:"roles"`
	ReadCache    ReadCacheConfig    `mapstructure:"read_cache" yaml:"read_cache"`
	Delivery     DeliveryConfig     `mapstructure:"delivery" yaml:"delivery"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For is
	// believed. Empty means the peer address is always the client.
	TrustedProxies []string `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// RateLimitConfig bounds write requests per client address.
type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxRequests int           `mapstructure:"max_requests" yaml:"max_requests"`
	Window      time.Duration `mapstructure:"window" yaml:"window"`
	MaxKeys     int           `mapstructure:"max_keys" yaml:"max_keys"`
	SweepCron   string        `mapstructure:"sweep_cron" yaml:"sweep_cron"`
}

// AccessWindowConfig restricts API access to a daily time range.
type AccessWindowConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Start    string `mapstructure:"start" yaml:"start"`
	End      string `mapstructure:"end" yaml:"end"`
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

// RolesConfig restricts path prefixes under /api to a set of roles.
type RolesConfig struct {
	Enabled           bool     `mapstructure:"enabled" yaml:"enabled"`
	Allowed           []string `mapstructure:"allowed" yaml:"allowed"`
	ProtectedPrefixes []string `mapstructure:"protected_prefixes" yaml:"protected_prefixes"`
}

// ReadCacheConfig caches unread and thread reads.
type ReadCacheConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl"`
	MaxEntries int64         `mapstructure:"max_entries" yaml:"max_entries"`
}

// DeliveryConfig configures the outbound notification sink.
type DeliveryConfig struct {
	Sink          string        `mapstructure:"sink" yaml:"sink"`
	AMQPURL       string        `mapstructure:"amqp_url" yaml:"amqp_url"`
	Queue         string        `mapstructure:"queue" yaml:"queue"`
	QueueSize     int           `mapstructure:"queue_size" yaml:"queue_size"`
	Workers       int           `mapstructure:"workers" yaml:"workers"`
	RatePerSecond float64       `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Burst         int           `mapstructure:"burst" yaml:"burst"`
	MaxRetries    int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel:       "info",
		MaxThreadDepth: 32,
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			TrustedProxies:    []string{},
		},
		Database: DatabaseConfig{
			Path: "wirenote.db",
		},
		Auth: AuthConfig{
			JWTSecret:   "change-me",
			JWTIssuer:   "wirenote",
			JWTAudience: "wirenote-clients",
			TokenTTL:    24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			MaxRequests: 5,
			Window:      time.Minute,
			MaxKeys:     10000,
			SweepCron:   "* * * * *",
		},
		AccessWindow: AccessWindowConfig{
			Enabled: true,
			Start:   "09:00",
			End:     "18:00",
		},
		Roles: RolesConfig{
			Allowed:           []string{"admin", "moderator"},
			ProtectedPrefixes: []string{"/api/messages", "/api/users"},
		},
		ReadCache: ReadCacheConfig{
			Enabled:    true,
			TTL:        time.Minute,
			MaxEntries: 10000,
		},
		Delivery: DeliveryConfig{
			Sink:          SinkLog,
			Queue:         "wirenote.notifications",
			QueueSize:     1024,
			Workers:       2,
			RatePerSecond: 20,
			Burst:         5,
			MaxRetries:    3,
			RetryDelay:    time.Second,
		},
	}
}

// Validate reports the first configuration value that cannot work.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.MaxThreadDepth <= 0 {
		return fmt.Errorf("max_thread_depth must be positive, got %d", c.MaxThreadDepth)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxRequests <= 0 || c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate_limit needs positive max_requests and window")
		}
		if !gronx.IsValid(c.RateLimit.SweepCron) {
			return fmt.Errorf("invalid rate_limit.sweep_cron %q", c.RateLimit.SweepCron)
		}
	}
	for _, p := range c.Server.TrustedProxies {
		if !validProxy(p) {
			return fmt.Errorf("invalid server.trusted_proxies entry %q", p)
		}
	}
	if c.Roles.Enabled {
		if len(c.Roles.Allowed) == 0 {
			return fmt.Errorf("roles.allowed must name at least one role")
		}
		for _, r := range c.Roles.Allowed {
			if _, ok := store.ParseRole(r); !ok {
				return fmt.Errorf("unknown role %q in roles.allowed", r)
			}
		}
		for _, p := range c.Roles.ProtectedPrefixes {
			if !strings.HasPrefix(p, "/") {
				return fmt.Errorf("roles.protected_prefixes entry %q must start with /", p)
			}
		}
	}
	if c.ReadCache.Enabled && c.ReadCache.TTL <= 0 {
		return fmt.Errorf("read_cache.ttl must be positive")
	}
	switch c.Delivery.Sink {
	case SinkLog:
	case SinkAMQP:
		if c.Delivery.AMQPURL == "" || c.Delivery.Queue == "" {
			return fmt.Errorf("delivery.amqp_url and delivery.queue are required for the amqp sink")
		}
	default:
		return fmt.Errorf("unknown delivery.sink %q", c.Delivery.Sink)
	}
	return nil
}

func validProxy(p string) bool {
	if net.ParseIP(p) != nil {
		return true
	}
	_, _, err := net.ParseCIDR(p)
	return err == nil
}
