package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "WIRENOTE"
	envConfigDefaultPath = "WIRENOTE_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := readOrSeed(v, logger, configPath, cfg); err != nil {
		return cfg, configPath, err
	}

	// Every key has a default in v. Decoding over a filled Config would keep
	// stale trailing slice entries.
	var loaded Config
	if err := v.Unmarshal(&loaded); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg = loaded
	if err := cfg.Validate(); err != nil {
		return cfg, configPath, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, configPath, nil
}

// setDefaults registers every key so that env vars can override values the
// config file does not mention.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("max_thread_depth", cfg.MaxThreadDepth)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.read_header_timeout", cfg.Server.ReadHeaderTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.trusted_proxies", cfg.Server.TrustedProxies)

	v.SetDefault("database.path", cfg.Database.Path)

	v.SetDefault("auth.jwt_secret", cfg.Auth.JWTSecret)
	v.SetDefault("auth.jwt_issuer", cfg.Auth.JWTIssuer)
	v.SetDefault("auth.jwt_audience", cfg.Auth.JWTAudience)
	v.SetDefault("auth.token_ttl", cfg.Auth.TokenTTL)

	v.SetDefault("rate_limit.enabled", cfg.RateLimit.Enabled)
	v.SetDefault("rate_limit.max_requests", cfg.RateLimit.MaxRequests)
	v.SetDefault("rate_limit.window", cfg.RateLimit.Window)
	v.SetDefault("rate_limit.max_keys", cfg.RateLimit.MaxKeys)
	v.SetDefault("rate_limit.sweep_cron", cfg.RateLimit.SweepCron)

	v.SetDefault("access_window.enabled", cfg.AccessWindow.Enabled)
	v.SetDefault("access_window.start", cfg.AccessWindow.Start)
	v.SetDefault("access_window.end", cfg.AccessWindow.End)
	v.SetDefault("access_window.timezone", cfg.AccessWindow.Timezone)

	v.SetDefault("roles.enabled", cfg.Roles.Enabled)
	v.SetDefault("roles.allowed", cfg.Roles.Allowed)
	v.SetDefault("roles.protected_prefixes", cfg.Roles.ProtectedPrefixes)

	v.SetDefault("read_cache.enabled", cfg.ReadCache.Enabled)
	v.SetDefault("read_cache.ttl", cfg.ReadCache.TTL)
	v.SetDefault("read_cache.max_entries", cfg.ReadCache.MaxEntries)

	v.SetDefault("delivery.sink", cfg.Delivery.Sink)
	v.SetDefault("delivery.amqp_url", cfg.Delivery.AMQPURL)
	v.SetDefault("delivery.queue", cfg.Delivery.Queue)
	v.SetDefault("delivery.queue_size", cfg.Delivery.QueueSize)
	v.SetDefault("delivery.workers", cfg.Delivery.Workers)
	v.SetDefault("delivery.rate_per_second", cfg.Delivery.RatePerSecond)
	v.SetDefault("delivery.burst", cfg.Delivery.Burst)
	v.SetDefault("delivery.max_retries", cfg.Delivery.MaxRetries)
	v.SetDefault("delivery.retry_delay", cfg.Delivery.RetryDelay)
}

// readOrSeed reads the config file, writing the defaults there first when it
// does not exist yet. A file that cannot be seeded is not fatal.
func readOrSeed(v *viper.Viper, logger *zerolog.Logger, path string, cfg Config) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read config: %w", err)
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if err := writeDefaultConfig(path, cfg); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("config file missing, using defaults")
		return nil
	}
	logger.Info().Str("path", path).Msg("created default config")
	if err := v.ReadInConfig(); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to read seeded config")
	}
	return nil
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
