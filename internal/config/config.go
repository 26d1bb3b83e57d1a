// Package config loads scraper configuration from an optional YAML file,
// an optional .env file and RECIPES_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"recipes/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: database.dsn -> RECIPES_DATABASE_DSN.
const EnvPrefix = "RECIPES"

// Config is the full runtime configuration.
type Config struct {
	Log      logger.Config  `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Lock     LockConfig     `mapstructure:"lock"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
}

// DatabaseConfig selects a storage backend registered in internal/storage.
type DatabaseConfig struct {
	Kind string `mapstructure:"kind"`
	DSN  string `mapstructure:"dsn"`
}

// MetricsConfig selects a metrics backend: "none", "datadog" or "pushgateway".
type MetricsConfig struct {
	Backend        string        `mapstructure:"backend"`
	JobName        string        `mapstructure:"job_name"`
	PushgatewayURL string        `mapstructure:"pushgateway_url"`
	Tags           string        `mapstructure:"tags"`
	FlushEvery     time.Duration `mapstructure:"flush_every"`
}

// HTTPConfig tunes page fetching.
type HTTPConfig struct {
	UserAgent     string  `mapstructure:"user_agent"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

// LockConfig controls the redis run lock that keeps two collections from overlapping.
type LockConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Key           string        `mapstructure:"key"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// IngestConfig tunes persistence.
type IngestConfig struct {
	// IngredientWorkers caps concurrent ingredient writes per recipe.
	IngredientWorkers int `mapstructure:"ingredient_workers"`
	// SlugMaxProbes caps slug collision probing per recipe.
	SlugMaxProbes int `mapstructure:"slug_max_probes"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.development", false)

	v.SetDefault("database.kind", "sqlite")
	v.SetDefault("database.dsn", "file:recipes.db")

	v.SetDefault("metrics.backend", "none")
	v.SetDefault("metrics.job_name", "recipes")
	v.SetDefault("metrics.pushgateway_url", "http://localhost:9091")
	v.SetDefault("metrics.tags", "")
	v.SetDefault("metrics.flush_every", 60*time.Second)

	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.rate_per_second", 2.0)

	v.SetDefault("lock.enabled", false)
	v.SetDefault("lock.redis_addr", "localhost:6379")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.key", "recipes:collect")
	v.SetDefault("lock.ttl", 6*time.Hour)

	v.SetDefault("ingest.ingredient_workers", 3)
	v.SetDefault("ingest.slug_max_probes", 1000)
}

// bindLegacyEnv keeps the unprefixed variable names used by existing deployments working.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"database.dsn":            {EnvPrefix + "_DATABASE_DSN", "DATABASE_URL"},
		"metrics.backend":         {EnvPrefix + "_METRICS_BACKEND", "METRICS_BACKEND"},
		"metrics.pushgateway_url": {EnvPrefix + "_METRICS_PUSHGATEWAY_URL", "PUSHGATEWAY_URL"},
		"metrics.tags":            {EnvPrefix + "_METRICS_TAGS", "METRICS_TAGS"},
		"lock.redis_addr":         {EnvPrefix + "_LOCK_REDIS_ADDR", "REDIS_ADDR"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// Load reads configuration. path may be empty, in which case ./config.yaml is
// used when present. A missing default file is not an error; a missing
// explicit file is.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.Kind) == "" {
		errs = append(errs, errors.New("database.kind is required"))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	switch c.Metrics.Backend {
	case "", "none", "datadog", "pushgateway":
	default:
		errs = append(errs, fmt.Errorf("metrics.backend %q: want none, datadog or pushgateway", c.Metrics.Backend))
	}
	if c.Metrics.Backend == "pushgateway" && strings.TrimSpace(c.Metrics.PushgatewayURL) == "" {
		errs = append(errs, errors.New("metrics.pushgateway_url is required for the pushgateway backend"))
	}
	if c.HTTP.RatePerSecond < 0 {
		errs = append(errs, errors.New("http.rate_per_second must not be negative"))
	}
	if c.Lock.Enabled {
		if strings.TrimSpace(c.Lock.RedisAddr) == "" {
			errs = append(errs, errors.New("lock.redis_addr is required when the lock is enabled"))
		}
		if c.Lock.TTL <= 0 {
			errs = append(errs, errors.New("lock.ttl must be positive"))
		}
	}
	if c.Ingest.IngredientWorkers < 1 {
		errs = append(errs, errors.New("ingest.ingredient_workers must be at least 1"))
	}
	if c.Ingest.SlugMaxProbes < 1 {
		errs = append(errs, errors.New("ingest.slug_max_probes must be at least 1"))
	}
	return errors.Join(errs...)
}

// TagList splits metrics.tags on commas.
func (m MetricsConfig) TagList() []string {
	var out []string
	for _, t := range strings.Split(m.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
