package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config captures the runtime configuration for the usage console.
type Config struct {
	Server        ServerConfig        `mapstructure:"server" json:"server"`
	Database      DatabaseConfig      `mapstructure:"database" json:"database"`
	Redis         RedisConfig         `mapstructure:"redis" json:"redis"`
	Cache         CacheConfig         `mapstructure:"cache" json:"cache"`
	Upstream      UpstreamConfig      `mapstructure:"upstream" json:"upstream"`
	Auth          AuthConfig          `mapstructure:"auth" json:"auth"`
	Pricing       PricingConfig       `mapstructure:"pricing" json:"pricing"`
	Budgets       BudgetConfig        `mapstructure:"budgets" json:"budgets"`
	RateLimits    RateLimitConfig     `mapstructure:"rate_limits" json:"rate_limits"`
	Reports       ReportsConfig       `mapstructure:"reports" json:"reports"`
	Reporting     ReportingConfig     `mapstructure:"reporting" json:"reporting"`
	Observability ObservabilityConfig `mapstructure:"observability" json:"observability"`
}

type ServerConfig struct {
	ListenAddr            string        `mapstructure:"listen_addr" json:"listen_addr"`
	BodyLimitMB           int           `mapstructure:"body_limit_mb" json:"body_limit_mb"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	IdleTimeout           time.Duration `mapstructure:"idle_timeout" json:"idle_timeout"`
	GracefulShutdownDelay time.Duration `mapstructure:"graceful_shutdown_delay" json:"graceful_shutdown_delay"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url" json:"-"`
	RunMigrations   bool          `mapstructure:"run_migrations" json:"run_migrations"`
	MaxConns        int32         `mapstructure:"max_conns" json:"max_conns"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time" json:"max_conn_idle_time"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" json:"max_conn_lifetime"`
	MinConns        int32         `mapstructure:"min_conns" json:"min_conns"`
}

type RedisConfig struct {
	URL         string        `mapstructure:"url" json:"-"`
	DB          int           `mapstructure:"db" json:"db"`
	PoolSize    int           `mapstructure:"pool_size" json:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" json:"dial_timeout"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
}

// CacheConfig selects where normalized usage snapshots are kept between requests.
type CacheConfig struct {
	Backend     string        `mapstructure:"backend" json:"backend"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl" json:"snapshot_ttl"`
	MaxCostMB   int64         `mapstructure:"max_cost_mb" json:"max_cost_mb"`
}

const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
	CacheBackendNone   = "none"
)

type UpstreamConfig struct {
	BaseURL        string               `mapstructure:"base_url" json:"base_url"`
	Timeout        time.Duration        `mapstructure:"timeout" json:"timeout"`
	ServiceAccount ServiceAccountConfig `mapstructure:"service_account" json:"service_account"`
}

// ServiceAccountConfig holds the client-credentials grant used by background jobs.
type ServiceAccountConfig struct {
	TokenURL     string   `mapstructure:"token_url" json:"token_url"`
	ClientID     string   `mapstructure:"client_id" json:"client_id"`
	ClientSecret string   `mapstructure:"client_secret" json:"-"`
	Scopes       []string `mapstructure:"scopes" json:"scopes"`
}

// Configured reports whether a client-credentials grant can be built.
func (s ServiceAccountConfig) Configured() bool {
	return s.TokenURL != "" && s.ClientID != "" && s.ClientSecret != ""
}

type AuthConfig struct {
	OIDC OIDCConfig    `mapstructure:"oidc" json:"oidc"`
	Dev  DevAuthConfig `mapstructure:"dev" json:"dev"`
}

type OIDCConfig struct {
	Enabled           bool          `mapstructure:"enabled" json:"enabled"`
	Issuer            string        `mapstructure:"issuer" json:"issuer"`
	ClientID          string        `mapstructure:"client_id" json:"client_id"`
	SkipClientIDCheck bool          `mapstructure:"skip_client_id_check" json:"skip_client_id_check"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout" json:"http_timeout"`
	RolesClaim        string        `mapstructure:"roles_claim" json:"roles_claim"`
}

// DevAuthConfig enables locally signed HS256 tokens in place of a live IdP.
type DevAuthConfig struct {
	Enabled  bool          `mapstructure:"enabled" json:"enabled"`
	Secret   string        `mapstructure:"secret" json:"-"`
	Issuer   string        `mapstructure:"issuer" json:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl" json:"token_ttl"`
}

type PricingConfig struct {
	Markup     float64                `mapstructure:"markup" json:"markup"`
	Currency   string                 `mapstructure:"currency" json:"currency"`
	Completion []CompletionPriceEntry `mapstructure:"completion" json:"completion,omitempty"`
	Embedding  []EmbeddingPriceEntry  `mapstructure:"embedding" json:"embedding,omitempty"`
	Image      []ImagePriceEntry      `mapstructure:"image" json:"image,omitempty"`
}

type CompletionPriceEntry struct {
	Model                 string   `mapstructure:"model" json:"model"`
	InputPerMillion       float64  `mapstructure:"input_per_million" json:"input_per_million"`
	OutputPerMillion      float64  `mapstructure:"output_per_million" json:"output_per_million"`
	CachedInputPerMillion *float64 `mapstructure:"cached_input_per_million" json:"cached_input_per_million,omitempty"`
}

type EmbeddingPriceEntry struct {
	Model             string  `mapstructure:"model" json:"model"`
	PerThousandTokens float64 `mapstructure:"per_thousand_tokens" json:"per_thousand_tokens"`
}

type ImagePriceEntry struct {
	Model         string   `mapstructure:"model" json:"model"`
	Standard      float64  `mapstructure:"standard" json:"standard"`
	HD            float64  `mapstructure:"hd" json:"hd"`
	StandardLarge *float64 `mapstructure:"standard_large" json:"standard_large,omitempty"`
	HDLarge       *float64 `mapstructure:"hd_large" json:"hd_large,omitempty"`
}

type BudgetConfig struct {
	DefaultMonthly   float64             `mapstructure:"default_monthly" json:"default_monthly"`
	DefaultWeekly    float64             `mapstructure:"default_weekly" json:"default_weekly"`
	DefaultDaily     float64             `mapstructure:"default_daily" json:"default_daily"`
	Currency         string              `mapstructure:"currency" json:"currency"`
	WarningThreshold float64             `mapstructure:"warning_threshold" json:"warning_threshold"`
	Monitor          BudgetMonitorConfig `mapstructure:"monitor" json:"monitor"`
	Alert            BudgetAlertConfig   `mapstructure:"alert" json:"alert"`
}

type BudgetMonitorConfig struct {
	Enabled  bool          `mapstructure:"enabled" json:"enabled"`
	Interval time.Duration `mapstructure:"interval" json:"interval"`
}

type BudgetAlertConfig struct {
	Enabled  bool          `mapstructure:"enabled" json:"enabled"`
	Webhooks []string      `mapstructure:"webhooks" json:"webhooks"`
	Cooldown time.Duration `mapstructure:"cooldown" json:"cooldown"`
	Webhook  WebhookConfig `mapstructure:"webhook" json:"webhook"`
}

type WebhookConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" json:"max_retries"`
}

type RateLimitConfig struct {
	KeyMutationsPerMinute int `mapstructure:"key_mutations_per_minute" json:"key_mutations_per_minute"`
}

// ReportsConfig configures where CSV exports are written.
type ReportsConfig struct {
	Storage       string             `mapstructure:"storage" json:"storage"`
	EncryptionKey string             `mapstructure:"encryption_key" json:"-"`
	S3            ReportsS3Config    `mapstructure:"s3" json:"s3"`
	Local         ReportsLocalConfig `mapstructure:"local" json:"local"`
}

type ReportsS3Config struct {
	Bucket          string `mapstructure:"bucket" json:"bucket"`
	Prefix          string `mapstructure:"prefix" json:"prefix"`
	Region          string `mapstructure:"region" json:"region"`
	Endpoint        string `mapstructure:"endpoint" json:"endpoint"`
	UsePathStyle    bool   `mapstructure:"use_path_style" json:"use_path_style"`
	AccessKeyID     string `mapstructure:"access_key_id" json:"-"`
	SecretAccessKey string `mapstructure:"secret_access_key" json:"-"`
}

type ReportsLocalConfig struct {
	Directory string `mapstructure:"directory" json:"directory"`
}

type ReportingConfig struct {
	Timezone string `mapstructure:"timezone" json:"timezone"`
}

type ObservabilityConfig struct {
	OTLPEndpoint  string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	EnableOTLP    bool   `mapstructure:"enable_otlp" json:"enable_otlp"`
	EnableMetrics bool   `mapstructure:"enable_metrics" json:"enable_metrics"`
}

// Options controls the config loader behavior.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// Load returns the merged configuration sourced from YAML and environment variables.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	explicitFile := false
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		explicitFile = true
	} else if cfg := os.Getenv("CONSOLE_CONFIG_FILE"); cfg != "" {
		v.SetConfigFile(cfg)
		explicitFile = true
	}

	if !explicitFile {
		v.SetConfigName("console")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("CONSOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		timeStringToDurationHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadPricing reads only the pricing section of a config file, skipping the
// service-level validation Load performs. An empty path yields the defaults.
func LoadPricing(path string) (PricingConfig, error) {
	v := viper.New()
	v.SetDefault("pricing.markup", 0.09)
	v.SetDefault("pricing.currency", "EUR")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return PricingConfig{}, fmt.Errorf("read config: %w", err)
		}
	}
	v.SetEnvPrefix("CONSOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var wrapper struct {
		Pricing PricingConfig `mapstructure:"pricing"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return PricingConfig{}, fmt.Errorf("unmarshal pricing: %w", err)
	}
	if err := wrapper.Pricing.validate(); err != nil {
		return PricingConfig{}, err
	}
	return wrapper.Pricing, nil
}

// Validate ensures required values are set and fills derived defaults.
func (c *Config) Validate() error {
	var missing []string

	if c.Database.URL == "" {
		missing = append(missing, "CONSOLE_DATABASE_URL")
	}
	if c.Redis.URL == "" {
		missing = append(missing, "CONSOLE_REDIS_URL")
	}
	if c.Upstream.BaseURL == "" {
		missing = append(missing, "CONSOLE_UPSTREAM_BASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	c.Upstream.BaseURL = strings.TrimRight(strings.TrimSpace(c.Upstream.BaseURL), "/")
	if c.Upstream.Timeout <= 0 {
		c.Upstream.Timeout = 30 * time.Second
	}

	if err := c.Auth.validate(); err != nil {
		return err
	}
	if err := c.Cache.validate(); err != nil {
		return err
	}
	if err := c.Pricing.validate(); err != nil {
		return err
	}
	if err := c.Budgets.validate(); err != nil {
		return err
	}
	if err := c.Reports.validate(); err != nil {
		return err
	}

	if c.RateLimits.KeyMutationsPerMinute < 0 {
		return fmt.Errorf("rate_limits.key_mutations_per_minute must be >= 0")
	}

	reportingTZ := strings.TrimSpace(c.Reporting.Timezone)
	if reportingTZ == "" {
		reportingTZ = "UTC"
	}
	if _, err := time.LoadLocation(reportingTZ); err != nil {
		return fmt.Errorf("invalid reporting.timezone: %w", err)
	}
	c.Reporting.Timezone = reportingTZ

	if c.Database.MaxConns < 0 {
		return fmt.Errorf("database.max_conns must be >= 0")
	}
	if c.Redis.PoolSize < 0 {
		return fmt.Errorf("redis.pool_size must be >= 0")
	}
	if c.Redis.DialTimeout < 0 || c.Redis.ReadTimeout < 0 {
		return fmt.Errorf("redis timeouts must be >= 0")
	}
	return nil
}

func (a *AuthConfig) validate() error {
	if !a.OIDC.Enabled && !a.Dev.Enabled {
		return fmt.Errorf("at least one authentication method must be enabled (auth.oidc or auth.dev)")
	}
	if a.OIDC.Enabled {
		if a.OIDC.Issuer == "" {
			return fmt.Errorf("auth.oidc.issuer must be provided when OIDC is enabled")
		}
		if a.OIDC.ClientID == "" && !a.OIDC.SkipClientIDCheck {
			return fmt.Errorf("auth.oidc.client_id must be provided unless skip_client_id_check is set")
		}
		if a.OIDC.HTTPTimeout <= 0 {
			return fmt.Errorf("auth.oidc.http_timeout must be > 0")
		}
	}
	if strings.TrimSpace(a.OIDC.RolesClaim) == "" {
		a.OIDC.RolesClaim = "groups"
	}
	if a.Dev.Enabled {
		if len(a.Dev.Secret) < 16 {
			return fmt.Errorf("auth.dev.secret must be at least 16 characters")
		}
		if a.Dev.TokenTTL <= 0 {
			a.Dev.TokenTTL = 12 * time.Hour
		}
	}
	return nil
}

func (c *CacheConfig) validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case "":
		c.Backend = CacheBackendRedis
	case CacheBackendRedis, CacheBackendMemory, CacheBackendNone:
	default:
		return fmt.Errorf("cache.backend must be redis, memory or none")
	}
	if c.SnapshotTTL <= 0 {
		c.SnapshotTTL = 5 * time.Minute
	}
	if c.MaxCostMB <= 0 {
		c.MaxCostMB = 256
	}
	return nil
}

func (p *PricingConfig) validate() error {
	if p.Markup < 0 {
		return fmt.Errorf("pricing.markup must be >= 0")
	}
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if p.Currency == "" {
		p.Currency = "EUR"
	}
	for i, entry := range p.Completion {
		if strings.TrimSpace(entry.Model) == "" {
			return fmt.Errorf("pricing.completion[%d].model must be provided", i)
		}
		if entry.InputPerMillion < 0 || entry.OutputPerMillion < 0 || (entry.CachedInputPerMillion != nil && *entry.CachedInputPerMillion < 0) {
			return fmt.Errorf("pricing.completion[%d] prices must be >= 0", i)
		}
	}
	for i, entry := range p.Embedding {
		if strings.TrimSpace(entry.Model) == "" {
			return fmt.Errorf("pricing.embedding[%d].model must be provided", i)
		}
		if entry.PerThousandTokens < 0 {
			return fmt.Errorf("pricing.embedding[%d].per_thousand_tokens must be >= 0", i)
		}
	}
	for i, entry := range p.Image {
		if strings.TrimSpace(entry.Model) == "" {
			return fmt.Errorf("pricing.image[%d].model must be provided", i)
		}
		if entry.Standard < 0 || entry.HD < 0 ||
			(entry.StandardLarge != nil && *entry.StandardLarge < 0) ||
			(entry.HDLarge != nil && *entry.HDLarge < 0) {
			return fmt.Errorf("pricing.image[%d] prices must be >= 0", i)
		}
	}
	return nil
}

func (b *BudgetConfig) validate() error {
	if b.DefaultMonthly < 0 || b.DefaultWeekly < 0 || b.DefaultDaily < 0 {
		return fmt.Errorf("budgets default limits must be >= 0")
	}
	if b.WarningThreshold <= 0 || b.WarningThreshold >= 1 {
		return fmt.Errorf("budgets.warning_threshold must be between 0 and 1 exclusive")
	}
	b.Currency = strings.ToUpper(strings.TrimSpace(b.Currency))
	if b.Currency == "" {
		b.Currency = "EUR"
	}
	if b.Monitor.Interval <= 0 {
		b.Monitor.Interval = 15 * time.Minute
	}
	b.Alert.Webhooks = normalizeStringSlice(b.Alert.Webhooks)
	if b.Alert.Cooldown <= 0 {
		if b.Alert.Enabled {
			return fmt.Errorf("budgets.alert.cooldown must be > 0 when alerting is enabled")
		}
		b.Alert.Cooldown = time.Hour
	}
	if b.Alert.Webhook.Timeout <= 0 {
		b.Alert.Webhook.Timeout = 5 * time.Second
	}
	if b.Alert.Webhook.MaxRetries <= 0 {
		b.Alert.Webhook.MaxRetries = 3
	}
	return nil
}

func (r *ReportsConfig) validate() error {
	r.Storage = strings.ToLower(strings.TrimSpace(r.Storage))
	switch r.Storage {
	case "":
		r.Storage = "local"
	case "local", "s3":
	default:
		return fmt.Errorf("reports.storage must be local or s3")
	}
	if r.Storage == "s3" && strings.TrimSpace(r.S3.Bucket) == "" {
		return fmt.Errorf("reports.s3.bucket must be provided for s3 storage")
	}
	if (r.S3.AccessKeyID == "") != (r.S3.SecretAccessKey == "") {
		return fmt.Errorf("reports.s3.access_key_id and secret_access_key must be set together")
	}
	if key := strings.TrimSpace(r.EncryptionKey); key != "" {
		decoded, err := base64.StdEncoding.DecodeString(key)
		if err != nil {
			return fmt.Errorf("reports.encryption_key must be base64: %w", err)
		}
		switch len(decoded) {
		case 16, 24, 32:
		default:
			return fmt.Errorf("reports.encryption_key must be 16/24/32 bytes after decoding")
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.body_limit_mb", 4)
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.graceful_shutdown_delay", "5s")

	v.SetDefault("database.url", "")
	v.SetDefault("database.run_migrations", true)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")

	v.SetDefault("cache.backend", CacheBackendRedis)
	v.SetDefault("cache.snapshot_ttl", "5m")
	v.SetDefault("cache.max_cost_mb", 256)

	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.timeout", "30s")
	v.SetDefault("upstream.service_account.token_url", "")
	v.SetDefault("upstream.service_account.client_id", "")
	v.SetDefault("upstream.service_account.client_secret", "")
	v.SetDefault("upstream.service_account.scopes", []string{})

	v.SetDefault("auth.oidc.enabled", false)
	v.SetDefault("auth.oidc.issuer", "")
	v.SetDefault("auth.oidc.client_id", "")
	v.SetDefault("auth.oidc.skip_client_id_check", false)
	v.SetDefault("auth.oidc.http_timeout", "5s")
	v.SetDefault("auth.oidc.roles_claim", "groups")
	v.SetDefault("auth.dev.enabled", false)
	v.SetDefault("auth.dev.secret", "")
	v.SetDefault("auth.dev.issuer", "usage-console-dev")
	v.SetDefault("auth.dev.token_ttl", "12h")

	v.SetDefault("pricing.markup", 0.09)
	v.SetDefault("pricing.currency", "EUR")

	v.SetDefault("budgets.default_monthly", 100.0)
	v.SetDefault("budgets.default_weekly", 25.0)
	v.SetDefault("budgets.default_daily", 5.0)
	v.SetDefault("budgets.currency", "EUR")
	v.SetDefault("budgets.warning_threshold", 0.8)
	v.SetDefault("budgets.monitor.enabled", false)
	v.SetDefault("budgets.monitor.interval", "15m")
	v.SetDefault("budgets.alert.enabled", true)
	v.SetDefault("budgets.alert.webhooks", []string{})
	v.SetDefault("budgets.alert.cooldown", "1h")
	v.SetDefault("budgets.alert.webhook.timeout", "5s")
	v.SetDefault("budgets.alert.webhook.max_retries", 3)

	v.SetDefault("rate_limits.key_mutations_per_minute", 10)

	v.SetDefault("reports.storage", "local")
	v.SetDefault("reports.encryption_key", "")
	v.SetDefault("reports.local.directory", "./data/reports")
	v.SetDefault("reports.s3.bucket", "")
	v.SetDefault("reports.s3.prefix", "")
	v.SetDefault("reports.s3.region", "")
	v.SetDefault("reports.s3.endpoint", "")
	v.SetDefault("reports.s3.use_path_style", false)
	v.SetDefault("reports.s3.access_key_id", "")
	v.SetDefault("reports.s3.secret_access_key", "")

	v.SetDefault("reporting.timezone", "UTC")

	v.SetDefault("observability.enable_otlp", false)
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.otlp_endpoint", "http://localhost:4317")
}

func normalizeStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clean := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	return clean
}

func timeStringToDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return d, nil
		default:
			return nil, fmt.Errorf("cannot decode %T into time.Duration", data)
		}
	}
}
