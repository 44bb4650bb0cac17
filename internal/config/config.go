package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config captures the runtime configuration for the studio service.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Enhancement   EnhancementConfig   `mapstructure:"enhancement"`
	Moderation    ModerationConfig    `mapstructure:"moderation"`
	Branding      BrandingConfig      `mapstructure:"branding"`
	Providers     ProviderConfig      `mapstructure:"providers"`
	RateLimits    RateLimitConfig     `mapstructure:"rate_limits"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	ListenAddr            string        `mapstructure:"listen_addr"`
	BodyLimitMB           int           `mapstructure:"body_limit_mb"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	IdleTimeout           time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownDelay time.Duration `mapstructure:"graceful_shutdown_delay"`
	IdempotencyTTL        time.Duration `mapstructure:"idempotency_ttl"`
}

type LoggingConfig struct {
	Environment string `mapstructure:"environment"`
	Level       string `mapstructure:"level"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MinConns        int32         `mapstructure:"min_conns"`
}

// Enabled reports whether a Postgres connection was configured.
func (d DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(d.URL) != ""
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Enabled reports whether a Redis connection was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

// Edit text modes decide which enhancement text the image-edit path appends.
const (
	EditTextModeEdit    = "edit"
	EditTextModeDefault = "default"
)

type EnhancementConfig struct {
	ConfigFile   string        `mapstructure:"config_file"`
	Watch        bool          `mapstructure:"watch"`
	EditTextMode string        `mapstructure:"edit_text_mode"`
	Debounce     time.Duration `mapstructure:"debounce"`
}

type ModerationConfig struct {
	Enabled      bool                   `mapstructure:"enabled"`
	ProfilesFile string                 `mapstructure:"profiles_file"`
	OpenAI       OpenAIModerationConfig `mapstructure:"openai"`
	Image        ImageModerationConfig  `mapstructure:"image"`
}

type OpenAIModerationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ImageModerationConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	WebhookURL        string        `mapstructure:"webhook_url"`
	WebhookAuthHeader string        `mapstructure:"webhook_auth_header"`
	WebhookAuthValue  string        `mapstructure:"webhook_auth_value"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type BrandingConfig struct {
	Mode     string        `mapstructure:"mode"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type ProviderConfig struct {
	Fal    FalConfig    `mapstructure:"fal"`
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

type FalConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	DefaultModel    string        `mapstructure:"default_model"`
	EditModel       string        `mapstructure:"edit_model"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

type OpenAIConfig struct {
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	Organization string `mapstructure:"organization"`
	Model        string `mapstructure:"model"`
}

// Configured reports whether an OpenAI key is available.
func (o OpenAIConfig) Configured() bool {
	return strings.TrimSpace(o.APIKey) != ""
}

type RateLimitConfig struct {
	RequestsPerMinute int                          `mapstructure:"requests_per_minute"`
	ImagesPerMinute   int                          `mapstructure:"images_per_minute"`
	ParallelRequests  int                          `mapstructure:"parallel_requests"`
	Overrides         map[string]RateLimitOverride `mapstructure:"overrides"`
}

// RateLimitOverride replaces the non-zero limits for one organization type.
type RateLimitOverride struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	ImagesPerMinute   int `mapstructure:"images_per_minute"`
	ParallelRequests  int `mapstructure:"parallel_requests"`
}

type StorageConfig struct {
	Enabled    bool               `mapstructure:"enabled"`
	Backend    string             `mapstructure:"backend"`
	Local      StorageLocalConfig `mapstructure:"local"`
	S3         StorageS3Config    `mapstructure:"s3"`
	Disclaimer DisclaimerConfig   `mapstructure:"disclaimer"`
}

// DisclaimerConfig stamps a notice into the bottom-right corner of every
// generated image before it is persisted.
type DisclaimerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Text     string `mapstructure:"text"`
	FontSize int    `mapstructure:"font_size"`
	Padding  int    `mapstructure:"padding"`
}

// DefaultDisclaimerText is stamped when disclaimer.text is empty.
const DefaultDisclaimerText = "Created by supporters with ethical AI. // More at: tectonica.ai"

type StorageLocalConfig struct {
	Directory string `mapstructure:"directory"`
}

type StorageS3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
}

type ObservabilityConfig struct {
	EnableOTLP    bool   `mapstructure:"enable_otlp"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
	ServiceName   string `mapstructure:"service_name"`
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
	} else if cfg := os.Getenv("STUDIO_CONFIG_FILE"); cfg != "" {
		v.SetConfigFile(cfg)
		explicitFile = true
	}

	if !explicitFile {
		v.SetConfigName("studio")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("STUDIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(timeStringToDurationHook())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes values and rejects combinations the service cannot run with.
func (c *Config) Validate() error {
	var missing []string

	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		missing = append(missing, "STUDIO_SERVER_LISTEN_ADDR")
	}
	if strings.TrimSpace(c.Enhancement.ConfigFile) == "" {
		missing = append(missing, "STUDIO_ENHANCEMENT_CONFIG_FILE")
	}
	if c.Storage.Enabled && strings.EqualFold(c.Storage.Backend, "s3") && c.Storage.S3.Bucket == "" {
		missing = append(missing, "STUDIO_STORAGE_S3_BUCKET")
	}
	if strings.EqualFold(c.Moderation.Image.Provider, "webhook") && strings.TrimSpace(c.Moderation.Image.WebhookURL) == "" {
		missing = append(missing, "STUDIO_MODERATION_IMAGE_WEBHOOK_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch mode := strings.ToLower(strings.TrimSpace(c.Enhancement.EditTextMode)); mode {
	case "":
		c.Enhancement.EditTextMode = EditTextModeEdit
	case EditTextModeEdit, EditTextModeDefault:
		c.Enhancement.EditTextMode = mode
	default:
		return fmt.Errorf("enhancement.edit_text_mode must be %q or %q", EditTextModeEdit, EditTextModeDefault)
	}

	switch mode := strings.ToLower(strings.TrimSpace(c.Branding.Mode)); mode {
	case "", "auto":
		c.Branding.Mode = "auto"
	case "full", "simple", "none":
		c.Branding.Mode = mode
	default:
		return fmt.Errorf("branding.mode must be one of auto, full, simple, none")
	}

	switch provider := strings.ToLower(strings.TrimSpace(c.Moderation.Image.Provider)); provider {
	case "":
		c.Moderation.Image.Provider = "none"
	case "none", "openai", "webhook":
		c.Moderation.Image.Provider = provider
	default:
		return fmt.Errorf("moderation.image.provider must be one of none, openai, webhook")
	}
	if c.Moderation.Image.Provider == "openai" && !c.Providers.OpenAI.Configured() {
		return fmt.Errorf("moderation.image.provider=openai requires providers.openai.api_key")
	}

	if c.Moderation.Image.Timeout <= 0 {
		c.Moderation.Image.Timeout = 10 * time.Second
	}
	if c.Moderation.OpenAI.Timeout <= 0 {
		c.Moderation.OpenAI.Timeout = 5 * time.Second
	}
	if c.Enhancement.Debounce <= 0 {
		c.Enhancement.Debounce = 250 * time.Millisecond
	}
	if c.Branding.CacheTTL <= 0 {
		c.Branding.CacheTTL = 5 * time.Minute
	}
	if c.Providers.Fal.MaxRetries < 0 {
		c.Providers.Fal.MaxRetries = 0
	}
	c.Providers.Fal.BaseURL = strings.TrimRight(strings.TrimSpace(c.Providers.Fal.BaseURL), "/")
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if d := &c.Storage.Disclaimer; d.Enabled {
		d.Text = strings.TrimSpace(d.Text)
		if d.Text == "" {
			d.Text = DefaultDisclaimerText
		}
		if d.FontSize <= 0 {
			d.FontSize = 20
		}
		if d.Padding < 0 {
			d.Padding = 15
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.body_limit_mb", 20)
	v.SetDefault("server.read_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.graceful_shutdown_delay", "5s")
	v.SetDefault("server.idempotency_ttl", "30m")

	v.SetDefault("logging.environment", "development")
	v.SetDefault("logging.level", "")

	v.SetDefault("database.url", "")
	v.SetDefault("database.run_migrations", true)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("enhancement.config_file", "data/rag/prompt-enhancement.json")
	v.SetDefault("enhancement.watch", false)
	v.SetDefault("enhancement.edit_text_mode", EditTextModeEdit)
	v.SetDefault("enhancement.debounce", "250ms")

	v.SetDefault("moderation.enabled", true)
	v.SetDefault("moderation.profiles_file", "")
	v.SetDefault("moderation.openai.enabled", false)
	v.SetDefault("moderation.openai.model", "omni-moderation-latest")
	v.SetDefault("moderation.openai.timeout", "5s")
	v.SetDefault("moderation.image.provider", "none")
	v.SetDefault("moderation.image.model", "gpt-4o-mini")
	v.SetDefault("moderation.image.webhook_url", "")
	v.SetDefault("moderation.image.webhook_auth_header", "")
	v.SetDefault("moderation.image.webhook_auth_value", "")
	v.SetDefault("moderation.image.timeout", "10s")

	v.SetDefault("branding.mode", "auto")
	v.SetDefault("branding.cache_ttl", "5m")

	v.SetDefault("providers.fal.base_url", "https://fal.run")
	v.SetDefault("providers.fal.default_model", "fal-ai/qwen-image")
	v.SetDefault("providers.fal.edit_model", "fal-ai/qwen-image-edit")
	v.SetDefault("providers.fal.timeout", "120s")
	v.SetDefault("providers.fal.max_retries", 2)
	v.SetDefault("providers.fal.breaker_failures", 5)
	v.SetDefault("providers.fal.breaker_timeout", "30s")
	v.SetDefault("providers.openai.api_key", "")
	v.SetDefault("providers.openai.base_url", "")
	v.SetDefault("providers.openai.organization", "")
	v.SetDefault("providers.openai.model", "gpt-image-1")

	v.SetDefault("rate_limits.requests_per_minute", 60)
	v.SetDefault("rate_limits.images_per_minute", 0)
	v.SetDefault("rate_limits.parallel_requests", 4)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local.directory", "./data/generations")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.prefix", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.public_base_url", "")
	v.SetDefault("storage.disclaimer.enabled", false)
	v.SetDefault("storage.disclaimer.text", DefaultDisclaimerText)
	v.SetDefault("storage.disclaimer.font_size", 20)
	v.SetDefault("storage.disclaimer.padding", 15)

	v.SetDefault("observability.enable_otlp", false)
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.otlp_endpoint", "http://localhost:4317")
	v.SetDefault("observability.service_name", "image-studio")
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
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		default:
			return nil, fmt.Errorf("cannot decode %T into time.Duration", data)
		}
	}
}
