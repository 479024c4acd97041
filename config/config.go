// Package config provides configuration for the concierge service.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. CONCIERGE_HTTP_ADDR.
const EnvPrefix = "CONCIERGE"

// Config holds the service configuration.
// The values are read by viper from an optional config file and environment variables.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	WS       WSConfig       `mapstructure:"ws"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Pricing  PricingConfig  `mapstructure:"pricing"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Mail     MailConfig     `mapstructure:"mail"`
	Log      LogConfig      `mapstructure:"log"`
}

// HTTPConfig holds server settings.
type HTTPConfig struct {
	Addr               string        `mapstructure:"addr"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	CORSOrigins        []string      `mapstructure:"cors_origins"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
}

// WSConfig holds websocket connection settings.
type WSConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// DatabaseConfig stores database connection details.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	Provider string        `mapstructure:"provider"` // mock, openai, gemini, ollama
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// PricingConfig holds per-1000-token prices in micro units of the billing currency.
type PricingConfig struct {
	InputMicrosPer1K  int64  `mapstructure:"input_micros_per_1k"`
	OutputMicrosPer1K int64  `mapstructure:"output_micros_per_1k"`
	DisplayCurrency   string `mapstructure:"display_currency"`
	DisplayRatePPM    int64  `mapstructure:"display_rate_ppm"`
}

// QuotaConfig holds the cost caps in cents of the billing currency.
type QuotaConfig struct {
	DailyCapCents   int64 `mapstructure:"daily_cap_cents"`
	MonthlyCapCents int64 `mapstructure:"monthly_cap_cents"`
}

// StreamConfig controls token pacing.
type StreamConfig struct {
	TokenDelay time.Duration `mapstructure:"token_delay"`
	ChunkRunes int           `mapstructure:"chunk_runes"`
}

// AgentConfig holds orchestrator settings.
type AgentConfig struct {
	SystemPromptFile string `mapstructure:"system_prompt_file"`
	Timezone         string `mapstructure:"timezone"`
}

// PolicyConfig points at an optional rego file overriding the built-in tool policy.
type PolicyConfig struct {
	File string `mapstructure:"file"`
}

// PaymentConfig configures the checkout gateway.
type PaymentConfig struct {
	GatewayURL   string        `mapstructure:"gateway_url"`
	APIKey       string        `mapstructure:"api_key"`
	PublicURL    string        `mapstructure:"public_url"`
	DepositCents int64         `mapstructure:"deposit_cents"`
	Currency     string        `mapstructure:"currency"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// MailConfig configures confirmation emails.
type MailConfig struct {
	From       string `mapstructure:"from"`
	AdminEmail string `mapstructure:"admin_email"`
}

// LogConfig configures the root logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// Load reads configuration from configPath (optional) and the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/concierge")
		v.SetConfigName("concierge")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.rate_limit_per_minute", 30)
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("ws.ping_interval", 30*time.Second)
	v.SetDefault("ws.write_timeout", 10*time.Second)
	v.SetDefault("ws.read_timeout", 60*time.Second)
	v.SetDefault("ws.max_message_size", 65536)

	v.SetDefault("database.dsn", "file:concierge.db?cache=shared&mode=rwc&_busy_timeout=5000&_foreign_keys=on")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("llm.provider", "mock")
	v.SetDefault("llm.model", "o3-mini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", 60*time.Second)

	// $0.0011 / $0.0044 per 1K tokens, displayed in EUR at 0.9.
	v.SetDefault("pricing.input_micros_per_1k", 1100)
	v.SetDefault("pricing.output_micros_per_1k", 4400)
	v.SetDefault("pricing.display_currency", "EUR")
	v.SetDefault("pricing.display_rate_ppm", 900000)

	v.SetDefault("quota.daily_cap_cents", 5)
	v.SetDefault("quota.monthly_cap_cents", 10)

	v.SetDefault("stream.token_delay", 20*time.Millisecond)
	v.SetDefault("stream.chunk_runes", 10)

	v.SetDefault("agent.system_prompt_file", "")
	v.SetDefault("agent.timezone", "UTC")

	v.SetDefault("policy.file", "")

	v.SetDefault("payment.gateway_url", "")
	v.SetDefault("payment.api_key", "")
	v.SetDefault("payment.public_url", "http://localhost:8080")
	v.SetDefault("payment.deposit_cents", 5000)
	v.SetDefault("payment.currency", "EUR")
	v.SetDefault("payment.timeout", 10*time.Second)

	v.SetDefault("mail.from", "bookings@concierge.local")
	v.SetDefault("mail.admin_email", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks invariants that defaults cannot guarantee.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (set %s_AUTH_JWT_SECRET)", EnvPrefix)
	}
	if c.Pricing.InputMicrosPer1K < 0 || c.Pricing.OutputMicrosPer1K < 0 {
		return fmt.Errorf("pricing rates must not be negative")
	}
	if c.Pricing.DisplayRatePPM < 0 {
		return fmt.Errorf("pricing.display_rate_ppm must not be negative")
	}
	if c.Quota.DailyCapCents < 0 || c.Quota.MonthlyCapCents < 0 {
		return fmt.Errorf("quota caps must not be negative")
	}
	if c.Stream.TokenDelay < 0 {
		return fmt.Errorf("stream.token_delay must not be negative")
	}
	if c.Stream.ChunkRunes <= 0 {
		return fmt.Errorf("stream.chunk_runes must be positive")
	}
	if c.HTTP.RateLimitPerMinute <= 0 {
		return fmt.Errorf("http.rate_limit_per_minute must be positive")
	}
	if c.WS.PingInterval <= 0 || c.WS.PingInterval >= c.WS.ReadTimeout {
		return fmt.Errorf("ws.ping_interval must be positive and shorter than ws.read_timeout")
	}
	switch c.LLM.Provider {
	case "mock", "openai", "gemini", "ollama":
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	return nil
}

// CentsToMicros converts cents of the billing currency to cost micros.
func CentsToMicros(cents int64) int64 {
	return cents * 10_000
}
