package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// AppConfig identifies the running bot instance.
type AppConfig struct {
	Name    string `yaml:"name" envconfig:"APP_NAME"`
	Session string `yaml:"session" envconfig:"SESSION_NAME"`
	// HandlerTimeoutSeconds bounds a single command run; 0 -> default.
	HandlerTimeoutSeconds int `yaml:"handler_timeout_seconds" envconfig:"HANDLER_TIMEOUT_SECONDS"`
}

// TelegramConfig holds Telegram transport settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// ConsoleConfig configures the stdin test mode.
type ConsoleConfig struct {
	SenderID string `yaml:"sender_id" envconfig:"CONSOLE_SENDER_ID"`
	Prompt   string `yaml:"prompt"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// AccessConfig lists senders allowed to run admin-only commands.
// The env form is a comma-separated list.
type AccessConfig struct {
	Admins []string `yaml:"admins" envconfig:"ADMIN_NUMBERS"`
}

// RateLimitConfig holds the per-sender sliding window settings.
type RateLimitConfig struct {
	WindowMS int `yaml:"window_ms" envconfig:"RATE_LIMIT_WINDOW_MS"`
	Limit    int `yaml:"limit" envconfig:"RATE_LIMIT_LIMIT"`
}

// ReminderConfig controls the reminder scheduler.
type ReminderConfig struct {
	// NearThresholdMS is the delay below which reminders use a plain timer.
	NearThresholdMS int `yaml:"near_threshold_ms" envconfig:"REMINDER_NEAR_THRESHOLD_MS"`
	// Timezone used to interpret absolute reminder times; empty -> local.
	Timezone string `yaml:"timezone" envconfig:"REMINDER_TIMEZONE"`
}

// BankAccountConfig is the account/bank-code pair used for a fund load.
// Env keys are prefixed with the bank name, e.g. CITIZEN_ACCOUNT_ID and CITIZEN_CODE.
type BankAccountConfig struct {
	AccountID string `yaml:"account_id" split_words:"true"`
	Code      string `yaml:"bank_code"`
}

// WalletConfig configures the financial gateway.
type WalletConfig struct {
	BaseURL           string `yaml:"base_url" envconfig:"KHALTI_BASE_URL"`
	Token             string `yaml:"token" envconfig:"KHALTI_TOKEN"`
	DeviceID          string `yaml:"device_id" envconfig:"KHALTI_DEVICE_ID"`
	TimeoutSeconds    int    `yaml:"timeout_seconds" envconfig:"KHALTI_TIMEOUT_SECONDS"`
	PendingTTLSeconds int    `yaml:"pending_ttl_seconds" envconfig:"PENDING_TTL_SECONDS"`
	// MaxAmount caps loads and transfers in NPR; 0 -> default.
	MaxAmount int64 `yaml:"max_amount" envconfig:"WALLET_MAX_AMOUNT"`

	Citizen BankAccountConfig `yaml:"citizen" ignored:"true"`
	Prabhu  BankAccountConfig `yaml:"prabhu" ignored:"true"`
}

// IntegrationsConfig holds API keys for the lookup commands.
type IntegrationsConfig struct {
	OpenWeatherKey string `yaml:"openweather_key" envconfig:"OPENWEATHER_API_KEY"`
	NewsAPIKey     string `yaml:"newsapi_key" envconfig:"NEWSAPI_KEY"`
	TranslateKey   string `yaml:"translate_key" envconfig:"TRANSLATE_API_KEY"`
	GiphyKey       string `yaml:"giphy_key" envconfig:"GIPHY_API_KEY"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"INTEGRATIONS_TIMEOUT_SECONDS"`
}

// HealthConfig configures the liveness/metrics HTTP listener.
type HealthConfig struct {
	Port     int  `yaml:"port" envconfig:"PORT"`
	Disabled bool `yaml:"disabled" envconfig:"HEALTH_DISABLED"`
	// KeepAliveURL is pinged periodically so free hosting tiers keep the
	// process awake. Empty disables the pinger.
	KeepAliveURL     string `yaml:"keepalive_url" envconfig:"KEEPALIVE_URL"`
	KeepAliveSeconds int    `yaml:"keepalive_seconds" envconfig:"KEEPALIVE_SECONDS"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
	// RunModeConsole reads messages from stdin instead of Telegram.
	RunModeConsole = "console"
)

const (
	defaultRateWindowMS     = 60_000
	defaultRateLimit        = 10
	defaultNearThresholdMS  = 120_000
	defaultWalletBaseURL    = "https://khalti.com/api/v2"
	defaultWalletTimeoutSec = 15
	defaultIntegrationsSec  = 10
	defaultHealthPort       = 5000
	defaultConsoleSenderID  = "console"
	defaultHandlerTimeout   = 30
	defaultKeepAliveSec     = 300
	defaultWalletMaxAmount  = 100_000
)

// Config aggregates the bot configuration.
type Config struct {
	App          AppConfig          `yaml:"app"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	Console      ConsoleConfig      `yaml:"console"`
	Logging      LoggingConfig      `yaml:"logging"`
	Access       AccessConfig       `yaml:"access"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Reminders    ReminderConfig     `yaml:"reminders"`
	Wallet       WalletConfig       `yaml:"wallet"`
	Integrations IntegrationsConfig `yaml:"integrations"`
	Health       HealthConfig       `yaml:"health"`
	// FAQ maps key phrases to !ask answers; empty uses the built-in set.
	FAQ map[string]string `yaml:"faq" ignored:"true"`
}

// Load reads configuration from an optional YAML file, a .env file and
// environment variables, in that order of precedence (env wins).
func Load(path string) (*Config, error) {
	var cfg Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := envconfig.Process("CITIZEN", &cfg.Wallet.Citizen); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := envconfig.Process("PRABHU", &cfg.Wallet.Prabhu); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	case RunModeConsole:
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll, console", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if rm != RunModeConsole && cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if strings.TrimSpace(cfg.Console.SenderID) == "" {
		cfg.Console.SenderID = defaultConsoleSenderID
	}

	admins := make([]string, 0, len(cfg.Access.Admins))
	for _, a := range cfg.Access.Admins {
		if a = strings.TrimSpace(a); a != "" {
			admins = append(admins, a)
		}
	}
	cfg.Access.Admins = admins

	if cfg.RateLimit.WindowMS < 0 || cfg.RateLimit.Limit < 0 {
		return fmt.Errorf("rate_limit.window_ms and rate_limit.limit must be >= 0")
	}
	if cfg.RateLimit.WindowMS == 0 {
		cfg.RateLimit.WindowMS = defaultRateWindowMS
	}
	if cfg.RateLimit.Limit == 0 {
		cfg.RateLimit.Limit = defaultRateLimit
	}

	if cfg.Reminders.NearThresholdMS < 0 {
		return fmt.Errorf("reminders.near_threshold_ms must be >= 0")
	}
	if cfg.Reminders.NearThresholdMS == 0 {
		cfg.Reminders.NearThresholdMS = defaultNearThresholdMS
	}

	cfg.Wallet.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Wallet.BaseURL), "/")
	if cfg.Wallet.BaseURL == "" {
		cfg.Wallet.BaseURL = defaultWalletBaseURL
	}
	if cfg.Wallet.TimeoutSeconds <= 0 {
		cfg.Wallet.TimeoutSeconds = defaultWalletTimeoutSec
	}
	if cfg.Wallet.PendingTTLSeconds < 0 {
		return fmt.Errorf("wallet.pending_ttl_seconds must be >= 0")
	}
	if cfg.Wallet.MaxAmount < 0 {
		return fmt.Errorf("wallet.max_amount must be >= 0")
	}
	if cfg.Wallet.MaxAmount == 0 {
		cfg.Wallet.MaxAmount = defaultWalletMaxAmount
	}
	for _, b := range []*BankAccountConfig{&cfg.Wallet.Citizen, &cfg.Wallet.Prabhu} {
		b.AccountID = strings.TrimSpace(b.AccountID)
		b.Code = strings.TrimSpace(b.Code)
	}

	if cfg.Integrations.TimeoutSeconds <= 0 {
		cfg.Integrations.TimeoutSeconds = defaultIntegrationsSec
	}
	if cfg.Health.Port == 0 {
		cfg.Health.Port = defaultHealthPort
	}
	if cfg.Health.Port < 0 {
		return fmt.Errorf("health.port must be > 0")
	}
	cfg.Health.KeepAliveURL = strings.TrimSpace(cfg.Health.KeepAliveURL)
	if cfg.Health.KeepAliveSeconds <= 0 {
		cfg.Health.KeepAliveSeconds = defaultKeepAliveSec
	}
	if cfg.App.HandlerTimeoutSeconds < 0 {
		return fmt.Errorf("app.handler_timeout_seconds must be >= 0")
	}
	if cfg.App.HandlerTimeoutSeconds == 0 {
		cfg.App.HandlerTimeoutSeconds = defaultHandlerTimeout
	}
	return nil
}
