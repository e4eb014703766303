// Package config loads the service configuration from the environment.
// Keys are prefixed DUETTO_ with nested sections joined by "__"; a
// local .env file is read first when present.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration, populated once at startup
// and passed by pointer to everything that needs it.
type Config struct {
	ServerHost string
	ServerPort int

	// SEC EDGAR feed collector.
	SECUserAgent    string
	SECPollInterval int     // seconds between full feed cycles
	SECRateLimit    float64 // seconds between feed URLs within a cycle
	Monitor8K       bool
	MonitorS3       bool
	MonitorForm4    bool
	Monitor6K       bool

	// FDA approvals collector.
	FDAEnabled      bool
	FDAPollInterval int // seconds between scrape cycles

	// TradingView quote stream.
	TVEnabled      bool
	TVSymbols      []string // exchange-prefixed, e.g. NASDAQ:AAPL
	TVThresholdPct float64

	// Pipeline filter.
	MinMarketCap    float64 // reserved
	MaxMarketCap    float64 // reserved
	FilterNoise     bool
	FilterCatalysts []string // allow-list; empty means all

	// Notification channels. A channel with empty credentials is
	// disabled, never an error.
	TelegramBotToken string
	TelegramChatID   string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string
	EmailTo      []string

	WebhookURL    string
	WebhookFormat string // discord, slack or json

	FeishuWebhookURL string

	// AI enrichment.
	AIProvider string // rule, chat_v1 or chat_v2
	AIAPIKey   string
	AIBaseURL  string
	AIModel    string
	AIEnabled  bool

	NotifyMinPriority string

	LogFile       string
	LogMaxSizeMB  int64
	LogMaxBackups int
	LogLevel      string
}

// Load reads the .env file (when present) and the environment into a
// Config. Every value has a default; nothing here is fatal.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: No .env file found, using system environment variables")
	}

	cfg := &Config{
		ServerHost: getEnv("DUETTO_SERVER__HOST", "0.0.0.0"),
		ServerPort: getEnvAsInt("DUETTO_SERVER__PORT", 8091),

		SECUserAgent:    getEnv("DUETTO_SEC__USER_AGENT", "Duetto/1.0 (your-email@example.com)"),
		SECPollInterval: getEnvAsInt("DUETTO_SEC__POLL_INTERVAL", 30),
		SECRateLimit:    getEnvAsFloat64("DUETTO_SEC__RATE_LIMIT", 0.1),
		Monitor8K:       getEnvAsBool("DUETTO_SEC__MONITOR_8K", true),
		MonitorS3:       getEnvAsBool("DUETTO_SEC__MONITOR_S3", true),
		MonitorForm4:    getEnvAsBool("DUETTO_SEC__MONITOR_FORM4", true),
		Monitor6K:       getEnvAsBool("DUETTO_SEC__MONITOR_6K", false),

		FDAEnabled:      getEnvAsBool("DUETTO_FDA__ENABLED", true),
		FDAPollInterval: getEnvAsInt("DUETTO_FDA__POLL_INTERVAL", 300),

		TVEnabled:      getEnvAsBool("DUETTO_TV__ENABLED", false),
		TVSymbols:      getEnvAsList("DUETTO_TV__SYMBOLS", []string{"NASDAQ:AAPL"}),
		TVThresholdPct: getEnvAsFloat64("DUETTO_TV__THRESHOLD_PCT", 10.0),

		MinMarketCap:    getEnvAsFloat64("DUETTO_FILTER__MIN_MARKET_CAP", 0),
		MaxMarketCap:    getEnvAsFloat64("DUETTO_FILTER__MAX_MARKET_CAP", 1_000_000_000),
		FilterNoise:     getEnvAsBool("DUETTO_FILTER__NOISE", true),
		FilterCatalysts: getEnvAsList("DUETTO_FILTER__CATALYSTS", nil),

		TelegramBotToken: getEnv("DUETTO_TELEGRAM__BOT_TOKEN", ""),
		TelegramChatID:   getEnv("DUETTO_TELEGRAM__CHAT_ID", ""),

		SMTPHost:     getEnv("DUETTO_EMAIL__SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("DUETTO_EMAIL__SMTP_PORT", 587),
		SMTPUsername: getEnv("DUETTO_EMAIL__USERNAME", ""),
		SMTPPassword: getEnv("DUETTO_EMAIL__PASSWORD", ""),
		EmailFrom:    getEnv("DUETTO_EMAIL__FROM", ""),
		EmailTo:      getEnvAsList("DUETTO_EMAIL__TO", nil),

		WebhookURL:    getEnv("DUETTO_WEBHOOK__URL", ""),
		WebhookFormat: getEnv("DUETTO_WEBHOOK__FORMAT", "discord"),

		FeishuWebhookURL: getEnv("DUETTO_FEISHU__WEBHOOK_URL", ""),

		AIProvider: getEnv("DUETTO_AI__PROVIDER", "rule"),
		AIAPIKey:   getEnv("DUETTO_AI__API_KEY", ""),
		AIBaseURL:  getEnv("DUETTO_AI__BASE_URL", ""),
		AIModel:    getEnv("DUETTO_AI__MODEL", ""),
		AIEnabled:  getEnvAsBool("DUETTO_AI__ENABLED", false),

		NotifyMinPriority: getEnv("DUETTO_NOTIFY_MIN_PRIORITY", "low"),

		LogFile:       getEnv("DUETTO_LOG__FILE", "duetto.log"),
		LogMaxSizeMB:  int64(getEnvAsInt("DUETTO_LOG__MAX_SIZE_MB", 10)),
		LogMaxBackups: getEnvAsInt("DUETTO_LOG__MAX_BACKUPS", 3),
		LogLevel:      getEnv("DUETTO_LOG__LEVEL", "INFO"),
	}

	cfg.echo()
	return cfg
}

// secretKeys are masked when the loaded configuration is echoed.
var secretKeys = map[string]bool{
	"DUETTO_TELEGRAM__BOT_TOKEN": true,
	"DUETTO_EMAIL__PASSWORD":     true,
	"DUETTO_WEBHOOK__URL":        true,
	"DUETTO_FEISHU__WEBHOOK_URL": true,
	"DUETTO_AI__API_KEY":         true,
}

// echo prints every DUETTO_ variable actually set in the environment,
// masking secrets to their last four characters.
func (c *Config) echo() {
	var set []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "DUETTO_") {
			set = append(set, kv)
		}
	}
	if len(set) == 0 {
		return
	}
	log.Println("--- Configuration ---")
	for _, kv := range set {
		key, val, _ := strings.Cut(kv, "=")
		if secretKeys[key] {
			masked := "***"
			if len(val) > 4 {
				masked = "***" + val[len(val)-4:]
			}
			log.Printf("%s=%s", key, masked)
		} else {
			log.Printf("%s=%s", key, val)
		}
	}
	log.Println("---------------------")
}

// getEnv returns the variable's value or fallback when unset or blank.
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valStr, exists := os.LookupEnv(key)
	if !exists || valStr == "" {
		return fallback
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		log.Printf("Warning: Invalid int for config %s=%s, using default %d", key, valStr, fallback)
		return fallback
	}
	return val
}

func getEnvAsBool(key string, fallback bool) bool {
	valStr, exists := os.LookupEnv(key)
	if !exists || valStr == "" {
		return fallback
	}
	val, err := strconv.ParseBool(strings.ToLower(valStr))
	if err != nil {
		log.Printf("Warning: Invalid bool for config %s=%s, using default %v", key, valStr, fallback)
		return fallback
	}
	return val
}

// getEnvAsList splits a comma-separated variable, trimming whitespace
// and dropping empty elements.
func getEnvAsList(key string, fallback []string) []string {
	valStr, exists := os.LookupEnv(key)
	if !exists || valStr == "" {
		return fallback
	}
	parts := strings.Split(valStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
