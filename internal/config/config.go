package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Port        string
	MetricsPort string
	DatabaseURL string
	SQLitePath  string

	TelegramBotToken string
	OpenAIAPIKey     string
	OpenAIModel      string
	APIURL           string

	LocalTimezone     *time.Location
	ExtractionTimeout time.Duration
	APITimeout        time.Duration
	BotWorkers        int
	UserCacheSize     int

	CORSEnabled  bool
	GinMode      string
	OTELEndpoint string
	ServiceName  string

	NotifySchedule string
	NotifySink     string

	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioWhatsAppNumber string
	TwilioNotifyTo       string

	v *viper.Viper
}

var defaults = map[string]any{
	"PORT":               "8080",
	"SQLITE_PATH":        "reminders.db",
	"OPENAI_MODEL":       "gpt-4o-mini",
	"API_URL":            "http://localhost:8080",
	"LOCAL_TIMEZONE":     "Local",
	"EXTRACTION_TIMEOUT": "20s",
	"API_TIMEOUT":        "10s",
	"BOT_WORKERS":        8,
	"USER_CACHE_SIZE":    1024,
	"CORS_ENABLED":       false,
	"GIN_MODE":           "release",
	"OTEL_SERVICE_NAME":  "remindbot",
	"NOTIFY_SCHEDULE":    "@every 1m",
	"NOTIFY_SINK":        "telegram",
}

// Load reads a .env file when present, then the environment, and prepares
// defaults where applicable.
func Load() *Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	timezoneName := v.GetString("LOCAL_TIMEZONE")
	location, err := time.LoadLocation(timezoneName)
	if err != nil {
		log.Printf("config: invalid LOCAL_TIMEZONE %q, defaulting to system local: %v", timezoneName, err)
		location = time.Local
	}

	return &Config{
		Port:                 v.GetString("PORT"),
		MetricsPort:          v.GetString("METRICS_PORT"),
		DatabaseURL:          v.GetString("DATABASE_URL"),
		SQLitePath:           v.GetString("SQLITE_PATH"),
		TelegramBotToken:     v.GetString("TELEGRAM_BOT_TOKEN"),
		OpenAIAPIKey:         v.GetString("OPENAI_API_KEY"),
		OpenAIModel:          v.GetString("OPENAI_MODEL"),
		APIURL:               v.GetString("API_URL"),
		LocalTimezone:        location,
		ExtractionTimeout:    durationOr(v, "EXTRACTION_TIMEOUT", 20*time.Second),
		APITimeout:           durationOr(v, "API_TIMEOUT", 10*time.Second),
		BotWorkers:           positiveIntOr(v, "BOT_WORKERS", 8),
		UserCacheSize:        positiveIntOr(v, "USER_CACHE_SIZE", 1024),
		CORSEnabled:          v.GetBool("CORS_ENABLED"),
		GinMode:              v.GetString("GIN_MODE"),
		OTELEndpoint:         v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:          v.GetString("OTEL_SERVICE_NAME"),
		NotifySchedule:       v.GetString("NOTIFY_SCHEDULE"),
		NotifySink:           strings.ToLower(v.GetString("NOTIFY_SINK")),
		TwilioAccountSID:     v.GetString("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:      v.GetString("TWILIO_AUTH_TOKEN"),
		TwilioWhatsAppNumber: v.GetString("TWILIO_WHATSAPP_NUMBER"),
		TwilioNotifyTo:       v.GetString("TWILIO_NOTIFY_TO"),
		v:                    v,
	}
}

// Require returns an error naming every key that is unset or blank.
func (c *Config) Require(keys ...string) error {
	var missing []string
	for _, key := range keys {
		if c.v == nil || strings.TrimSpace(c.v.GetString(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required %s", strings.Join(missing, ", "))
	}
	return nil
}

func durationOr(v *viper.Viper, key string, def time.Duration) time.Duration {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("config: unable to parse %s=%q as duration, using %s", key, raw, def)
		return def
	}
	return d
}

func positiveIntOr(v *viper.Viper, key string, def int) int {
	n := v.GetInt(key)
	if n <= 0 {
		log.Printf("config: %s=%q is not a positive integer, using %d", key, v.GetString(key), def)
		return def
	}
	return n
}
