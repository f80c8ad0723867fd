package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort  string `mapstructure:"APP_PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Redis configuration.
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisSessionDB int    `mapstructure:"REDIS_SESSION_DB"`
	RedisQueueDB   int    `mapstructure:"REDIS_QUEUE_DB"`

	// Mongo, used for the booking records journal.
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`

	// External collaborators.
	GeminiAPIKey      string `mapstructure:"GEMINI_API_KEY"`
	GoogleCredentials string `mapstructure:"GOOGLE_CREDENTIALS_FILE"`
	DefaultCalendarID string `mapstructure:"DEFAULT_CALENDAR_ID"`
	DefaultTimezone   string `mapstructure:"DEFAULT_TIMEZONE"`

	// Negotiation engine knobs.
	LookaheadDays         int `mapstructure:"LOOKAHEAD_DAYS"`
	AvailabilityStaleSecs int `mapstructure:"AVAILABILITY_STALE_SECS"`
	DefaultDurationMin    int `mapstructure:"DEFAULT_DURATION_MIN"`
	SlotGranularityMin    int `mapstructure:"SLOT_GRANULARITY_MIN"`
	MaxAlternatives       int `mapstructure:"MAX_ALTERNATIVES"`
	MaxSuggestions        int `mapstructure:"MAX_SUGGESTIONS"`
	DisambiguationStrikes int `mapstructure:"DISAMBIGUATION_STRIKES"`
	RefreshRetries        int `mapstructure:"REFRESH_RETRIES"`
	RefreshBackoffMs      int `mapstructure:"REFRESH_BACKOFF_MS"`
	WriterMaxRetries      int `mapstructure:"WRITER_MAX_RETRIES"`
	WriterBackoffMs       int `mapstructure:"WRITER_BACKOFF_MS"`
	SessionTTLMin         int `mapstructure:"SESSION_TTL_MIN"`
	ReminderLeadMin       int `mapstructure:"REMINDER_LEAD_MIN"`

	// Rate limiting for the public API.
	RateLimitPerMin int `mapstructure:"RATE_LIMIT_PER_MIN"`
	RateLimitBurst  int `mapstructure:"RATE_LIMIT_BURST"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_SESSION_DB", 0)
	viper.SetDefault("REDIS_QUEUE_DB", 1)
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("DATABASE_NAME", "slotline")
	viper.SetDefault("GEMINI_API_KEY", "")
	viper.SetDefault("GOOGLE_CREDENTIALS_FILE", "credentials.json")
	viper.SetDefault("DEFAULT_CALENDAR_ID", "primary")
	viper.SetDefault("DEFAULT_TIMEZONE", "UTC")
	viper.SetDefault("LOOKAHEAD_DAYS", 14)
	viper.SetDefault("AVAILABILITY_STALE_SECS", 60)
	viper.SetDefault("DEFAULT_DURATION_MIN", 30)
	viper.SetDefault("SLOT_GRANULARITY_MIN", 15)
	viper.SetDefault("MAX_ALTERNATIVES", 3)
	viper.SetDefault("MAX_SUGGESTIONS", 5)
	viper.SetDefault("DISAMBIGUATION_STRIKES", 3)
	viper.SetDefault("REFRESH_RETRIES", 2)
	viper.SetDefault("REFRESH_BACKOFF_MS", 150)
	viper.SetDefault("WRITER_MAX_RETRIES", 3)
	viper.SetDefault("WRITER_BACKOFF_MS", 200)
	viper.SetDefault("SESSION_TTL_MIN", 30)
	viper.SetDefault("REMINDER_LEAD_MIN", 30)
	viper.SetDefault("RATE_LIMIT_PER_MIN", 120)
	viper.SetDefault("RATE_LIMIT_BURST", 20)

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
