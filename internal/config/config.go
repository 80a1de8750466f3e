package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioWhatsAppFrom string

	GeminiAPIKey  string
	GeminiModelID string
	GeminiTimeout time.Duration

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	AdminJWTSecret string

	// Conversation tuning
	DailyAILimit    int
	MessageDelay    time.Duration
	FollowUpDelay   time.Duration
	SendWindow      time.Duration
	SendWindowLimit int

	// Matching and jobs
	SessionCost          int
	SessionMinutes       int
	MatchInterval        time.Duration
	ReminderInterval     time.Duration
	AutoCancelInterval   time.Duration
	RegistrationInterval time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		TwilioAccountSID:   getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:    getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioWhatsAppFrom: getEnv("TWILIO_WHATSAPP_NUMBER", ""),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		GeminiTimeout: getEnvAsDuration("GEMINI_TIMEOUT", 20*time.Second),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URI", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		DailyAILimit:    getEnvAsInt("DAILY_AI_LIMIT", 10),
		MessageDelay:    getEnvAsDuration("MESSAGE_DELAY", time.Second),
		FollowUpDelay:   getEnvAsDuration("FOLLOW_UP_DELAY", 1500*time.Millisecond),
		SendWindow:      getEnvAsDuration("SEND_WINDOW", time.Minute),
		SendWindowLimit: getEnvAsInt("SEND_WINDOW_LIMIT", 10),

		SessionCost:          getEnvAsInt("SESSION_COST_POINTS", 100),
		SessionMinutes:       getEnvAsInt("SESSION_MINUTES", 15),
		MatchInterval:        getEnvAsDuration("MATCH_INTERVAL", 6*time.Hour),
		ReminderInterval:     getEnvAsDuration("REMINDER_INTERVAL", time.Hour),
		AutoCancelInterval:   getEnvAsDuration("AUTO_CANCEL_INTERVAL", time.Hour),
		RegistrationInterval: getEnvAsDuration("REGISTRATION_NUDGE_INTERVAL", time.Hour),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
