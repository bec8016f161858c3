package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	OpenAIAPIKey string
	OpenAIModel  string
	GeminiAPIKey string
	GeminiModel  string

	YCOAuthToken string
	YCFolderID   string

	TelegramBotToken string
	WebhookURL       string

	DatabaseURL string

	// AcceptConfidence is the minimum verifier confidence required before a
	// corrected answer replaces the extracted one.
	AcceptConfidence float64

	OraclePassTimeout time.Duration
	VerifyTimeout     time.Duration
	AnalyzeTimeout    time.Duration
	OCRTimeout        time.Duration
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvSeconds(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8000"),

		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		YCOAuthToken: os.Getenv("YC_OAUTH_TOKEN"),
		YCFolderID:   os.Getenv("YC_FOLDER_ID"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		WebhookURL:       os.Getenv("WEBHOOK_URL"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		AcceptConfidence: getEnvFloat("ACCEPT_CONFIDENCE", 0.5),

		OraclePassTimeout: getEnvSeconds("ORACLE_PASS_TIMEOUT", 40*time.Second),
		VerifyTimeout:     getEnvSeconds("VERIFY_TIMEOUT", 15*time.Second),
		AnalyzeTimeout:    getEnvSeconds("ANALYZE_TIMEOUT", 60*time.Second),
		OCRTimeout:        getEnvSeconds("OCR_TIMEOUT", 60*time.Second),
	}
}
