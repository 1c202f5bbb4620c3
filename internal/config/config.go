package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Schedule configuration
	IngestSchedule string // "daily" or "weekly"
	TimeZone       string

	// Azure Storage configuration
	StorageAccount   string
	StorageContainer string

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// Forum source
	ForumBaseURL string
	ForumTopics  []string

	// WhatsApp/WATI source
	WATIBaseURL string
	WATIToken   string

	// Facebook scrape input (blob prefix in the storage container)
	FacebookScrapePrefix string

	// Grouping
	MaxPostsPerBlock int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Debug:          getBoolEnv("DEBUG", false),
		IngestSchedule: getEnv("INGEST_SCHEDULE", "daily"),
		TimeZone:       getEnv("TIMEZONE", "UTC"),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "conversations"),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		ForumBaseURL: getEnv("FORUM_BASE_URL", ""),
		ForumTopics:  getSliceEnv("FORUM_TOPICS", nil),

		WATIBaseURL: getEnv("WATI_BASE_URL", ""),
		WATIToken:   getEnv("WATI_TOKEN", ""),

		FacebookScrapePrefix: getEnv("FACEBOOK_SCRAPE_PREFIX", "scrapes/facebook"),

		MaxPostsPerBlock: getIntEnv("MAX_POSTS_PER_BLOCK", 40),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.IngestSchedule != "daily" && c.IngestSchedule != "weekly" {
		return fmt.Errorf("INGEST_SCHEDULE must be 'daily' or 'weekly'")
	}

	if c.MaxPostsPerBlock < 0 {
		return fmt.Errorf("MAX_POSTS_PER_BLOCK must not be negative")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
