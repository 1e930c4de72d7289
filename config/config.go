package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// MongoDB configuration
	MongoURI        string
	DatabaseName    string
	SheetCollection string

	// Record schema configuration
	FieldNames     []string // fixed-field columns, in sheet order
	RequiredFields []string // fixed fields that must be non-empty for a new record

	// Inactivity alerting
	InactiveThresholdDays int

	// Branch/district directory
	BranchDirectoryFile string

	// SMTP configuration for alert notifications
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// Server configuration
	Port string
}

func LoadConfig() *Config {
	cfg := &Config{
		MongoURI:              getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DatabaseName:          getEnv("MONGO_DB_NAME", "student_tracker"),
		SheetCollection:       getEnv("SHEET_COLLECTION", "student_updates"),
		FieldNames:            getEnvList("FIXED_FIELDS", "Phone Number,District,Branch"),
		RequiredFields:        getEnvList("REQUIRED_FIELDS", "Phone Number"),
		InactiveThresholdDays: getEnvInt("INACTIVE_THRESHOLD_DAYS", 14),
		BranchDirectoryFile:   getEnv("BRANCH_DIRECTORY_FILE", "branches.csv"),
		SMTPHost:              getEnv("SMTP_HOST", ""),
		SMTPPort:              getEnv("SMTP_PORT", "587"),
		SMTPUsername:          getEnv("SMTP_USERNAME", ""),
		SMTPPassword:          getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:              getEnv("SMTP_FROM", ""),
		Port:                  getEnv("PORT", "8080"),
	}

	// Validate required configuration
	if cfg.MongoURI == "" {
		slog.Error("MONGO_URI not set")
	}
	if cfg.InactiveThresholdDays <= 0 {
		slog.Error("INACTIVE_THRESHOLD_DAYS must be positive, using default", "value", cfg.InactiveThresholdDays)
		cfg.InactiveThresholdDays = 14
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Error("Invalid integer in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return n
}

func getEnvList(key, defaultValue string) []string {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
