// Package config provides application configuration management using environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Discord  DiscordConfig
	Database DatabaseConfig
	Snapshot SnapshotConfig
	Roster   RosterConfig
	Logging  LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPPort string
	Host     string
	Env      string
}

// DiscordConfig holds the bot credentials and the mirrored guild.
// An empty GuildID is allowed; syncs then report missingGuildId.
type DiscordConfig struct {
	BotToken string
	GuildID  string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// SnapshotConfig holds the periodic sync settings
type SnapshotConfig struct {
	Interval time.Duration
}

// RosterConfig holds member cache and paging settings
type RosterConfig struct {
	CacheTTL        time.Duration
	FailureCooldown time.Duration
	FetchTimeout    time.Duration
	PageSize        int
	MaxPages        int
	PagesPerSecond  float64
	DebugFetch      bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
// It optionally loads from a .env file if it exists
func Load() (*Config, error) {
	// Try to load .env file (optional, ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Server = ServerConfig{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		Host:     getEnv("SERVER_HOST", "localhost"),
		Env:      getEnv("ENVIRONMENT", "development"),
	}

	cfg.Discord = DiscordConfig{
		BotToken: getEnv("DISCORD_BOT_TOKEN", ""),
		GuildID:  getEnv("DISCORD_GUILD_ID", ""),
	}

	maxOpenConns, _ := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	maxIdleConns, _ := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))

	cfg.Database = DatabaseConfig{
		Host:         getEnv("DB_HOST", "localhost"),
		Port:         getEnv("DB_PORT", "5432"),
		User:         getEnv("DB_USER", "guildsnapshot"),
		Password:     getEnv("DB_PASSWORD", ""),
		Name:         getEnv("DB_NAME", "guildsnapshot_db"),
		SSLMode:      getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns: maxOpenConns,
		MaxIdleConns: maxIdleConns,
	}

	intervalMinutes, err := getEnvInt("SNAPSHOT_INTERVAL_MINUTES", 15)
	if err != nil {
		return nil, err
	}
	cfg.Snapshot = SnapshotConfig{
		Interval: time.Duration(intervalMinutes) * time.Minute,
	}

	ttlSeconds, err := getEnvInt("MEMBER_CACHE_TTL_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	cooldownSeconds, err := getEnvInt("MEMBER_FAILURE_COOLDOWN_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	timeoutSeconds, err := getEnvInt("MEMBER_FETCH_TIMEOUT_SECONDS", 120)
	if err != nil {
		return nil, err
	}
	pageSize, err := getEnvInt("MEMBER_PAGE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	maxPages, err := getEnvInt("MEMBER_MAX_PAGES", 200)
	if err != nil {
		return nil, err
	}
	pagesPerSecond, err := strconv.ParseFloat(getEnv("MEMBER_PAGES_PER_SECOND", "2"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MEMBER_PAGES_PER_SECOND: %w", err)
	}
	debugFetch, err := strconv.ParseBool(getEnv("ENABLE_MEMBER_FETCH_DEBUG", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid ENABLE_MEMBER_FETCH_DEBUG: %w", err)
	}

	cfg.Roster = RosterConfig{
		CacheTTL:        time.Duration(ttlSeconds) * time.Second,
		FailureCooldown: time.Duration(cooldownSeconds) * time.Second,
		FetchTimeout:    time.Duration(timeoutSeconds) * time.Second,
		PageSize:        pageSize,
		MaxPages:        maxPages,
		PagesPerSecond:  pagesPerSecond,
		DebugFetch:      debugFetch,
	}

	cfg.Logging = LoggingConfig{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Discord.BotToken == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}

	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}

	if c.Snapshot.Interval <= 0 {
		return fmt.Errorf("SNAPSHOT_INTERVAL_MINUTES must be positive")
	}
	if c.Roster.CacheTTL <= 0 {
		return fmt.Errorf("MEMBER_CACHE_TTL_SECONDS must be positive")
	}
	if c.Roster.FailureCooldown <= 0 {
		return fmt.Errorf("MEMBER_FAILURE_COOLDOWN_SECONDS must be positive")
	}
	if c.Roster.FetchTimeout <= 0 {
		return fmt.Errorf("MEMBER_FETCH_TIMEOUT_SECONDS must be positive")
	}
	if c.Roster.PageSize <= 0 || c.Roster.PageSize > 1000 {
		return fmt.Errorf("MEMBER_PAGE_SIZE must be between 1 and 1000")
	}
	if c.Roster.MaxPages <= 0 {
		return fmt.Errorf("MEMBER_MAX_PAGES must be positive")
	}
	if c.Roster.PagesPerSecond <= 0 {
		return fmt.Errorf("MEMBER_PAGES_PER_SECOND must be positive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}

	return nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// getEnv retrieves an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
