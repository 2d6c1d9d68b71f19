// Package config provides centralized configuration management for the notesmith server.
// It loads configuration from CLI flags and environment variables, validates required fields,
// and provides sensible defaults.
//
// CLI flags control which services are replaced by local stand-ins (--no-ai, --no-email,
// --no-s3, --test). Environment variables provide secrets and service configuration.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/notesmith/internal/ai"
	"github.com/kuitang/notesmith/internal/db"
	"github.com/kuitang/notesmith/internal/obs"
	"github.com/kuitang/notesmith/internal/ratelimit"
)

const (
	defaultRegion     = "auto"
	defaultListenAddr = ":8080"
	defaultFromEmail  = "noreply@notesmith.local"
	defaultBucketName = "notesmith"
)

// Flags are the command-line switches.
type Flags struct {
	NoAI    bool
	NoEmail bool
	NoS3    bool
	Addr    string
}

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr string
	BaseURL    string
	LogLevel   string // LOG_LEVEL: debug, info, warn or error

	// Database and encryption
	DatabasePath    string
	DatabaseKey     string // optional, 64 hex characters (32 bytes)
	SessionDuration time.Duration

	// Notes
	EnforceNoteOwnership bool

	// Rate limiting
	RateLimitConfig   ratelimit.Config
	AIRateLimitConfig ratelimit.Config

	// Stand-in service flags (controlled by CLI flags, not env vars)
	NoAI    bool // If true, use the offline AI provider (--no-ai)
	NoEmail bool // If true, use mock email service (--no-email)
	NoS3    bool // If true, use in-process S3 (--no-s3)

	// OpenAI
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Resend Email
	ResendAPIKey    string
	ResendFromEmail string

	// MOCK_EMAIL_OUTBOX_DIR: with --no-email, also write each email here
	MockEmailOutboxDir string

	// S3 export storage
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSBucketName      string // BUCKET_NAME
	AWSPublicURL       string // S3_PUBLIC_URL; empty means exports are presigned
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses CLI flags from args (usually os.Args[1:]).
// --test is shorthand for --no-ai --no-email --no-s3.
func ParseFlags(name string, args []string) (Flags, error) {
	var f Flags
	var testMode bool
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.BoolVar(&f.NoAI, "no-ai", false, "Use the offline AI provider (no OpenAI calls)")
	fs.BoolVar(&f.NoEmail, "no-email", false, "Use mock email service (logs emails)")
	fs.BoolVar(&f.NoS3, "no-s3", false, "Use an in-process S3 server for exports")
	fs.BoolVar(&testMode, "test", false, "Shorthand for --no-ai --no-email --no-s3")
	fs.StringVar(&f.Addr, "addr", "", "Listen address (default :8080, overrides LISTEN_ADDR env var)")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	if testMode {
		f.NoAI = true
		f.NoEmail = true
		f.NoS3 = true
	}
	return f, nil
}

// LoadConfig loads configuration from environment variables and CLI flag values.
// The addr flag overrides the LISTEN_ADDR env var if non-empty.
func LoadConfig(flags Flags) (*Config, error) {
	cfg := &Config{}

	// CLI flag values
	cfg.NoAI = flags.NoAI
	cfg.NoEmail = flags.NoEmail
	cfg.NoS3 = flags.NoS3

	// Server settings
	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", defaultListenAddr)
	if flags.Addr != "" {
		cfg.ListenAddr = flags.Addr
	}
	cfg.BaseURL = getEnvOrDefault("BASE_URL", "")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database and encryption
	cfg.DatabasePath = getEnvOrDefault("DATABASE_PATH", db.DefaultPath)
	cfg.DatabaseKey = getEnvOrDefault("DATABASE_KEY", "")
	cfg.SessionDuration = parseDurationOrDefault("SESSION_DURATION", 24*time.Hour)

	cfg.EnforceNoteOwnership = parseBoolOrDefault("ENFORCE_NOTE_OWNERSHIP", false)

	// Rate limiting
	cleanup := parseDurationOrDefault("RATE_LIMIT_CLEANUP_INTERVAL", time.Hour)
	cfg.RateLimitConfig = ratelimit.Config{
		RPS:             parseFloat64OrDefault("RATE_LIMIT_RPS", ratelimit.DefaultConfig.RPS),
		Burst:           parseIntOrDefault("RATE_LIMIT_BURST", ratelimit.DefaultConfig.Burst),
		CleanupInterval: cleanup,
	}
	cfg.AIRateLimitConfig = ratelimit.Config{
		RPS:             parseFloat64OrDefault("RATE_LIMIT_AI_RPS", ratelimit.DefaultAIConfig.RPS),
		Burst:           parseIntOrDefault("RATE_LIMIT_AI_BURST", ratelimit.DefaultAIConfig.Burst),
		CleanupInterval: cleanup,
	}

	// OpenAI
	cfg.OpenAIAPIKey = getEnvOrDefault("OPENAI_API_KEY", "")
	cfg.OpenAIModel = getEnvOrDefault("OPENAI_MODEL", ai.DefaultModel)
	cfg.OpenAIBaseURL = getEnvOrDefault("OPENAI_BASE_URL", "")

	// Resend Email
	cfg.ResendAPIKey = getEnvOrDefault("RESEND_API_KEY", "")
	cfg.ResendFromEmail = getEnvOrDefault("RESEND_FROM_EMAIL", defaultFromEmail)
	cfg.MockEmailOutboxDir = getEnvOrDefault("MOCK_EMAIL_OUTBOX_DIR", "")

	// S3 export storage
	cfg.AWSEndpointS3 = getEnvOrDefault("AWS_ENDPOINT_URL_S3", "")
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultRegion)
	cfg.AWSAccessKeyID = getEnvOrDefault("AWS_ACCESS_KEY_ID", "")
	cfg.AWSSecretAccessKey = getEnvOrDefault("AWS_SECRET_ACCESS_KEY", "")
	cfg.AWSBucketName = getEnvOrDefault("BUCKET_NAME", "")
	if cfg.NoS3 && cfg.AWSBucketName == "" {
		cfg.AWSBucketName = defaultBucketName
	}
	cfg.AWSPublicURL = getEnvOrDefault("S3_PUBLIC_URL", "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
// When a stand-in is NOT active for a service, the corresponding secrets are required.
func (c *Config) Validate() error {
	var errs []string

	if !c.NoAI && c.OpenAIAPIKey == "" {
		errs = append(errs, "OPENAI_API_KEY is required (set env var or use --no-ai)")
	}

	if !c.NoEmail && c.ResendAPIKey == "" {
		errs = append(errs, "RESEND_API_KEY is required (set env var or use --no-email)")
	}

	if !c.NoS3 {
		if c.AWSEndpointS3 == "" {
			errs = append(errs, "AWS_ENDPOINT_URL_S3 is required (set env var or use --no-s3)")
		}
		if c.AWSBucketName == "" {
			errs = append(errs, "BUCKET_NAME is required (set env var or use --no-s3)")
		}
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required (set env var or use --no-s3)")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required (set env var or use --no-s3)")
		}
	}

	if c.DatabaseKey != "" {
		if _, err := db.ParseKey(c.DatabaseKey); err != nil {
			errs = append(errs, "DATABASE_KEY must be 64 hex characters (generate with: openssl rand -hex 32)")
		}
	}

	if _, err := obs.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, "LOG_LEVEL must be one of debug, info, warn, error")
	}

	if c.SessionDuration <= 0 {
		errs = append(errs, "SESSION_DURATION must be positive")
	}

	if c.RateLimitConfig.RPS <= 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimitConfig.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive")
	}
	if c.AIRateLimitConfig.RPS <= 0 {
		errs = append(errs, "RATE_LIMIT_AI_RPS must be positive")
	}
	if c.AIRateLimitConfig.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_AI_BURST must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// IsDevelopment returns true if any stand-in service is enabled.
func (c *Config) IsDevelopment() bool {
	return c.NoAI || c.NoEmail || c.NoS3
}

// PrintStartupSummary writes a human-readable summary of the configuration to w.
// Secrets are never printed.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "notesmith server starting...")

	if c.NoAI {
		fmt.Fprintln(w, "  AI:       Offline (--no-ai)")
	} else {
		fmt.Fprintf(w, "  AI:       OpenAI (model: %s)\n", c.OpenAIModel)
	}

	switch {
	case c.NoEmail && c.MockEmailOutboxDir != "":
		fmt.Fprintf(w, "  Email:    Mock (--no-email, outbox: %s)\n", c.MockEmailOutboxDir)
	case c.NoEmail:
		fmt.Fprintln(w, "  Email:    Mock (--no-email)")
	default:
		fmt.Fprintf(w, "  Email:    Resend (from: %s)\n", c.ResendFromEmail)
	}

	if c.NoS3 {
		fmt.Fprintln(w, "  Exports:  In-process S3 (--no-s3)")
	} else {
		fmt.Fprintf(w, "  Exports:  S3 (endpoint: %s, bucket: %s)\n", c.AWSEndpointS3, c.AWSBucketName)
	}

	if c.DatabaseKey != "" {
		fmt.Fprintf(w, "  Database: %s (encrypted)\n", c.DatabasePath)
	} else {
		fmt.Fprintf(w, "  Database: %s\n", c.DatabasePath)
	}
	if c.EnforceNoteOwnership {
		fmt.Fprintln(w, "  Notes:    ownership enforced")
	}

	fmt.Fprintf(w, "  Listen:   %s\n", c.ListenAddr)
	fmt.Fprintf(w, "  Base:     %s\n", c.BaseURL)
	if c.LogLevel != "" {
		fmt.Fprintf(w, "  Logs:     %s\n", c.LogLevel)
	}
	fmt.Fprintln(w, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
