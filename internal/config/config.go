// Package config loads and validates ingestor configuration from the
// process environment (and an optional .env file), following the same
// envconfig-tagged-struct-plus-Validate shape the teacher uses for its
// own service configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the ingestor.
type Config struct {
	Server        ServerConfig
	Claim         ClaimConfig
	Inbox         InboxConfig
	Ledger        LedgerConfig
	Providers     ProvidersConfig
	Normalization NormalizationConfig
	Monitoring    MonitoringConfig
	Log           LogConfig
}

// ServerConfig holds worker identity and polling cadence.
type ServerConfig struct {
	WorkerID     string `envconfig:"WORKER_ID"`
	PollInterval string `envconfig:"POLL_INTERVAL" default:"5m"`
}

// ResolvedWorkerID falls back to hostname+pid when WORKER_ID is unset, per
// SPEC_FULL.md §4.8.
func (c ServerConfig) ResolvedWorkerID() string {
	if c.WorkerID != "" {
		return c.WorkerID
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

// ClaimConfig configures the durable claim store.
type ClaimConfig struct {
	DBPath    string `envconfig:"CLAIM_DB_PATH" default:"data/metadata.db"`
	CacheSize int    `envconfig:"CLAIM_CACHE_SIZE" default:"4096"`
}

// InboxConfig selects and configures the inbound document backend.
type InboxConfig struct {
	Backend              string `envconfig:"INGESTION_BACKEND" default:"r2"`
	AllowedMimeTypes     string `envconfig:"ALLOWED_MIME_TYPES" default:"image/jpeg,image/png,application/pdf"`
	DriveInboxFolderID   string `envconfig:"DRIVE_INBOX_FOLDER_ID"`
	GoogleServiceAccount string `envconfig:"GOOGLE_SERVICE_ACCOUNT_FILE"`
	R2EndpointURL        string `envconfig:"R2_ENDPOINT_URL"`
	R2AccessKeyID        string `envconfig:"R2_ACCESS_KEY_ID"`
	R2SecretAccessKey    string `envconfig:"R2_SECRET_ACCESS_KEY"`
	R2BucketName         string `envconfig:"R2_BUCKET_NAME"`
	R2InboxPrefix        string `envconfig:"R2_INBOX_PREFIX" default:"inbox/"`
	R2ArchivePrefix      string `envconfig:"R2_ARCHIVE_PREFIX" default:"archive/"`
}

// AllowedMimeTypeSet parses the comma-separated AllowedMimeTypes field.
func (c InboxConfig) AllowedMimeTypeSet() map[string]bool {
	set := make(map[string]bool)
	for _, raw := range strings.Split(c.AllowedMimeTypes, ",") {
		if mime := strings.TrimSpace(raw); mime != "" {
			set[mime] = true
		}
	}
	return set
}

// LedgerConfig selects and configures the durable storage sink.
type LedgerConfig struct {
	Backend              string  `envconfig:"LEDGER_BACKEND" default:"postgres"`
	PostgresDSN          string  `envconfig:"LEDGER_POSTGRES_DSN"`
	SpreadsheetID        string  `envconfig:"LEDGER_SPREADSHEET_ID"`
	Range                string  `envconfig:"LEDGER_RANGE" default:"Ledger!A:Z"`
	ReviewScoreThreshold float64 `envconfig:"STORE_REVIEW_SCORE_THRESHOLD" default:"0.6"`
}

// ProvidersConfig holds every vision provider's credentials and model
// overrides, plus the fallback order and routing confidence threshold.
type ProvidersConfig struct {
	Provider                  string  `envconfig:"EXTRACTION_PROVIDER" default:"auto"`
	Model                     string  `envconfig:"EXTRACTION_MODEL"`
	ProviderOrder             string  `envconfig:"EXTRACTION_PROVIDER_ORDER" default:"mistral,openrouter,groq"`
	ReviewConfidenceThreshold float64 `envconfig:"REVIEW_CONFIDENCE_THRESHOLD" default:"0.5"`

	MistralAPIKey    string `envconfig:"MISTRAL_API_KEY"`
	MistralModel     string `envconfig:"MISTRAL_MODEL"`
	OpenRouterAPIKey string `envconfig:"OPENROUTER_API_KEY"`
	OpenRouterModel  string `envconfig:"OPENROUTER_MODEL"`
	GroqAPIKey       string `envconfig:"GROQ_API_KEY"`
	GroqModel        string `envconfig:"GROQ_MODEL"`
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel      string `envconfig:"OPENAI_MODEL"`
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	GoogleAPIKey     string `envconfig:"GOOGLE_API_KEY"`
	GeminiModel      string `envconfig:"GEMINI_MODEL"`
	AnthropicAPIKey  string `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel   string `envconfig:"ANTHROPIC_MODEL"`
	BedrockModelID   string `envconfig:"AWS_BEDROCK_MODEL_ID"`
	BedrockRegion    string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// ResolvedGeminiAPIKey prefers GEMINI_API_KEY, falling back to
// GOOGLE_API_KEY, matching the reference implementation's lookup order.
func (c ProvidersConfig) ResolvedGeminiAPIKey() string {
	if c.GeminiAPIKey != "" {
		return c.GeminiAPIKey
	}
	return c.GoogleAPIKey
}

// ProviderOrderList parses the comma-separated ProviderOrder field.
func (c ProvidersConfig) ProviderOrderList() []string {
	var order []string
	for _, raw := range strings.Split(c.ProviderOrder, ",") {
		if name := strings.TrimSpace(raw); name != "" {
			order = append(order, name)
		}
	}
	return order
}

// NormalizationConfig points at the field-alias/rules file NormalizationEngine loads.
type NormalizationConfig struct {
	RulesPath string `envconfig:"NORMALIZATION_RULES_PATH" default:"config/normalization_rules.json"`
}

// MonitoringConfig configures the Fiber monitoring API.
type MonitoringConfig struct {
	Port int `envconfig:"MONITORING_PORT" default:"8090"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Load reads a .env file if present, then parses environment variables
// into the Config struct and validates them.
func Load() (*Config, error) {
	LoadDotEnv(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field configuration invariants that envconfig's
// struct tags alone can't express.
func (c *Config) Validate() error {
	if c.Monitoring.Port < 1 || c.Monitoring.Port > 65535 {
		return fmt.Errorf("MONITORING_PORT must be between 1 and 65535, got %d", c.Monitoring.Port)
	}

	switch c.Inbox.Backend {
	case "r2":
		if c.Inbox.R2BucketName == "" {
			return fmt.Errorf("R2_BUCKET_NAME is required when INGESTION_BACKEND=r2")
		}
	case "drive":
		if c.Inbox.DriveInboxFolderID == "" {
			return fmt.Errorf("DRIVE_INBOX_FOLDER_ID is required when INGESTION_BACKEND=drive")
		}
	default:
		return fmt.Errorf("INGESTION_BACKEND must be one of: r2, drive; got %q", c.Inbox.Backend)
	}

	switch c.Ledger.Backend {
	case "postgres":
		if c.Ledger.PostgresDSN == "" {
			return fmt.Errorf("LEDGER_POSTGRES_DSN is required when LEDGER_BACKEND=postgres")
		}
	case "sheets":
		if c.Ledger.SpreadsheetID == "" {
			return fmt.Errorf("LEDGER_SPREADSHEET_ID is required when LEDGER_BACKEND=sheets")
		}
	default:
		return fmt.Errorf("LEDGER_BACKEND must be one of: postgres, sheets; got %q", c.Ledger.Backend)
	}

	if c.Providers.ReviewConfidenceThreshold < 0 || c.Providers.ReviewConfidenceThreshold > 1 {
		return fmt.Errorf("REVIEW_CONFIDENCE_THRESHOLD must be in [0,1], got %f", c.Providers.ReviewConfidenceThreshold)
	}
	if c.Ledger.ReviewScoreThreshold < 0 || c.Ledger.ReviewScoreThreshold > 1 {
		return fmt.Errorf("STORE_REVIEW_SCORE_THRESHOLD must be in [0,1], got %f", c.Ledger.ReviewScoreThreshold)
	}

	return nil
}
