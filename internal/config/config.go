// Package config resolves runtime configuration from the environment, an
// optional .env file and command-line overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	// StateDir holds files the vault owns but never indexes.
	StateDir = ".papervault"

	MinRebuildDelay = 100 * time.Millisecond
	MaxRebuildDelay = time.Minute
)

type Config struct {
	VaultPath    string
	SettingsPath string // vault-relative
	LogFile      string // host path, empty means stderr
	Verbose      bool

	PapersRoot   string
	IndexFile    string
	FeedsFolder  string
	DailyFolder  string
	DailyFormat  string
	BackupDir    string
	RebuildDelay time.Duration

	ArxivBaseURL string
	ArxivPDFURL  string
	CacheDir     string // vault-relative PDF cache

	// LLM configuration
	LLMProvider string
	LLMModel    string
	LLMEndpoint string
	LLMAPIKey   string
	MaxTokens   int
	LLMTimeout  time.Duration
}

// Overrides carries explicitly set command-line flags. Empty values keep the
// environment or default value.
type Overrides struct {
	VaultPath    string
	SettingsPath string
	LogFile      string
	Verbose      bool
	LLMProvider  string
	LLMModel     string
	LLMEndpoint  string
}

// LoadDotEnv reads .env from the working directory when present.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// Load builds a Config from PAPERVAULT_*, OLLAMA_* and OPENAI_* variables.
func Load() *Config {
	provider := getEnv("PAPERVAULT_LLM_PROVIDER", ProviderOllama)
	return &Config{
		VaultPath:    getEnv("PAPERVAULT_VAULT", "."),
		SettingsPath: getEnv("PAPERVAULT_SETTINGS", StateDir+"/settings.json"),
		LogFile:      getEnv("PAPERVAULT_LOG_FILE", ""),
		Verbose:      getEnv("PAPERVAULT_DEBUG", "false") == "true",

		PapersRoot:   getEnv("PAPERVAULT_PAPERS_ROOT", "Papers"),
		IndexFile:    getEnv("PAPERVAULT_INDEX_FILE", "_Paper Index.md"),
		FeedsFolder:  getEnv("PAPERVAULT_FEEDS_FOLDER", "Feeds"),
		DailyFolder:  getEnv("PAPERVAULT_DAILY_FOLDER", "Daily"),
		DailyFormat:  getEnv("PAPERVAULT_DAILY_FORMAT", "2006-01-02"),
		BackupDir:    getEnv("PAPERVAULT_BACKUP_DIR", StateDir+"/backups"),
		RebuildDelay: getDuration("PAPERVAULT_REBUILD_DELAY", 2*time.Second),

		ArxivBaseURL: getEnv("PAPERVAULT_ARXIV_URL", "https://export.arxiv.org/api/query"),
		ArxivPDFURL:  getEnv("PAPERVAULT_ARXIV_PDF_URL", "https://arxiv.org/pdf"),
		CacheDir:     getEnv("PAPERVAULT_CACHE_DIR", StateDir+"/cache"),

		LLMProvider: provider,
		LLMModel:    getEnv("PAPERVAULT_LLM_MODEL", defaultModel(provider)),
		LLMEndpoint: getEnv("PAPERVAULT_LLM_ENDPOINT", defaultEndpoint(provider)),
		LLMAPIKey:   getEnv("OPENAI_API_KEY", ""),
		MaxTokens:   getInt("PAPERVAULT_MAX_TOKENS", 1024),
		LLMTimeout:  getDuration("PAPERVAULT_LLM_TIMEOUT", 3*time.Minute),
	}
}

// Apply layers command-line overrides on top of c.
func (c *Config) Apply(o Overrides) {
	if o.VaultPath != "" {
		c.VaultPath = o.VaultPath
	}
	if o.SettingsPath != "" {
		c.SettingsPath = o.SettingsPath
	}
	if o.LogFile != "" {
		c.LogFile = o.LogFile
	}
	if o.Verbose {
		c.Verbose = true
	}
	if o.LLMProvider != "" && o.LLMProvider != c.LLMProvider {
		// switching provider resets provider-specific defaults unless the
		// environment pinned them
		c.LLMProvider = o.LLMProvider
		if os.Getenv("PAPERVAULT_LLM_MODEL") == "" {
			c.LLMModel = defaultModel(o.LLMProvider)
		}
		if os.Getenv("PAPERVAULT_LLM_ENDPOINT") == "" {
			c.LLMEndpoint = defaultEndpoint(o.LLMProvider)
		}
	}
	if o.LLMModel != "" {
		c.LLMModel = o.LLMModel
	}
	if o.LLMEndpoint != "" {
		c.LLMEndpoint = o.LLMEndpoint
	}
}

// DefaultLogFile is where the chat command logs when --log-file is unset.
func (c *Config) DefaultLogFile() string {
	return filepath.Join(c.VaultPath, StateDir, "papervault.log")
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.VaultPath, validation.Required),
		validation.Field(&c.SettingsPath, validation.Required),
		validation.Field(&c.PapersRoot, validation.Required),
		validation.Field(&c.IndexFile, validation.Required),
		validation.Field(&c.DailyFormat, validation.Required),
		validation.Field(&c.RebuildDelay, validation.Min(MinRebuildDelay), validation.Max(MaxRebuildDelay)),
		validation.Field(&c.LLMProvider, validation.Required, validation.In(ProviderOllama, ProviderOpenAI)),
		validation.Field(&c.LLMEndpoint, validation.Required),
		validation.Field(&c.MaxTokens, validation.Required, validation.Min(1)),
	)
}

func defaultModel(provider string) string {
	if provider == ProviderOpenAI {
		return getEnv("OPENAI_MODEL", "gpt-4o-mini")
	}
	return getEnv("OLLAMA_MODEL", "ministral-3:latest")
}

func defaultEndpoint(provider string) string {
	if provider == ProviderOpenAI {
		return getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1")
	}
	return getEnv("OLLAMA_HOST", "http://localhost:11434")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return n
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	// bare numbers are milliseconds
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

// String renders the settings worth logging at startup.
func (c *Config) String() string {
	return fmt.Sprintf("vault=%s papers=%s provider=%s model=%s", c.VaultPath, c.PapersRoot, c.LLMProvider, c.LLMModel)
}
