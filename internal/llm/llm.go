// Package llm is a provider-agnostic chat-completion client.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	defaultOllamaModel = "ministral-3:latest"
	defaultOpenAIModel = "gpt-4o-mini"
	defaultOpenAIBase  = "https://api.openai.com/v1"
	defaultMaxTokens   = 1024
)

const defaultLLMHTTPTimeout = 3 * time.Minute

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client sends a conversation and returns the assistant reply. Cancelling ctx
// aborts the request.
type Client interface {
	Chat(ctx context.Context, messages []Message, maxTokens int) (string, error)
	Name() string
}

// Config describes how to build a Client.
type Config struct {
	Provider   string
	Model      string
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
}

// ErrEmptyResponse marks a 2xx reply without content.
var ErrEmptyResponse = errors.New("empty response")

// ProviderError reports a failed provider call.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
	Err      error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(" API error")
	if e.Status != 0 {
		fmt.Fprintf(&b, ": %d %s", e.Status, http.StatusText(e.Status))
	}
	if e.Body != "" {
		b.WriteString(" (" + e.Body + ")")
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewFromEnv builds a client from cfg, filling blanks from OLLAMA_* and
// OPENAI_* environment variables.
func NewFromEnv(cfg Config) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderOllama
	}
	switch provider {
	case ProviderOllama:
		host := cfg.Endpoint
		if host == "" {
			host = envOr("OLLAMA_HOST", "http://localhost:11434")
		}
		model := cfg.Model
		if model == "" {
			model = envOr("OLLAMA_MODEL", defaultOllamaModel)
		}
		return &ollamaClient{
			host:   strings.TrimRight(host, "/"),
			model:  model,
			client: pickHTTPClient(cfg.HTTPClient),
		}, nil
	case ProviderOpenAI:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		base := cfg.Endpoint
		if base == "" {
			base = envOr("OPENAI_BASE_URL", defaultOpenAIBase)
		}
		if key == "" && base == defaultOpenAIBase {
			return nil, errors.New("OPENAI_API_KEY is required for the OpenAI API")
		}
		model := cfg.Model
		if model == "" {
			model = envOr("OPENAI_MODEL", defaultOpenAIModel)
		}
		return &openAIClient{
			apiKey: key,
			model:  model,
			base:   strings.TrimRight(base, "/"),
			client: pickHTTPClient(cfg.HTTPClient),
		}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func pickHTTPClient(custom *http.Client) *http.Client {
	if custom != nil {
		return custom
	}
	// Allow longer-running generations (Ollama often needs >60s) and rely on the caller's context for cancellation.
	return &http.Client{Timeout: defaultLLMHTTPTimeout}
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func normalizeMaxTokens(n int) int {
	if n <= 0 {
		return defaultMaxTokens
	}
	return n
}
