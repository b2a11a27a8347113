package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start main server.
type Profile struct {
	// Primary LLM configuration (OpenAI-compatible protocol).
	LLMAPIKey  string // API key for the chat model
	LLMBaseURL string // Base URL of the OpenAI-compatible endpoint
	LLMModel   string // Default chat model name
	LLMTimeout int    // LLM request timeout in seconds (default: 120)

	// Title generation configuration. Falls back to the primary LLM
	// configuration when unset.
	TitleAPIKey  string
	TitleBaseURL string
	TitleModel   string

	Mode        string // dev, prod
	Addr        string
	DSN         string
	Driver      string // sqlite, postgres
	Version     string
	Data        string
	Port        int
	TurnTimeout int // Whole-turn ceiling in seconds (default: 300)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsLLMEnabled returns true if a chat model API key is configured.
func (p *Profile) IsLLMEnabled() bool {
	return p.LLMAPIKey != ""
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LLMAPIKey = getEnvOrDefault("PARLEY_LLM_API_KEY", p.LLMAPIKey)
	p.LLMBaseURL = getEnvOrDefault("PARLEY_LLM_BASE_URL", "https://api.openai.com/v1")
	p.LLMModel = getEnvOrDefault("PARLEY_LLM_MODEL", "gpt-4o")
	p.LLMTimeout = getEnvOrDefaultInt("PARLEY_LLM_TIMEOUT_SECONDS", 120)

	p.TitleAPIKey = getEnvOrDefault("PARLEY_TITLE_API_KEY", p.LLMAPIKey)
	p.TitleBaseURL = getEnvOrDefault("PARLEY_TITLE_BASE_URL", p.LLMBaseURL)
	p.TitleModel = getEnvOrDefault("PARLEY_TITLE_MODEL", p.LLMModel)

	p.TurnTimeout = getEnvOrDefaultInt("PARLEY_TURN_TIMEOUT_SECONDS", 300)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q", p.Driver)
	}

	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires a dsn")
	}

	if p.Driver == "sqlite" {
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			return err
		}
		p.Data = dataDir
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("parley_%s.db", p.Mode))
		}
	}

	if p.TurnTimeout <= 0 {
		p.TurnTimeout = 300
	}

	return nil
}
