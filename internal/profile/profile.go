package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
// It is populated once at process start and never mutated at request time.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where rasphia stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// AI Configuration
	AIBaseURL        string // RASPHIA_AI_BASE_URL (default: https://api.openai.com/v1)
	AIAPIKey         string // RASPHIA_AI_API_KEY
	AIEmbeddingModel string // RASPHIA_AI_EMBEDDING_MODEL (default: text-embedding-3-small)
	AIChatModel      string // RASPHIA_AI_CHAT_MODEL (default: gpt-4o-mini)

	// Retrieval Configuration
	CandidatePool int // RASPHIA_RETRIEVAL_POOL (default: 100)
	TopK          int // RASPHIA_RETRIEVAL_TOP_K (default: 8)

	// Timeouts for external calls. Fixed at startup; each turn gets its own
	// deadline derived from these.
	EmbeddingTimeout   time.Duration // RASPHIA_TIMEOUT_EMBEDDING (default: 5s)
	GenerationTimeout  time.Duration // RASPHIA_TIMEOUT_GENERATION (default: 20s)
	PersistenceTimeout time.Duration // RASPHIA_TIMEOUT_PERSISTENCE (default: 5s)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if an API key or a non-default base URL is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIAPIKey != "" || (p.AIBaseURL != "" && p.AIBaseURL != "https://api.openai.com/v1")
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

// FromEnv loads configuration from RASPHIA_* environment variables.
func (p *Profile) FromEnv() {
	p.AIBaseURL = getEnvOrDefault("RASPHIA_AI_BASE_URL", "https://api.openai.com/v1")
	p.AIAPIKey = os.Getenv("RASPHIA_AI_API_KEY")
	p.AIEmbeddingModel = getEnvOrDefault("RASPHIA_AI_EMBEDDING_MODEL", "text-embedding-3-small")
	p.AIChatModel = getEnvOrDefault("RASPHIA_AI_CHAT_MODEL", "gpt-4o-mini")

	p.CandidatePool = getIntEnvOrDefault("RASPHIA_RETRIEVAL_POOL", 100)
	p.TopK = getIntEnvOrDefault("RASPHIA_RETRIEVAL_TOP_K", 8)

	p.EmbeddingTimeout = getDurationEnvOrDefault("RASPHIA_TIMEOUT_EMBEDDING", 5*time.Second)
	p.GenerationTimeout = getDurationEnvOrDefault("RASPHIA_TIMEOUT_GENERATION", 20*time.Second)
	p.PersistenceTimeout = getDurationEnvOrDefault("RASPHIA_TIMEOUT_PERSISTENCE", 5*time.Second)
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
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unknown db driver %q: only 'postgres' and 'sqlite' are supported", p.Driver)
	}

	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for the postgres driver")
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("rasphia_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.CandidatePool < p.TopK {
		p.CandidatePool = p.TopK
	}

	return nil
}
