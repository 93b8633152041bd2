package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "https://api.openai.com/v1", p.AIBaseURL)
	assert.Equal(t, "text-embedding-3-small", p.AIEmbeddingModel)
	assert.Equal(t, "gpt-4o-mini", p.AIChatModel)
	assert.Equal(t, 100, p.CandidatePool)
	assert.Equal(t, 8, p.TopK)
	assert.Equal(t, 5*time.Second, p.EmbeddingTimeout)
	assert.Equal(t, 20*time.Second, p.GenerationTimeout)
	assert.Equal(t, 5*time.Second, p.PersistenceTimeout)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("RASPHIA_AI_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("RASPHIA_RETRIEVAL_TOP_K", "5")
	t.Setenv("RASPHIA_TIMEOUT_GENERATION", "30s")
	t.Setenv("RASPHIA_RETRIEVAL_POOL", "not-a-number")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "http://localhost:11434/v1", p.AIBaseURL)
	assert.Equal(t, 5, p.TopK)
	assert.Equal(t, 30*time.Second, p.GenerationTimeout)
	// Bad values fall back to the default.
	assert.Equal(t, 100, p.CandidatePool)
}

func TestValidate(t *testing.T) {
	t.Run("unknown driver", func(t *testing.T) {
		p := &Profile{Mode: "dev", Driver: "mysql", Data: t.TempDir()}
		require.Error(t, p.Validate())
	})

	t.Run("postgres requires dsn", func(t *testing.T) {
		p := &Profile{Mode: "dev", Driver: "postgres", Data: t.TempDir()}
		require.Error(t, p.Validate())
	})

	t.Run("sqlite derives dsn", func(t *testing.T) {
		dir := t.TempDir()
		p := &Profile{Mode: "dev", Driver: "sqlite", Data: dir}
		p.FromEnv()
		require.NoError(t, p.Validate())
		assert.Contains(t, p.DSN, "rasphia_dev.db")
	})

	t.Run("pool never below top k", func(t *testing.T) {
		p := &Profile{Mode: "dev", Driver: "sqlite", Data: t.TempDir(), CandidatePool: 4, TopK: 8}
		require.NoError(t, p.Validate())
		assert.Equal(t, 8, p.CandidatePool)
	})

	t.Run("invalid mode falls back to demo", func(t *testing.T) {
		p := &Profile{Mode: "staging", Driver: "sqlite", Data: t.TempDir()}
		require.NoError(t, p.Validate())
		assert.Equal(t, "demo", p.Mode)
	})
}
