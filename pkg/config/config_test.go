package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-genai/campusrag/pkg/rbac"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
embedding:
  provider: "ollama"
  base_url: "http://localhost:11434"
  model: "all-minilm"
  dimension: 384

llm:
  provider: "groq"
  model: "moonshotai/kimi-k2-instruct-0905"
  max_tokens: 512
  temperature: 0.5

database:
  url: "postgres://localhost:5432/campus"
  table_name: "campus_chunks"

ingest:
  docs_dir: "testdata/docs"
  role_map: "testdata/rolemap.yaml"
  chunk_size: 500
  chunk_overlap: 100

retrieval:
  limit: 3
  oversample: 4

chat:
  history_window: 8
  streaming: true

hierarchy:
  dean: [parent, student, professor, dean]
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	// Test loading config
	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	// Verify loaded values
	assert.Equal(t, "ollama", config.Embedding.Provider)
	assert.Equal(t, "all-minilm", config.Embedding.Model)
	assert.Equal(t, 384, config.Embedding.Dimension)
	assert.Equal(t, "groq", config.LLM.Provider)
	assert.Equal(t, 512, config.LLM.MaxTokens)
	assert.Equal(t, 0.5, config.LLM.Temperature)
	assert.Equal(t, "postgres://localhost:5432/campus", config.Database.URL)
	assert.Equal(t, 500, config.Ingest.ChunkSize)
	assert.Equal(t, 100, config.Ingest.ChunkOverlap)
	assert.Equal(t, 3, config.Retrieval.Limit)
	assert.Equal(t, 4, config.Retrieval.Oversample)
	assert.Equal(t, 8, config.Chat.HistoryWindow)
	assert.True(t, config.Chat.Streaming)

	// Defaults fill the unset sections
	assert.Equal(t, "https://api.groq.com/openai/v1", config.LLM.BaseURL)
	assert.Equal(t, ":8080", config.Server.Addr)
	assert.Equal(t, "dev", config.Log.Mode)
}

func TestDefaultsMatchIngestionContract(t *testing.T) {
	config := &Config{}
	applyDefaults(config)

	assert.Equal(t, 500, config.Ingest.ChunkSize)
	assert.Equal(t, 100, config.Ingest.ChunkOverlap)
	assert.Equal(t, 5, config.Retrieval.Limit)
	assert.Equal(t, 5, config.Retrieval.Oversample)
	assert.Equal(t, "all-minilm", config.Embedding.Model)
	assert.Equal(t, 384, config.Embedding.Dimension)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*Config)
		wantFields   []string
		expectedErrs int
	}{
		{
			name:         "valid defaults",
			mutate:       func(c *Config) {},
			expectedErrs: 0,
		},
		{
			name: "bad providers and geometry",
			mutate: func(c *Config) {
				c.Embedding.Provider = "tensorflow"
				c.LLM.Provider = "mainframe"
				c.Ingest.ChunkOverlap = c.Ingest.ChunkSize
			},
			wantFields:   []string{"embedding.provider", "llm.provider", "ingest.chunk_overlap"},
			expectedErrs: 3,
		},
		{
			name: "bad numeric ranges",
			mutate: func(c *Config) {
				c.LLM.MaxTokens = 50000
				c.LLM.Temperature = 3.0
				c.Retrieval.Limit = 0
				c.Retrieval.Oversample = -1
			},
			wantFields:   []string{"llm.max_tokens", "llm.temperature", "retrieval.limit", "retrieval.oversample"},
			expectedErrs: 4,
		},
		{
			name: "bad hierarchy role",
			mutate: func(c *Config) {
				c.Hierarchy = map[string][]string{"dean": {"overlord"}}
			},
			wantFields:   []string{"hierarchy"},
			expectedErrs: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}
			applyDefaults(config)
			tt.mutate(config)

			errors := config.Validate()
			assert.Len(t, errors, tt.expectedErrs)

			for i, field := range tt.wantFields {
				assert.Equal(t, field, errors[i].Field)
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	// Set environment variables
	os.Setenv("DATABASE_URL", "postgres://env-db:5432/campus")
	os.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	os.Setenv("GROQ_API_KEY", "gsk_test")
	os.Setenv("JWT_SECRET", "env-secret")
	defer func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("OLLAMA_BASE_URL")
		os.Unsetenv("GROQ_API_KEY")
		os.Unsetenv("JWT_SECRET")
	}()

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "postgres://env-db:5432/campus", config.Database.URL)
	assert.Equal(t, "http://env-ollama:11434", config.Embedding.BaseURL)
	assert.Equal(t, "gsk_test", config.LLM.APIKey)
	assert.Equal(t, "env-secret", config.Server.JWTSecret)
}

func TestRoleHierarchy(t *testing.T) {
	config := &Config{Hierarchy: map[string][]string{
		"dean": {"parent", "student", "professor", "dean"},
	}}

	h, err := config.RoleHierarchy()
	require.NoError(t, err)
	assert.ElementsMatch(t, []rbac.Role{rbac.Dean, rbac.Parent, rbac.Student, rbac.Professor}, h.Accessible(rbac.Dean))
	assert.Equal(t, []rbac.Role{rbac.Student}, h.Accessible(rbac.Student))

	config.Hierarchy = map[string][]string{"warden": {"student"}}
	_, err = config.RoleHierarchy()
	assert.ErrorIs(t, err, rbac.ErrInvalidRole)
}
