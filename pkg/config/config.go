package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/campus-genai/campusrag/pkg/rbac"
)

type EmbeddingConfig struct {
	Provider       string  `yaml:"provider"` // "ollama" or "openai"
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"api_key"`
	Dimension      int     `yaml:"dimension"`
	BatchSize      int     `yaml:"batch_size"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RateLimit      float64 `yaml:"rate_limit"` // embedding calls per second during ingestion
}

type LLMConfig struct {
	Provider       string  `yaml:"provider"` // "groq", "openai" or "ollama"
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"api_key"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	SystemTemplate string  `yaml:"system_template"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
}

type IngestConfig struct {
	DocsDir      string `yaml:"docs_dir"`
	RoleMapPath  string `yaml:"role_map"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

type RetrievalConfig struct {
	Limit      int `yaml:"limit"`
	Oversample int `yaml:"oversample"` // candidate multiplier for the manual filter tier
}

type ChatConfig struct {
	HistoryWindow int  `yaml:"history_window"` // recent turns sent to the model
	Streaming     bool `yaml:"streaming"`
}

type ServerConfig struct {
	Addr            string `yaml:"addr"`
	JWTSecret       string `yaml:"jwt_secret"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
}

type LogConfig struct {
	Mode  string `yaml:"mode"` // "dev" or "prod"
	Level string `yaml:"level"`
}

type Config struct {
	Embedding EmbeddingConfig     `yaml:"embedding"`
	LLM       LLMConfig           `yaml:"llm"`
	Database  DatabaseConfig      `yaml:"database"`
	Ingest    IngestConfig        `yaml:"ingest"`
	Retrieval RetrievalConfig     `yaml:"retrieval"`
	Chat      ChatConfig          `yaml:"chat"`
	Server    ServerConfig        `yaml:"server"`
	Log       LogConfig           `yaml:"log"`
	Hierarchy map[string][]string `yaml:"hierarchy"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/campusrag/config.yaml"),
			"/etc/campusrag/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "ollama"
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = "all-minilm"
	}
	if config.Embedding.BaseURL == "" && config.Embedding.Provider == "ollama" {
		config.Embedding.BaseURL = "http://localhost:11434"
	}
	if config.Embedding.Dimension == 0 {
		config.Embedding.Dimension = 384
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 16
	}
	if config.Embedding.TimeoutSeconds == 0 {
		config.Embedding.TimeoutSeconds = 30
	}
	if config.Embedding.RateLimit == 0 {
		config.Embedding.RateLimit = 4.0
	}

	if config.LLM.Provider == "" {
		config.LLM.Provider = "groq"
	}
	if config.LLM.BaseURL == "" {
		switch config.LLM.Provider {
		case "groq":
			config.LLM.BaseURL = "https://api.groq.com/openai/v1"
		case "ollama":
			config.LLM.BaseURL = "http://localhost:11434"
		}
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "moonshotai/kimi-k2-instruct-0905"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1024
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.TimeoutSeconds == 0 {
		config.LLM.TimeoutSeconds = 60
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "campus_chunks"
	}

	if config.Ingest.DocsDir == "" {
		config.Ingest.DocsDir = "docs"
	}
	if config.Ingest.RoleMapPath == "" {
		config.Ingest.RoleMapPath = "rolemap.yaml"
	}
	if config.Ingest.ChunkSize == 0 {
		config.Ingest.ChunkSize = 500
	}
	if config.Ingest.ChunkOverlap == 0 {
		config.Ingest.ChunkOverlap = 100
	}

	if config.Retrieval.Limit == 0 {
		config.Retrieval.Limit = 5
	}
	if config.Retrieval.Oversample == 0 {
		config.Retrieval.Oversample = 5
	}

	if config.Chat.HistoryWindow == 0 {
		config.Chat.HistoryWindow = 6
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.TokenTTLMinutes == 0 {
		config.Server.TokenTTLMinutes = 720
	}

	if config.Log.Mode == "" {
		config.Log.Mode = "dev"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.Embedding.BaseURL = baseURL
	}
	if apiKey := os.Getenv("GROQ_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if apiKey := os.Getenv("LLM_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Server.JWTSecret = secret
	}
}

// RoleHierarchy converts the raw hierarchy section into the rbac type.
// An absent section means exact-role matching only.
func (c *Config) RoleHierarchy() (rbac.Hierarchy, error) {
	if len(c.Hierarchy) == 0 {
		return rbac.Hierarchy{}, nil
	}
	h := make(rbac.Hierarchy, len(c.Hierarchy))
	for name, grants := range c.Hierarchy {
		role, err := rbac.Parse(name)
		if err != nil {
			return nil, err
		}
		parsed, err := rbac.FromStrings(grants)
		if err != nil {
			return nil, err
		}
		h[role] = parsed
	}
	return h, h.Validate()
}
